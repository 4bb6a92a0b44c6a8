package sim

import (
	"fmt"
	"sort"
	"strings"
)

// RunParameters maps "<modelURI>:<paramName>" keys to arbitrary typed
// values. They are consulted once, before initialisation.
type RunParameters map[string]any

// ParamKey builds the run parameter key for a model parameter.
func ParamKey(modelURI, name string) string {
	return modelURI + ":" + name
}

// Has reports whether the parameter is present.
func (p RunParameters) Has(modelURI, name string) bool {
	_, ok := p[ParamKey(modelURI, name)]
	return ok
}

// Get returns the raw value or a *MissingParameterError.
func (p RunParameters) Get(modelURI, name string) (any, error) {
	key := ParamKey(modelURI, name)
	v, ok := p[key]
	if !ok {
		return nil, &MissingParameterError{Key: key}
	}
	return v, nil
}

// Float64 returns a numeric parameter. Integer values are widened.
func (p RunParameters) Float64(modelURI, name string) (float64, error) {
	v, err := p.Get(modelURI, name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("run parameter %q: want a number, got %T", ParamKey(modelURI, name), v)
}

// Int returns an integer parameter. Float values must be integral.
func (p RunParameters) Int(modelURI, name string) (int, error) {
	v, err := p.Get(modelURI, name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("run parameter %q: want an integer, got %v (%T)", ParamKey(modelURI, name), v, v)
}

// Text returns a string parameter.
func (p RunParameters) Text(modelURI, name string) (string, error) {
	v, err := p.Get(modelURI, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("run parameter %q: want a string, got %T", ParamKey(modelURI, name), v)
	}
	return s, nil
}

// Bool returns a boolean parameter.
func (p RunParameters) Bool(modelURI, name string) (bool, error) {
	v, err := p.Get(modelURI, name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("run parameter %q: want a bool, got %T", ParamKey(modelURI, name), v)
	}
	return b, nil
}

// Duration returns a parameter expressed as a number of units.
func (p RunParameters) Duration(modelURI, name string, unit TimeUnit) (Duration, error) {
	f, err := p.Float64(modelURI, name)
	if err != nil {
		return Duration{}, err
	}
	if f < 0 {
		return Duration{}, fmt.Errorf("run parameter %q: negative duration %v", ParamKey(modelURI, name), f)
	}
	return NewDuration(f, unit), nil
}

// ForModel returns the parameter names set for modelURI, sorted.
func (p RunParameters) ForModel(modelURI string) []string {
	prefix := modelURI + ":"
	var names []string
	for k := range p {
		if strings.HasPrefix(k, prefix) {
			names = append(names, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(names)
	return names
}
