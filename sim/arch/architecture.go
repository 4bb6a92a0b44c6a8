// Package arch describes simulation architectures declaratively and turns
// them into runnable sim.Simulator instances.
package arch

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/devsim/sim"
)

// Architecture is the declarative description of a model tree.
// Acceleration is the simulated time per wall-clock time of real-time runs;
// zero means unset.
type Architecture struct {
	Root         string              `yaml:"root"`
	TimeUnit     sim.TimeUnit        `yaml:"time_unit"`
	Acceleration float64             `yaml:"acceleration,omitempty"`
	Atomic       []AtomicDescriptor  `yaml:"atomic"`
	Coupled      []CoupledDescriptor `yaml:"coupled"`
}

// AtomicDescriptor names an atomic model and its registered kind.
type AtomicDescriptor struct {
	URI  string `yaml:"uri"`
	Kind string `yaml:"kind"`
}

// CoupledDescriptor declares a coupled model and its couplings.
type CoupledDescriptor struct {
	URI         string                 `yaml:"uri"`
	Submodels   []string               `yaml:"submodels"`
	Imports     []ImportDescriptor     `yaml:"imports"`
	Reexports   []ReexportDescriptor   `yaml:"reexports"`
	Connections []ConnectionDescriptor `yaml:"connections"`
	Bindings    []sim.VariableBinding  `yaml:"bindings"`
	Select      string                 `yaml:"select"`
}

// SinkDescriptor is one destination of a coupling. Converter names a
// registered converter; it is required when Event differs from the type
// entering the coupling.
type SinkDescriptor struct {
	Model     string        `yaml:"model"`
	Event     sim.EventType `yaml:"event"`
	Converter string        `yaml:"converter"`
}

// ImportDescriptor routes an imported event type to submodel sinks.
type ImportDescriptor struct {
	Event sim.EventType    `yaml:"event"`
	Sinks []SinkDescriptor `yaml:"sinks"`
}

// ReexportDescriptor republishes a submodel export. An empty As keeps the
// event type.
type ReexportDescriptor struct {
	Model     string        `yaml:"model"`
	Event     sim.EventType `yaml:"event"`
	As        sim.EventType `yaml:"as"`
	Converter string        `yaml:"converter"`
}

// ConnectionDescriptor couples a submodel export to sibling imports.
type ConnectionDescriptor struct {
	From sim.EventSource  `yaml:"from"`
	To   []SinkDescriptor `yaml:"to"`
}

// LoadArchitecture reads and parses a YAML architecture file. Unknown
// fields are rejected. The result is validated.
func LoadArchitecture(path string) (*Architecture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading architecture: %w", err)
	}
	return ParseArchitecture(data)
}

// ParseArchitecture parses and validates a YAML architecture.
func ParseArchitecture(data []byte) (*Architecture, error) {
	var a Architecture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&a); err != nil {
		return nil, fmt.Errorf("parsing architecture: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadRunParameters reads a YAML mapping of "<modelURI>:<param>" keys to
// values.
func LoadRunParameters(path string) (sim.RunParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run parameters: %w", err)
	}
	params := sim.RunParameters{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("parsing run parameters: %w", err)
	}
	return params, nil
}

// Validate checks the descriptor-level consistency of the architecture:
// names, kinds, converters and select policies. Structural checks on the
// model tree and couplings happen when the simulator is assembled.
func (a *Architecture) Validate() error {
	if a.Root == "" {
		return &sim.ConfigurationError{Reason: "architecture has no root"}
	}
	if !a.TimeUnit.IsValid() {
		return &sim.ConfigurationError{ModelURI: a.Root, Reason: "architecture has no valid time_unit"}
	}
	if a.Acceleration < 0 {
		return &sim.ConfigurationError{ModelURI: a.Root, Reason: fmt.Sprintf("acceleration must be positive, got %g", a.Acceleration)}
	}
	seen := make(map[string]bool)
	for _, d := range a.Atomic {
		if d.URI == "" {
			return &sim.ConfigurationError{Reason: "atomic model without uri"}
		}
		if seen[d.URI] {
			return &sim.ConfigurationError{ModelURI: d.URI, Reason: "model URI collision"}
		}
		seen[d.URI] = true
		if _, ok := lookupModel(d.Kind); !ok {
			return &sim.ConfigurationError{ModelURI: d.URI, Reason: fmt.Sprintf("unknown model kind %q; registered: %v", d.Kind, ModelKinds())}
		}
	}
	for _, d := range a.Coupled {
		if d.URI == "" {
			return &sim.ConfigurationError{Reason: "coupled model without uri"}
		}
		if seen[d.URI] {
			return &sim.ConfigurationError{ModelURI: d.URI, Reason: "model URI collision"}
		}
		seen[d.URI] = true
		if !sim.ValidSelectPolicies[d.Select] {
			return &sim.ConfigurationError{ModelURI: d.URI, Reason: fmt.Sprintf("unknown select policy %q", d.Select)}
		}
		if err := d.checkConverters(); err != nil {
			return err
		}
	}
	if !seen[a.Root] {
		return &sim.ConfigurationError{ModelURI: a.Root, Reason: "root model is not declared"}
	}
	return nil
}

func (d *CoupledDescriptor) checkConverters() error {
	var names []string
	for _, imp := range d.Imports {
		for _, s := range imp.Sinks {
			names = append(names, s.Converter)
		}
	}
	for _, r := range d.Reexports {
		names = append(names, r.Converter)
	}
	for _, c := range d.Connections {
		for _, s := range c.To {
			names = append(names, s.Converter)
		}
	}
	for _, n := range names {
		if _, ok := lookupConverter(n); !ok {
			return &sim.ConfigurationError{ModelURI: d.URI, Reason: fmt.Sprintf("unknown converter %q", n)}
		}
	}
	return nil
}

// AccelerationFactor returns override when positive, else the declared
// acceleration, else 1.
func (a *Architecture) AccelerationFactor(override float64) float64 {
	switch {
	case override > 0:
		return override
	case a.Acceleration > 0:
		return a.Acceleration
	}
	return 1
}

// ModelCount returns the number of declared models.
func (a *Architecture) ModelCount() int {
	return len(a.Atomic) + len(a.Coupled)
}
