package sim

import "fmt"

// ExportedVariable is a continuous variable written by exactly one atomic
// model. Implemented only by *Variable[T].
type ExportedVariable interface {
	Name() string
	OwnerURI() string
	IsInitialised() bool
	variableName() string
	typeName() string
	setOwner(uri string)
	reset()
}

// ImportedVariable is a read-only view on another model's exported
// variable. Implemented only by *Import[T].
type ImportedVariable interface {
	Name() string
	IsBound() bool
	variableName() string
	typeName() string
	bind(src ExportedVariable) error
}

// Variable is a typed continuous variable owned by its exporting model.
// Only the owner writes it, and only inside its initialisation or
// transition functions; importers read it through an Import.
type Variable[T any] struct {
	name        string
	owner       string
	value       T
	time        Time
	initialised bool
}

// NewVariable creates an uninitialised exported variable.
func NewVariable[T any](name string) *Variable[T] {
	return &Variable[T]{name: name}
}

func (v *Variable[T]) Name() string     { return v.name }
func (v *Variable[T]) OwnerURI() string { return v.owner }

// Set records value as the variable value at instant at.
func (v *Variable[T]) Set(value T, at Time) {
	v.value = value
	v.time = at
	v.initialised = true
}

// Value returns the last value set. Reading before initialisation is a
// contract violation.
func (v *Variable[T]) Value() T {
	assertf(v.initialised, v.owner, "variable %q read before initialisation", v.name)
	return v.value
}

// Time returns the instant at which the current value was set.
func (v *Variable[T]) Time() Time {
	assertf(v.initialised, v.owner, "variable %q read before initialisation", v.name)
	return v.time
}

func (v *Variable[T]) IsInitialised() bool { return v.initialised }

func (v *Variable[T]) variableName() string { return v.name }
func (v *Variable[T]) typeName() string     { return fmt.Sprintf("%T", *new(T)) }
func (v *Variable[T]) setOwner(uri string)  { v.owner = uri }

func (v *Variable[T]) reset() {
	var zero T
	v.value = zero
	v.time = Time{}
	v.initialised = false
}

// Import is the importing side of a variable binding.
type Import[T any] struct {
	name   string
	source *Variable[T]
}

// NewImport creates an unbound imported variable.
func NewImport[T any](name string) *Import[T] {
	return &Import[T]{name: name}
}

func (i *Import[T]) Name() string  { return i.name }
func (i *Import[T]) IsBound() bool { return i.source != nil }

// IsInitialised reports whether the bound source has a value.
func (i *Import[T]) IsInitialised() bool {
	return i.source != nil && i.source.initialised
}

// Value reads the current value of the exporting model's variable.
func (i *Import[T]) Value() T {
	assertf(i.source != nil, "", "imported variable %q is not bound", i.name)
	return i.source.Value()
}

// Time returns the instant of the current source value.
func (i *Import[T]) Time() Time {
	assertf(i.source != nil, "", "imported variable %q is not bound", i.name)
	return i.source.Time()
}

func (i *Import[T]) variableName() string { return i.name }
func (i *Import[T]) typeName() string     { return fmt.Sprintf("%T", *new(T)) }

func (i *Import[T]) bind(src ExportedVariable) error {
	if i.source != nil {
		return fmt.Errorf("imported variable %q is already bound", i.name)
	}
	v, ok := src.(*Variable[T])
	if !ok {
		return fmt.Errorf("imported variable %q has type %s but %s.%s has type %s",
			i.name, i.typeName(), src.OwnerURI(), src.Name(), src.typeName())
	}
	i.source = v
	return nil
}

// VariableEndpoint names one variable of one atomic model.
type VariableEndpoint struct {
	ModelURI string `yaml:"model"`
	Name     string `yaml:"variable"`
}

func (e VariableEndpoint) String() string { return e.ModelURI + "." + e.Name }

// VariableBinding connects one exported variable (single writer) to any
// number of importing models (readers).
type VariableBinding struct {
	Source VariableEndpoint   `yaml:"source"`
	Sinks  []VariableEndpoint `yaml:"sinks"`
}
