package sim

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// ModelKind distinguishes the two model variants.
type ModelKind int

const (
	AtomicKind ModelKind = iota + 1
	CoupledKind
)

func (k ModelKind) String() string {
	switch k {
	case AtomicKind:
		return "atomic"
	case CoupledKind:
		return "coupled"
	}
	return "unknown"
}

// Model is the capability shared by atomic and coupled models. The URI is
// the stable identity key; every model is driven by exactly one engine.
type Model interface {
	URI() string
	TimeUnit() TimeUnit
	Kind() ModelKind
}

// AtomicModel is a leaf state machine. Concrete models embed *AtomicBase
// (which supplies identity, declared event types, variables and time
// bookkeeping) and implement the DEVS functions below. Domain state always
// lives in the concrete model, never in the engine.
type AtomicModel interface {
	Model
	atomicBase() *AtomicBase

	// InitialiseState establishes the initial state at t0.
	InitialiseState(t0 Time)
	// TimeAdvance is a pure function of the current state returning the span
	// until the next internal event, or Infinity when none is forecast.
	TimeAdvance() Duration
	// InternalTransition applies the model's own forecast event.
	InternalTransition(elapsed Duration)
}

// OutputProducer is implemented by atomic models that emit events for peer
// models just before their internal transitions. Output must not change
// the model state: calling it twice before the transition commits yields
// the same events.
type OutputProducer interface {
	Output(current Time) []Event
}

// ExternalTransitioner overrides the default external transition, which
// executes each delivered event on the model in priority order.
type ExternalTransitioner interface {
	ExternalTransition(elapsed Duration, events []Event)
}

// ConfluentTransitioner overrides the default confluent transition, which
// is the internal transition followed by the external transition with a
// zero elapsed time.
type ConfluentTransitioner interface {
	ConfluentTransition(elapsed Duration, events []Event)
}

// ParameterReceiver is implemented by models consuming run parameters. A
// missing required key must be reported as *MissingParameterError.
type ParameterReceiver interface {
	SetSimulationRunParameters(params RunParameters) error
}

// VariableInitialiser is implemented by HIOA models to compute the initial
// values of their exported variables once every state is initialised.
type VariableInitialiser interface {
	InitialiseVariables()
}

// FixpointVariableInitialiser is implemented by HIOA models whose variables
// depend on other models' variables at t0. Each call initialises whatever
// can be initialised from already available imports and reports how many
// of the model's exported variables are initialised out of the total.
type FixpointVariableInitialiser interface {
	FixpointInitialiseVariables() (initialised, total int)
}

// SimulationFinaliser is implemented by models releasing resources or
// reporting results when the run is finalised.
type SimulationFinaliser interface {
	FinaliseSimulation(endTime Time)
}

// HostNotifier receives fire-and-forget notifications pushed by atomic
// models to their owning host component. It must not call back into the
// kernel synchronously.
type HostNotifier func(modelURI, name string, value any)

// AtomicSpec declares the identity and the event interface of an atomic
// model.
type AtomicSpec struct {
	URI      string
	TimeUnit TimeUnit
	Imported []EventType
	Exported []EventType
}

// AtomicBase carries the bookkeeping common to all atomic models.
type AtomicBase struct {
	uri      string
	unit     TimeUnit
	imported map[EventType]bool
	exported map[EventType]bool

	currentStateTime Time
	engine           *AtomicEngine
	host             HostNotifier

	exportedVars map[string]ExportedVariable
	importedVars map[string]ImportedVariable
}

// NewAtomicBase builds the embedded base of an atomic model.
func NewAtomicBase(spec AtomicSpec) *AtomicBase {
	assertf(spec.URI != "", "", "atomic model without URI")
	assertf(spec.TimeUnit.IsValid(), spec.URI, "invalid time unit %d", int(spec.TimeUnit))
	b := &AtomicBase{
		uri:          spec.URI,
		unit:         spec.TimeUnit,
		imported:     make(map[EventType]bool),
		exported:     make(map[EventType]bool),
		exportedVars: make(map[string]ExportedVariable),
		importedVars: make(map[string]ImportedVariable),
	}
	for _, t := range spec.Imported {
		b.imported[t] = true
	}
	for _, t := range spec.Exported {
		b.exported[t] = true
	}
	return b
}

func (b *AtomicBase) atomicBase() *AtomicBase { return b }
func (b *AtomicBase) URI() string              { return b.uri }
func (b *AtomicBase) TimeUnit() TimeUnit       { return b.unit }
func (b *AtomicBase) Kind() ModelKind          { return AtomicKind }

// CurrentStateTime returns the instant of the current state. During a
// transition it is already the instant of that transition.
func (b *AtomicBase) CurrentStateTime() Time { return b.currentStateTime }

// TimeOfNextEvent returns the forecast instant of the next internal event.
func (b *AtomicBase) TimeOfNextEvent() Time {
	assertf(b.engine != nil, b.uri, "model is not bound to an engine")
	return b.engine.TimeOfNextEvent()
}

// IsImported reports whether t is a declared imported event type.
func (b *AtomicBase) IsImported(t EventType) bool { return b.imported[t] }

// IsExported reports whether t is a declared exported event type.
func (b *AtomicBase) IsExported(t EventType) bool { return b.exported[t] }

// ImportedEventTypes returns the declared imported event types, sorted.
func (b *AtomicBase) ImportedEventTypes() []EventType { return sortedTypes(b.imported) }

// ExportedEventTypes returns the declared exported event types, sorted.
func (b *AtomicBase) ExportedEventTypes() []EventType { return sortedTypes(b.exported) }

// ExportVariable declares v as a continuous variable written by this model.
func (b *AtomicBase) ExportVariable(v ExportedVariable) {
	_, dup := b.exportedVars[v.variableName()]
	assertf(!dup, b.uri, "variable %q exported twice", v.variableName())
	v.setOwner(b.uri)
	b.exportedVars[v.variableName()] = v
}

// ImportVariable declares v as a continuous variable read by this model.
func (b *AtomicBase) ImportVariable(v ImportedVariable) {
	_, dup := b.importedVars[v.variableName()]
	assertf(!dup, b.uri, "variable %q imported twice", v.variableName())
	b.importedVars[v.variableName()] = v
}

// IsHybrid reports whether the model exports or imports continuous
// variables.
func (b *AtomicBase) IsHybrid() bool {
	return len(b.exportedVars) > 0 || len(b.importedVars) > 0
}

// NotifyHost pushes a value to the owning host component, if any.
func (b *AtomicBase) NotifyHost(name string, value any) {
	if b.host != nil {
		b.host(b.uri, name, value)
	}
}

// Logger returns a logrus entry tagged with the model URI.
func (b *AtomicBase) Logger() *logrus.Entry {
	return logrus.WithField("model", b.uri)
}

func (b *AtomicBase) uninitialisedVariables() []string {
	var names []string
	for name, v := range b.exportedVars {
		if !v.IsInitialised() {
			names = append(names, b.uri+"."+name)
		}
	}
	sort.Strings(names)
	return names
}

func (b *AtomicBase) resetVariables() {
	for _, v := range b.exportedVars {
		v.reset()
	}
}

func sortedTypes(set map[EventType]bool) []EventType {
	out := make([]EventType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
