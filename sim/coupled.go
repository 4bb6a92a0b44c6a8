package sim

import (
	"math/rand"
	"sort"
)

// EventSource names an exported event type of one submodel.
type EventSource struct {
	ModelURI string    `yaml:"model"`
	Type     EventType `yaml:"event"`
}

// EventSink names an imported event type of one submodel, with an optional
// conversion applied to events crossing the coupling. A sink whose Type
// differs from the incoming event type needs a Converter.
type EventSink struct {
	ModelURI  string         `yaml:"model"`
	Type      EventType      `yaml:"event"`
	Converter EventConverter `yaml:"-"`
}

// ReexportedEvent republishes a submodel's exported event as an export of
// the coupled model itself.
type ReexportedEvent struct {
	Source    EventSource
	Type      EventType
	Converter EventConverter
}

// CoupledSpec declares a coupled model.
type CoupledSpec struct {
	URI       string
	TimeUnit  TimeUnit
	Submodels []string
	// Imported maps each imported event type to its submodel sinks.
	Imported map[EventType][]EventSink
	// Reexported lists the submodel exports republished by this model.
	Reexported []ReexportedEvent
	// Connections maps submodel exports to sibling imports.
	Connections map[EventSource][]EventSink
	// Bindings connect continuous variables of descendant atomic models.
	Bindings []VariableBinding
	// SelectPolicy names a built-in tie-break policy; "" is SelectRandom.
	SelectPolicy string
	// Selector overrides SelectPolicy and disables the hybrid-aware
	// default filtering.
	Selector Selector
}

// CoupledModel is a composition of submodels. It owns the routing tables,
// not the simulation loop; its coordinator engine drives the submodels.
type CoupledModel struct {
	uri         string
	unit        TimeUnit
	submodels   []string
	imported    map[EventType][]EventSink
	reexported  map[EventSource]ReexportedEvent
	connections map[EventSource][]EventSink
	bindings    []VariableBinding

	selector       Selector
	customSelector bool
	rng            *rand.Rand
	// dependsOn[child] holds the sibling submodels child imports variables from.
	dependsOn map[string]map[string]bool

	arena *arena
	index int
}

// NewCoupledModel builds a coupled model from its spec. Cross-references are
// validated when the model is assembled into a Simulator.
func NewCoupledModel(spec CoupledSpec) (*CoupledModel, error) {
	if spec.URI == "" {
		return nil, configErrorf("", "coupled model without URI")
	}
	if !spec.TimeUnit.IsValid() {
		return nil, configErrorf(spec.URI, "invalid time unit %d", int(spec.TimeUnit))
	}
	if len(spec.Submodels) == 0 {
		return nil, configErrorf(spec.URI, "coupled model has no submodels")
	}
	c := &CoupledModel{
		uri:         spec.URI,
		unit:        spec.TimeUnit,
		submodels:   sortedCopy(spec.Submodels),
		imported:    make(map[EventType][]EventSink),
		reexported:  make(map[EventSource]ReexportedEvent),
		connections: make(map[EventSource][]EventSink),
		bindings:    append([]VariableBinding(nil), spec.Bindings...),
		dependsOn:   make(map[string]map[string]bool),
		index:       -1,
	}
	for i := 1; i < len(c.submodels); i++ {
		if c.submodels[i] == c.submodels[i-1] {
			return nil, configErrorf(spec.URI, "submodel %q listed twice", c.submodels[i])
		}
	}
	for t, sinks := range spec.Imported {
		c.imported[t] = append([]EventSink(nil), sinks...)
	}
	for _, r := range spec.Reexported {
		if _, dup := c.reexported[r.Source]; dup {
			return nil, configErrorf(spec.URI, "event %s of %s reexported twice", r.Source.Type, r.Source.ModelURI)
		}
		c.reexported[r.Source] = r
	}
	for src, sinks := range spec.Connections {
		c.connections[src] = append([]EventSink(nil), sinks...)
	}
	if spec.Selector != nil {
		c.selector = spec.Selector
		c.customSelector = true
	} else {
		sel, err := SelectorByName(spec.SelectPolicy)
		if err != nil {
			return nil, configErrorf(spec.URI, "%v", err)
		}
		c.selector = sel
	}
	return c, nil
}

func (c *CoupledModel) URI() string        { return c.uri }
func (c *CoupledModel) TimeUnit() TimeUnit { return c.unit }
func (c *CoupledModel) Kind() ModelKind    { return CoupledKind }

// Submodels returns the submodel URIs, sorted.
func (c *CoupledModel) Submodels() []string {
	return append([]string(nil), c.submodels...)
}

// IsSubmodel reports whether uri is a direct submodel.
func (c *CoupledModel) IsSubmodel(uri string) bool {
	i := sort.SearchStrings(c.submodels, uri)
	return i < len(c.submodels) && c.submodels[i] == uri
}

// IsDescendant reports whether uri names a model anywhere below this one.
func (c *CoupledModel) IsDescendant(uri string) bool {
	c.requireAssembled()
	idx, ok := c.arena.lookup(uri)
	return ok && idx != c.index && c.arena.isAncestor(c.index, idx)
}

// Descendant returns the descendant model named uri. Callers must not
// mutate it; state changes are the job of its engine.
func (c *CoupledModel) Descendant(uri string) (Model, bool) {
	if !c.IsDescendant(uri) {
		return nil, false
	}
	idx, _ := c.arena.lookup(uri)
	return c.arena.nodes[idx].model, true
}

// IsImported reports whether t is an imported event type.
func (c *CoupledModel) IsImported(t EventType) bool {
	_, ok := c.imported[t]
	return ok
}

// ImportedEventTypes returns the imported event types, sorted.
func (c *CoupledModel) ImportedEventTypes() []EventType {
	set := make(map[EventType]bool, len(c.imported))
	for t := range c.imported {
		set[t] = true
	}
	return sortedTypes(set)
}

// ExportedEventTypes returns the event types this model reexports, sorted.
func (c *CoupledModel) ExportedEventTypes() []EventType {
	set := make(map[EventType]bool, len(c.reexported))
	for _, r := range c.reexported {
		set[r.Type] = true
	}
	return sortedTypes(set)
}

// IsExported reports whether t is reexported by this model.
func (c *CoupledModel) IsExported(t EventType) bool {
	for _, r := range c.reexported {
		if r.Type == t {
			return true
		}
	}
	return false
}

// EventSinks returns the submodel destinations of an imported event type.
// Asking for a type that is not imported is a contract violation.
func (c *CoupledModel) EventSinks(t EventType) []EventSink {
	sinks, ok := c.imported[t]
	assertf(ok, c.uri, "event type %s is not imported", t)
	return append([]EventSink(nil), sinks...)
}

// ReexportedEvent resolves how the export src of a submodel is republished
// by this model.
func (c *CoupledModel) ReexportedEvent(src EventSource) (ReexportedEvent, bool) {
	r, ok := c.reexported[src]
	return r, ok
}

// Connections returns the sibling sinks of a submodel export.
func (c *CoupledModel) Connections(src EventSource) []EventSink {
	return append([]EventSink(nil), c.connections[src]...)
}

// Bindings returns the variable bindings declared by this model.
func (c *CoupledModel) Bindings() []VariableBinding {
	return append([]VariableBinding(nil), c.bindings...)
}

// Select breaks a tie among submodels simultaneously eligible for an
// internal step and returns one of the candidates. Unless a custom Selector
// is set, candidates importing variables from another candidate are
// discarded first, then the select policy applies.
func (c *CoupledModel) Select(candidates []string) string {
	assertf(len(candidates) > 0, c.uri, "select called without candidates")
	for _, cand := range candidates {
		assertf(c.IsSubmodel(cand), c.uri, "select candidate %q is not a submodel", cand)
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	pool := sortedCopy(candidates)
	if !c.customSelector && len(c.dependsOn) > 0 {
		pool = hybridFilter(pool, c.dependsOn)
	}
	chosen := pool[0]
	if len(pool) > 1 {
		chosen = c.choose(pool)
	}
	found := false
	for _, cand := range candidates {
		if cand == chosen {
			found = true
			break
		}
	}
	assertf(found, c.uri, "selector returned %q which is not a candidate of %v", chosen, candidates)
	return chosen
}

// choose applies the selector. Built-in policies fall back to lowest-uri
// while no tie-break stream is set, that is before assembly.
func (c *CoupledModel) choose(pool []string) string {
	if c.rng == nil && !c.customSelector {
		return LowestURISelector(pool, nil)
	}
	return c.selector(pool, c.rng)
}

func (c *CoupledModel) requireAssembled() {
	assertf(c.arena != nil, c.uri, "coupled model used before being assembled into a simulator")
}

func (c *CoupledModel) addDependency(consumer, producer string) {
	deps, ok := c.dependsOn[consumer]
	if !ok {
		deps = make(map[string]bool)
		c.dependsOn[consumer] = deps
	}
	deps[producer] = true
}
