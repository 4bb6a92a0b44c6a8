package arch

import (
	"fmt"

	"github.com/inference-sim/devsim/sim"
)

// Models creates fresh model instances for the architecture: one atomic
// model per descriptor from the registry, one coupled model per coupled
// descriptor. Each call returns independent instances, so replications of
// the same architecture never share state.
func (a *Architecture) Models() ([]sim.Model, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	out := make([]sim.Model, 0, a.ModelCount())
	for _, d := range a.Atomic {
		factory, _ := lookupModel(d.Kind)
		m := factory(d.URI, a.TimeUnit)
		if m == nil || m.URI() != d.URI {
			return nil, &sim.ConfigurationError{ModelURI: d.URI, Reason: fmt.Sprintf("factory of kind %q returned a model with another URI", d.Kind)}
		}
		out = append(out, m)
	}
	for _, d := range a.Coupled {
		spec, err := d.spec(a.TimeUnit)
		if err != nil {
			return nil, err
		}
		cm, err := sim.NewCoupledModel(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, nil
}

// Instantiate creates the models and assembles them into a Simulator.
func (a *Architecture) Instantiate(opts ...sim.Option) (*sim.Simulator, error) {
	models, err := a.Models()
	if err != nil {
		return nil, err
	}
	return sim.NewSimulator(a.Root, models, opts...)
}

func (d *CoupledDescriptor) spec(unit sim.TimeUnit) (sim.CoupledSpec, error) {
	spec := sim.CoupledSpec{
		URI:          d.URI,
		TimeUnit:     unit,
		Submodels:    append([]string(nil), d.Submodels...),
		Imported:     make(map[sim.EventType][]sim.EventSink),
		Connections:  make(map[sim.EventSource][]sim.EventSink),
		Bindings:     append([]sim.VariableBinding(nil), d.Bindings...),
		SelectPolicy: d.Select,
	}
	for _, imp := range d.Imports {
		sinks, err := d.sinks(imp.Sinks)
		if err != nil {
			return spec, err
		}
		spec.Imported[imp.Event] = append(spec.Imported[imp.Event], sinks...)
	}
	for _, r := range d.Reexports {
		conv, ok := lookupConverter(r.Converter)
		if !ok {
			return spec, &sim.ConfigurationError{ModelURI: d.URI, Reason: fmt.Sprintf("unknown converter %q", r.Converter)}
		}
		as := r.As
		if as == "" {
			as = r.Event
		}
		spec.Reexported = append(spec.Reexported, sim.ReexportedEvent{
			Source:    sim.EventSource{ModelURI: r.Model, Type: r.Event},
			Type:      as,
			Converter: conv,
		})
	}
	for _, c := range d.Connections {
		sinks, err := d.sinks(c.To)
		if err != nil {
			return spec, err
		}
		spec.Connections[c.From] = append(spec.Connections[c.From], sinks...)
	}
	return spec, nil
}

func (d *CoupledDescriptor) sinks(in []SinkDescriptor) ([]sim.EventSink, error) {
	out := make([]sim.EventSink, 0, len(in))
	for _, s := range in {
		conv, ok := lookupConverter(s.Converter)
		if !ok {
			return nil, &sim.ConfigurationError{ModelURI: d.URI, Reason: fmt.Sprintf("unknown converter %q", s.Converter)}
		}
		out = append(out, sim.EventSink{ModelURI: s.Model, Type: s.Event, Converter: conv})
	}
	return out, nil
}
