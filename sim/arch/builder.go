package arch

import "github.com/inference-sim/devsim/sim"

// Builder assembles an Architecture programmatically. Every method returns
// a new Builder; the receiver is never modified, so partial builders can be
// shared and extended independently.
type Builder struct {
	root         string
	unit         sim.TimeUnit
	acceleration float64
	atomic       []AtomicDescriptor
	coupled      []CoupledDescriptor
}

// NewBuilder starts an architecture rooted at root.
func NewBuilder(root string, unit sim.TimeUnit) Builder {
	return Builder{root: root, unit: unit}
}

// Atomic adds an atomic model of a registered kind.
func (b Builder) Atomic(uri, kind string) Builder {
	next := b.clone()
	next.atomic = append(next.atomic, AtomicDescriptor{URI: uri, Kind: kind})
	return next
}

// Acceleration sets the real-time acceleration factor.
func (b Builder) Acceleration(factor float64) Builder {
	next := b.clone()
	next.acceleration = factor
	return next
}

// Coupled adds a coupled model.
func (b Builder) Coupled(d CoupledDescriptor) Builder {
	next := b.clone()
	next.coupled = append(next.coupled, cloneCoupled(d))
	return next
}

// Build validates and returns the architecture.
func (b Builder) Build() (*Architecture, error) {
	a := &Architecture{
		Root:         b.root,
		TimeUnit:     b.unit,
		Acceleration: b.acceleration,
		Atomic:       append([]AtomicDescriptor(nil), b.atomic...),
	}
	for _, d := range b.coupled {
		a.Coupled = append(a.Coupled, cloneCoupled(d))
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (b Builder) clone() Builder {
	return Builder{
		root:         b.root,
		unit:         b.unit,
		acceleration: b.acceleration,
		atomic:       append([]AtomicDescriptor(nil), b.atomic...),
		coupled:      append([]CoupledDescriptor(nil), b.coupled...),
	}
}

func cloneCoupled(d CoupledDescriptor) CoupledDescriptor {
	out := d
	out.Submodels = append([]string(nil), d.Submodels...)
	out.Imports = nil
	for _, imp := range d.Imports {
		imp.Sinks = append([]SinkDescriptor(nil), imp.Sinks...)
		out.Imports = append(out.Imports, imp)
	}
	out.Reexports = append([]ReexportDescriptor(nil), d.Reexports...)
	out.Connections = nil
	for _, c := range d.Connections {
		c.To = append([]SinkDescriptor(nil), c.To...)
		out.Connections = append(out.Connections, c)
	}
	out.Bindings = nil
	for _, bnd := range d.Bindings {
		bnd.Sinks = append([]sim.VariableEndpoint(nil), bnd.Sinks...)
		out.Bindings = append(out.Bindings, bnd)
	}
	return out
}
