package library

import "github.com/inference-sim/devsim/sim"

// Generator emits a Job every period. Run parameters:
//
//	<uri>:period  required, in the architecture time unit
//	<uri>:count   optional, number of jobs to emit; 0 or absent is unlimited
type Generator struct {
	*sim.AtomicBase
	period  sim.Duration
	count   int
	emitted int
}

// NewGenerator creates a generator exporting JobType.
func NewGenerator(uri string, unit sim.TimeUnit) *Generator {
	return &Generator{AtomicBase: sim.NewAtomicBase(sim.AtomicSpec{
		URI:      uri,
		TimeUnit: unit,
		Exported: []sim.EventType{JobType},
	})}
}

func (g *Generator) SetSimulationRunParameters(params sim.RunParameters) error {
	period, err := params.Duration(g.URI(), "period", g.TimeUnit())
	if err != nil {
		return err
	}
	if period.IsZero() {
		return &sim.ConfigurationError{ModelURI: g.URI(), Reason: "period must be positive"}
	}
	g.period = period
	if params.Has(g.URI(), "count") {
		if g.count, err = params.Int(g.URI(), "count"); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) InitialiseState(sim.Time) {
	g.emitted = 0
}

func (g *Generator) TimeAdvance() sim.Duration {
	if g.count > 0 && g.emitted >= g.count {
		return sim.Infinity
	}
	return g.period
}

func (g *Generator) Output(current sim.Time) []sim.Event {
	return []sim.Event{NewJob(current, g.emitted+1)}
}

func (g *Generator) InternalTransition(sim.Duration) {
	g.emitted++
}

// Emitted returns the number of jobs emitted so far.
func (g *Generator) Emitted() int { return g.emitted }
