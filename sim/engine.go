package sim

import (
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/devsim/sim/trace"
)

// EngineState is the lifecycle state of a simulation engine:
// Created → ModelBound → Initialised → Running → Ended → Finalised.
type EngineState int

const (
	Created EngineState = iota
	ModelBound
	Initialised
	Running
	Ended
	Finalised
)

func (s EngineState) String() string {
	switch s {
	case Created:
		return "created"
	case ModelBound:
		return "model-bound"
	case Initialised:
		return "initialised"
	case Running:
		return "running"
	case Ended:
		return "ended"
	case Finalised:
		return "finalised"
	}
	return "unknown"
}

// Engine drives one model through the DEVS protocol. AtomicEngine drives an
// atomic model; CoordinatorEngine drives the engines of a coupled model's
// submodels, so engines nest exactly like models.
//
// Step methods are synchronous and must never run concurrently with another
// step of the same tree. Contract violations panic with *ContractViolation.
type Engine interface {
	URI() string
	State() EngineState
	IsModelSet() bool
	Model() Model
	IsRoot() bool

	TimeOfLastEvent() Time
	// TimeOfNextEvent is the forecast instant of the next internal event.
	TimeOfNextEvent() Time
	NextTimeAdvance() Duration
	// NextExternalTime is the occurrence time of the earliest pending
	// external event, TimeInfinity if none.
	NextExternalTime() Time

	SetSimulationRunParameters(params RunParameters) error
	InitialiseSimulation(start Time, duration Duration)
	InternalEventStep()
	ExternalEventStep(current Time)
	PlanExternalEventStep(destinationURI string, events []Event)
	EndSimulation(end Time)
	FinaliseSimulation()

	setParent(p *CoordinatorEngine)
}

// runContext is shared by every engine of one tree.
type runContext struct {
	runID        string
	arena        *arena
	rng          *PartitionedRNG
	trace        *trace.SimulationTrace
	onRootOutput func(Event)
}

func (rc *runContext) tracing() bool {
	return rc != nil && rc.trace != nil && rc.trace.Config.Level != trace.TraceLevelNone
}

// engineCore holds the lifecycle and timing fields shared by both engines.
type engineCore struct {
	uri    string
	state  EngineState
	parent *CoordinatorEngine
	rc     *runContext

	timeOfLastEvent   Time
	timeOfNextEvent   Time
	nextTimeAdvance   Duration
	simulationEndTime Time
}

func (c *engineCore) URI() string               { return c.uri }
func (c *engineCore) State() EngineState        { return c.state }
func (c *engineCore) IsModelSet() bool          { return c.state >= ModelBound }
func (c *engineCore) IsRoot() bool              { return c.parent == nil }
func (c *engineCore) TimeOfLastEvent() Time     { return c.timeOfLastEvent }
func (c *engineCore) TimeOfNextEvent() Time     { return c.timeOfNextEvent }
func (c *engineCore) NextTimeAdvance() Duration { return c.nextTimeAdvance }

// SimulationEndTime returns the planned end of the run.
func (c *engineCore) SimulationEndTime() Time { return c.simulationEndTime }

func (c *engineCore) setParent(p *CoordinatorEngine) { c.parent = p }

func (c *engineCore) log() *logrus.Entry {
	entry := logrus.WithField("model", c.uri)
	if c.rc != nil && c.rc.runID != "" {
		entry = entry.WithField("run", c.rc.runID)
	}
	return entry
}

// requireState asserts that the engine is in one of the given states.
func (c *engineCore) requireState(op string, states ...EngineState) {
	for _, s := range states {
		if c.state == s {
			return
		}
	}
	Violation(c.uri, "%s not allowed in state %s", op, c.state)
}

// beginStep moves Initialised → Running and rejects steps in any state
// other than those two.
func (c *engineCore) beginStep(op string) {
	c.requireState(op, Initialised, Running)
	c.state = Running
}

// assertTiming checks nextTimeAdvance == timeOfNextEvent - timeOfLastEvent.
func (c *engineCore) assertTiming() {
	ta := c.timeOfNextEvent.Elapsed(c.timeOfLastEvent)
	assertf(ta.Equal(c.nextTimeAdvance), c.uri,
		"timing invariant broken: next time advance %s but next event %s - last event %s = %s",
		c.nextTimeAdvance, c.timeOfNextEvent, c.timeOfLastEvent, ta)
}

func (c *engineCore) endSimulation(end Time) {
	c.requireState("EndSimulation", Initialised, Running)
	c.simulationEndTime = end
	c.state = Ended
}

func (c *engineCore) finaliseSimulation() {
	c.requireState("FinaliseSimulation", Ended)
	c.state = Finalised
}
