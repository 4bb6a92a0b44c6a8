package sim

import (
	"errors"

	"github.com/inference-sim/devsim/sim/trace"
)

// CoordinatorEngine drives the child engines of a coupled model. Children
// may be atomic engines or other coordinators.
//
// On each internal step it picks the imminent children (minimum forecast),
// lets the coupled model's Select pick exactly one winner, steps it, then
// runs the external steps of every child that received events at that
// instant. Events travel directly between atomic engines; a coordinator only
// learns that one of its children has pending work, and forwards that fact
// upward when it is not itself in the middle of a step.
type CoordinatorEngine struct {
	engineCore
	model      *CoupledModel
	children   []Engine
	childIndex map[string]int
	pending    map[int]bool
	stepping   bool
}

// NewCoordinatorEngine creates an engine in the Created state.
func NewCoordinatorEngine() *CoordinatorEngine {
	return &CoordinatorEngine{}
}

// SetSimulatedModel binds the coordinator to its coupled model and the
// engines of its submodels. It may be called once.
func (c *CoordinatorEngine) SetSimulatedModel(m *CoupledModel, children []Engine) {
	assertf(m != nil, "", "SetSimulatedModel with a nil model")
	c.requireState("SetSimulatedModel", Created)
	assertf(len(children) == len(m.submodels), m.uri,
		"%d child engines for %d submodels", len(children), len(m.submodels))
	c.uri = m.uri
	c.model = m
	c.childIndex = make(map[string]int, len(children))
	c.children = make([]Engine, len(m.submodels))
	for _, ch := range children {
		assertf(ch.IsModelSet(), m.uri, "child engine without a model")
		assertf(m.IsSubmodel(ch.URI()), m.uri, "engine of %s is not a submodel engine", ch.URI())
		_, dup := c.childIndex[ch.URI()]
		assertf(!dup, m.uri, "two engines for submodel %s", ch.URI())
		c.childIndex[ch.URI()] = 0
	}
	for i, uri := range m.submodels {
		for _, ch := range children {
			if ch.URI() == uri {
				c.children[i] = ch
				c.childIndex[uri] = i
				ch.setParent(c)
			}
		}
	}
	c.pending = make(map[int]bool)
	c.state = ModelBound
}

func (c *CoordinatorEngine) Model() Model {
	return c.model
}

// CoupledModel returns the driven model.
func (c *CoordinatorEngine) CoupledModel() *CoupledModel {
	return c.model
}

// Children returns the child engines in submodel URI order.
func (c *CoordinatorEngine) Children() []Engine {
	return append([]Engine(nil), c.children...)
}

// NextExternalTime is the earliest pending external event among children.
func (c *CoordinatorEngine) NextExternalTime() Time {
	next := TimeInfinity
	for i := range c.pending {
		next = MinTime(next, c.children[i].NextExternalTime())
	}
	return next
}

// SetSimulationRunParameters propagates the run parameters to every child
// and reports all failures together.
func (c *CoordinatorEngine) SetSimulationRunParameters(params RunParameters) error {
	c.requireState("SetSimulationRunParameters", ModelBound)
	var errs []error
	for _, ch := range c.children {
		if err := ch.SetSimulationRunParameters(params); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CoordinatorEngine) InitialiseSimulation(start Time, duration Duration) {
	assertf(c.state != Created, c.uri, "InitialiseSimulation before the model is bound")
	c.requireState("InitialiseSimulation", ModelBound)
	for _, ch := range c.children {
		ch.InitialiseSimulation(start, duration)
	}
	c.pending = make(map[int]bool)
	c.simulationEndTime = start.Add(duration)
	c.refreshTiming(start)
	c.state = Initialised
	c.log().Debugf("initialised at %s, next event %s", start, c.timeOfNextEvent)
}

// InternalEventStep steps the selected imminent child, then flushes the
// external steps planned at the same instant.
func (c *CoordinatorEngine) InternalEventStep() {
	c.beginStep("InternalEventStep")
	c.assertTiming()
	t := c.timeOfNextEvent
	assertf(!t.IsInfinite(), c.uri, "internal step without a forecast internal event")

	var imminent []string
	for _, ch := range c.children {
		if ch.TimeOfNextEvent().Equal(t) {
			imminent = append(imminent, ch.URI())
		}
	}
	assertf(len(imminent) > 0, c.uri, "no child is imminent at %s", t)
	chosen := imminent[0]
	if len(imminent) > 1 {
		chosen = c.model.Select(imminent)
		c.log().Tracef("selected %s among %v at %s", chosen, imminent, t)
		if c.rc.tracing() {
			c.rc.trace.RecordSelection(trace.SelectionRecord{
				CoupledURI: c.uri,
				Clock:      t.Value(),
				Candidates: imminent,
				Chosen:     chosen,
			})
		}
	}

	c.stepping = true
	c.children[c.childIndex[chosen]].InternalEventStep()
	c.flushPending(t)
	c.stepping = false
	c.refreshTiming(t)
}

// ExternalEventStep runs the external steps of children with events
// pending at current.
func (c *CoordinatorEngine) ExternalEventStep(current Time) {
	c.beginStep("ExternalEventStep")
	c.assertTiming()
	assertf(current.GreaterThanOrEqual(c.timeOfLastEvent), c.uri,
		"external step at %s precedes the last event at %s", current, c.timeOfLastEvent)
	assertf(current.LessThanOrEqual(c.timeOfNextEvent), c.uri,
		"external step at %s skips the internal event forecast at %s", current, c.timeOfNextEvent)
	assertf(c.NextExternalTime().LessThanOrEqual(current), c.uri, "external step at %s without pending events", current)

	c.stepping = true
	c.flushPending(current)
	c.stepping = false
	c.refreshTiming(current)
}

// PlanExternalEventStep forwards events to the engine of a descendant
// atomic model.
func (c *CoordinatorEngine) PlanExternalEventStep(destinationURI string, events []Event) {
	c.requireState("PlanExternalEventStep", Initialised, Running)
	assertf(c.model.IsDescendant(destinationURI), c.uri, "%s is not a descendant", destinationURI)
	idx, _ := c.rc.arena.lookup(destinationURI)
	c.rc.arena.nodes[idx].engine.PlanExternalEventStep(destinationURI, events)
}

func (c *CoordinatorEngine) EndSimulation(end Time) {
	for _, ch := range c.children {
		ch.EndSimulation(end)
	}
	c.endSimulation(end)
}

func (c *CoordinatorEngine) FinaliseSimulation() {
	for _, ch := range c.children {
		ch.FinaliseSimulation()
	}
	c.finaliseSimulation()
}

// === internals ===

// childHasPendingExternal records that child has events waiting. A
// coordinator in the middle of a step absorbs the notification, since it
// flushes its pending children before returning; otherwise the fact is
// forwarded to its own parent.
func (c *CoordinatorEngine) childHasPendingExternal(child Engine) {
	i, ok := c.childIndex[child.URI()]
	assertf(ok, c.uri, "pending notification from non-child %s", child.URI())
	c.pending[i] = true
	if !c.stepping && c.parent != nil {
		c.parent.childHasPendingExternal(c)
	}
}

// flushPending runs, in submodel URI order, the external steps of children
// whose pending events occur at or before t, until none is left. Confluent
// steps may deliver new events at t, hence the loop.
func (c *CoordinatorEngine) flushPending(t Time) {
	for {
		progressed := false
		for i, ch := range c.children {
			if !c.pending[i] {
				continue
			}
			if ch.NextExternalTime().LessThanOrEqual(t) {
				ch.ExternalEventStep(t)
				progressed = true
			}
			if ch.NextExternalTime().IsInfinite() {
				delete(c.pending, i)
			}
		}
		if !progressed {
			return
		}
	}
}

func (c *CoordinatorEngine) refreshTiming(t Time) {
	next := TimeInfinity
	for _, ch := range c.children {
		next = MinTime(next, ch.TimeOfNextEvent())
	}
	assertf(next.GreaterThanOrEqual(t), c.uri, "child forecast %s precedes %s", next, t)
	c.timeOfLastEvent = t
	c.timeOfNextEvent = next
	c.nextTimeAdvance = next.Elapsed(t)
	c.assertTiming()
}
