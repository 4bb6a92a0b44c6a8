package sim

import (
	"fmt"

	"github.com/inference-sim/devsim/sim/trace"
)

// AtomicEngine drives one atomic model: it keeps the DEVS timing
// bookkeeping, queues externally delivered events, and delivers the model's
// outputs directly to peer atomic engines along routes resolved once at
// assembly.
type AtomicEngine struct {
	engineCore
	model   AtomicModel
	pending PendingEvents
	routes  map[EventType][]route

	outputCached    bool
	outputCacheTime Time
	outputCache     []Event
}

// NewAtomicEngine creates an engine in the Created state.
func NewAtomicEngine() *AtomicEngine {
	return &AtomicEngine{}
}

// SetSimulatedModel binds the engine to its model. It may be called once.
func (e *AtomicEngine) SetSimulatedModel(m AtomicModel) {
	assertf(m != nil, "", "SetSimulatedModel with a nil model")
	e.requireState("SetSimulatedModel", Created)
	base := m.atomicBase()
	assertf(base.engine == nil, base.uri, "model is already bound to an engine")
	e.uri = base.uri
	e.model = m
	base.engine = e
	e.state = ModelBound
}

func (e *AtomicEngine) Model() Model {
	return e.model
}

// AtomicModel returns the driven model.
func (e *AtomicEngine) AtomicModel() AtomicModel {
	return e.model
}

func (e *AtomicEngine) NextExternalTime() Time {
	return e.pending.EarliestTime()
}

// SetSimulationRunParameters hands the run parameters to the model.
func (e *AtomicEngine) SetSimulationRunParameters(params RunParameters) error {
	e.requireState("SetSimulationRunParameters", ModelBound)
	if pr, ok := e.model.(ParameterReceiver); ok {
		if err := pr.SetSimulationRunParameters(params); err != nil {
			return fmt.Errorf("model %s: %w", e.uri, err)
		}
	}
	return nil
}

// InitialiseSimulation initialises the model state at start and computes
// the first forecast.
func (e *AtomicEngine) InitialiseSimulation(start Time, duration Duration) {
	assertf(e.state != Created, e.uri, "InitialiseSimulation before the model is bound")
	e.requireState("InitialiseSimulation", ModelBound)
	base := e.model.atomicBase()
	e.pending.Clear()
	e.invalidateOutput()
	base.resetVariables()
	base.currentStateTime = start
	e.model.InitialiseState(start)
	e.simulationEndTime = start.Add(duration)
	e.refreshTiming(start)
	e.state = Initialised
	e.log().Debugf("initialised at %s, next event %s", start, e.timeOfNextEvent)
}

// ProduceOutput returns the events the model emits at its next internal
// event. Repeated calls before the transition commits return the same
// events.
func (e *AtomicEngine) ProduceOutput(current Time) []Event {
	e.requireState("ProduceOutput", Initialised, Running)
	assertf(current.Equal(e.timeOfNextEvent), e.uri,
		"output requested at %s but the next internal event is at %s", current, e.timeOfNextEvent)
	if e.outputCached && e.outputCacheTime.Equal(current) {
		return append([]Event(nil), e.outputCache...)
	}
	var out []Event
	if p, ok := e.model.(OutputProducer); ok {
		out = p.Output(current)
	}
	base := e.model.atomicBase()
	for _, ev := range out {
		assertf(base.IsExported(ev.Type()), e.uri, "output event %s is not a declared export", ev.Type())
		assertf(ev.TimeOfOccurrence().Equal(current), e.uri,
			"output event %s occurs at %s instead of %s", ev.Type(), ev.TimeOfOccurrence(), current)
	}
	e.outputCached = true
	e.outputCacheTime = current
	e.outputCache = out
	return append([]Event(nil), out...)
}

// InternalEventStep performs the model's forecast internal event. When
// external events are pending at the same instant the step is confluent.
func (e *AtomicEngine) InternalEventStep() {
	e.beginStep("InternalEventStep")
	e.assertTiming()
	t := e.timeOfNextEvent
	assertf(!t.IsInfinite(), e.uri, "internal step without a forecast internal event")
	assertf(!e.pending.EarliestTime().LessThan(t), e.uri,
		"internal step at %s skips pending external events at %s", t, e.pending.EarliestTime())

	e.deliver(t, e.ProduceOutput(t))
	elapsed := e.nextTimeAdvance
	inputs := e.pending.PopUntil(t)
	e.model.atomicBase().currentStateTime = t
	if len(inputs) > 0 {
		e.confluent(t, elapsed, inputs)
	} else {
		e.log().Debugf("internal transition at %s", t)
		e.model.InternalTransition(elapsed)
		e.record(trace.KindInternal, t, elapsed, nil)
	}
	e.invalidateOutput()
	e.refreshTiming(t)
}

// ExternalEventStep applies the events pending at current. If current is
// also the instant of the forecast internal event the step is confluent;
// otherwise the stale forecast is discarded and recomputed.
func (e *AtomicEngine) ExternalEventStep(current Time) {
	e.beginStep("ExternalEventStep")
	e.assertTiming()
	assertf(current.GreaterThanOrEqual(e.timeOfLastEvent), e.uri,
		"external step at %s precedes the last event at %s", current, e.timeOfLastEvent)
	assertf(current.LessThanOrEqual(e.timeOfNextEvent), e.uri,
		"external step at %s skips the internal event forecast at %s", current, e.timeOfNextEvent)
	inputs := e.pending.PopUntil(current)
	assertf(len(inputs) > 0, e.uri, "external step at %s without pending events", current)
	for _, ev := range inputs {
		assertf(ev.TimeOfOccurrence().Equal(current), e.uri,
			"pending event %s at %s was not applied before %s", ev.Type(), ev.TimeOfOccurrence(), current)
	}

	elapsed := current.Elapsed(e.timeOfLastEvent)
	if current.Equal(e.timeOfNextEvent) {
		e.deliver(current, e.ProduceOutput(current))
		e.model.atomicBase().currentStateTime = current
		e.confluent(current, elapsed, inputs)
	} else {
		e.model.atomicBase().currentStateTime = current
		e.external(current, elapsed, inputs)
	}
	e.invalidateOutput()
	e.refreshTiming(current)
}

// PlanExternalEventStep queues events for the model and, unless this engine
// is the root, tells the parent coordinator an external step is pending.
func (e *AtomicEngine) PlanExternalEventStep(destinationURI string, events []Event) {
	assertf(destinationURI == e.uri, e.uri, "events planned for %s reached engine %s", destinationURI, e.uri)
	e.requireState("PlanExternalEventStep", Initialised, Running)
	base := e.model.atomicBase()
	for _, ev := range events {
		assertf(base.IsImported(ev.Type()), e.uri, "event %s is not a declared import", ev.Type())
		assertf(ev.TimeOfOccurrence().GreaterThanOrEqual(e.timeOfLastEvent), e.uri,
			"event %s at %s is in the model's past (last event %s)", ev.Type(), ev.TimeOfOccurrence(), e.timeOfLastEvent)
		e.pending.Schedule(ev)
	}
	if len(events) > 0 && e.parent != nil {
		e.parent.childHasPendingExternal(e)
	}
}

// EndSimulation stops the run at end, even if an internal event is still
// forecast.
func (e *AtomicEngine) EndSimulation(end Time) {
	e.endSimulation(end)
	if e.pending.Len() > 0 {
		e.log().Debugf("run ended with %d undelivered external events", e.pending.Len())
	}
}

// FinaliseSimulation releases the model; it runs exactly once.
func (e *AtomicEngine) FinaliseSimulation() {
	e.finaliseSimulation()
	if f, ok := e.model.(SimulationFinaliser); ok {
		f.FinaliseSimulation(e.simulationEndTime)
	}
}

// === internals ===

func (e *AtomicEngine) refreshTiming(t Time) {
	ta := e.model.TimeAdvance()
	assertf(ta.IsInfinite() || ta.Unit() == e.model.TimeUnit(), e.uri,
		"time advance %s is not expressed in %s", ta, e.model.TimeUnit())
	e.timeOfLastEvent = t
	e.nextTimeAdvance = ta
	e.timeOfNextEvent = t.Add(ta)
	e.assertTiming()
}

func (e *AtomicEngine) invalidateOutput() {
	e.outputCached = false
	e.outputCache = nil
}

func (e *AtomicEngine) external(t Time, elapsed Duration, inputs []Event) {
	e.log().Debugf("external transition at %s with %d events", t, len(inputs))
	if et, ok := e.model.(ExternalTransitioner); ok {
		et.ExternalTransition(elapsed, inputs)
	} else {
		for _, ev := range inputs {
			ev.ExecuteOn(e.model)
		}
	}
	e.record(trace.KindExternal, t, elapsed, inputs)
}

func (e *AtomicEngine) confluent(t Time, elapsed Duration, inputs []Event) {
	e.log().Debugf("confluent transition at %s with %d events", t, len(inputs))
	if ct, ok := e.model.(ConfluentTransitioner); ok {
		ct.ConfluentTransition(elapsed, inputs)
	} else {
		e.model.InternalTransition(elapsed)
		zero := ZeroDuration(e.model.TimeUnit())
		if et, ok := e.model.(ExternalTransitioner); ok {
			et.ExternalTransition(zero, inputs)
		} else {
			for _, ev := range inputs {
				ev.ExecuteOn(e.model)
			}
		}
	}
	e.record(trace.KindConfluent, t, elapsed, inputs)
}

// deliver sends output events along their routes: straight into the
// pending queues of peer atomic engines, or to the root output.
func (e *AtomicEngine) deliver(t Time, out []Event) {
	for _, ev := range out {
		routes := e.routes[ev.Type()]
		if len(routes) == 0 {
			e.log().Debugf("output %s has no destination", describeEvent(ev))
			continue
		}
		for _, r := range routes {
			converted := r.converter.apply(ev)
			assertf(converted.Type() == r.sinkType, e.uri,
				"converter produced %s where %s was expected", converted.Type(), r.sinkType)
			if r.target == nil {
				e.rc.emitRootOutput(converted)
				continue
			}
			r.target.PlanExternalEventStep(r.target.uri, []Event{converted})
			if e.rc.tracing() {
				e.rc.trace.RecordDelivery(trace.DeliveryRecord{
					From:      e.uri,
					To:        r.target.uri,
					EventType: string(converted.Type()),
					Clock:     t.Value(),
				})
			}
		}
	}
}

func (e *AtomicEngine) record(kind trace.TransitionKind, t Time, elapsed Duration, inputs []Event) {
	if !e.rc.tracing() {
		return
	}
	rec := trace.TransitionRecord{
		ModelURI: e.uri,
		Kind:     kind,
		Clock:    t.Value(),
		Elapsed:  elapsed.Value(),
	}
	for _, ev := range inputs {
		rec.Events = append(rec.Events, describeEvent(ev))
	}
	e.rc.trace.RecordTransition(rec)
}
