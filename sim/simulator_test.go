package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/devsim/sim/trace"
)

func TestSimulator_PeerExchange_DeliversOnceAtTen(t *testing.T) {
	// GIVEN a → b where a fires once at t=10
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDeliveries})
	s, a, b := newPair(t, WithTrace(st))
	require.NoError(t, s.Initialise(secs(0), span(100)))

	// WHEN the run completes
	require.NoError(t, s.Run(context.Background()))

	// THEN b received exactly one ping, at t=10, in one external transition
	require.Len(t, b.received, 1)
	assert.True(t, b.received[0].TimeOfOccurrence().Equal(secs(10)))
	assert.Equal(t, []string{"ext@10"}, b.transitions)
	assert.True(t, b.extElapsed[0].Equal(span(10)))
	assert.Equal(t, []string{"int@10"}, a.transitions)
	assert.Equal(t, 1, s.StepCount())

	// AND the delivery went straight from a to b
	require.Len(t, st.Deliveries, 1)
	assert.Equal(t, trace.DeliveryRecord{From: "a", To: "b", EventType: string(pingType), Clock: 10}, st.Deliveries[0])
}

func TestSimulator_Lifecycle_EndAndFinaliseOnce(t *testing.T) {
	s, a, b := newPair(t)
	require.NoError(t, s.Initialise(secs(0), span(100)))
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, Finalised, s.Root().State())
	assert.Equal(t, 1, a.finalised)
	assert.Equal(t, 1, b.finalised)
	for _, uri := range []string{"root", "a", "b"} {
		e, ok := s.Engine(uri)
		require.True(t, ok)
		assert.Equal(t, Finalised, e.State(), uri)
	}

	// Finalising again is a violation that aborts the run.
	err := s.Finalise()
	var cv *ContractViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, 1, a.finalised)
	assert.ErrorIs(t, s.Finalise(), ErrRunAborted)
}

func TestSimulator_TimingInvariant_HoldsAfterEveryStep(t *testing.T) {
	// GIVEN a periodic producer feeding a periodic consumer
	a := newTestModel("a", span(3), pingType)
	b := newTestModel("b", span(5), "", pingType)
	root, err := NewCoupledModel(CoupledSpec{
		URI: "root", TimeUnit: Seconds, Submodels: []string{"a", "b"},
		Connections: map[EventSource][]EventSink{pingSource("a"): {{ModelURI: "b", Type: pingType}}},
	})
	require.NoError(t, err)
	s, err := NewSimulator("root", []Model{root, a, b}, WithSeed(7))
	require.NoError(t, err)
	require.NoError(t, s.Initialise(secs(0), span(60)))
	assertTimingInvariant(t, s)

	// WHEN stepping to the end
	for {
		done, err := s.Step()
		require.NoError(t, err)
		if done {
			break
		}
		// THEN ta == tn - tl on every engine after every step
		assertTimingInvariant(t, s)
	}
	assert.Len(t, b.received, 19) // pings at 3, 6, ..., 57
}

func TestSimulator_MissingParameter_FailsBeforeAnyStep(t *testing.T) {
	// GIVEN a model requiring "b:gain"
	s, _, b := newPair(t)
	b.requiredParam = "gain"

	// WHEN initialising without run parameters
	err := s.Initialise(secs(0), span(100))

	// THEN the named missing-parameter condition is reported
	var missing *MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "b:gain", missing.Key)

	// AND no step ever executes
	_, err = s.Step()
	assert.Error(t, err)
	assert.Equal(t, 0, s.StepCount())
	assert.Empty(t, b.transitions)
}

func TestSimulator_MissingParameter_ExplicitSetThenInitialise_NeverSteps(t *testing.T) {
	// GIVEN a model requiring "b:gain" and parameters that lack it
	s, a, b := newPair(t)
	b.requiredParam = "gain"
	var missing *MissingParameterError
	require.ErrorAs(t, s.SetSimulationRunParameters(RunParameters{"a:other": 1.0}), &missing)

	// WHEN initialising and stepping anyway
	initErr := s.Initialise(secs(0), span(100))
	_, stepErr := s.Step()

	// THEN both report the same missing parameter and nothing ran
	require.ErrorAs(t, initErr, &missing)
	require.ErrorAs(t, stepErr, &missing)
	assert.Equal(t, "b:gain", missing.Key)
	assert.Equal(t, 0, s.StepCount())
	assert.Empty(t, a.transitions)
	assert.Empty(t, b.transitions)
	assert.Equal(t, ModelBound, s.Root().State())
	require.ErrorAs(t, s.ConfigurationFailure(), &missing)
}

func TestSimulator_MissingParameter_RetriedInitialise_StillFails(t *testing.T) {
	// GIVEN a first Initialise rejected for a missing parameter
	s, a, b := newPair(t)
	b.requiredParam = "gain"
	var missing *MissingParameterError
	require.ErrorAs(t, s.Initialise(secs(0), span(100)), &missing)

	// WHEN retrying Initialise and running
	retryErr := s.Initialise(secs(0), span(100))
	runErr := s.Run(context.Background())

	// THEN the failure is sticky and no step executes
	require.ErrorAs(t, retryErr, &missing)
	require.ErrorAs(t, runErr, &missing)
	assert.Equal(t, 0, s.StepCount())
	assert.Empty(t, a.transitions)
	assert.Zero(t, b.finalised)
}

func TestSimulator_RunParameters_ReachModels(t *testing.T) {
	s, _, b := newPair(t)
	b.requiredParam = "gain"
	require.NoError(t, s.SetSimulationRunParameters(RunParameters{"b:gain": 2}))
	require.NoError(t, s.Initialise(secs(0), span(100)))
	assert.Equal(t, 2.0, b.gain)
}

func TestSimulator_ProduceOutput_IsIdempotent(t *testing.T) {
	s, a, _ := newPair(t)
	require.NoError(t, s.Initialise(secs(0), span(100)))
	e, ok := s.Engine("a")
	require.True(t, ok)
	ae := e.(*AtomicEngine)

	first := ae.ProduceOutput(secs(10))
	second := ae.ProduceOutput(secs(10))

	require.Len(t, first, 1)
	assert.Same(t, first[0], second[0])
	assert.Equal(t, 1, a.outputCalls)
	assert.Equal(t, 0, a.fired, "output must not change the model state")
}

func TestSimulator_ConfluentDefault_InternalThenExternalWithZeroElapsed(t *testing.T) {
	// GIVEN a and b both imminent at t=10, a feeding b, lowest URI first
	a := newTestModel("a", span(10), pingType)
	a.limit = 1
	b := newTestModel("b", span(10), "", pingType)
	b.limit = 1
	root, err := NewCoupledModel(CoupledSpec{
		URI: "root", TimeUnit: Seconds, Submodels: []string{"a", "b"},
		Connections:  map[EventSource][]EventSink{pingSource("a"): {{ModelURI: "b", Type: pingType}}},
		SelectPolicy: SelectLowestURI,
	})
	require.NoError(t, err)
	s, err := NewSimulator("root", []Model{root, a, b})
	require.NoError(t, err)
	require.NoError(t, s.Initialise(secs(0), span(100)))

	// WHEN the run completes
	require.NoError(t, s.Run(context.Background()))

	// THEN b ran one confluent step: internal first, then external with zero elapsed
	assert.Equal(t, []string{"int@10", "ext@10"}, b.transitions)
	require.Len(t, b.extElapsed, 1)
	assert.True(t, b.extElapsed[0].IsZero())
	assert.Equal(t, 1, s.StepCount())
}

func TestSimulator_NestedCoupling_RoutesDirectlyWithConverter(t *testing.T) {
	// GIVEN root{left{a}, right{b}} where right converts ping into pong for b
	a := newTestModel("a", span(10), pingType)
	a.limit = 2
	b := newTestModel("b", Infinity, "", pongType)
	left, err := NewCoupledModel(CoupledSpec{
		URI: "left", TimeUnit: Seconds, Submodels: []string{"a"},
		Reexported: []ReexportedEvent{{Source: pingSource("a"), Type: pingType}},
	})
	require.NoError(t, err)
	toPong := func(ev Event) Event { return newTestEvent(pongType, ev.TimeOfOccurrence(), ev.Content()) }
	right, err := NewCoupledModel(CoupledSpec{
		URI: "right", TimeUnit: Seconds, Submodels: []string{"b"},
		Imported: map[EventType][]EventSink{pingType: {{ModelURI: "b", Type: pongType, Converter: toPong}}},
	})
	require.NoError(t, err)
	root, err := NewCoupledModel(CoupledSpec{
		URI: "root", TimeUnit: Seconds, Submodels: []string{"left", "right"},
		Connections: map[EventSource][]EventSink{pingSource("left"): {{ModelURI: "right", Type: pingType}}},
	})
	require.NoError(t, err)
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDeliveries})
	s, err := NewSimulator("root", []Model{root, left, right, a, b}, WithTrace(st))
	require.NoError(t, err)
	require.NoError(t, s.Initialise(secs(0), span(100)))

	// WHEN the run completes
	require.NoError(t, s.Run(context.Background()))

	// THEN b received two pongs and every delivery went a → b
	require.Len(t, b.received, 2)
	for _, ev := range b.received {
		assert.Equal(t, pongType, ev.Type())
	}
	assert.Equal(t, []any{1, 2}, []any{b.received[0].Content(), b.received[1].Content()})
	require.Len(t, st.Deliveries, 2)
	for _, d := range st.Deliveries {
		assert.Equal(t, "a", d.From)
		assert.Equal(t, "b", d.To)
	}
	summary := trace.Summarize(st)
	assert.Equal(t, 2, summary.InternalCount)
	assert.Equal(t, 2, summary.ExternalCount)
}

func TestSimulator_RootOutputs_ReachHandler(t *testing.T) {
	a := newTestModel("a", span(5), pingType)
	a.limit = 3
	root, err := NewCoupledModel(CoupledSpec{
		URI: "root", TimeUnit: Seconds, Submodels: []string{"a"},
		Reexported: []ReexportedEvent{{Source: pingSource("a"), Type: pingType}},
	})
	require.NoError(t, err)
	var handled []Event
	s, err := NewSimulator("root", []Model{root, a}, WithOutputHandler(func(ev Event) { handled = append(handled, ev) }))
	require.NoError(t, err)
	require.NoError(t, s.Initialise(secs(0), span(100)))
	require.NoError(t, s.Run(context.Background()))

	assert.Len(t, handled, 3)
	assert.Len(t, s.Outputs(), 3)
	assert.True(t, s.Outputs()[2].TimeOfOccurrence().Equal(secs(15)))
}

func TestSimulator_Inject_RoutesRootImportsToSinks(t *testing.T) {
	// GIVEN a root importing ping into passive b
	b := newTestModel("b", Infinity, "", pingType)
	root, err := NewCoupledModel(CoupledSpec{
		URI: "root", TimeUnit: Seconds, Submodels: []string{"b"},
		Imported: map[EventType][]EventSink{pingType: {{ModelURI: "b", Type: pingType}}},
	})
	require.NoError(t, err)
	s, err := NewSimulator("root", []Model{root, b})
	require.NoError(t, err)
	require.NoError(t, s.Initialise(secs(0), span(100)))

	// WHEN two events are injected, the later one first
	require.NoError(t, s.Inject(newTestEvent(pingType, secs(20), "second")))
	require.NoError(t, s.Inject(newTestEvent(pingType, secs(5), "first")))
	assert.True(t, s.NextEventTime().Equal(secs(5)))

	// THEN they are applied in time order
	require.NoError(t, s.Run(context.Background()))
	require.Len(t, b.received, 2)
	assert.Equal(t, "first", b.received[0].Content())
	assert.Equal(t, "second", b.received[1].Content())
	assert.Equal(t, []string{"ext@5", "ext@20"}, b.transitions)
}

func TestSimulator_Inject_InThePast_IsViolation(t *testing.T) {
	b := newTestModel("b", Infinity, "", pingType)
	a := newTestModel("a", span(10), pingType)
	a.limit = 1
	root, err := NewCoupledModel(CoupledSpec{
		URI: "root", TimeUnit: Seconds, Submodels: []string{"a", "b"},
		Imported:    map[EventType][]EventSink{pingType: {{ModelURI: "b", Type: pingType}}},
		Connections: map[EventSource][]EventSink{pingSource("a"): {{ModelURI: "b", Type: pingType}}},
	})
	require.NoError(t, err)
	s, err := NewSimulator("root", []Model{root, a, b})
	require.NoError(t, err)
	require.NoError(t, s.Initialise(secs(0), span(100)))
	_, err = s.Step()
	require.NoError(t, err)

	err = s.Inject(newTestEvent(pingType, secs(3), nil))

	var cv *ContractViolation
	require.ErrorAs(t, err, &cv)
	assert.Contains(t, cv.Condition, "precedes the current time")
}

func TestSimulator_ContractViolation_AbortsRun(t *testing.T) {
	// GIVEN a model that refuses its own internal event
	s, a, b := newPair(t)
	a.failOnFire = true
	require.NoError(t, s.Initialise(secs(0), span(100)))

	// WHEN stepping
	_, err := s.Step()

	// THEN the violation names the model and the run is aborted
	var cv *ContractViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "a", cv.ModelURI)
	assert.Equal(t, cv, s.Aborted())
	_, err = s.Step()
	assert.ErrorIs(t, err, ErrRunAborted)
	assert.ErrorIs(t, s.Run(context.Background()), ErrRunAborted)
	assert.Empty(t, b.received)
}

func TestSimulator_InitialiseTwice_IsViolation(t *testing.T) {
	s, _, _ := newPair(t)
	require.NoError(t, s.Initialise(secs(0), span(100)))
	var cv *ContractViolation
	require.ErrorAs(t, s.Initialise(secs(0), span(100)), &cv)
}

func TestSimulator_Run_CancelledContext_EndsAtCurrentTime(t *testing.T) {
	s, a, _ := newPair(t)
	a.limit = 0
	require.NoError(t, s.Initialise(secs(0), span(1000)))
	_, err := s.Step()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Run(ctx)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Finalised, s.Root().State())
	e, _ := s.Engine("a")
	assert.Equal(t, Finalised, e.State())
	assert.True(t, s.CurrentTime().Equal(secs(10)))
}

func TestSimulator_EventsAtEndTime_AreNotExecuted(t *testing.T) {
	s, a, _ := newPair(t)
	require.NoError(t, s.Initialise(secs(0), span(10)))
	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, a.transitions)
}

func TestSimulator_SameSeed_SameSelections(t *testing.T) {
	run := func(seed int64) []string {
		var models []Model
		var subs []string
		for _, uri := range []string{"g1", "g2", "g3", "g4"} {
			g := newTestModel(uri, span(10), pingType)
			g.limit = 5
			models = append(models, g)
			subs = append(subs, uri)
		}
		root, err := NewCoupledModel(CoupledSpec{URI: "root", TimeUnit: Seconds, Submodels: subs})
		require.NoError(t, err)
		st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelTransitions})
		s, err := NewSimulator("root", append(models, root), WithSeed(seed), WithTrace(st))
		require.NoError(t, err)
		require.NoError(t, s.Initialise(secs(0), span(100)))
		require.NoError(t, s.Run(context.Background()))
		var order []string
		for _, tr := range st.Transitions {
			order = append(order, tr.ModelURI)
		}
		return order
	}

	first := run(42)
	assert.Equal(t, first, run(42))
	assert.Len(t, first, 20)
}

func TestSimulator_LowestURIPolicy_IsDeterministic(t *testing.T) {
	var models []Model
	for _, uri := range []string{"z", "m", "b"} {
		g := newTestModel(uri, span(10), pingType)
		g.limit = 1
		models = append(models, g)
	}
	root, err := NewCoupledModel(CoupledSpec{URI: "root", TimeUnit: Seconds, Submodels: []string{"z", "m", "b"}, SelectPolicy: SelectLowestURI})
	require.NoError(t, err)
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelTransitions})
	s, err := NewSimulator("root", append(models, root), WithTrace(st))
	require.NoError(t, err)
	require.NoError(t, s.Initialise(secs(0), span(100)))
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, st.Selections, 2)
	assert.Equal(t, "b", st.Selections[0].Chosen)
	assert.Equal(t, []string{"m", "z"}, st.Selections[1].Candidates)
	assert.Equal(t, "m", st.Selections[1].Chosen)
}

func TestSimulator_AtomicRoot(t *testing.T) {
	a := newTestModel("a", span(4), pingType)
	a.limit = 2
	s, err := NewSimulator("a", []Model{a})
	require.NoError(t, err)
	require.NoError(t, s.Initialise(secs(0), span(100)))
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{"int@4", "int@8"}, a.transitions)
	assert.Len(t, s.Outputs(), 2)
	assert.True(t, s.Root().IsRoot())
}

func TestSimulator_HostNotifier_ReceivesModelNotifications(t *testing.T) {
	var got []string
	s, a, _ := newPair(t, WithHostNotifier(func(uri, name string, value any) { got = append(got, uri+"/"+name) }))
	require.NoError(t, s.Initialise(secs(0), span(100)))
	a.NotifyHost("fired", 1)
	assert.Equal(t, []string{"a/fired"}, got)
}

func TestSimulator_RunID(t *testing.T) {
	s1, _, _ := newPair(t)
	s2, _, _ := newPair(t)
	assert.NotEmpty(t, s1.RunID())
	assert.NotEqual(t, s1.RunID(), s2.RunID())

	s3, _, _ := newPair(t, WithRunID("fixed"))
	assert.Equal(t, "fixed", s3.RunID())
}
