package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	pingType EventType = "test.ping"
	pongType EventType = "test.pong"
	stopType EventType = "test.stop"
)

var testRanking = PriorityRanking{stopType: 0, pingType: 1}

// testEvent is a generic event whose type is chosen at construction.
type testEvent struct {
	EventBase
	typ EventType
}

func newTestEvent(typ EventType, t Time, content any) *testEvent {
	return &testEvent{EventBase: NewEventBase(t, content), typ: typ}
}

func (e *testEvent) Type() EventType                  { return e.typ }
func (e *testEvent) HasPriorityOver(other Event) bool { return testRanking.HasPriority(e, other) }

func (e *testEvent) ExecuteOn(m AtomicModel) {
	tm, ok := m.(*testModel)
	if !ok {
		WrongModel(e, m)
		return
	}
	tm.received = append(tm.received, e)
}

// testModel fires every period (Infinity when passive), emitting one event
// of type emit per internal transition, at most limit times (0 = no limit).
// It records every transition as "<kind>@<value>".
type testModel struct {
	*AtomicBase
	period Duration
	emit   EventType
	limit  int

	requiredParam string
	failOnFire    bool

	fired       int
	received    []Event
	transitions []string
	extElapsed  []Duration
	outputCalls int
	finalised   int
	gain        float64
}

func newTestModel(uri string, period Duration, emit EventType, imports ...EventType) *testModel {
	var exported []EventType
	if emit != "" {
		exported = []EventType{emit}
	}
	return &testModel{
		AtomicBase: NewAtomicBase(AtomicSpec{URI: uri, TimeUnit: Seconds, Imported: imports, Exported: exported}),
		period:     period,
		emit:       emit,
	}
}

func (m *testModel) SetSimulationRunParameters(p RunParameters) error {
	if m.requiredParam == "" {
		return nil
	}
	g, err := p.Float64(m.URI(), m.requiredParam)
	if err != nil {
		return err
	}
	m.gain = g
	return nil
}

func (m *testModel) InitialiseState(Time) {
	m.fired = 0
	m.received = nil
	m.transitions = nil
	m.extElapsed = nil
}

func (m *testModel) TimeAdvance() Duration {
	if m.limit > 0 && m.fired >= m.limit {
		return Infinity
	}
	return m.period
}

func (m *testModel) Output(current Time) []Event {
	m.outputCalls++
	if m.emit == "" {
		return nil
	}
	return []Event{newTestEvent(m.emit, current, m.fired+1)}
}

func (m *testModel) InternalTransition(Duration) {
	if m.failOnFire {
		Violation(m.URI(), "refusing to fire")
	}
	m.fired++
	m.transitions = append(m.transitions, fmt.Sprintf("int@%g", m.CurrentStateTime().Value()))
}

func (m *testModel) ExternalTransition(elapsed Duration, events []Event) {
	for _, ev := range events {
		ev.ExecuteOn(m)
	}
	m.extElapsed = append(m.extElapsed, elapsed)
	m.transitions = append(m.transitions, fmt.Sprintf("ext@%g", m.CurrentStateTime().Value()))
}

func (m *testModel) FinaliseSimulation(Time) { m.finalised++ }

func secs(v float64) Time     { return NewTime(v, Seconds) }
func span(v float64) Duration { return NewDuration(v, Seconds) }

func pingSource(uri string) EventSource {
	return EventSource{ModelURI: uri, Type: pingType}
}

// newPair builds root{a -> b}: a fires every 10s (once unless limit says
// otherwise) and b imports the pings.
func newPair(t *testing.T, opts ...Option) (*Simulator, *testModel, *testModel) {
	t.Helper()
	a := newTestModel("a", span(10), pingType)
	a.limit = 1
	b := newTestModel("b", Infinity, "", pingType)
	root, err := NewCoupledModel(CoupledSpec{
		URI:       "root",
		TimeUnit:  Seconds,
		Submodels: []string{"a", "b"},
		Connections: map[EventSource][]EventSink{
			pingSource("a"): {{ModelURI: "b", Type: pingType}},
		},
		SelectPolicy: SelectLowestURI,
	})
	require.NoError(t, err)
	s, err := NewSimulator("root", []Model{root, a, b}, opts...)
	require.NoError(t, err)
	return s, a, b
}

// requireViolation asserts that fn panics with a *ContractViolation.
func requireViolation(t *testing.T, fn func()) *ContractViolation {
	t.Helper()
	var cv *ContractViolation
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a contract violation")
			var ok bool
			cv, ok = r.(*ContractViolation)
			require.True(t, ok, "expected *ContractViolation, got %T: %v", r, r)
		}()
		fn()
	}()
	return cv
}

// assertTimingInvariant checks ta == tn - tl on every engine.
func assertTimingInvariant(t *testing.T, s *Simulator) {
	t.Helper()
	for _, n := range s.arena.nodes {
		e := n.engine
		ta := e.TimeOfNextEvent().Elapsed(e.TimeOfLastEvent())
		require.True(t, ta.Equal(e.NextTimeAdvance()),
			"%s: ta %s != tn %s - tl %s", e.URI(), e.NextTimeAdvance(), e.TimeOfNextEvent(), e.TimeOfLastEvent())
	}
}
