package sim

import "fmt"

// EventType names a kind of event. Coupled models route events by type, so
// every concrete event returns a stable, package-qualified name.
type EventType string

// Event defines the interface for all simulation events.
// An event is immutable once created. ExecuteOn is the only mutator of an
// atomic model's domain state in response to the event; it must fail loudly
// (via Violation or WrongModel) when the model is of the wrong type or is
// not in the state the event expects.
type Event interface {
	Type() EventType
	TimeOfOccurrence() Time
	// Content returns the optional payload, nil when absent.
	Content() any
	// HasPriorityOver breaks ties between events occurring at the same
	// instant in the same model. It must be a strict partial order: for any
	// pair at most one direction returns true.
	HasPriorityOver(other Event) bool
	ExecuteOn(m AtomicModel)
}

// EventBase holds the occurrence time and payload shared by concrete events.
// Embed it and provide Type, HasPriorityOver and ExecuteOn.
type EventBase struct {
	time    Time
	content any
}

// NewEventBase returns an EventBase occurring at t carrying content.
func NewEventBase(t Time, content any) EventBase {
	assertf(!t.IsInfinite(), "", "event scheduled at the infinite instant")
	return EventBase{time: t, content: content}
}

func (e EventBase) TimeOfOccurrence() Time { return e.time }
func (e EventBase) Content() any           { return e.content }

// EventConverter rewrites an event crossing a coupling, for instance to
// change its type when it is reexported. A nil converter is the identity.
type EventConverter func(Event) Event

// compose returns a converter applying c, then next.
func (c EventConverter) compose(next EventConverter) EventConverter {
	switch {
	case c == nil:
		return next
	case next == nil:
		return c
	}
	return func(ev Event) Event { return next(c(ev)) }
}

func (c EventConverter) apply(ev Event) Event {
	if c == nil {
		return ev
	}
	return c(ev)
}

// PriorityRanking assigns ranks to event types; a lower rank is processed
// first among simultaneous events. Ranked types take priority over unranked
// ones, and unranked types never take priority. The relation is a strict
// partial order, so concrete events can implement HasPriorityOver as
//
//	func (e *Heat) HasPriorityOver(o sim.Event) bool { return ranking.HasPriority(e, o) }
type PriorityRanking map[EventType]int

// HasPriority reports whether e takes priority over other.
func (r PriorityRanking) HasPriority(e, other Event) bool {
	re, okE := r[e.Type()]
	if !okE {
		return false
	}
	ro, okO := r[other.Type()]
	if !okO {
		return true
	}
	return re < ro
}

// WrongModel fails the run because ev was dispatched onto a model it does not
// accept.
func WrongModel(ev Event, m AtomicModel) {
	Violation(m.URI(), "event %s cannot be executed on a model of type %T", ev.Type(), m)
}

// describeEvent formats an event for logs and traces.
func describeEvent(ev Event) string {
	if ev.Content() == nil {
		return fmt.Sprintf("%s@%s", ev.Type(), ev.TimeOfOccurrence())
	}
	return fmt.Sprintf("%s@%s(%v)", ev.Type(), ev.TimeOfOccurrence(), ev.Content())
}
