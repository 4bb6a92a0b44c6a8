package library

import "github.com/inference-sim/devsim/sim"

// Sink absorbs Jobs and Reports and remembers when they arrived. It pushes
// its final tally to the host when the run is finalised.
type Sink struct {
	*sim.AtomicBase
	received []sim.Event
	elapsed  []sim.Duration
}

// NewSink creates a sink importing JobType and ReportType.
func NewSink(uri string, unit sim.TimeUnit) *Sink {
	return &Sink{AtomicBase: sim.NewAtomicBase(sim.AtomicSpec{
		URI:      uri,
		TimeUnit: unit,
		Imported: []sim.EventType{JobType, ReportType},
	})}
}

func (s *Sink) InitialiseState(sim.Time) {
	s.received = nil
	s.elapsed = nil
}

func (s *Sink) TimeAdvance() sim.Duration { return sim.Infinity }

func (s *Sink) InternalTransition(sim.Duration) {
	sim.Violation(s.URI(), "sink has no internal events")
}

func (s *Sink) ExternalTransition(elapsed sim.Duration, events []sim.Event) {
	for _, ev := range events {
		ev.ExecuteOn(s)
		s.elapsed = append(s.elapsed, elapsed)
	}
}

func (s *Sink) accept(ev sim.Event) {
	s.received = append(s.received, ev)
	s.Logger().Debugf("received %s at %s", ev.Type(), ev.TimeOfOccurrence())
}

func (s *Sink) FinaliseSimulation(end sim.Time) {
	s.NotifyHost("received", len(s.received))
	s.Logger().Infof("received %d events by %s", len(s.received), end)
}

// Received returns the absorbed events in arrival order.
func (s *Sink) Received() []sim.Event {
	return append([]sim.Event(nil), s.received...)
}

// Elapsed returns, per received event, the elapsed time handed to the
// external transition that absorbed it.
func (s *Sink) Elapsed() []sim.Duration {
	return append([]sim.Duration(nil), s.elapsed...)
}
