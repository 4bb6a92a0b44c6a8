package library

import "github.com/inference-sim/devsim/sim"

const (
	JobType       sim.EventType = "library.Job"
	ReportType    sim.EventType = "library.Report"
	SwitchOnType  sim.EventType = "library.SwitchOn"
	SwitchOffType sim.EventType = "library.SwitchOff"
)

// Ranking orders simultaneous library events: a heater is switched off
// before it is switched on again, and commands go before data.
var Ranking = sim.PriorityRanking{
	SwitchOffType: 0,
	SwitchOnType:  1,
	ReportType:    2,
	JobType:       3,
}

// Job is the unit of work emitted by a Generator. Its content is the
// generator's sequence number, starting at 1.
type Job struct{ sim.EventBase }

func NewJob(t sim.Time, seq int) *Job {
	return &Job{EventBase: sim.NewEventBase(t, seq)}
}

func (e *Job) Type() sim.EventType                  { return JobType }
func (e *Job) Seq() int                             { return e.Content().(int) }
func (e *Job) HasPriorityOver(other sim.Event) bool { return Ranking.HasPriority(e, other) }

func (e *Job) ExecuteOn(m sim.AtomicModel) {
	s, ok := m.(*Sink)
	if !ok {
		sim.WrongModel(e, m)
		return
	}
	s.accept(e)
}

// Report carries a scalar measurement to a Sink.
type Report struct{ sim.EventBase }

func NewReport(t sim.Time, value float64) *Report {
	return &Report{EventBase: sim.NewEventBase(t, value)}
}

func (e *Report) Type() sim.EventType                  { return ReportType }
func (e *Report) Value() float64                       { return e.Content().(float64) }
func (e *Report) HasPriorityOver(other sim.Event) bool { return Ranking.HasPriority(e, other) }

func (e *Report) ExecuteOn(m sim.AtomicModel) {
	s, ok := m.(*Sink)
	if !ok {
		sim.WrongModel(e, m)
		return
	}
	s.accept(e)
}

// SwitchOn asks a Heater to start heating.
type SwitchOn struct{ sim.EventBase }

func NewSwitchOn(t sim.Time) *SwitchOn {
	return &SwitchOn{EventBase: sim.NewEventBase(t, nil)}
}

func (e *SwitchOn) Type() sim.EventType                  { return SwitchOnType }
func (e *SwitchOn) HasPriorityOver(other sim.Event) bool { return Ranking.HasPriority(e, other) }

func (e *SwitchOn) ExecuteOn(m sim.AtomicModel) {
	h, ok := m.(*Heater)
	if !ok {
		sim.WrongModel(e, m)
		return
	}
	h.switchTo(true, e.TimeOfOccurrence())
}

// SwitchOff asks a Heater to stop heating.
type SwitchOff struct{ sim.EventBase }

func NewSwitchOff(t sim.Time) *SwitchOff {
	return &SwitchOff{EventBase: sim.NewEventBase(t, nil)}
}

func (e *SwitchOff) Type() sim.EventType                  { return SwitchOffType }
func (e *SwitchOff) HasPriorityOver(other sim.Event) bool { return Ranking.HasPriority(e, other) }

func (e *SwitchOff) ExecuteOn(m sim.AtomicModel) {
	h, ok := m.(*Heater)
	if !ok {
		sim.WrongModel(e, m)
		return
	}
	h.switchTo(false, e.TimeOfOccurrence())
}

// SwitchToReport converts heater commands into reports: 1 for on, 0 for off.
func SwitchToReport(ev sim.Event) sim.Event {
	switch ev.Type() {
	case SwitchOnType:
		return NewReport(ev.TimeOfOccurrence(), 1)
	case SwitchOffType:
		return NewReport(ev.TimeOfOccurrence(), 0)
	}
	sim.Violation("", "switch-to-report cannot convert %s", ev.Type())
	return nil
}
