// Package rt maps simulated time onto wall-clock time so that a simulation
// can run in (accelerated) real time.
package rt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inference-sim/devsim/sim"
)

// ErrInfiniteInstant is returned when a wall-clock delay is requested for the
// instant that is never reached.
var ErrInfiniteInstant = errors.New("the infinite instant has no wall-clock delay")

// MissedDeadlineError reports a simulated instant whose wall-clock instant
// has already passed. It is reported, never corrected.
type MissedDeadlineError struct {
	ClockURI string
	Target   sim.Time
	Late     time.Duration
}

func (e *MissedDeadlineError) Error() string {
	return fmt.Sprintf("clock %s: instant %s missed by %s", e.ClockURI, e.Target, e.Late)
}

// AcceleratedClock relates simulated instants to wall-clock instants:
// startTime happens at startInstant and simulated time then runs
// acceleration times faster than the wall clock.
//
// Thread-safety: immutable after construction; safe for concurrent use.
type AcceleratedClock struct {
	uri          string
	unit         sim.TimeUnit
	startInstant time.Time
	startTime    sim.Time
	acceleration float64
	now          func() time.Time
}

// ClockOption configures an AcceleratedClock.
type ClockOption func(*AcceleratedClock)

// WithNow replaces the wall-clock source, for tests.
func WithNow(now func() time.Time) ClockOption {
	return func(c *AcceleratedClock) { c.now = now }
}

// NewAcceleratedClock creates a clock. acceleration must be positive and
// startTime finite and expressed in unit.
func NewAcceleratedClock(uri string, unit sim.TimeUnit, startInstant time.Time, startTime sim.Time, acceleration float64, opts ...ClockOption) (*AcceleratedClock, error) {
	if uri == "" {
		return nil, fmt.Errorf("clock without uri")
	}
	if !unit.IsValid() {
		return nil, fmt.Errorf("clock %s: invalid time unit", uri)
	}
	if startTime.IsInfinite() || startTime.Unit() != unit {
		return nil, fmt.Errorf("clock %s: start time %s must be finite and in %s", uri, startTime, unit)
	}
	if !(acceleration > 0) {
		return nil, fmt.Errorf("clock %s: acceleration must be positive, got %v", uri, acceleration)
	}
	c := &AcceleratedClock{
		uri:          uri,
		unit:         unit,
		startInstant: startInstant,
		startTime:    startTime,
		acceleration: acceleration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *AcceleratedClock) URI() string             { return c.uri }
func (c *AcceleratedClock) TimeUnit() sim.TimeUnit  { return c.unit }
func (c *AcceleratedClock) StartInstant() time.Time { return c.startInstant }
func (c *AcceleratedClock) StartTime() sim.Time     { return c.startTime }
func (c *AcceleratedClock) Acceleration() float64   { return c.acceleration }

// InstantOfSimulatedTime returns the wall-clock instant at which t happens.
func (c *AcceleratedClock) InstantOfSimulatedTime(t sim.Time) (time.Time, error) {
	if t.IsInfinite() {
		return time.Time{}, ErrInfiniteInstant
	}
	span := (t.Value() - c.startTime.Value()) * c.unit.Nanos() / c.acceleration
	return c.startInstant.Add(time.Duration(span)), nil
}

// SimulatedTimeOfInstant returns the simulated instant happening at the
// wall-clock instant i. Instants before the start map to the start time.
func (c *AcceleratedClock) SimulatedTimeOfInstant(i time.Time) sim.Time {
	wall := i.Sub(c.startInstant)
	if wall <= 0 {
		return c.startTime
	}
	elapsed := float64(wall.Nanoseconds()) * c.acceleration / c.unit.Nanos()
	return c.startTime.Add(sim.NewDuration(elapsed, c.unit))
}

// CurrentSimulatedTime returns the simulated instant of the wall clock now.
func (c *AcceleratedClock) CurrentSimulatedTime() sim.Time {
	return c.SimulatedTimeOfInstant(c.now())
}

// NanoDelayUntilInstant returns the wall-clock delay until t happens. If t
// is already in the past the delay is zero and a *MissedDeadlineError tells
// by how much it was missed.
func (c *AcceleratedClock) NanoDelayUntilInstant(t sim.Time) (time.Duration, error) {
	at, err := c.InstantOfSimulatedTime(t)
	if err != nil {
		return 0, err
	}
	delay := at.Sub(c.now())
	if delay < 0 {
		return 0, &MissedDeadlineError{ClockURI: c.uri, Target: t, Late: -delay}
	}
	return delay, nil
}

// DelayUntilStart returns the wall-clock delay until the start instant,
// zero once it has passed.
func (c *AcceleratedClock) DelayUntilStart() time.Duration {
	if d := c.startInstant.Sub(c.now()); d > 0 {
		return d
	}
	return 0
}

// WaitUntilStart blocks until the start instant or until ctx is done.
func (c *AcceleratedClock) WaitUntilStart(ctx context.Context) error {
	d := c.DelayUntilStart()
	if d == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
