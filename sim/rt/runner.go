package rt

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/devsim/sim"
)

// Timer delivers a value after a wall-clock delay.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

type wallTimer struct{}

func (wallTimer) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Runner drives a Simulator in real time: it waits for the clock's start
// instant, then runs each step at the wall-clock instant of its simulated
// time. Steps whose instant has passed run immediately and are reported as
// missed deadlines.
type Runner struct {
	sim      *sim.Simulator
	clock    *AcceleratedClock
	timer    Timer
	onMissed func(*MissedDeadlineError)
	missed   int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTimer replaces the wall-clock timer, for tests.
func WithTimer(t Timer) RunnerOption {
	return func(r *Runner) { r.timer = t }
}

// WithMissedDeadlineHandler is called for every missed deadline.
func WithMissedDeadlineHandler(h func(*MissedDeadlineError)) RunnerOption {
	return func(r *Runner) { r.onMissed = h }
}

// NewRunner binds an initialised simulator to a clock.
func NewRunner(s *sim.Simulator, clock *AcceleratedClock, opts ...RunnerOption) *Runner {
	r := &Runner{sim: s, clock: clock, timer: wallTimer{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MissedDeadlines returns the number of steps that ran late.
func (r *Runner) MissedDeadlines() int { return r.missed }

// Run steps the simulator until the end of the run, then ends and
// finalises it. If ctx is cancelled the run is ended at the current
// simulated time and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context) error {
	if d := r.clock.DelayUntilStart(); d > 0 {
		if err := r.wait(ctx, d); err != nil {
			return r.stop(err)
		}
	}
	end := r.sim.EndTime()
	for {
		next := r.sim.NextEventTime()
		if !next.LessThan(end) {
			break
		}
		delay, err := r.clock.NanoDelayUntilInstant(next)
		var missed *MissedDeadlineError
		switch {
		case errors.As(err, &missed):
			r.missed++
			logrus.WithField("clock", r.clock.URI()).Warnf("missed deadline: %v", missed)
			if r.onMissed != nil {
				r.onMissed(missed)
			}
		case err != nil:
			return err
		}
		if err := r.wait(ctx, delay); err != nil {
			return r.stop(err)
		}
		if _, err := r.sim.Step(); err != nil {
			return err
		}
	}
	if err := r.sim.End(end); err != nil {
		return err
	}
	return r.sim.Finalise()
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.timer.After(d):
		return nil
	}
}

// stop ends the run at the current simulated time after a cancellation.
func (r *Runner) stop(cause error) error {
	if err := r.sim.End(r.sim.CurrentTime()); err != nil {
		return err
	}
	if err := r.sim.Finalise(); err != nil {
		return err
	}
	return cause
}
