package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/devsim/sim"
	"github.com/inference-sim/devsim/sim/arch"
	_ "github.com/inference-sim/devsim/sim/library" // registers the library model kinds
	"github.com/inference-sim/devsim/sim/rt"
	"github.com/inference-sim/devsim/sim/trace"
)

type runConfig struct {
	archPath     string
	paramsPath   string
	start        float64
	duration     float64
	seed         int64
	replications int
	traceLevel   trace.TraceLevel
	realtime     bool
	acceleration float64
}

// runResult is the outcome of one replication.
type runResult struct {
	Replication     int
	Seed            int64
	RunID           string
	Steps           int
	Outputs         int
	End             sim.Time
	MissedDeadlines int
	Trace           *trace.TraceSummary
	Wall            time.Duration
}

// loadInputs reads the architecture and, if given, its run parameters.
func loadInputs(archFile, paramsFile string) (*arch.Architecture, sim.RunParameters, error) {
	a, err := arch.LoadArchitecture(archFile)
	if err != nil {
		return nil, nil, err
	}
	params := sim.RunParameters{}
	if paramsFile != "" {
		if params, err = arch.LoadRunParameters(paramsFile); err != nil {
			return nil, nil, err
		}
	}
	return a, params, nil
}

// validateArchitecture assembles the architecture and hands it its run
// parameters, which surfaces structural errors and missing parameters.
func validateArchitecture(archFile, paramsFile string) (int, error) {
	a, params, err := loadInputs(archFile, paramsFile)
	if err != nil {
		return 0, err
	}
	s, err := a.Instantiate(sim.WithFixpointInitialisation(0))
	if err != nil {
		return 0, err
	}
	if err := s.SetSimulationRunParameters(params); err != nil {
		return 0, err
	}
	return a.ModelCount(), nil
}

// runReplications runs cfg.replications independent model trees in
// parallel. Replication i uses seed cfg.seed+i. The first failure cancels
// the others.
func runReplications(ctx context.Context, cfg runConfig) ([]runResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a, params, err := loadInputs(cfg.archPath, cfg.paramsPath)
	if err != nil {
		return nil, err
	}
	clocks := rt.NewClockRegistry()
	results := make([]runResult, cfg.replications)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.replications; i++ {
		i := i
		g.Go(func() error {
			res, err := runOnce(gctx, a, params, cfg, i, clocks)
			if err != nil {
				return fmt.Errorf("replication %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runOnce(ctx context.Context, a *arch.Architecture, params sim.RunParameters, cfg runConfig, i int, clocks *rt.ClockRegistry) (runResult, error) {
	res := runResult{Replication: i + 1, Seed: cfg.seed + int64(i)}
	opts := []sim.Option{sim.WithSeed(res.Seed), sim.WithFixpointInitialisation(0)}
	var st *trace.SimulationTrace
	if cfg.traceLevel != "" && cfg.traceLevel != trace.TraceLevelNone {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: cfg.traceLevel})
		opts = append(opts, sim.WithTrace(st))
	}
	s, err := a.Instantiate(opts...)
	if err != nil {
		return res, err
	}
	res.RunID = s.RunID()
	if err := s.SetSimulationRunParameters(params); err != nil {
		return res, err
	}
	start := sim.NewTime(cfg.start, a.TimeUnit)
	if err := s.Initialise(start, sim.NewDuration(cfg.duration, a.TimeUnit)); err != nil {
		return res, err
	}

	began := time.Now()
	if cfg.realtime {
		clock, err := rt.NewAcceleratedClock(s.RunID(), a.TimeUnit, began, start, a.AccelerationFactor(cfg.acceleration))
		if err != nil {
			return res, err
		}
		if err := clocks.Register(clock); err != nil {
			return res, err
		}
		defer clocks.Remove(clock.URI())
		runner := rt.NewRunner(s, clock)
		err = runner.Run(ctx)
		res.MissedDeadlines = runner.MissedDeadlines()
		if err != nil {
			return res, err
		}
	} else if err := s.Run(ctx); err != nil {
		return res, err
	}
	res.Wall = time.Since(began)
	res.Steps = s.StepCount()
	res.Outputs = len(s.Outputs())
	res.End = s.EndTime()
	if st != nil {
		res.Trace = trace.Summarize(st)
	}
	logrus.WithField("run", res.RunID).Debugf("replication %d done in %s", res.Replication, res.Wall)
	return res, nil
}

// printSummary writes one block per replication.
func printSummary(w io.Writer, results []runResult) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	for _, r := range results {
		fmt.Fprintf(w, "%s replication (seed %d, run %s)\n", humanize.Ordinal(r.Replication), r.Seed, r.RunID)
		fmt.Fprintf(w, "  steps:         %s\n", humanize.Comma(int64(r.Steps)))
		fmt.Fprintf(w, "  root outputs:  %s\n", humanize.Comma(int64(r.Outputs)))
		fmt.Fprintf(w, "  ended at:      %s\n", r.End)
		fmt.Fprintf(w, "  wall time:     %s\n", r.Wall.Round(time.Microsecond))
		if r.MissedDeadlines > 0 {
			fmt.Fprintf(w, "  missed deadlines: %s\n", humanize.Comma(int64(r.MissedDeadlines)))
		}
		if t := r.Trace; t != nil {
			fmt.Fprintf(w, "  transitions:   %s (internal %d, external %d, confluent %d)\n",
				humanize.Comma(int64(t.TotalTransitions)), t.InternalCount, t.ExternalCount, t.ConfluentCount)
			fmt.Fprintf(w, "  selections:    %d, deliveries: %d, models: %d\n", t.SelectionCount, t.DeliveryCount, t.UniqueModels)
		}
	}
}
