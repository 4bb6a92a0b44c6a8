package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/devsim/sim/trace"
)

var (
	archPath     string  // Architecture YAML file
	paramsPath   string  // Run parameters YAML file
	startTime    float64 // Simulated start time, in the architecture time unit
	duration     float64 // Run duration, in the architecture time unit
	seed         int64   // Seed for select tie-breaks
	logLevel     string  // Log verbosity level
	traceLevel   string  // Trace verbosity: none, transitions, deliveries
	realtime     bool    // Pace steps on the wall clock
	acceleration float64 // Simulated time units per wall-clock time unit
	replications int     // Independent runs, seeds seed..seed+N-1
	envFile      string  // Optional .env file with DEVSIM_* defaults
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "devsim",
	Short: "DEVS discrete-event simulation kernel",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyEnvDefaults(cmd); err != nil {
			return err
		}
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// runCmd executes an architecture using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation architecture",
	Run: func(cmd *cobra.Command, args []string) {
		if archPath == "" {
			logrus.Fatalf("Architecture file not provided (--arch). Exiting simulation.")
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		if acceleration < 0 {
			logrus.Fatalf("--acceleration must be positive, got %g", acceleration)
		}
		if replications < 1 {
			logrus.Fatalf("--replications must be at least 1, got %d", replications)
		}
		cfg := runConfig{
			archPath:     archPath,
			paramsPath:   paramsPath,
			start:        startTime,
			duration:     duration,
			seed:         seed,
			replications: replications,
			traceLevel:   trace.TraceLevel(traceLevel),
			realtime:     realtime,
			acceleration: acceleration,
		}
		logrus.Infof("Starting %d replication(s) of %s, seed=%d, duration=%g", replications, archPath, seed, duration)

		results, err := runReplications(cmd.Context(), cfg)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		printSummary(cmd.OutOrStdout(), results)
		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks an architecture and its run parameters without running
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an architecture and its run parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if archPath == "" {
			return errors.New("architecture file not provided (--arch)")
		}
		n, err := validateArchitecture(archPath, paramsPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d models, ok\n", archPath, n)
		return nil
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyEnvDefaults loads the .env file, if present, and uses DEVSIM_LOG and
// DEVSIM_SEED for the flags the user did not set.
func applyEnvDefaults(cmd *cobra.Command) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	flags := cmd.Flags()
	if v, ok := os.LookupEnv("DEVSIM_LOG"); ok && !flags.Changed("log") {
		logLevel = v
	}
	if v, ok := os.LookupEnv("DEVSIM_SEED"); ok && flags.Lookup("seed") != nil && !flags.Changed("seed") {
		s, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("DEVSIM_SEED: %w", err)
		}
		seed = s
	}
	return nil
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File with DEVSIM_LOG / DEVSIM_SEED defaults")
	rootCmd.PersistentFlags().StringVar(&archPath, "arch", "", "Architecture YAML file")
	rootCmd.PersistentFlags().StringVar(&paramsPath, "params", "", "Run parameters YAML file")

	runCmd.Flags().Float64Var(&startTime, "start", 0, "Simulated start time")
	runCmd.Flags().Float64Var(&duration, "duration", 100, "Run duration")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for select tie-breaks")
	runCmd.Flags().StringVar(&traceLevel, "trace", string(trace.TraceLevelNone), "Trace level (none, transitions, deliveries)")
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "Pace steps on the wall clock")
	runCmd.Flags().Float64Var(&acceleration, "acceleration", 0, "Simulated time per wall-clock time in --realtime mode; overrides the architecture's acceleration (default 1)")
	runCmd.Flags().IntVar(&replications, "replications", 1, "Number of independent runs, in parallel")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
