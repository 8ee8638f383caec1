package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/microkernel-labs/schedswap/internal/config"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/sim"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scheduling scenario",
	Long: `Run a scripted workload scenario on the simulated clock and print a
summary of completions, deadline misses, strategy switches and adaptation
activity.

Examples:
  # Run a scenario with the configured defaults
  schedswap run scenarios/bursty.yaml

  # Start on EDF and let the adaptation engine apply switches
  schedswap run scenarios/bursty.yaml --strategy edf --mode automatic

  # Plan switches without executing them
  schedswap run scenarios/bursty.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runStrategy string
	runMode     string
	runTicks    uint64
	runDryRun   bool
	runVerbose  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "Initial strategy (round_robin/static_priority/edf)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Adaptation mode (disabled/manual/assisted/automatic/learning)")
	runCmd.Flags().Uint64Var(&runTicks, "ticks", 0, "Override the scenario duration in ticks")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate switches without changing any state")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print the full switch history")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if runStrategy != "" {
		cfg.Scheduler.DefaultStrategy = runStrategy
	}
	if runMode != "" {
		cfg.Adaptation.Mode = runMode
	}
	if runDryRun {
		cfg.Switch.DryRun = true
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	scn, err := sim.Load(args[0])
	if err != nil {
		return err
	}
	if runTicks > 0 {
		scn.DurationTicks = runTicks
	}

	log, err := runLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	runner, err := sim.NewRunner(scn, cfg, sim.WithLogger(log))
	if err != nil {
		return err
	}
	res, err := runner.Run()
	if err != nil {
		return err
	}

	printResult(res, runVerbose)
	return nil
}

// runLogger builds the run logger from the logging config. Disabled
// logging gets a no-op logger rather than no logger at all.
func runLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logDir := filepath.Join(config.ConfigDir(), "logs")
	return logging.NewLoggerWithRotation(logDir, logging.ParseLevel(cfg.Logging.Level), logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

func printResult(res *sim.Result, verbose bool) {
	fmt.Printf("Scenario: %s\n", res.Name)
	fmt.Printf("Ticks run: %d\n", res.TicksRun)
	fmt.Println()

	fmt.Println("Tasks:")
	fmt.Printf("  arrivals:  %d\n", res.Arrivals)
	fmt.Printf("  completed: %d\n", res.Completed)
	fmt.Printf("  overruns:  %d\n", res.Overruns)
	fmt.Printf("  misses:    %d\n", res.Misses)
	fmt.Println()

	fmt.Println("Switches:")
	fmt.Printf("  attempts:  %d\n", res.Switches.Attempts)
	fmt.Printf("  successes: %d\n", res.Switches.Successes)
	fmt.Printf("  failures:  %d\n", res.Switches.Failures)
	fmt.Printf("  rollbacks: %d\n", res.Switches.Rollbacks)
	fmt.Printf("  tasks migrated: %d\n", res.Switches.TasksMigrated)
	if res.Switches.Successes > 0 {
		fmt.Printf("  duration (µs): min=%d avg=%d max=%d\n",
			res.Switches.MinMicros, res.Switches.AvgMicros, res.Switches.MaxMicros)
	}
	if res.Switches.CriticalViolations > 0 {
		fmt.Printf("  critical budget violations: %d\n", res.Switches.CriticalViolations)
	}
	fmt.Println()

	fmt.Printf("Final strategy: %s\n", res.Final.String())

	if len(res.Advice) > 0 {
		fmt.Println()
		fmt.Println("Unapplied recommendations:")
		for _, rec := range res.Advice {
			fmt.Printf("  %s (confidence %d): %s\n", rec.Strategy.String(), rec.Confidence, rec.Result.Reason)
		}
	}

	if verbose && len(res.History) > 0 {
		fmt.Println()
		fmt.Println("Switch history:")
		for _, rec := range res.History {
			status := "ok"
			if !rec.Success {
				status = "failed"
				if rec.RolledBack {
					status = "rolled back"
				}
			}
			fmt.Printf("  %s -> %s (%s, %d tasks, %dµs): %s\n",
				rec.From.String(), rec.To.String(), rec.Reason, rec.TasksMoved, rec.DurationMicros, status)
		}
	}

	if len(res.EventErrs) > 0 {
		fmt.Println()
		fmt.Println("Event errors:")
		for _, msg := range res.EventErrs {
			fmt.Printf("  %s\n", msg)
		}
	}
}
