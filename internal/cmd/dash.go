package cmd

import (
	"github.com/microkernel-labs/schedswap/internal/config"
	"github.com/microkernel-labs/schedswap/internal/sim"
	"github.com/microkernel-labs/schedswap/internal/tui"
	"github.com/spf13/cobra"
)

var dashCmd = &cobra.Command{
	Use:   "dash <scenario.yaml>",
	Short: "Watch a scenario run in the dashboard",
	Long: `Run a scenario with a live terminal dashboard showing the active
strategy, the ready queue, sampled load, switch history and adaptation
advice. Switches can also be forced by hand from the keyboard.

Examples:
  # Watch at real-time speed
  schedswap dash scenarios/bursty.yaml

  # Watch at 10x speed
  schedswap dash scenarios/bursty.yaml --speed 10`,
	Args: cobra.ExactArgs(1),
	RunE: runDash,
}

var (
	dashStrategy string
	dashMode     string
	dashSpeed    float64
)

func init() {
	rootCmd.AddCommand(dashCmd)

	dashCmd.Flags().StringVar(&dashStrategy, "strategy", "", "Initial strategy (round_robin/static_priority/edf)")
	dashCmd.Flags().StringVar(&dashMode, "mode", "", "Adaptation mode (disabled/manual/assisted/automatic/learning)")
	dashCmd.Flags().Float64Var(&dashSpeed, "speed", 1, "Virtual time speed relative to wall time")
}

func runDash(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dashStrategy != "" {
		cfg.Scheduler.DefaultStrategy = dashStrategy
	}
	if dashMode != "" {
		cfg.Adaptation.Mode = dashMode
	}
	cfg.Sim.Speed = dashSpeed
	if errs := cfg.Validate(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	scn, err := sim.Load(args[0])
	if err != nil {
		return err
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

	return tui.Run(runner, cfg)
}
