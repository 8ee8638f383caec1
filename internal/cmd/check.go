package cmd

import (
	"fmt"

	"github.com/microkernel-labs/schedswap/internal/sim"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <scenario.yaml>",
	Short: "Validate a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	scn, err := sim.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Scenario %q is valid.\n", scn.Name)
	fmt.Printf("  duration: %d ticks\n", scn.DurationTicks)
	fmt.Printf("  tasks:    %d\n", len(scn.Tasks))
	fmt.Printf("  phases:   %d\n", len(scn.Phases))
	fmt.Printf("  events:   %d\n", len(scn.Events))
	return nil
}
