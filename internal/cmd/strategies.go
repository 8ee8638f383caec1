package cmd

import (
	"fmt"
	"strings"

	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/sched/plugins/edf"
	"github.com/microkernel-labs/schedswap/internal/sched/plugins/priority"
	"github.com/microkernel-labs/schedswap/internal/sched/plugins/roundrobin"
	"github.com/spf13/cobra"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the built-in scheduling strategies",
	RunE:  runStrategies,
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

func capabilityNames(caps sched.Capability) string {
	var names []string
	for _, c := range []struct {
		bit  sched.Capability
		name string
	}{
		{sched.CapPreemptive, "preemptive"},
		{sched.CapTimeSliced, "time-sliced"},
		{sched.CapPriorityBased, "priority-based"},
		{sched.CapDeadlineAware, "deadline-aware"},
	} {
		if caps.Has(c.bit) {
			names = append(names, c.name)
		}
	}
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func runStrategies(cmd *cobra.Command, args []string) error {
	descs := []sched.Descriptor{
		roundrobin.Descriptor(),
		priority.Descriptor(),
		edf.Descriptor(),
	}

	fmt.Println("Built-in strategies:")
	fmt.Println()
	for _, d := range descs {
		fmt.Printf("  %-16s id=%d version=%d checksum=%08x\n", d.Name, d.ID, d.Version, d.Checksum)
		fmt.Printf("  %-16s %s\n", "", capabilityNames(d.Capabilities))
		fmt.Println()
	}

	return nil
}
