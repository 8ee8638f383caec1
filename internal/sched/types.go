// Package sched defines the pluggable scheduler framework: the plugin
// interface every scheduling strategy implements, the capability-checked
// registry that holds them, checksummed state snapshots for hot swaps, and
// the core that owns the active strategy.
package sched

// StrategyID identifies a scheduling strategy. The numbering is part of
// the on-disk and snapshot format and must not change.
type StrategyID uint16

const (
	// StrategyNone means no scheduler is active.
	StrategyNone StrategyID = iota
	// StrategyRoundRobin is the time-sliced FIFO scheduler.
	StrategyRoundRobin
	// StrategyStaticPriority is the fixed-priority bitmap scheduler.
	StrategyStaticPriority
	// StrategyEDF is earliest deadline first.
	StrategyEDF
	// StrategyCFS is the completely-fair weighted scheduler.
	StrategyCFS
	// StrategyRateMonotonic assigns priority by activation rate.
	StrategyRateMonotonic
	// StrategyDeadlineMonotonic assigns priority by relative deadline.
	StrategyDeadlineMonotonic
	// StrategyPriorityInheritance is the priority scheduler with
	// inheritance enabled for contended resources.
	StrategyPriorityInheritance
	// StrategyAdaptive lets the adaptation engine drive selection.
	StrategyAdaptive

	// NumStrategies is the count of defined strategy IDs.
	NumStrategies
)

// String returns the canonical strategy name.
func (id StrategyID) String() string {
	switch id {
	case StrategyNone:
		return "none"
	case StrategyRoundRobin:
		return "round_robin"
	case StrategyStaticPriority:
		return "static_priority"
	case StrategyEDF:
		return "edf"
	case StrategyCFS:
		return "cfs"
	case StrategyRateMonotonic:
		return "rate_monotonic"
	case StrategyDeadlineMonotonic:
		return "deadline_monotonic"
	case StrategyPriorityInheritance:
		return "priority_inheritance"
	case StrategyAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// Valid reports whether the ID names a real strategy.
func (id StrategyID) Valid() bool {
	return id > StrategyNone && id < NumStrategies
}

// Capability is a bitmask of what a scheduler plugin can do.
type Capability uint32

const (
	// CapPreemptive means the scheduler supports preemption.
	CapPreemptive Capability = 1 << iota
	// CapDeadlineAware means the scheduler orders by deadlines.
	CapDeadlineAware
	// CapPriorityBased means the scheduler respects task priorities.
	CapPriorityBased
	// CapTimeSliced means the scheduler enforces time slices.
	CapTimeSliced
	// CapEnergyAware means the scheduler considers energy budgets.
	CapEnergyAware
	// CapSMPReady means the scheduler could run multicore.
	CapSMPReady
)

// Has reports whether all the given capability bits are set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}
