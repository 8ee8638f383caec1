package sim

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Scenario is a scripted workload definition loaded from YAML. Virtual
// time is measured in clock ticks throughout.
type Scenario struct {
	Name          string      `yaml:"name"`
	DurationTicks uint64      `yaml:"duration_ticks"`
	Tasks         []TaskSpec  `yaml:"tasks"`
	Phases        []PhaseSpec `yaml:"phases"`
	Events        []EventSpec `yaml:"events"`
}

// TaskSpec describes one synthetic task.
type TaskSpec struct {
	ID       uint32 `yaml:"id"`
	Name     string `yaml:"name"`
	Priority uint8  `yaml:"priority"`
	// StartTick is when the task first arrives.
	StartTick uint64 `yaml:"start_tick"`
	// BurstTicks is the CPU demand per activation.
	BurstTicks uint64 `yaml:"burst_ticks"`
	// PeriodTicks re-activates the task this many ticks after each
	// arrival. Zero makes the task one-shot.
	PeriodTicks uint64 `yaml:"period_ticks"`
	// DeadlineTicks is the relative deadline per activation. Zero means
	// no deadline.
	DeadlineTicks uint64 `yaml:"deadline_ticks"`
}

// PhaseSpec describes the ambient load the monitor observes from a given
// tick onward. Phases must be listed in ascending tick order.
type PhaseSpec struct {
	AtTick        uint64 `yaml:"at_tick"`
	CPUPercent    uint8  `yaml:"cpu_percent"`
	IPCRate       uint32 `yaml:"ipc_rate"`
	Contention    uint8  `yaml:"contention"`
	WorstLatency  uint64 `yaml:"worst_latency_us"`
	PeriodicRatio uint8  `yaml:"periodic_ratio"`
}

// Event actions.
const (
	ActionSwitch   = "switch"   // force a strategy switch
	ActionEvaluate = "evaluate" // run one adaptation evaluation
	ActionSpawn    = "spawn"    // add a task mid-run
	ActionKill     = "kill"     // remove a task mid-run
)

// EventSpec is a scripted action at a given tick. Events must be listed in
// ascending tick order.
type EventSpec struct {
	AtTick uint64 `yaml:"at_tick"`
	Action string `yaml:"action"`
	// Target names the strategy for switch events: "round_robin",
	// "static_priority" or "edf".
	Target string `yaml:"target"`
	// Migration overrides the migration strategy for this switch.
	Migration string `yaml:"migration"`
	Reason    string `yaml:"reason"`
	// Task is the task to spawn for spawn events.
	Task *TaskSpec `yaml:"task"`
	// TaskID is the task to remove for kill events.
	TaskID uint32 `yaml:"task_id"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario and validates it.
func Parse(data []byte) (*Scenario, error) {
	var scn Scenario
	if err := yaml.Unmarshal(data, &scn); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := scn.Validate(); err != nil {
		return nil, err
	}
	return &scn, nil
}

// Validate checks the scenario for structural problems.
func (s *Scenario) Validate() error {
	if s.DurationTicks == 0 {
		return fmt.Errorf("scenario %q: duration_ticks must be positive", s.Name)
	}

	seen := make(map[uint32]bool, len(s.Tasks))
	for i, t := range s.Tasks {
		if t.ID == 0 {
			return fmt.Errorf("scenario %q: tasks[%d] has no id", s.Name, i)
		}
		if seen[t.ID] {
			return fmt.Errorf("scenario %q: duplicate task id %d", s.Name, t.ID)
		}
		seen[t.ID] = true
		if t.BurstTicks == 0 {
			return fmt.Errorf("scenario %q: task %d: burst_ticks must be positive", s.Name, t.ID)
		}
		if t.PeriodTicks > 0 && t.BurstTicks > t.PeriodTicks {
			return fmt.Errorf("scenario %q: task %d: burst_ticks exceeds period_ticks", s.Name, t.ID)
		}
	}

	var last uint64
	for i, p := range s.Phases {
		if i > 0 && p.AtTick <= last {
			return fmt.Errorf("scenario %q: phases must be in ascending tick order", s.Name)
		}
		last = p.AtTick
		if p.CPUPercent > 100 {
			return fmt.Errorf("scenario %q: phases[%d]: cpu_percent must be at most 100", s.Name, i)
		}
		if p.Contention > 100 {
			return fmt.Errorf("scenario %q: phases[%d]: contention must be at most 100", s.Name, i)
		}
	}

	last = 0
	for i, e := range s.Events {
		if i > 0 && e.AtTick < last {
			return fmt.Errorf("scenario %q: events must be in ascending tick order", s.Name)
		}
		last = e.AtTick
		switch e.Action {
		case ActionSwitch:
			if e.Target == "" {
				return fmt.Errorf("scenario %q: events[%d]: switch needs a target", s.Name, i)
			}
		case ActionEvaluate:
		case ActionSpawn:
			if e.Task == nil || e.Task.ID == 0 || e.Task.BurstTicks == 0 {
				return fmt.Errorf("scenario %q: events[%d]: spawn needs a task with id and burst_ticks", s.Name, i)
			}
		case ActionKill:
			if e.TaskID == 0 {
				return fmt.Errorf("scenario %q: events[%d]: kill needs a task_id", s.Name, i)
			}
		default:
			return fmt.Errorf("scenario %q: events[%d]: unknown action %q", s.Name, i, e.Action)
		}
	}

	return nil
}

// phaseAt returns the phase in effect at the given tick, or the zero phase
// when no phase has started yet.
func (s *Scenario) phaseAt(tick uint64) PhaseSpec {
	var current PhaseSpec
	for _, p := range s.Phases {
		if p.AtTick > tick {
			break
		}
		current = p
	}
	return current
}
