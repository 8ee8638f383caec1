package sim

import (
	"strings"
	"testing"

	"github.com/microkernel-labs/schedswap/internal/config"
	"github.com/microkernel-labs/schedswap/internal/sched"
)

const sampleScenario = `
name: bursty
duration_ticks: 500
tasks:
  - id: 1
    name: sensor
    priority: 10
    burst_ticks: 5
    period_ticks: 100
    deadline_ticks: 50
  - id: 2
    name: crunch
    priority: 100
    burst_ticks: 400
phases:
  - at_tick: 0
    cpu_percent: 30
    ipc_rate: 50
  - at_tick: 250
    cpu_percent: 90
    ipc_rate: 10
events:
  - at_tick: 200
    action: switch
    target: edf
    reason: "scripted"
`

func TestParseScenario(t *testing.T) {
	scn, err := Parse([]byte(sampleScenario))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if scn.Name != "bursty" {
		t.Errorf("Name = %q, want %q", scn.Name, "bursty")
	}
	if scn.DurationTicks != 500 {
		t.Errorf("DurationTicks = %d, want 500", scn.DurationTicks)
	}
	if len(scn.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(scn.Tasks))
	}
	if scn.Tasks[0].DeadlineTicks != 50 {
		t.Errorf("Tasks[0].DeadlineTicks = %d, want 50", scn.Tasks[0].DeadlineTicks)
	}
	if len(scn.Phases) != 2 || scn.Phases[1].CPUPercent != 90 {
		t.Errorf("unexpected phases: %+v", scn.Phases)
	}
	if len(scn.Events) != 1 || scn.Events[0].Action != ActionSwitch {
		t.Errorf("unexpected events: %+v", scn.Events)
	}
}

func TestScenarioValidate(t *testing.T) {
	base := func() *Scenario {
		return &Scenario{
			Name:          "t",
			DurationTicks: 100,
			Tasks:         []TaskSpec{{ID: 1, BurstTicks: 5}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{
			name:   "zero duration",
			mutate: func(s *Scenario) { s.DurationTicks = 0 },
			want:   "duration_ticks",
		},
		{
			name:   "task without id",
			mutate: func(s *Scenario) { s.Tasks = append(s.Tasks, TaskSpec{BurstTicks: 1}) },
			want:   "no id",
		},
		{
			name:   "duplicate task id",
			mutate: func(s *Scenario) { s.Tasks = append(s.Tasks, TaskSpec{ID: 1, BurstTicks: 1}) },
			want:   "duplicate",
		},
		{
			name:   "zero burst",
			mutate: func(s *Scenario) { s.Tasks[0].BurstTicks = 0 },
			want:   "burst_ticks",
		},
		{
			name: "burst exceeds period",
			mutate: func(s *Scenario) {
				s.Tasks[0].BurstTicks = 20
				s.Tasks[0].PeriodTicks = 10
			},
			want: "exceeds period_ticks",
		},
		{
			name: "phases out of order",
			mutate: func(s *Scenario) {
				s.Phases = []PhaseSpec{{AtTick: 50}, {AtTick: 10}}
			},
			want: "ascending",
		},
		{
			name: "switch without target",
			mutate: func(s *Scenario) {
				s.Events = []EventSpec{{AtTick: 10, Action: ActionSwitch}}
			},
			want: "needs a target",
		},
		{
			name: "unknown action",
			mutate: func(s *Scenario) {
				s.Events = []EventSpec{{AtTick: 10, Action: "explode"}}
			},
			want: "unknown action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scn := base()
			tt.mutate(scn)
			err := scn.Validate()
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.want)
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid scenario rejected: %v", err)
	}
}

func TestPhaseAt(t *testing.T) {
	scn := &Scenario{
		DurationTicks: 100,
		Phases: []PhaseSpec{
			{AtTick: 0, CPUPercent: 10},
			{AtTick: 50, CPUPercent: 80},
		},
	}

	if got := scn.phaseAt(49).CPUPercent; got != 10 {
		t.Errorf("phaseAt(49).CPUPercent = %d, want 10", got)
	}
	if got := scn.phaseAt(50).CPUPercent; got != 80 {
		t.Errorf("phaseAt(50).CPUPercent = %d, want 80", got)
	}
	if got := scn.phaseAt(99).CPUPercent; got != 80 {
		t.Errorf("phaseAt(99).CPUPercent = %d, want 80", got)
	}
}

func TestStrategyFromName(t *testing.T) {
	tests := []struct {
		name string
		want sched.StrategyID
		ok   bool
	}{
		{"round_robin", sched.StrategyRoundRobin, true},
		{"static_priority", sched.StrategyStaticPriority, true},
		{"edf", sched.StrategyEDF, true},
		{"lottery", sched.StrategyNone, false},
	}

	for _, tt := range tests {
		got, err := StrategyFromName(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("StrategyFromName(%q) error = %v, want ok=%v", tt.name, err, tt.ok)
		}
		if got != tt.want {
			t.Errorf("StrategyFromName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRunnerOneShotCompletion(t *testing.T) {
	scn := &Scenario{
		Name:          "one-shot",
		DurationTicks: 20,
		Tasks:         []TaskSpec{{ID: 1, Name: "t1", Priority: 10, BurstTicks: 5}},
	}

	r, err := NewRunner(scn, config.Default())
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if res.Arrivals != 1 {
		t.Errorf("Arrivals = %d, want 1", res.Arrivals)
	}
	if res.Completed != 1 {
		t.Errorf("Completed = %d, want 1", res.Completed)
	}
	if res.Misses != 0 {
		t.Errorf("Misses = %d, want 0", res.Misses)
	}
	if res.Final != sched.StrategyRoundRobin {
		t.Errorf("Final = %v, want %v", res.Final, sched.StrategyRoundRobin)
	}
	if n := r.Core().Active().TaskCount(); n != 0 {
		t.Errorf("active queue has %d tasks after completion, want 0", n)
	}
}

func TestRunnerPeriodicArrivals(t *testing.T) {
	scn := &Scenario{
		Name:          "periodic",
		DurationTicks: 55,
		Tasks:         []TaskSpec{{ID: 1, Priority: 10, BurstTicks: 2, PeriodTicks: 10}},
	}

	r, err := NewRunner(scn, config.Default())
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Arrives at ticks 1, 10, 20, 30, 40 and 50; each activation runs to
	// completion within its period.
	if res.Arrivals != 6 {
		t.Errorf("Arrivals = %d, want 6", res.Arrivals)
	}
	if res.Completed != 6 {
		t.Errorf("Completed = %d, want 6", res.Completed)
	}
	if res.Overruns != 0 {
		t.Errorf("Overruns = %d, want 0", res.Overruns)
	}
}

func TestRunnerDeadlineMiss(t *testing.T) {
	scn := &Scenario{
		Name:          "late",
		DurationTicks: 20,
		Tasks:         []TaskSpec{{ID: 1, Priority: 10, BurstTicks: 5, DeadlineTicks: 2}},
	}

	r, err := NewRunner(scn, config.Default())
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if res.Misses != 1 {
		t.Errorf("Misses = %d, want 1", res.Misses)
	}
	if res.Completed != 1 {
		t.Errorf("Completed = %d, want 1", res.Completed)
	}
}

func TestRunnerScriptedSwitch(t *testing.T) {
	scn := &Scenario{
		Name:          "handoff",
		DurationTicks: 100,
		Tasks: []TaskSpec{
			{ID: 1, Priority: 10, BurstTicks: 90, DeadlineTicks: 95},
			{ID: 2, Priority: 20, BurstTicks: 90},
		},
		Events: []EventSpec{
			{AtTick: 20, Action: ActionSwitch, Target: "edf", Reason: "scripted"},
		},
	}

	r, err := NewRunner(scn, config.Default())
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(res.EventErrs) != 0 {
		t.Fatalf("EventErrs = %v, want none", res.EventErrs)
	}
	if res.Final != sched.StrategyEDF {
		t.Errorf("Final = %v, want %v", res.Final, sched.StrategyEDF)
	}
	if res.Switches.Successes != 1 {
		t.Errorf("Switches.Successes = %d, want 1", res.Switches.Successes)
	}
	if res.Switches.TasksMigrated != 2 {
		t.Errorf("Switches.TasksMigrated = %d, want 2", res.Switches.TasksMigrated)
	}
	if len(res.History) != 1 || !res.History[0].Success {
		t.Errorf("History = %+v, want one successful record", res.History)
	}
}

func TestRunnerSpawnAndKill(t *testing.T) {
	scn := &Scenario{
		Name:          "churn",
		DurationTicks: 60,
		Tasks:         []TaskSpec{{ID: 1, Priority: 10, BurstTicks: 55}},
		Events: []EventSpec{
			{AtTick: 10, Action: ActionSpawn, Task: &TaskSpec{ID: 2, Priority: 20, BurstTicks: 50}},
			{AtTick: 30, Action: ActionKill, TaskID: 2},
		},
	}

	r, err := NewRunner(scn, config.Default())
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(res.EventErrs) != 0 {
		t.Fatalf("EventErrs = %v, want none", res.EventErrs)
	}
	if res.Arrivals != 2 {
		t.Errorf("Arrivals = %d, want 2", res.Arrivals)
	}
	// Task 2 was killed mid-burst, so only task 1 can finish.
	if res.Completed > 1 {
		t.Errorf("Completed = %d, want at most 1", res.Completed)
	}
	if n := r.Core().Active().TaskCount(); n > 1 {
		t.Errorf("active queue has %d tasks, want at most 1", n)
	}
}

func TestRunnerAssistedAdvice(t *testing.T) {
	scn := &Scenario{
		Name:          "advice",
		DurationTicks: 40,
		Tasks:         []TaskSpec{{ID: 1, Priority: 10, BurstTicks: 35}},
		Phases: []PhaseSpec{
			{AtTick: 0, CPUPercent: 95, WorstLatency: 5000},
		},
		Events: []EventSpec{
			{AtTick: 25, Action: ActionEvaluate},
		},
	}

	cfg := config.Default()
	cfg.Monitor.PeriodMs = 10
	r, err := NewRunner(scn, cfg)
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	res, err := r.Run()
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(res.EventErrs) != 0 {
		t.Fatalf("EventErrs = %v, want none", res.EventErrs)
	}
	// Assisted mode surfaces recommendations without applying them.
	if res.Final != sched.StrategyRoundRobin {
		t.Errorf("Final = %v, want %v", res.Final, sched.StrategyRoundRobin)
	}
	if len(res.Advice) == 0 {
		t.Fatal("expected at least one surfaced recommendation")
	}
	if res.Advice[0].Strategy != sched.StrategyEDF {
		t.Errorf("Advice[0].Strategy = %v, want %v", res.Advice[0].Strategy, sched.StrategyEDF)
	}
}
