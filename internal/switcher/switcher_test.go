package switcher

import (
	"testing"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/migrate"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/sched/plugins/priority"
	"github.com/microkernel-labs/schedswap/internal/sched/plugins/roundrobin"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// flakyPlugin wraps a Plugin and fails Enqueue for one task ID.
type flakyPlugin struct {
	sched.Plugin
	rejectID uint32
}

func (f *flakyPlugin) Enqueue(t *task.Task) error {
	if t.ID == f.rejectID {
		return errors.NewValidationError("insert refused")
	}
	return f.Plugin.Enqueue(t)
}

type fixture struct {
	clk  *clock.Simulated
	core *sched.Core
	ctl  *Controller
	rr   *roundrobin.Scheduler
}

// newFixture builds a core with round_robin active and a second target
// registered, plus five ready tasks created in order.
func newFixture(t *testing.T, target sched.Plugin, targetDesc sched.Descriptor, opts ...Option) *fixture {
	t.Helper()
	clk := clock.NewSimulated()
	clk.AdvanceMicros(1_000_000) // start away from the zero epoch
	core := sched.NewCore(clk, task.NewTable(0))

	rr := roundrobin.New()
	if err := core.Register(rr, roundrobin.Descriptor()); err != nil {
		t.Fatalf("register round_robin failed: %v", err)
	}
	if err := core.Register(target, targetDesc); err != nil {
		t.Fatalf("register target failed: %v", err)
	}
	if err := core.Activate(sched.StrategyRoundRobin); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	for i := uint32(1); i <= 5; i++ {
		tk := &task.Task{ID: i, CreationSeq: uint64(i - 1), BasePriority: 100, EffectivePriority: 100}
		if err := rr.Enqueue(tk); err != nil {
			t.Fatalf("enqueue task %d failed: %v", i, err)
		}
	}

	ctl := NewController(clk, core, migrate.NewEngine(clk), opts...)
	return &fixture{clk: clk, core: core, ctl: ctl, rr: rr}
}

func taskIDs(p sched.Plugin) []uint32 {
	var ids []uint32
	for _, t := range p.Tasks() {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestSwitchPreserveOrder(t *testing.T) {
	pri := priority.New()
	f := newFixture(t, pri, priority.Descriptor())

	rec, err := f.ctl.Switch(sched.StrategyStaticPriority, migrate.PreserveOrder, "test")
	if err != nil {
		t.Fatalf("Switch failed: %v", err)
	}
	if !rec.Success {
		t.Fatal("record not marked successful")
	}
	if rec.TasksMoved != 5 {
		t.Errorf("TasksMoved = %d, want 5", rec.TasksMoved)
	}
	if f.core.ActiveID() != sched.StrategyStaticPriority {
		t.Errorf("active = %s, want static_priority", f.core.ActiveID())
	}

	// Creation order preserved, priorities untouched
	want := []uint32{1, 2, 3, 4, 5}
	got := taskIDs(pri)
	if len(got) != len(want) {
		t.Fatalf("target holds %d tasks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("task[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	for _, tk := range pri.Tasks() {
		if tk.EffectivePriority != 100 {
			t.Errorf("task %d priority = %d, want 100", tk.ID, tk.EffectivePriority)
		}
	}
	if f.rr.TaskCount() != 0 {
		t.Errorf("source still holds %d tasks", f.rr.TaskCount())
	}

	stats := f.ctl.Stats()
	if stats.Successes != 1 || stats.Failures != 0 {
		t.Errorf("stats = %+v, want one success", stats)
	}
	if stats.TasksMigrated != 5 {
		t.Errorf("TasksMigrated = %d, want 5", stats.TasksMigrated)
	}

	last, ok := f.ctl.Record(1)
	if !ok {
		t.Fatal("no history record")
	}
	if last.From != sched.StrategyRoundRobin || last.To != sched.StrategyStaticPriority || !last.Success {
		t.Errorf("history record = %+v, want rr->priority success", last)
	}
}

func TestSwitchRollbackOnInsertFailure(t *testing.T) {
	flaky := &flakyPlugin{Plugin: priority.New(), rejectID: 3}
	f := newFixture(t, flaky, priority.Descriptor())

	_, err := f.ctl.Switch(sched.StrategyStaticPriority, migrate.PreserveOrder, "test")
	if !errors.Is(err, errors.ErrMigrationIncomplete) {
		t.Fatalf("Switch = %v, want ErrMigrationIncomplete", err)
	}

	if f.core.ActiveID() != sched.StrategyRoundRobin {
		t.Errorf("active = %s, want round_robin restored", f.core.ActiveID())
	}

	want := []uint32{1, 2, 3, 4, 5}
	got := taskIDs(f.core.Active())
	if len(got) != len(want) {
		t.Fatalf("source holds %d tasks after rollback, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("task[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	for _, tk := range f.core.Active().Tasks() {
		if tk.EffectivePriority != 100 {
			t.Errorf("task %d priority = %d, want 100 restored", tk.ID, tk.EffectivePriority)
		}
	}
	if flaky.TaskCount() != 0 {
		t.Errorf("target still holds %d tasks after rollback", flaky.TaskCount())
	}

	stats := f.ctl.Stats()
	if stats.Failures != 1 || stats.Rollbacks != 1 {
		t.Errorf("stats failures=%d rollbacks=%d, want 1 and 1", stats.Failures, stats.Rollbacks)
	}
	if stats.MigrationFailures != 1 {
		t.Errorf("MigrationFailures = %d, want 1", stats.MigrationFailures)
	}

	last, ok := f.ctl.Record(1)
	if !ok {
		t.Fatal("no history record")
	}
	if !last.RolledBack || last.Success {
		t.Errorf("history record = %+v, want rolled back", last)
	}
}

func TestSwitchRollbackRestoresLiveTasks(t *testing.T) {
	flaky := &flakyPlugin{Plugin: priority.New(), rejectID: 3}
	f := newFixture(t, flaky, priority.Descriptor())

	// The same objects the table aliases must come back, so hold the
	// pre-switch pointers.
	before := make(map[uint32]*task.Task)
	for _, tk := range f.rr.Tasks() {
		before[tk.ID] = tk
	}

	// Burn part of task 1's time slice so there is residue to restore.
	f.rr.PickNext()
	for i := 0; i < 3; i++ {
		f.rr.Tick(f.clk.Ticks())
	}

	// priority_based remaps every rr task to 128 during Apply; the
	// rollback must undo that on the live TCBs.
	_, err := f.ctl.Switch(sched.StrategyStaticPriority, migrate.PriorityBased, "test")
	if !errors.Is(err, errors.ErrMigrationIncomplete) {
		t.Fatalf("Switch = %v, want ErrMigrationIncomplete", err)
	}

	restored := f.core.Active().Tasks()
	if len(restored) != 5 {
		t.Fatalf("source holds %d tasks after rollback, want 5", len(restored))
	}
	for _, tk := range restored {
		if tk.EffectivePriority != 100 {
			t.Errorf("task %d priority = %d, want 100 restored", tk.ID, tk.EffectivePriority)
		}
		if before[tk.ID] != tk {
			t.Errorf("task %d re-enqueued as a different object than the live TCB", tk.ID)
		}
	}
	for id, tk := range before {
		if tk.EffectivePriority != 100 {
			t.Errorf("live TCB %d priority = %d, want 100 restored", id, tk.EffectivePriority)
		}
	}

	// The unexpired slice survives the round trip.
	snap, err := f.rr.ExportState()
	if err != nil {
		t.Fatalf("ExportState failed: %v", err)
	}
	if left := snap.Residue[1]; left != 7 {
		t.Errorf("task 1 slice residue = %d, want 7", left)
	}
}

func TestSwitchTooSoon(t *testing.T) {
	f := newFixture(t, priority.New(), priority.Descriptor())

	if _, err := f.ctl.Switch(sched.StrategyStaticPriority, migrate.PreserveOrder, "first"); err != nil {
		t.Fatalf("first Switch failed: %v", err)
	}

	_, err := f.ctl.Switch(sched.StrategyRoundRobin, migrate.PreserveOrder, "second")
	if !errors.Is(err, errors.ErrSwitchTooSoon) {
		t.Fatalf("immediate second Switch = %v, want ErrSwitchTooSoon", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("too-soon error should be retryable")
	}

	// After the minimum interval the reverse switch goes through
	f.clk.AdvanceMicros(DefaultPolicy().MinIntervalMicros)
	if _, err := f.ctl.Switch(sched.StrategyRoundRobin, migrate.PreserveOrder, "second"); err != nil {
		t.Fatalf("Switch after interval failed: %v", err)
	}
	if f.core.ActiveID() != sched.StrategyRoundRobin {
		t.Errorf("active = %s, want round_robin", f.core.ActiveID())
	}
}

func TestActivateColdStart(t *testing.T) {
	clk := clock.NewSimulated()
	core := sched.NewCore(clk, task.NewTable(0))
	if err := core.Register(roundrobin.New(), roundrobin.Descriptor()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	ctl := NewController(clk, core, migrate.NewEngine(clk))

	if err := ctl.Activate(sched.StrategyRoundRobin); err != nil {
		t.Fatalf("cold Activate failed: %v", err)
	}
	if core.ActiveID() != sched.StrategyRoundRobin {
		t.Errorf("active = %s, want round_robin", core.ActiveID())
	}
}

func TestActivateDelegatesToSwitch(t *testing.T) {
	pri := priority.New()
	f := newFixture(t, pri, priority.Descriptor())

	// Re-activating the running strategy is a successful no-op.
	if err := f.ctl.Activate(sched.StrategyRoundRobin); err != nil {
		t.Fatalf("Activate over itself failed: %v", err)
	}
	if f.ctl.Stats().Attempts != 0 {
		t.Errorf("re-activation started a transaction: %+v", f.ctl.Stats())
	}

	// Activating over a running scheduler runs a full switch.
	if err := f.ctl.Activate(sched.StrategyStaticPriority); err != nil {
		t.Fatalf("Activate over running scheduler failed: %v", err)
	}
	if f.core.ActiveID() != sched.StrategyStaticPriority {
		t.Errorf("active = %s, want static_priority", f.core.ActiveID())
	}
	stats := f.ctl.Stats()
	if stats.Successes != 1 || stats.TasksMigrated != 5 {
		t.Errorf("stats = %+v, want one switch moving 5 tasks", stats)
	}
}

func TestSwitchToActiveStrategyRejected(t *testing.T) {
	f := newFixture(t, priority.New(), priority.Descriptor())

	_, err := f.ctl.Switch(sched.StrategyRoundRobin, migrate.PreserveOrder, "noop")
	if !errors.Is(err, errors.ErrSwitchNotAllowed) {
		t.Errorf("Switch to active = %v, want ErrSwitchNotAllowed", err)
	}
}

func TestSwitchBudgetRejection(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxDurationMicros = 60 // five tasks estimate to 75µs
	f := newFixture(t, priority.New(), priority.Descriptor(), WithPolicy(policy))

	_, err := f.ctl.Switch(sched.StrategyStaticPriority, migrate.PreserveOrder, "over budget")
	if !errors.Is(err, errors.ErrSwitchBudget) {
		t.Fatalf("Switch = %v, want ErrSwitchBudget", err)
	}
	if f.core.ActiveID() != sched.StrategyRoundRobin {
		t.Errorf("active changed on rejected switch")
	}
	if f.rr.TaskCount() != 5 {
		t.Errorf("source tasks touched on rejected switch")
	}
}

func TestValidatorVeto(t *testing.T) {
	veto := func(tx *Transaction) error {
		return errors.New("not today")
	}
	f := newFixture(t, priority.New(), priority.Descriptor(), WithValidator(veto))

	_, err := f.ctl.Switch(sched.StrategyStaticPriority, migrate.PreserveOrder, "vetoed")
	if !errors.Is(err, errors.ErrSwitchNotAllowed) {
		t.Fatalf("Switch = %v, want ErrSwitchNotAllowed", err)
	}
	if f.ctl.Stats().Failures != 1 {
		t.Errorf("Failures = %d, want 1", f.ctl.Stats().Failures)
	}
}

func TestDryRunChangesNothing(t *testing.T) {
	policy := DefaultPolicy()
	policy.DryRun = true
	f := newFixture(t, priority.New(), priority.Descriptor(), WithPolicy(policy))

	rec, err := f.ctl.Switch(sched.StrategyStaticPriority, migrate.PreserveOrder, "dry")
	if err != nil {
		t.Fatalf("dry-run Switch failed: %v", err)
	}
	if rec == nil {
		t.Fatal("dry run returned no record")
	}
	if f.core.ActiveID() != sched.StrategyRoundRobin {
		t.Errorf("dry run changed the active scheduler")
	}
	if f.rr.TaskCount() != 5 {
		t.Errorf("dry run moved tasks")
	}
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		tasks int
		want  uint64
	}{
		{0, 50},
		{1, 55},
		{5, 75},
		{32, 210},
	}
	for _, tt := range tests {
		if got := EstimateMicros(tt.tasks); got != tt.want {
			t.Errorf("EstimateMicros(%d) = %d, want %d", tt.tasks, got, tt.want)
		}
	}
}

func TestPhaseTransitions(t *testing.T) {
	legal := []struct{ from, to Phase }{
		{PhaseIdle, PhasePreparing},
		{PhasePreparing, PhaseValidating},
		{PhaseValidating, PhaseEnteringCritical},
		{PhaseEnteringCritical, PhaseSavingState},
		{PhaseSavingState, PhaseMigratingTasks},
		{PhaseMigratingTasks, PhaseActivatingNew},
		{PhaseActivatingNew, PhaseExitingCritical},
		{PhaseExitingCritical, PhaseVerifying},
		{PhaseVerifying, PhaseComplete},
		{PhaseVerifying, PhaseRollingBack},
		{PhaseRollingBack, PhaseIdle},
	}
	for _, tt := range legal {
		if !canTransition(tt.from, tt.to) {
			t.Errorf("canTransition(%s, %s) = false, want true", tt.from, tt.to)
		}
	}

	illegal := []struct{ from, to Phase }{
		{PhaseIdle, PhaseComplete},
		{PhasePreparing, PhaseRollingBack},
		{PhaseValidating, PhaseRollingBack},
		{PhaseComplete, PhasePreparing},
		{PhaseSavingState, PhaseVerifying},
	}
	for _, tt := range illegal {
		if canTransition(tt.from, tt.to) {
			t.Errorf("canTransition(%s, %s) = true, want false", tt.from, tt.to)
		}
	}
}
