// Package switcher drives runtime scheduler replacement as a phased,
// all-or-nothing transaction. The outgoing plugin's state is checksummed
// before any task moves; a failure after the critical section opens rolls
// everything back to that snapshot.
package switcher

import (
	"sync"

	"github.com/google/uuid"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/critical"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/migrate"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// Policy bounds switch behavior. All durations are in simulated
// microseconds except MinIntervalMicros, which gates how often switches may
// run at all.
type Policy struct {
	MinIntervalMicros uint64 // minimum spacing between switch attempts
	MaxDurationMicros uint64 // admission bound on the estimated duration
	MaxCriticalMicros uint64 // critical-section budget; violations recorded
	DryRun            bool   // plan and validate, but change nothing
}

// DefaultPolicy returns the standard switch policy.
func DefaultPolicy() Policy {
	return Policy{
		MinIntervalMicros: 100_000, // 100ms
		MaxDurationMicros: 500,
		MaxCriticalMicros: 100,
	}
}

// Estimated switch cost: a fixed setup cost plus a per-task move cost.
const (
	estimateBaseMicros    = 50
	estimatePerTaskMicros = 5
)

// EstimateMicros returns the admission estimate for migrating n tasks.
func EstimateMicros(n int) uint64 {
	return estimateBaseMicros + estimatePerTaskMicros*uint64(n)
}

// PhaseStep is one entry of a transaction's phase trace.
type PhaseStep struct {
	Phase     Phase
	EnteredAt uint64 // microseconds
}

// Transaction is the live state of one switch attempt.
type Transaction struct {
	ID          string
	Reason      string
	From        sched.StrategyID
	To          sched.StrategyID
	Strategy    migrate.Strategy
	Phase       Phase
	RequestedAt uint64
	StartedAt   uint64
	FinishedAt  uint64
	Trace       []PhaseStep
	TasksMoved  int
	Err         error
}

// SwitchRecord is the durable summary of a finished switch attempt.
type SwitchRecord struct {
	ID             string
	From           sched.StrategyID
	To             sched.StrategyID
	Reason         string
	DurationMicros uint64
	Success        bool
	RolledBack     bool
	TasksMoved     int
}

// HistorySize is the capacity of the switch history ring.
const HistorySize = 16

// Stats aggregates switch outcomes.
type Stats struct {
	Attempts           uint64
	Successes          uint64
	Failures           uint64
	Rollbacks          uint64
	TasksMigrated      uint64
	MigrationFailures  uint64
	CriticalViolations uint64
	MinMicros          uint64
	MaxMicros          uint64
	AvgMicros          uint64

	totalMicros uint64
}

// Validator can veto a prepared transaction during the Validating phase.
type Validator func(*Transaction) error

// Controller executes switch transactions. Safe for concurrent use; at
// most one transaction runs at a time.
type Controller struct {
	mu     sync.Mutex
	clk    clock.Clock
	core   *sched.Core
	mig    *migrate.Engine
	crit   *critical.Section
	log    *logging.Logger
	policy Policy

	validators []Validator
	inFlight   bool
	lastSwitch uint64 // micros of the last attempt, 0 = never

	history []SwitchRecord // ring, oldest first once full
	stats   Stats
}

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log.WithComponent("switcher")
		}
	}
}

// WithValidator registers an external veto hook.
func WithValidator(v Validator) Option {
	return func(c *Controller) { c.validators = append(c.validators, v) }
}

// NewController creates a switch controller bound to a scheduler core.
func NewController(clk clock.Clock, core *sched.Core, mig *migrate.Engine, opts ...Option) *Controller {
	c := &Controller{
		clk:    clk,
		core:   core,
		mig:    mig,
		crit:   critical.NewSection(clk),
		log:    logging.NopLogger(),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the controller's current policy.
func (c *Controller) Policy() Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// SetPolicy replaces the policy.
func (c *Controller) SetPolicy(p Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

// transition advances the transaction phase, recording the step. An illegal
// transition is a programming error and fails the transaction.
func (c *Controller) transition(tx *Transaction, to Phase) error {
	if !canTransition(tx.Phase, to) {
		return errors.NewSwitchError("illegal phase transition", errors.ErrPhaseTransition).
			WithSwitchID(tx.ID).
			WithPhase(tx.Phase.String() + "->" + to.String())
	}
	tx.Phase = to
	tx.Trace = append(tx.Trace, PhaseStep{Phase: to, EnteredAt: c.clk.Micros()})
	return nil
}

// Activate makes the given strategy active. With no scheduler running this
// is a direct cold activation; over a running scheduler it becomes a full
// switch transaction with order-preserving migration. Re-activating the
// already-active strategy succeeds without doing anything.
func (c *Controller) Activate(id sched.StrategyID) error {
	if c.core.ActiveID() == id {
		return nil
	}
	if c.core.Active() == nil {
		return c.core.Activate(id)
	}
	_, err := c.Switch(id, migrate.PreserveOrder, "activation request")
	return err
}

// Switch replaces the active scheduler with the target strategy, migrating
// all ready tasks with the given migration strategy. On success the target
// is active and the returned record describes the transaction; on failure
// the source remains (or is restored) active.
func (c *Controller) Switch(to sched.StrategyID, strategy migrate.Strategy, reason string) (*SwitchRecord, error) {
	now := c.clk.Micros()

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, errors.NewSwitchError("another switch is running", errors.ErrSwitchInProgress)
	}
	if c.lastSwitch != 0 && now-c.lastSwitch < c.policy.MinIntervalMicros {
		c.mu.Unlock()
		return nil, errors.NewSwitchError("minimum switch interval not elapsed", errors.ErrSwitchTooSoon).
			WithRetryable(true)
	}
	c.inFlight = true
	policy := c.policy
	c.stats.Attempts++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	tx := &Transaction{
		ID:          uuid.NewString(),
		Reason:      reason,
		To:          to,
		Strategy:    strategy,
		Phase:       PhaseIdle,
		RequestedAt: now,
	}

	rec, err := c.run(tx, policy)
	c.mu.Lock()
	c.lastSwitch = c.clk.Micros()
	if rec != nil {
		c.recordLocked(*rec)
	}
	c.mu.Unlock()
	return rec, err
}

// run executes the transaction body. It returns a record for every attempt
// that got past admission, nil for attempts rejected before Preparing.
func (c *Controller) run(tx *Transaction, policy Policy) (*SwitchRecord, error) {
	src := c.core.Active()
	if src == nil {
		// Cold activation has no tasks to migrate and no state to roll back.
		return nil, c.fail(tx, errors.NewSwitchError("no active scheduler; use direct activation", errors.ErrSwitchNotAllowed))
	}
	tx.From = src.ID()
	if tx.From == tx.To {
		return nil, c.fail(tx, errors.NewSwitchError("target already active", errors.ErrSwitchNotAllowed).
			WithSchedulers(tx.From.String(), tx.To.String()))
	}
	dst, err := c.core.Registry().Get(tx.To)
	if err != nil {
		return nil, c.fail(tx, err)
	}

	log := c.log.WithSwitchID(tx.ID)
	log.Info("switch requested",
		"from", tx.From.String(), "to", tx.To.String(),
		"strategy", tx.Strategy.String(), "reason", tx.Reason)

	// Preparing: freeze the task list and fix the batch.
	if err := c.transition(tx, PhasePreparing); err != nil {
		return nil, c.fail(tx, err)
	}
	tx.StartedAt = c.clk.Micros()
	tasks := src.Tasks()
	if len(tasks) > migrate.MaxBatch {
		return c.failRecord(tx, errors.NewMigrationError("ready set exceeds batch cap", errors.ErrBatchTooLarge).
			WithStrategy(tx.Strategy.String()))
	}

	// Validating: admission estimate and external vetoes.
	if err := c.transition(tx, PhaseValidating); err != nil {
		return c.failRecord(tx, err)
	}
	if est := EstimateMicros(len(tasks)); est > policy.MaxDurationMicros {
		return c.failRecord(tx, errors.NewSwitchError("estimated duration over budget", errors.ErrSwitchBudget).
			WithSwitchID(tx.ID).
			WithPhase(tx.Phase.String()))
	}
	for _, v := range c.validators {
		if err := v(tx); err != nil {
			return c.failRecord(tx, errors.NewSwitchError("validator veto: "+err.Error(), errors.ErrSwitchNotAllowed).
				WithSwitchID(tx.ID))
		}
	}
	plan, err := c.mig.Plan(tx.From, tx.To, tasks, tx.Strategy)
	if err != nil {
		return c.failRecord(tx, err)
	}

	if policy.DryRun {
		tx.FinishedAt = c.clk.Micros()
		log.Info("dry run validated, no state changed", "tasks", len(tasks))
		return &SwitchRecord{
			ID: tx.ID, From: tx.From, To: tx.To, Reason: tx.Reason,
			DurationMicros: tx.FinishedAt - tx.StartedAt,
		}, nil
	}

	// EnteringCritical: preemption off, budget clock running.
	if err := c.transition(tx, PhaseEnteringCritical); err != nil {
		return c.failRecord(tx, err)
	}
	token, err := c.crit.Enter()
	if err != nil {
		return c.failRecord(tx, err)
	}
	criticalStart := c.clk.Micros()

	// SavingState: checksummed snapshot of the outgoing plugin.
	if err := c.transition(tx, PhaseSavingState); err != nil {
		return c.rollback(tx, nil, plan, src, dst, token, err)
	}
	snap, err := src.ExportState()
	if err != nil {
		return c.rollback(tx, nil, plan, src, dst, token, err)
	}
	if err := snap.Verify(); err != nil {
		return c.rollback(tx, nil, plan, src, dst, token, err)
	}

	// MigratingTasks: drain the source, then insert into the target in
	// plan order. Any insert failure undoes the whole move.
	if err := c.transition(tx, PhaseMigratingTasks); err != nil {
		return c.rollback(tx, snap, plan, src, dst, token, err)
	}
	for _, t := range tasks {
		if _, err := src.Dequeue(t.ID); err != nil {
			return c.rollback(tx, snap, plan, src, dst, token, err)
		}
	}
	moved, err := c.mig.Apply(plan, dst)
	tx.TasksMoved = moved
	if err != nil {
		c.mu.Lock()
		c.stats.MigrationFailures++
		c.mu.Unlock()
		return c.rollback(tx, snap, plan, src, dst, token, err)
	}

	// ActivatingNew: the target takes over.
	if err := c.transition(tx, PhaseActivatingNew); err != nil {
		return c.rollback(tx, snap, plan, src, dst, token, err)
	}
	if err := dst.Start(); err != nil && !errors.Is(err, errors.ErrAlreadyStarted) {
		return c.rollback(tx, snap, plan, src, dst, token, err)
	}
	if err := src.Stop(); err != nil {
		log.Warn("source stop failed", "error", err)
	}
	c.core.Adopt(dst)

	// ExitingCritical: budget violations are recorded, never fatal.
	if err := c.transition(tx, PhaseExitingCritical); err != nil {
		return c.rollback(tx, snap, plan, src, dst, token, err)
	}
	criticalMicros := c.clk.Micros() - criticalStart
	if err := c.crit.Exit(token); err != nil {
		log.Warn("critical section exit failed", "error", err)
	}
	if criticalMicros > policy.MaxCriticalMicros {
		c.mu.Lock()
		c.stats.CriticalViolations++
		c.mu.Unlock()
		log.Warn("critical section budget exceeded",
			"micros", criticalMicros, "budget", policy.MaxCriticalMicros)
	}

	// Verifying: the target must hold exactly the snapshot's task set.
	if err := c.transition(tx, PhaseVerifying); err != nil {
		return c.rollback(tx, snap, plan, src, dst, critical.Token{}, err)
	}
	if err := verifyTarget(snap, dst); err != nil {
		return c.rollback(tx, snap, plan, src, dst, critical.Token{}, err)
	}

	if err := c.transition(tx, PhaseComplete); err != nil {
		return c.rollback(tx, snap, plan, src, dst, critical.Token{}, err)
	}
	tx.FinishedAt = c.clk.Micros()
	duration := tx.FinishedAt - tx.StartedAt

	c.mu.Lock()
	c.stats.Successes++
	c.stats.TasksMigrated += uint64(moved)
	c.noteDurationLocked(duration)
	c.mu.Unlock()

	log.Info("switch complete",
		"from", tx.From.String(), "to", tx.To.String(),
		"tasks", moved, "micros", duration)

	return &SwitchRecord{
		ID: tx.ID, From: tx.From, To: tx.To, Reason: tx.Reason,
		DurationMicros: duration, Success: true, TasksMoved: moved,
	}, nil
}

// verifyTarget checks that the target plugin holds exactly the tasks the
// snapshot recorded, by count and by ID set.
func verifyTarget(snap *sched.StateSnapshot, dst sched.Plugin) error {
	if dst.TaskCount() != len(snap.Tasks) {
		return errors.NewChecksumError("migrated task count", uint32(len(snap.Tasks)), uint32(dst.TaskCount()))
	}
	want := make(map[uint32]bool, len(snap.Tasks))
	for _, id := range snap.TaskIDs() {
		want[id] = true
	}
	for _, t := range dst.Tasks() {
		if !want[t.ID] {
			return errors.NewChecksumError("migrated task set", 0, t.ID)
		}
	}
	return snap.Verify()
}

// fail marks the transaction failed before anything was recorded or moved.
func (c *Controller) fail(tx *Transaction, err error) error {
	tx.Err = err
	tx.Phase = PhaseFailed
	c.mu.Lock()
	c.stats.Failures++
	c.mu.Unlock()
	return err
}

// failRecord fails a transaction that got far enough to deserve a history
// record, but before any state was touched.
func (c *Controller) failRecord(tx *Transaction, err error) (*SwitchRecord, error) {
	tx.Err = err
	tx.Phase = PhaseFailed
	tx.FinishedAt = c.clk.Micros()
	c.mu.Lock()
	c.stats.Failures++
	c.mu.Unlock()
	c.log.WithSwitchID(tx.ID).Warn("switch failed before migration", "error", err)
	return &SwitchRecord{
		ID: tx.ID, From: tx.From, To: tx.To, Reason: tx.Reason,
		DurationMicros: tx.FinishedAt - tx.StartedAt,
	}, err
}

// rollback restores the source scheduler and its queue from the snapshot.
// snap may be nil when failure happened before SavingState, in which case
// no tasks have moved and nothing was mutated. A restore failure is fatal:
// the error reports ErrRollbackFailed and the system must be treated as
// degraded.
func (c *Controller) rollback(tx *Transaction, snap *sched.StateSnapshot, plan *migrate.Plan,
	src, dst sched.Plugin, token critical.Token, cause error) (*SwitchRecord, error) {

	log := c.log.WithSwitchID(tx.ID)
	log.Warn("switch failed, rolling back",
		"phase", tx.Phase.String(), "error", cause)

	tx.Err = cause
	tx.Phase = PhaseRollingBack
	tx.Trace = append(tx.Trace, PhaseStep{Phase: PhaseRollingBack, EnteredAt: c.clk.Micros()})

	if c.crit.Active() {
		if err := c.crit.Exit(token); err != nil {
			log.Error("critical section exit failed during rollback", "error", err)
		}
	}

	var restoreErr error
	if snap != nil {
		// The snapshot is the source of truth: integrity failure here is
		// fatal, not best-effort.
		if err := snap.Verify(); err != nil {
			restoreErr = err
		} else {
			// Undo the in-place priority remap on the live TCBs before
			// they are re-enqueued anywhere.
			c.mig.Revert(plan)
			// Drain anything the target accepted before the failure.
			for _, t := range dst.Tasks() {
				if _, err := dst.Dequeue(t.ID); err != nil {
					restoreErr = err
					break
				}
			}
			if restoreErr == nil {
				restoreErr = restoreSource(snap, plan, src)
			}
		}
	}

	if restoreErr == nil && c.core.ActiveID() != src.ID() {
		if err := src.Start(); err != nil && !errors.Is(err, errors.ErrAlreadyStarted) {
			restoreErr = err
		} else {
			if err := dst.Stop(); err != nil {
				log.Warn("target stop failed during rollback", "error", err)
			}
			c.core.Adopt(src)
		}
	}

	tx.FinishedAt = c.clk.Micros()
	duration := tx.FinishedAt - tx.StartedAt

	c.mu.Lock()
	c.stats.Failures++
	c.stats.Rollbacks++
	c.mu.Unlock()

	rec := &SwitchRecord{
		ID: tx.ID, From: tx.From, To: tx.To, Reason: tx.Reason,
		DurationMicros: duration, RolledBack: true, TasksMoved: tx.TasksMoved,
	}

	if restoreErr != nil {
		tx.Phase = PhaseFailed
		log.Error("rollback could not restore the source scheduler", "error", restoreErr)
		return rec, errors.NewSwitchError("rollback failed: "+restoreErr.Error(), errors.ErrRollbackFailed).
			WithSwitchID(tx.ID).
			WithSchedulers(tx.From.String(), tx.To.String()).
			WithSeverity(errors.SeverityCritical)
	}

	tx.Phase = PhaseIdle
	log.Info("rollback complete, source scheduler restored",
		"scheduler", src.Name(), "tasks", len(snapTasks(snap)))
	return rec, cause
}

func snapTasks(snap *sched.StateSnapshot) []uint32 {
	if snap == nil {
		return nil
	}
	return snap.TaskIDs()
}

// restoreSource re-imports the snapshot's task set into the source plugin.
// The queue must end up holding the same *task.Task objects the kernel's
// table holds, so the re-import happens over the live TCBs from the plan,
// not the snapshot's clones; the snapshot contributes order, residue and
// the integrity check. Live tasks must already be reverted to their
// pre-switch priorities.
func restoreSource(snap *sched.StateSnapshot, plan *migrate.Plan, src sched.Plugin) error {
	// Clear any partial state so ImportState starts from an empty queue.
	for _, t := range src.Tasks() {
		if _, err := src.Dequeue(t.ID); err != nil {
			return err
		}
	}

	live := make(map[uint32]*task.Task)
	if plan != nil {
		for _, m := range plan.Moves {
			live[m.Task.ID] = m.Task
		}
	}
	restored := make([]*task.Task, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if lt, ok := live[t.ID]; ok {
			restored = append(restored, lt)
		} else {
			restored = append(restored, t.Clone())
		}
	}

	restore := &sched.StateSnapshot{
		Strategy: snap.Strategy,
		TakenAt:  snap.TakenAt,
		Tasks:    restored,
		Residue:  snap.Residue,
	}
	restore.Seal()
	return src.ImportState(restore)
}

// recordLocked appends to the history ring. Callers hold c.mu.
func (c *Controller) recordLocked(rec SwitchRecord) {
	if len(c.history) == HistorySize {
		copy(c.history, c.history[1:])
		c.history[HistorySize-1] = rec
		return
	}
	c.history = append(c.history, rec)
}

// noteDurationLocked folds a successful switch duration into the timing
// stats. Callers hold c.mu.
func (c *Controller) noteDurationLocked(micros uint64) {
	if c.stats.MinMicros == 0 || micros < c.stats.MinMicros {
		c.stats.MinMicros = micros
	}
	if micros > c.stats.MaxMicros {
		c.stats.MaxMicros = micros
	}
	c.stats.totalMicros += micros
	c.stats.AvgMicros = c.stats.totalMicros / c.stats.Successes
}

// History returns the recorded switches, oldest first.
func (c *Controller) History() []SwitchRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SwitchRecord, len(c.history))
	copy(out, c.history)
	return out
}

// Record returns the n-th most recent switch record; n = 1 is the latest.
func (c *Controller) Record(n int) (SwitchRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > len(c.history) {
		return SwitchRecord{}, false
	}
	return c.history[len(c.history)-n], true
}

// Stats returns a copy of the switch counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// InFlight reports whether a transaction is currently running.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}
