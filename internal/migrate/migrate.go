// Package migrate plans and applies task migrations between scheduling
// strategies. A plan is computed up front as an ordered list of moves and
// then applied one task at a time, so a failed insert can be reported with
// an exact count for rollback.
package migrate

import (
	"sort"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// MaxBatch is the largest number of tasks a single plan may carry.
const MaxBatch = 32

// Strategy selects how task order and priority translate across a switch.
type Strategy uint8

const (
	// PreserveOrder keeps creation order and leaves priorities untouched.
	PreserveOrder Strategy = iota
	// PriorityBased sorts by priority after remapping it through the
	// per-(from,to) translation table.
	PriorityBased
	// DeadlineBased recomputes priority from time-to-deadline urgency bands.
	DeadlineBased
	// Custom delegates the priority transform to a caller-supplied function.
	Custom
)

func (s Strategy) String() string {
	switch s {
	case PreserveOrder:
		return "preserve_order"
	case PriorityBased:
		return "priority_based"
	case DeadlineBased:
		return "deadline_based"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "preserve_order":
		return PreserveOrder, nil
	case "priority_based":
		return PriorityBased, nil
	case "deadline_based":
		return DeadlineBased, nil
	case "custom":
		return Custom, nil
	default:
		return PreserveOrder, errors.NewValidationError("unknown migration strategy").
			WithField("strategy").WithValue(s)
	}
}

// Transform computes a task's priority under the target strategy. Used by
// Custom plans.
type Transform func(t *task.Task, from, to sched.StrategyID) uint8

// Move is one planned task insertion.
type Move struct {
	Task        *task.Task
	NewPriority uint8
	OldPriority uint8 // effective priority at plan time, for rollback
}

// Plan is an ordered migration batch.
type Plan struct {
	Strategy Strategy
	From     sched.StrategyID
	To       sched.StrategyID
	Moves    []Move
}

// Engine computes and applies migration plans.
type Engine struct {
	clk       clock.Clock
	log       *logging.Logger
	transform Transform
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log.WithComponent("migrate")
		}
	}
}

// WithTransform supplies the function Custom plans use.
func WithTransform(fn Transform) Option {
	return func(e *Engine) { e.transform = fn }
}

// NewEngine creates a migration engine.
func NewEngine(clk clock.Clock, opts ...Option) *Engine {
	e := &Engine{
		clk: clk,
		log: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan computes the ordered move list for migrating tasks from one strategy
// to another. The input slice is not modified; tasks are referenced, not
// cloned.
func (e *Engine) Plan(from, to sched.StrategyID, tasks []*task.Task, strategy Strategy) (*Plan, error) {
	if len(tasks) > MaxBatch {
		return nil, errors.NewMigrationError("batch exceeds migration cap", errors.ErrBatchTooLarge).
			WithStrategy(strategy.String())
	}
	if strategy == Custom && e.transform == nil {
		return nil, errors.NewMigrationError("custom migration requires a transform", errors.ErrNoCustomOrder).
			WithStrategy(strategy.String())
	}

	moves := make([]Move, 0, len(tasks))
	for _, t := range tasks {
		if t == nil || t.ID == 0 {
			return nil, errors.NewValidationError("migration batch contains an invalid task")
		}
		moves = append(moves, Move{
			Task:        t,
			NewPriority: e.priorityFor(t, from, to, strategy),
			OldPriority: t.EffectivePriority,
		})
	}

	switch strategy {
	case PreserveOrder:
		sort.SliceStable(moves, func(i, j int) bool {
			a, b := moves[i].Task, moves[j].Task
			if a.CreationSeq != b.CreationSeq {
				return a.CreationSeq < b.CreationSeq
			}
			return a.ID < b.ID
		})
	default:
		sort.SliceStable(moves, func(i, j int) bool {
			if moves[i].NewPriority != moves[j].NewPriority {
				return moves[i].NewPriority < moves[j].NewPriority
			}
			return moves[i].Task.ID < moves[j].Task.ID
		})
	}

	e.log.Debug("migration plan computed",
		"strategy", strategy.String(), "from", from.String(), "to", to.String(),
		"tasks", len(moves))

	return &Plan{Strategy: strategy, From: from, To: to, Moves: moves}, nil
}

func (e *Engine) priorityFor(t *task.Task, from, to sched.StrategyID, strategy Strategy) uint8 {
	switch strategy {
	case PreserveOrder:
		return t.EffectivePriority
	case PriorityBased:
		return remapPriority(t.EffectivePriority, from, to)
	case DeadlineBased:
		return deadlineBand(t, e.clk.Micros())
	case Custom:
		return e.transform(t, from, to)
	default:
		return t.EffectivePriority
	}
}

// remapPriority translates a priority between strategies with incompatible
// priority semantics. Unlisted pairs keep the priority as-is.
func remapPriority(p uint8, from, to sched.StrategyID) uint8 {
	switch {
	case from == sched.StrategyRoundRobin && to == sched.StrategyStaticPriority:
		// Time-sliced tasks have no meaningful priority; land mid-range.
		return 128
	case from == sched.StrategyStaticPriority && to == sched.StrategyRoundRobin:
		return 0
	case from == sched.StrategyEDF && to == sched.StrategyStaticPriority:
		if p > 64 {
			return 64
		}
		return p
	default:
		return p
	}
}

// deadlineBand maps time-to-deadline to one of four urgency bands. A passed
// deadline is most urgent; no deadline at all is least urgent.
func deadlineBand(t *task.Task, nowMicros uint64) uint8 {
	remaining, has := t.DeadlineRemaining(nowMicros)
	if !has {
		return 192
	}
	ticks := remaining / clock.MicrosPerTick
	switch {
	case ticks < 10:
		return 0
	case ticks < 100:
		return 32
	case ticks < 1000:
		return 128
	default:
		return 192
	}
}

// Apply inserts the planned tasks into the target plugin in plan order,
// updating each task's effective priority first. It stops at the first
// failure and returns how many tasks were inserted, so the caller can undo
// exactly that many.
func (e *Engine) Apply(plan *Plan, dst sched.Plugin) (int, error) {
	if plan == nil || dst == nil {
		return 0, errors.NewValidationError("apply requires a plan and a target plugin")
	}

	for i, m := range plan.Moves {
		m.Task.EffectivePriority = m.NewPriority
		if err := dst.Enqueue(m.Task); err != nil {
			return i, errors.NewMigrationError("target rejected task: "+err.Error(), errors.ErrMigrationIncomplete).
				WithTaskID(m.Task.ID).
				WithMigrated(i).
				WithStrategy(plan.Strategy.String())
		}
	}

	e.log.Debug("migration applied",
		"strategy", plan.Strategy.String(), "to", plan.To.String(), "tasks", len(plan.Moves))
	return len(plan.Moves), nil
}

// Revert undoes the in-place priority updates Apply made, restoring every
// planned task to its pre-migration effective priority. Moves that were
// never applied are already at their old priority, so reverting the whole
// plan is safe.
func (e *Engine) Revert(plan *Plan) {
	if plan == nil {
		return
	}
	for _, m := range plan.Moves {
		m.Task.EffectivePriority = m.OldPriority
	}
	e.log.Debug("migration reverted",
		"strategy", plan.Strategy.String(), "tasks", len(plan.Moves))
}
