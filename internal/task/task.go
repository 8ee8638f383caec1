// Package task defines the task control block model shared by every
// scheduler plugin: task identity, state machine, priorities, deadlines,
// and a fixed-capacity task table.
package task

import (
	"fmt"
	"sync"

	"github.com/microkernel-labs/schedswap/internal/errors"
)

// NumPriorities is the number of distinct priority levels. Level 0 is the
// most urgent; NumPriorities-1 is the least.
const NumPriorities = 256

// DefaultTableCapacity bounds how many tasks the table can hold.
const DefaultTableCapacity = 1024

// State is the lifecycle state of a task.
type State int

const (
	// StateReady means the task is runnable and waiting for the CPU.
	StateReady State = iota
	// StateRunning means the task currently owns the CPU.
	StateRunning
	// StateBlocked means the task is waiting on a resource or message.
	StateBlocked
	// StateSuspended means the task was explicitly paused.
	StateSuspended
	// StateTerminated means the task has finished and will not run again.
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the legal state machine edges.
var validTransitions = map[State][]State{
	StateReady:      {StateRunning, StateSuspended, StateTerminated},
	StateRunning:    {StateReady, StateBlocked, StateSuspended, StateTerminated},
	StateBlocked:    {StateReady, StateSuspended, StateTerminated},
	StateSuspended:  {StateReady, StateTerminated},
	StateTerminated: {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is a task control block. Priority 0 is the most urgent.
//
// Fields are read and written by the scheduling core under its own locking;
// Task itself is not synchronized.
type Task struct {
	ID   uint32
	Name string

	State State

	// BasePriority is the priority assigned at creation. EffectivePriority
	// reflects aging boosts and priority inheritance and is never less
	// urgent (numerically greater) than BasePriority.
	BasePriority      uint8
	EffectivePriority uint8

	// CreationSeq orders tasks by creation. Migration strategies that
	// preserve order rely on it.
	CreationSeq uint64

	// Deadline is an absolute time in microseconds. Zero means no deadline.
	Deadline uint64
	// Period is the activation period in ticks for periodic tasks.
	Period uint64
	// WCET is the worst-case execution time in microseconds.
	WCET uint64

	// Accounting
	CPUMicros   uint64
	CtxSwitches uint64
	LastRunTick uint64
	EnqueuedAt  uint64
}

// Clone returns a copy of the task. Used when exporting state snapshots so
// the snapshot is immune to later mutation.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// DeadlineRemaining returns the time until the deadline, in the same units
// the deadline was set in. The second result is false when the task has no
// deadline; a zero first result with true means the deadline has passed.
func (t *Task) DeadlineRemaining(now uint64) (uint64, bool) {
	if t.Deadline == 0 {
		return 0, false
	}
	if t.Deadline <= now {
		return 0, true
	}
	return t.Deadline - now, true
}

// Table is a fixed-capacity task registry keyed by ID.
// It is safe for concurrent use.
type Table struct {
	mu       sync.Mutex
	capacity int
	tasks    map[uint32]*Task
	order    []uint32 // creation order
	nextSeq  uint64
}

// NewTable creates a Table with the given capacity. A capacity of 0 or
// less uses DefaultTableCapacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultTableCapacity
	}
	return &Table{
		capacity: capacity,
		tasks:    make(map[uint32]*Task),
	}
}

// Add registers a task, assigning its creation sequence. The task's
// effective priority is initialized to its base priority.
func (tb *Table) Add(t *Task) error {
	if t == nil {
		return errors.NewValidationError("task must not be nil")
	}
	if t.ID == 0 {
		return errors.NewValidationError("task ID must be non-zero").WithField("id")
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	if _, exists := tb.tasks[t.ID]; exists {
		return errors.NewAlreadyExistsError("task", fmt.Sprint(t.ID))
	}
	if len(tb.tasks) >= tb.capacity {
		return errors.NewQueueError("task table full", errors.ErrNoResource).WithTaskID(t.ID)
	}

	t.CreationSeq = tb.nextSeq
	tb.nextSeq++
	t.EffectivePriority = t.BasePriority

	tb.tasks[t.ID] = t
	tb.order = append(tb.order, t.ID)
	return nil
}

// Get returns the task with the given ID.
func (tb *Table) Get(id uint32) (*Task, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	t, ok := tb.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", fmt.Sprint(id))
	}
	return t, nil
}

// Remove deletes the task with the given ID.
func (tb *Table) Remove(id uint32) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if _, ok := tb.tasks[id]; !ok {
		return errors.NewNotFoundError("task", fmt.Sprint(id))
	}
	delete(tb.tasks, id)
	for i, oid := range tb.order {
		if oid == id {
			tb.order = append(tb.order[:i], tb.order[i+1:]...)
			break
		}
	}
	return nil
}

// Transition moves a task to a new state, validating the edge.
func (tb *Table) Transition(id uint32, to State) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	t, ok := tb.tasks[id]
	if !ok {
		return errors.NewNotFoundError("task", fmt.Sprint(id))
	}
	if !CanTransition(t.State, to) {
		return errors.NewValidationError(
			fmt.Sprintf("illegal transition %s -> %s", t.State, to)).
			WithField("state").WithValue(t.State.String())
	}
	t.State = to
	return nil
}

// Len returns the number of registered tasks.
func (tb *Table) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.tasks)
}

// List returns all tasks in creation order.
func (tb *Table) List() []*Task {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	out := make([]*Task, 0, len(tb.order))
	for _, id := range tb.order {
		if t, ok := tb.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}
