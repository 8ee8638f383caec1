// Package priority implements a preemptive static-priority scheduler on top
// of the O(1) bitmap ready queue. Level 0 is the most urgent. Aging promotes
// long-waiting tasks, and a bounded inheritance table lets blocked waiters
// lend their urgency to resource holders.
package priority

import (
	"fmt"
	"sync"

	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/readyq"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// Name is the canonical strategy name.
const Name = "static_priority"

// Version of the plugin, folded into the registration descriptor.
const Version = 1

// Descriptor returns the sealed registration descriptor for this plugin.
func Descriptor() sched.Descriptor {
	return sched.NewDescriptor(sched.StrategyStaticPriority, Name,
		Version, sched.CapPreemptive|sched.CapPriorityBased)
}

// Scheduler is the static-priority plugin.
type Scheduler struct {
	mu      sync.Mutex
	ctx     *sched.Context
	q       *readyq.Queue
	inherit *readyq.InheritTable
	tasks   map[uint32]*task.Task
	started bool

	qOpts []readyq.Option
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithQueueOptions forwards options to the underlying ready queue, for
// example aging parameters or a smaller arena.
func WithQueueOptions(opts ...readyq.Option) Option {
	return func(s *Scheduler) {
		s.qOpts = append(s.qOpts, opts...)
	}
}

// New creates a static-priority scheduler. The ready queue is built during
// Init, once a clock is available.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		inherit: readyq.NewInheritTable(),
		tasks:   make(map[uint32]*task.Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID implements sched.Plugin.
func (s *Scheduler) ID() sched.StrategyID { return sched.StrategyStaticPriority }

// Name implements sched.Plugin.
func (s *Scheduler) Name() string { return Name }

// Capabilities implements sched.Plugin.
func (s *Scheduler) Capabilities() sched.Capability {
	return sched.CapPreemptive | sched.CapPriorityBased
}

// Init implements sched.Plugin.
func (s *Scheduler) Init(ctx *sched.Context) error {
	if ctx == nil {
		return errors.NewValidationError("nil scheduler context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	opts := append([]readyq.Option{readyq.WithLogger(ctx.Log)}, s.qOpts...)
	s.q = readyq.New(ctx.Clock, opts...)
	return nil
}

// Start implements sched.Plugin.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return errors.ErrNotInitialized
	}
	if s.started {
		return errors.ErrAlreadyStarted
	}
	s.started = true
	return nil
}

// Stop implements sched.Plugin.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Enqueue inserts a task at its effective priority level.
func (s *Scheduler) Enqueue(t *task.Task) error {
	if t == nil || t.ID == 0 {
		return errors.NewValidationError("task must have a nonzero ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.q.Enqueue(t.ID, t.EffectivePriority); err != nil {
		return err
	}
	s.tasks[t.ID] = t
	return nil
}

// Dequeue removes a task from the queue and returns it.
func (s *Scheduler) Dequeue(id uint32) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", fmt.Sprint(id))
	}
	if err := s.q.Remove(id); err != nil {
		return nil, err
	}
	delete(s.tasks, id)
	return t, nil
}

// PickNext returns the most urgent queued task without removing it.
func (s *Scheduler) PickNext() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _, ok := s.q.Peek()
	if !ok {
		return nil
	}
	return s.tasks[id]
}

// Tick runs one aging pass. Promotions update each task's effective
// priority to match its new queue level.
func (s *Scheduler) Tick(now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.Age() == 0 {
		return
	}
	for id, t := range s.tasks {
		if level, ok := s.q.LevelOf(id); ok && level != t.EffectivePriority {
			t.EffectivePriority = level
		}
	}
	if t, ok := s.tasks[s.currentLocked()]; ok {
		t.LastRunTick = now
	}
}

func (s *Scheduler) currentLocked() uint32 {
	id, _, ok := s.q.Peek()
	if !ok {
		return 0
	}
	return id
}

// Lend grants the holder the waiter's urgency when the waiter is more
// urgent. Both tasks must be known to the scheduler; the waiter may be
// blocked and therefore absent from the ready queue.
func (s *Scheduler) Lend(holder, waiter uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.tasks[holder]
	if !ok {
		return errors.NewNotFoundError("task", fmt.Sprint(holder))
	}
	w, ok := s.tasks[waiter]
	if !ok {
		return errors.NewNotFoundError("task", fmt.Sprint(waiter))
	}

	effective, err := s.inherit.Grant(holder, waiter, h.EffectivePriority, w.EffectivePriority)
	if err != nil {
		return err
	}
	if effective != h.EffectivePriority {
		if s.q.Contains(holder) {
			if err := s.q.Promote(holder, effective); err != nil {
				return err
			}
		}
		h.EffectivePriority = effective
	}
	return nil
}

// Restore releases an inheritance grant and drops the holder back to its
// original urgency once no waiters remain. Because the bitmap queue only
// promotes, the restore re-inserts the holder at its base level.
func (s *Scheduler) Restore(holder uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.tasks[holder]
	if !ok {
		return errors.NewNotFoundError("task", fmt.Sprint(holder))
	}
	original, restored, err := s.inherit.Release(holder)
	if err != nil {
		return err
	}
	if !restored {
		return nil
	}
	if s.q.Contains(holder) {
		if err := s.q.Remove(holder); err != nil {
			return err
		}
		if err := s.q.Enqueue(holder, original); err != nil {
			return err
		}
	}
	h.EffectivePriority = original
	return nil
}

// Inheritance exposes the inheritance table, for diagnostics.
func (s *Scheduler) Inheritance() *readyq.InheritTable {
	return s.inherit
}

// QueueStats returns the underlying ready-queue counters.
func (s *Scheduler) QueueStats() readyq.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Stats()
}

// ExportState captures all queued tasks in dequeue order. Active
// inheritance grants are not carried across a switch; effective priorities
// reflect any grants in force at capture time.
func (s *Scheduler) ExportState() (*sched.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]*task.Task, 0, s.q.Len())
	for _, id := range s.q.IDs() {
		if t, ok := s.tasks[id]; ok {
			ordered = append(ordered, t)
		}
	}
	var takenAt uint64
	if s.ctx != nil {
		takenAt = s.ctx.Clock.Micros()
	}
	snap := sched.NewSnapshot(sched.StrategyStaticPriority, takenAt, ordered)
	snap.Seal()
	return snap, nil
}

// ImportState rebuilds the queue from a snapshot, enqueueing each task at
// its effective priority.
func (s *Scheduler) ImportState(snap *sched.StateSnapshot) error {
	if snap == nil {
		return errors.NewValidationError("nil snapshot")
	}
	if err := snap.Verify(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.q == nil {
		return errors.ErrNotInitialized
	}
	for _, t := range snap.Tasks {
		if err := s.q.Enqueue(t.ID, t.EffectivePriority); err != nil {
			return err
		}
		s.tasks[t.ID] = t
	}
	return nil
}

// TaskCount implements sched.Plugin.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tasks returns the queued tasks in dequeue order.
func (s *Scheduler) Tasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, 0, s.q.Len())
	for _, id := range s.q.IDs() {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}
