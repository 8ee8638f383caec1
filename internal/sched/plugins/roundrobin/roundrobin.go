// Package roundrobin implements a preemptive round-robin scheduler with a
// fixed time slice. Tasks run in FIFO order; a task whose slice expires is
// rotated to the tail of the ring.
package roundrobin

import (
	"fmt"
	"sync"

	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// DefaultTimeSlice is the number of clock ticks a task may run before it is
// rotated to the back of the ring.
const DefaultTimeSlice = 10

// Name is the canonical strategy name.
const Name = "round_robin"

// Version of the plugin, folded into the registration descriptor.
const Version = 1

// Descriptor returns the sealed registration descriptor for this plugin.
func Descriptor() sched.Descriptor {
	return sched.NewDescriptor(sched.StrategyRoundRobin, Name,
		Version, sched.CapPreemptive|sched.CapTimeSliced)
}

// Scheduler is the round-robin plugin. The ring is a slice of task IDs in
// dispatch order; index 0 is the current head.
type Scheduler struct {
	mu        sync.Mutex
	ctx       *sched.Context
	timeSlice uint64

	ring    []uint32
	tasks   map[uint32]*task.Task
	current uint32 // 0 when no task holds the CPU
	left    uint64 // remaining slice ticks for current
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeSlice overrides the default slice length in ticks.
func WithTimeSlice(ticks uint64) Option {
	return func(s *Scheduler) {
		if ticks > 0 {
			s.timeSlice = ticks
		}
	}
}

// New creates a round-robin scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		timeSlice: DefaultTimeSlice,
		tasks:     make(map[uint32]*task.Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID implements sched.Plugin.
func (s *Scheduler) ID() sched.StrategyID { return sched.StrategyRoundRobin }

// Name implements sched.Plugin.
func (s *Scheduler) Name() string { return Name }

// Capabilities implements sched.Plugin.
func (s *Scheduler) Capabilities() sched.Capability {
	return sched.CapPreemptive | sched.CapTimeSliced
}

// Init implements sched.Plugin.
func (s *Scheduler) Init(ctx *sched.Context) error {
	if ctx == nil {
		return errors.NewValidationError("nil scheduler context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
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
	s.current = 0
	s.left = 0
	return nil
}

// Enqueue adds a task to the tail of the ring.
func (s *Scheduler) Enqueue(t *task.Task) error {
	if t == nil || t.ID == 0 {
		return errors.NewValidationError("task must have a nonzero ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tasks[t.ID]; dup {
		return errors.NewAlreadyExistsError("task", fmt.Sprint(t.ID))
	}
	s.tasks[t.ID] = t
	s.ring = append(s.ring, t.ID)
	return nil
}

// Dequeue removes a task from the ring and returns it.
func (s *Scheduler) Dequeue(id uint32) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", fmt.Sprint(id))
	}
	delete(s.tasks, id)
	for i, rid := range s.ring {
		if rid == id {
			s.ring = append(s.ring[:i], s.ring[i+1:]...)
			break
		}
	}
	if s.current == id {
		s.current = 0
		s.left = 0
	}
	return t, nil
}

// PickNext returns the task at the head of the ring and charges it a fresh
// time slice. Returns nil when the ring is empty.
func (s *Scheduler) PickNext() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ring) == 0 {
		return nil
	}
	id := s.ring[0]
	if s.current != id {
		s.current = id
		s.left = s.timeSlice
	}
	return s.tasks[id]
}

// Tick consumes one slice tick from the current task. When the slice
// expires the task rotates to the tail of the ring.
func (s *Scheduler) Tick(now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == 0 || len(s.ring) == 0 {
		return
	}
	if t, ok := s.tasks[s.current]; ok {
		t.LastRunTick = now
	}
	if s.left > 0 {
		s.left--
	}
	if s.left == 0 {
		s.rotateLocked()
	}
}

// rotateLocked moves the head of the ring to the tail. Callers hold s.mu.
func (s *Scheduler) rotateLocked() {
	if len(s.ring) > 1 {
		head := s.ring[0]
		copy(s.ring, s.ring[1:])
		s.ring[len(s.ring)-1] = head
	}
	s.current = 0
	s.left = 0
}

// ExportState captures the ring in dispatch order. The remaining slice of
// the current task is preserved as residue so a later import resumes it
// rather than granting a fresh slice.
func (s *Scheduler) ExportState() (*sched.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]*task.Task, 0, len(s.ring))
	for _, id := range s.ring {
		if t, ok := s.tasks[id]; ok {
			ordered = append(ordered, t)
		}
	}
	var takenAt uint64
	if s.ctx != nil {
		takenAt = s.ctx.Clock.Micros()
	}
	snap := sched.NewSnapshot(sched.StrategyRoundRobin, takenAt, ordered)
	if s.current != 0 && s.left > 0 {
		snap.Residue[s.current] = s.left
	}
	snap.Seal()
	return snap, nil
}

// ImportState rebuilds the ring from a snapshot, keeping the snapshot's
// task order. Residual slice ticks for the previously current task are
// restored.
func (s *Scheduler) ImportState(snap *sched.StateSnapshot) error {
	if snap == nil {
		return errors.NewValidationError("nil snapshot")
	}
	if err := snap.Verify(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring = s.ring[:0]
	s.tasks = make(map[uint32]*task.Task, len(snap.Tasks))
	s.current = 0
	s.left = 0

	for _, t := range snap.Tasks {
		if _, dup := s.tasks[t.ID]; dup {
			return errors.NewAlreadyExistsError("task", fmt.Sprint(t.ID))
		}
		s.tasks[t.ID] = t
		s.ring = append(s.ring, t.ID)
	}
	for id, left := range snap.Residue {
		if _, ok := s.tasks[id]; ok && left > 0 && left <= s.timeSlice {
			s.current = id
			s.left = left
		}
	}
	return nil
}

// TaskCount implements sched.Plugin.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tasks returns the queued tasks in dispatch order.
func (s *Scheduler) Tasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, 0, len(s.ring))
	for _, id := range s.ring {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}
