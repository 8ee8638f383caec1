// Package edf implements an earliest-deadline-first scheduler backed by a
// red-black tree keyed on (deadline, task ID). Tasks without a deadline are
// kept on a background FIFO and only run when no deadline task is ready.
package edf

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// Name is the canonical strategy name.
const Name = "edf"

// Version of the plugin, folded into the registration descriptor.
const Version = 1

// Descriptor returns the sealed registration descriptor for this plugin.
func Descriptor() sched.Descriptor {
	return sched.NewDescriptor(sched.StrategyEDF, Name,
		Version, sched.CapPreemptive|sched.CapDeadlineAware)
}

// treeKey orders tasks by absolute deadline, tie-broken by task ID so keys
// are unique and ordering is deterministic.
type treeKey struct {
	deadline uint64
	id       uint32
}

func compareKeys(a, b interface{}) int {
	ka := a.(treeKey)
	kb := b.(treeKey)
	switch {
	case ka.deadline < kb.deadline:
		return -1
	case ka.deadline > kb.deadline:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}

// Scheduler is the EDF plugin.
type Scheduler struct {
	mu         sync.Mutex
	ctx        *sched.Context
	tree       *redblacktree.Tree // treeKey -> *task.Task
	keys       map[uint32]treeKey
	background []uint32
	tasks      map[uint32]*task.Task
	counted    map[uint32]bool
	started    bool

	misses uint64
}

// New creates an EDF scheduler.
func New() *Scheduler {
	return &Scheduler{
		tree:    redblacktree.NewWith(compareKeys),
		keys:    make(map[uint32]treeKey),
		tasks:   make(map[uint32]*task.Task),
		counted: make(map[uint32]bool),
	}
}

// ID implements sched.Plugin.
func (s *Scheduler) ID() sched.StrategyID { return sched.StrategyEDF }

// Name implements sched.Plugin.
func (s *Scheduler) Name() string { return Name }

// Capabilities implements sched.Plugin.
func (s *Scheduler) Capabilities() sched.Capability {
	return sched.CapPreemptive | sched.CapDeadlineAware
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
	return nil
}

// Enqueue inserts a task ordered by deadline. A zero deadline places the
// task on the background FIFO.
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
	if t.Deadline == 0 {
		s.background = append(s.background, t.ID)
		return nil
	}
	key := treeKey{deadline: t.Deadline, id: t.ID}
	s.tree.Put(key, t)
	s.keys[t.ID] = key
	return nil
}

// Dequeue removes a task and returns it.
func (s *Scheduler) Dequeue(id uint32) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", fmt.Sprint(id))
	}
	s.removeLocked(id)
	return t, nil
}

func (s *Scheduler) removeLocked(id uint32) {
	delete(s.tasks, id)
	delete(s.counted, id)
	if key, ok := s.keys[id]; ok {
		s.tree.Remove(key)
		delete(s.keys, id)
		return
	}
	for i, bid := range s.background {
		if bid == id {
			s.background = append(s.background[:i], s.background[i+1:]...)
			return
		}
	}
}

// PickNext returns the task with the earliest deadline, falling back to the
// head of the background FIFO.
func (s *Scheduler) PickNext() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node := s.tree.Left(); node != nil {
		return node.Value.(*task.Task)
	}
	for _, id := range s.background {
		if t, ok := s.tasks[id]; ok {
			return t
		}
	}
	return nil
}

// Tick counts deadline misses. A task whose absolute deadline has passed is
// counted once; the tree already orders expired deadlines first, so it stays
// in place and runs next.
func (s *Scheduler) Tick(now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nowMicros := now * clock.MicrosPerTick
	if s.ctx != nil {
		nowMicros = s.ctx.Clock.Micros()
	}
	it := s.tree.Iterator()
	for it.Next() {
		key := it.Key().(treeKey)
		if key.deadline >= nowMicros {
			break
		}
		if !s.counted[key.id] {
			s.counted[key.id] = true
			s.misses++
		}
	}
}

// Misses returns the number of deadline misses observed by Tick.
func (s *Scheduler) Misses() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.misses
}

// ExportState captures tasks in deadline order followed by the background
// FIFO in arrival order.
func (s *Scheduler) ExportState() (*sched.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]*task.Task, 0, len(s.tasks))
	it := s.tree.Iterator()
	for it.Next() {
		ordered = append(ordered, it.Value().(*task.Task))
	}
	for _, id := range s.background {
		if t, ok := s.tasks[id]; ok {
			ordered = append(ordered, t)
		}
	}
	var takenAt uint64
	if s.ctx != nil {
		takenAt = s.ctx.Clock.Micros()
	}
	snap := sched.NewSnapshot(sched.StrategyEDF, takenAt, ordered)
	snap.Seal()
	return snap, nil
}

// ImportState rebuilds the tree and background FIFO from a snapshot.
func (s *Scheduler) ImportState(snap *sched.StateSnapshot) error {
	if snap == nil {
		return errors.NewValidationError("nil snapshot")
	}
	if err := snap.Verify(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range snap.Tasks {
		if _, dup := s.tasks[t.ID]; dup {
			return errors.NewAlreadyExistsError("task", fmt.Sprint(t.ID))
		}
		s.tasks[t.ID] = t
		if t.Deadline == 0 {
			s.background = append(s.background, t.ID)
			continue
		}
		key := treeKey{deadline: t.Deadline, id: t.ID}
		s.tree.Put(key, t)
		s.keys[t.ID] = key
	}
	return nil
}

// TaskCount implements sched.Plugin.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tasks returns the queued tasks, deadline order first, background last.
func (s *Scheduler) Tasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, 0, len(s.tasks))
	it := s.tree.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*task.Task))
	}
	for _, id := range s.background {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}
