// Package readyq implements the O(1) ready queue used by priority-based
// scheduler plugins: 256 priority levels, an occupancy bitmap for constant
// time selection, per-level FIFO ordering, priority aging, and a bounded
// priority inheritance table.
//
// Level 0 is the most urgent priority; level 255 the least. Selection scans
// the occupancy bitmap from the lowest word upward, so the earliest-enqueued
// task at the lowest occupied level is always picked.
package readyq

import (
	"math/bits"
	"sync"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/task"
)

const (
	// NumLevels is the number of priority levels.
	NumLevels = task.NumPriorities

	wordBits = 32
	numWords = NumLevels / wordBits

	// DefaultCapacity is the default size of the node arena.
	DefaultCapacity = 1024

	// DefaultAgingPeriod is how often an aging pass may run, in ticks.
	DefaultAgingPeriod = 1000
	// DefaultAgingThreshold is how long a task must wait before it is
	// boosted, in ticks.
	DefaultAgingThreshold = 5000
	// DefaultAgingBoost is how many levels an aged task is promoted.
	DefaultAgingBoost = 10

	none = int32(-1)
)

// Stats holds queue counters.
type Stats struct {
	Enqueues        uint64
	Dequeues        uint64
	Removes         uint64
	AgingPromotions uint64
	PeakOccupancy   int
}

// node is one slot in the index-addressed arena. Links are arena indices,
// not pointers, so snapshots and pool reuse stay trivial.
type node struct {
	id         uint32
	level      uint8
	inUse      bool
	prev, next int32
	enqueuedAt uint64
}

// Queue is the bitmap ready queue. It is safe for concurrent use.
type Queue struct {
	mu  sync.Mutex
	clk clock.Clock
	log *logging.Logger

	bitmap [numWords]uint32
	heads  [NumLevels]int32
	tails  [NumLevels]int32

	nodes    []node
	freeHead int32
	index    map[uint32]int32
	count    int

	agingPeriod    uint64
	agingThreshold uint64
	agingBoost     uint8
	lastAging      uint64

	stats Stats
}

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity sets the node arena size.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.nodes = make([]node, n)
		}
	}
}

// WithAging overrides the aging parameters. A period of 0 disables aging.
func WithAging(period, threshold uint64, boost uint8) Option {
	return func(q *Queue) {
		q.agingPeriod = period
		q.agingThreshold = threshold
		q.agingBoost = boost
	}
}

// WithLogger sets the queue's logger.
func WithLogger(log *logging.Logger) Option {
	return func(q *Queue) {
		q.log = log.WithComponent("readyq")
	}
}

// New creates a Queue driven by the given clock.
func New(clk clock.Clock, opts ...Option) *Queue {
	q := &Queue{
		clk:            clk,
		log:            logging.NopLogger(),
		nodes:          make([]node, DefaultCapacity),
		index:          make(map[uint32]int32),
		agingPeriod:    DefaultAgingPeriod,
		agingThreshold: DefaultAgingThreshold,
		agingBoost:     DefaultAgingBoost,
	}

	for _, opt := range opts {
		opt(q)
	}

	// Thread the free list through the arena
	for i := range q.nodes {
		q.nodes[i].next = int32(i) + 1
	}
	q.nodes[len(q.nodes)-1].next = none
	q.freeHead = 0

	for i := range q.heads {
		q.heads[i] = none
		q.tails[i] = none
	}

	return q
}

// Enqueue adds a task at the given priority level, at the tail of that
// level's FIFO.
func (q *Queue) Enqueue(id uint32, level uint8) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.index[id]; dup {
		return errors.NewQueueError("task already queued", errors.ErrBusy).
			WithTaskID(id).WithPriority(int(level))
	}
	if q.freeHead == none {
		return errors.NewQueueError("node arena exhausted", errors.ErrQueueFull).
			WithTaskID(id)
	}

	slot := q.freeHead
	q.freeHead = q.nodes[slot].next

	q.nodes[slot] = node{
		id:         id,
		level:      level,
		inUse:      true,
		prev:       q.tails[level],
		next:       none,
		enqueuedAt: q.clk.Ticks(),
	}

	if q.tails[level] != none {
		q.nodes[q.tails[level]].next = slot
	} else {
		q.heads[level] = slot
		q.setBit(level)
	}
	q.tails[level] = slot

	q.index[id] = slot
	q.count++
	q.stats.Enqueues++
	if q.count > q.stats.PeakOccupancy {
		q.stats.PeakOccupancy = q.count
	}
	return nil
}

// Dequeue removes and returns the earliest-enqueued task at the most
// urgent occupied level.
func (q *Queue) Dequeue() (uint32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	level, ok := q.highestLevel()
	if !ok {
		return 0, errors.NewQueueError("dequeue from empty queue", errors.ErrQueueEmpty)
	}

	slot := q.heads[level]
	id := q.nodes[slot].id
	q.unlink(slot)
	q.stats.Dequeues++
	return id, nil
}

// Peek returns the task that Dequeue would return, without removing it.
func (q *Queue) Peek() (uint32, uint8, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	level, ok := q.highestLevel()
	if !ok {
		return 0, 0, false
	}
	return q.nodes[q.heads[level]].id, level, true
}

// Remove takes a specific task out of the queue.
func (q *Queue) Remove(id uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot, ok := q.index[id]
	if !ok {
		return errors.NewQueueError("remove of unqueued task", errors.ErrTaskNotQueued).
			WithTaskID(id)
	}
	q.unlink(slot)
	q.stats.Removes++
	return nil
}

// Promote moves a queued task to a more urgent level, keeping FIFO order at
// the destination. Demotion is rejected; effective priority never gets less
// urgent while queued.
func (q *Queue) Promote(id uint32, level uint8) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.promoteLocked(id, level)
}

func (q *Queue) promoteLocked(id uint32, level uint8) error {
	slot, ok := q.index[id]
	if !ok {
		return errors.NewQueueError("promote of unqueued task", errors.ErrTaskNotQueued).
			WithTaskID(id)
	}
	cur := q.nodes[slot].level
	if level >= cur {
		if level == cur {
			return nil
		}
		return errors.NewValidationError("promotion must raise urgency").
			WithField("level").WithValue(int(level))
	}

	enqueuedAt := q.nodes[slot].enqueuedAt
	q.unlink(slot)
	// Re-link at the new level's tail, preserving the original wait start
	q.relink(id, level, enqueuedAt)
	return nil
}

// relink enqueues without resetting the wait timestamp. The caller must
// hold the mutex and guarantee a free slot (unlink just produced one).
func (q *Queue) relink(id uint32, level uint8, enqueuedAt uint64) {
	slot := q.freeHead
	q.freeHead = q.nodes[slot].next

	q.nodes[slot] = node{
		id:         id,
		level:      level,
		inUse:      true,
		prev:       q.tails[level],
		next:       none,
		enqueuedAt: enqueuedAt,
	}

	if q.tails[level] != none {
		q.nodes[q.tails[level]].next = slot
	} else {
		q.heads[level] = slot
		q.setBit(level)
	}
	q.tails[level] = slot

	q.index[id] = slot
	q.count++
}

// Contains reports whether the task is queued.
func (q *Queue) Contains(id uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[id]
	return ok
}

// LevelOf returns the level a queued task currently sits at.
func (q *Queue) LevelOf(id uint32) (uint8, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot, ok := q.index[id]
	if !ok {
		return 0, false
	}
	return q.nodes[slot].level, true
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// IDs returns all queued task IDs in dequeue order: level ascending, FIFO
// within a level.
func (q *Queue) IDs() []uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]uint32, 0, q.count)
	for w := 0; w < numWords; w++ {
		word := q.bitmap[w]
		for word != 0 {
			bit := bits.TrailingZeros32(word)
			word &^= 1 << bit
			level := uint8(w*wordBits + bit)
			for slot := q.heads[level]; slot != none; slot = q.nodes[slot].next {
				out = append(out, q.nodes[slot].id)
			}
		}
	}
	return out
}

// Depths returns the number of queued tasks per 32-level band, most urgent
// band first. Used by the dashboard.
func (q *Queue) Depths() [numWords]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var depths [numWords]int
	for _, slot := range q.index {
		depths[q.nodes[slot].level/wordBits]++
	}
	return depths
}

// Age runs an aging pass if the aging period has elapsed. Tasks waiting
// longer than the threshold are promoted by the boost amount, toward level
// 0. Returns the number of promotions performed.
func (q *Queue) Age() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.agingPeriod == 0 {
		return 0
	}
	now := q.clk.Ticks()
	if now-q.lastAging < q.agingPeriod {
		return 0
	}
	q.lastAging = now

	// Collect candidates first; promotion relinks nodes and would disturb
	// iteration over the index.
	type boost struct {
		id    uint32
		level uint8
	}
	var boosts []boost
	for id, slot := range q.index {
		n := &q.nodes[slot]
		if now-n.enqueuedAt < q.agingThreshold || n.level == 0 {
			continue
		}
		newLevel := uint8(0)
		if n.level > q.agingBoost {
			newLevel = n.level - q.agingBoost
		}
		boosts = append(boosts, boost{id: id, level: newLevel})
	}

	for _, b := range boosts {
		if err := q.promoteLocked(b.id, b.level); err == nil {
			q.stats.AgingPromotions++
		}
	}

	if len(boosts) > 0 {
		q.log.Debug("aging pass promoted tasks", "count", len(boosts), "tick", now)
	}
	return len(boosts)
}

// Stats returns a copy of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// unlink removes a slot from its level list and returns it to the free
// list. The caller must hold the mutex.
func (q *Queue) unlink(slot int32) {
	n := &q.nodes[slot]
	level := n.level

	if n.prev != none {
		q.nodes[n.prev].next = n.next
	} else {
		q.heads[level] = n.next
	}
	if n.next != none {
		q.nodes[n.next].prev = n.prev
	} else {
		q.tails[level] = n.prev
	}
	if q.heads[level] == none {
		q.clearBit(level)
	}

	delete(q.index, n.id)
	q.count--

	*n = node{next: q.freeHead}
	q.freeHead = slot
}

// highestLevel returns the most urgent occupied level. The caller must
// hold the mutex.
func (q *Queue) highestLevel() (uint8, bool) {
	for w := 0; w < numWords; w++ {
		if q.bitmap[w] != 0 {
			return uint8(w*wordBits + bits.TrailingZeros32(q.bitmap[w])), true
		}
	}
	return 0, false
}

func (q *Queue) setBit(level uint8) {
	q.bitmap[level/wordBits] |= 1 << (level % wordBits)
}

func (q *Queue) clearBit(level uint8) {
	q.bitmap[level/wordBits] &^= 1 << (level % wordBits)
}
