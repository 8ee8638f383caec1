package readyq

import (
	"sync"

	"github.com/microkernel-labs/schedswap/internal/errors"
)

const (
	// MaxInheritRecords bounds how many holders may carry inherited
	// priority at once.
	MaxInheritRecords = 32
	// MaxInheritDepth bounds the length of an inheritance chain.
	MaxInheritDepth = 8
)

// InheritStats holds inheritance counters.
type InheritStats struct {
	Grants   uint64
	Releases uint64
	MaxDepth int
}

type inheritRecord struct {
	holder   uint32
	original uint8
	depth    int
	refs     int
	active   bool
}

// InheritTable tracks priority inheritance grants. A holder's first grant
// records its original priority; further waiters on the same holder bump a
// refcount, and the original priority is restored only when the last
// release lands. It is safe for concurrent use.
type InheritTable struct {
	mu      sync.Mutex
	records [MaxInheritRecords]inheritRecord
	stats   InheritStats
}

// NewInheritTable creates an empty InheritTable.
func NewInheritTable() *InheritTable {
	return &InheritTable{}
}

// Grant raises a lock holder to a blocked waiter's effective priority.
// holderLevel and waiterLevel are the current effective priorities; the
// returned level is what the holder should run at. A grant that would not
// raise urgency still counts a reference so release bookkeeping stays
// balanced.
func (t *InheritTable) Grant(holder, waiter uint32, holderLevel, waiterLevel uint8) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	depth := 1
	if wr := t.findLocked(waiter); wr != nil {
		depth = wr.depth + 1
	}
	if depth > MaxInheritDepth {
		return holderLevel, errors.NewQueueError("inheritance chain limit", errors.ErrInheritanceDepth).
			WithTaskID(holder)
	}

	rec := t.findLocked(holder)
	if rec == nil {
		rec = t.allocLocked()
		if rec == nil {
			return holderLevel, errors.NewQueueError("inheritance table exhausted", errors.ErrInheritanceFull).
				WithTaskID(holder)
		}
		*rec = inheritRecord{
			holder:   holder,
			original: holderLevel,
			active:   true,
		}
	}

	rec.refs++
	if depth > rec.depth {
		rec.depth = depth
	}
	t.stats.Grants++
	if rec.depth > t.stats.MaxDepth {
		t.stats.MaxDepth = rec.depth
	}

	// Inheritance only ever raises urgency
	level := holderLevel
	if waiterLevel < level {
		level = waiterLevel
	}
	return level, nil
}

// Release drops one inheritance reference from a holder. When the last
// reference is released the holder's original priority is returned with
// restored=true.
func (t *InheritTable) Release(holder uint32) (original uint8, restored bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.findLocked(holder)
	if rec == nil {
		return 0, false, errors.NewQueueError("release without grant", errors.ErrTaskNotQueued).
			WithTaskID(holder)
	}

	rec.refs--
	t.stats.Releases++
	if rec.refs > 0 {
		return rec.original, false, nil
	}

	original = rec.original
	*rec = inheritRecord{}
	return original, true, nil
}

// Holding reports whether the holder currently carries inherited priority.
func (t *InheritTable) Holding(holder uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findLocked(holder) != nil
}

// Active returns the number of active records.
func (t *InheritTable) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i := range t.records {
		if t.records[i].active {
			n++
		}
	}
	return n
}

// Stats returns a copy of the counters.
func (t *InheritTable) Stats() InheritStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *InheritTable) findLocked(holder uint32) *inheritRecord {
	for i := range t.records {
		if t.records[i].active && t.records[i].holder == holder {
			return &t.records[i]
		}
	}
	return nil
}

func (t *InheritTable) allocLocked() *inheritRecord {
	for i := range t.records {
		if !t.records[i].active {
			return &t.records[i]
		}
	}
	return nil
}
