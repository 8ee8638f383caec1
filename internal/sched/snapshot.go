package sched

import (
	"encoding/binary"

	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// snapshotSeed seeds the state snapshot checksum.
const snapshotSeed = 0x5749

// StateSnapshot is a sealed capture of a plugin's task set, taken inside
// the switch controller's critical section. Tasks are clones in creation
// order; mutating the live tasks after capture does not disturb the
// snapshot.
type StateSnapshot struct {
	Strategy StrategyID
	TakenAt  uint64 // microseconds

	Tasks []*task.Task

	// Residue carries per-task runtime remainder the destination strategy
	// may honor (for example an unexpired time slice), keyed by task ID.
	Residue map[uint32]uint64

	Checksum uint32
}

// NewSnapshot clones the given tasks into a snapshot. Seal must be called
// once the residue is filled in.
func NewSnapshot(strategy StrategyID, takenAt uint64, tasks []*task.Task) *StateSnapshot {
	clones := make([]*task.Task, len(tasks))
	for i, t := range tasks {
		clones[i] = t.Clone()
	}
	return &StateSnapshot{
		Strategy: strategy,
		TakenAt:  takenAt,
		Tasks:    clones,
		Residue:  make(map[uint32]uint64),
	}
}

// Seal computes and stores the checksum.
func (s *StateSnapshot) Seal() {
	s.Checksum = s.ComputeChecksum()
}

// Verify recomputes the checksum and compares it to the sealed value.
func (s *StateSnapshot) Verify() error {
	if got := s.ComputeChecksum(); got != s.Checksum {
		return errors.NewChecksumError("state snapshot", s.Checksum, got)
	}
	return nil
}

// ComputeChecksum folds the snapshot's identity and task set into a
// rotate-xor sum. Residue is keyed per task so iteration order does not
// affect the result.
func (s *StateSnapshot) ComputeChecksum() uint32 {
	sum := uint32(snapshotSeed)

	var hdr [10]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(s.Strategy))
	binary.LittleEndian.PutUint64(hdr[2:10], s.TakenAt)
	sum = foldBytes(sum, hdr[:])

	var buf [23]byte
	for _, t := range s.Tasks {
		binary.LittleEndian.PutUint32(buf[0:4], t.ID)
		buf[4] = t.BasePriority
		buf[5] = t.EffectivePriority
		binary.LittleEndian.PutUint64(buf[6:14], t.Deadline)
		binary.LittleEndian.PutUint64(buf[14:22], t.CreationSeq)
		buf[22] = byte(t.State)
		sum = foldBytes(sum, buf[:])

		if residue, ok := s.Residue[t.ID]; ok {
			var r [8]byte
			binary.LittleEndian.PutUint64(r[:], residue)
			sum = foldBytes(sum, r[:])
		}
	}
	return sum
}

// TaskIDs returns the snapshot's task IDs in captured order.
func (s *StateSnapshot) TaskIDs() []uint32 {
	ids := make([]uint32, len(s.Tasks))
	for i, t := range s.Tasks {
		ids[i] = t.ID
	}
	return ids
}
