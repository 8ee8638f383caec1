package sched

import (
	"encoding/binary"
	"math/bits"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// descriptorSeed seeds the descriptor self-checksum.
const descriptorSeed = 0x12345678

// Context is the environment handed to a plugin at Init. The core injects
// it; plugins must not construct their own.
type Context struct {
	Clock clock.Clock
	Log   *logging.Logger
	Tasks *task.Table
}

// Plugin is the interface every scheduling strategy implements.
//
// Enqueue, Dequeue, PickNext and Tick are called with the core's locking
// already in place for switch transactions, but plugins must still be safe
// for concurrent use on their own queues.
type Plugin interface {
	// ID returns the strategy identifier.
	ID() StrategyID
	// Name returns the canonical strategy name.
	Name() string
	// Capabilities returns the capability bitmask.
	Capabilities() Capability

	// Init prepares the plugin with its runtime context. Called once,
	// before Start.
	Init(ctx *Context) error
	// Start makes the plugin ready to accept tasks.
	Start() error
	// Stop quiesces the plugin. A stopped plugin keeps its tasks until
	// they are migrated away.
	Stop() error

	// Enqueue hands a task to the plugin.
	Enqueue(t *task.Task) error
	// Dequeue removes a specific task and returns it.
	Dequeue(id uint32) (*task.Task, error)
	// PickNext returns the task the strategy would run now, or nil when
	// idle. The task stays queued.
	PickNext() *task.Task

	// Tick advances strategy-internal time (slice accounting, aging).
	Tick(now uint64)

	// ExportState captures the plugin's tasks and runtime residue into a
	// sealed snapshot.
	ExportState() (*StateSnapshot, error)
	// ImportState restores tasks from a verified snapshot.
	ImportState(snap *StateSnapshot) error

	// TaskCount returns how many tasks the plugin holds.
	TaskCount() int
	// Tasks returns the held tasks in creation order.
	Tasks() []*task.Task
}

// Descriptor carries a plugin's registration identity. Its checksum covers
// the identity fields and is recomputed at registration to catch corrupted
// or hand-rolled descriptors.
type Descriptor struct {
	ID           StrategyID
	Name         string
	Version      uint32
	Capabilities Capability
	Checksum     uint32
}

// NewDescriptor builds a Descriptor with the checksum sealed in.
func NewDescriptor(id StrategyID, name string, version uint32, caps Capability) Descriptor {
	d := Descriptor{
		ID:           id,
		Name:         name,
		Version:      version,
		Capabilities: caps,
	}
	d.Checksum = d.ComputeChecksum()
	return d
}

// ComputeChecksum folds the descriptor identity into a rotate-xor sum.
func (d Descriptor) ComputeChecksum() uint32 {
	sum := uint32(descriptorSeed)

	var buf [8]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(d.ID))
	binary.LittleEndian.PutUint32(buf[2:6], d.Version)
	sum = foldBytes(sum, buf[0:6])

	var capBuf [4]byte
	binary.LittleEndian.PutUint32(capBuf[:], uint32(d.Capabilities))
	sum = foldBytes(sum, capBuf[:])

	sum = foldBytes(sum, []byte(d.Name))
	return sum
}

// Validate checks the descriptor's fields and checksum.
func (d Descriptor) Validate() error {
	if !d.ID.Valid() {
		return errors.NewValidationError("descriptor has invalid strategy ID").
			WithField("id").WithValue(uint16(d.ID))
	}
	if d.Name == "" {
		return errors.NewValidationError("descriptor name must not be empty").
			WithField("name")
	}
	if got := d.ComputeChecksum(); got != d.Checksum {
		return errors.NewChecksumError("plugin descriptor", d.Checksum, got)
	}
	return nil
}

// foldBytes mixes bytes into a rotate-left-1 xor checksum.
func foldBytes(sum uint32, p []byte) uint32 {
	for _, b := range p {
		sum = bits.RotateLeft32(sum, 1) ^ uint32(b)
	}
	return sum
}
