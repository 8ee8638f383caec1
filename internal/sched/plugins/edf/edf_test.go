package edf

import (
	"testing"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/sched"
	"github.com/microkernel-labs/schedswap/internal/task"
)

func newStarted(t *testing.T) (*Scheduler, *clock.Simulated) {
	t.Helper()
	clk := clock.NewSimulated()
	s := New()
	ctx := &sched.Context{Clock: clk, Log: logging.NopLogger(), Tasks: task.NewTable(0)}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s, clk
}

func TestDescriptorValidates(t *testing.T) {
	d := Descriptor()
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !d.Capabilities.Has(sched.CapDeadlineAware) {
		t.Error("descriptor missing CapDeadlineAware")
	}
}

func TestPickNextEarliestDeadline(t *testing.T) {
	s, _ := newStarted(t)
	_ = s.Enqueue(&task.Task{ID: 1, Deadline: 5000})
	_ = s.Enqueue(&task.Task{ID: 2, Deadline: 1000})
	_ = s.Enqueue(&task.Task{ID: 3, Deadline: 3000})

	if got := s.PickNext(); got == nil || got.ID != 2 {
		t.Fatalf("PickNext = %v, want task 2", got)
	}
}

func TestDeadlineTieBrokenByID(t *testing.T) {
	s, _ := newStarted(t)
	_ = s.Enqueue(&task.Task{ID: 7, Deadline: 1000})
	_ = s.Enqueue(&task.Task{ID: 3, Deadline: 1000})

	if got := s.PickNext(); got.ID != 3 {
		t.Errorf("PickNext = %d, want 3 (lower ID wins the tie)", got.ID)
	}
}

func TestBackgroundFIFO(t *testing.T) {
	s, _ := newStarted(t)
	_ = s.Enqueue(&task.Task{ID: 1}) // no deadline
	_ = s.Enqueue(&task.Task{ID: 2}) // no deadline

	if got := s.PickNext(); got.ID != 1 {
		t.Errorf("PickNext = %d, want background head 1", got.ID)
	}

	// Any deadline task preempts the background FIFO
	_ = s.Enqueue(&task.Task{ID: 3, Deadline: 99999})
	if got := s.PickNext(); got.ID != 3 {
		t.Errorf("PickNext with deadline task = %d, want 3", got.ID)
	}
}

func TestDequeue(t *testing.T) {
	s, _ := newStarted(t)
	_ = s.Enqueue(&task.Task{ID: 1, Deadline: 1000})
	_ = s.Enqueue(&task.Task{ID: 2})

	if _, err := s.Dequeue(1); err != nil {
		t.Fatalf("Dequeue(1) failed: %v", err)
	}
	if _, err := s.Dequeue(2); err != nil {
		t.Fatalf("Dequeue(2) failed: %v", err)
	}
	if _, err := s.Dequeue(2); !errors.Is(err, errors.ErrSchedulerNotFound) {
		t.Errorf("repeat Dequeue = %v, want not found", err)
	}
	if s.TaskCount() != 0 {
		t.Errorf("TaskCount = %d, want 0", s.TaskCount())
	}
}

func TestMissCountedOnce(t *testing.T) {
	s, clk := newStarted(t)
	_ = s.Enqueue(&task.Task{ID: 1, Deadline: 2000})
	_ = s.Enqueue(&task.Task{ID: 2, Deadline: 900000})

	clk.AdvanceMicros(5000)
	s.Tick(clk.Ticks())
	s.Tick(clk.Ticks() + 1)

	if got := s.Misses(); got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}

	// The expired task is still picked first
	if got := s.PickNext(); got.ID != 1 {
		t.Errorf("PickNext = %d, want expired task 1", got.ID)
	}
}

func TestTickWithoutContextUsesTickRatio(t *testing.T) {
	s := New()
	if err := s.Enqueue(&task.Task{ID: 1, Deadline: 5 * clock.MicrosPerTick}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	s.Tick(5)
	if got := s.Misses(); got != 0 {
		t.Errorf("Misses() = %d before the deadline tick, want 0", got)
	}
	s.Tick(6)
	if got := s.Misses(); got != 1 {
		t.Errorf("Misses() = %d after the deadline passed, want 1", got)
	}
}

func TestExportImportDeadlineOrder(t *testing.T) {
	s, _ := newStarted(t)
	_ = s.Enqueue(&task.Task{ID: 1, Deadline: 5000})
	_ = s.Enqueue(&task.Task{ID: 2, Deadline: 1000})
	_ = s.Enqueue(&task.Task{ID: 3}) // background

	snap, err := s.ExportState()
	if err != nil {
		t.Fatalf("ExportState failed: %v", err)
	}

	want := []uint32{2, 1, 3}
	got := snap.TaskIDs()
	if len(got) != len(want) {
		t.Fatalf("snapshot has %d tasks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snapshot[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	dst, _ := newStarted(t)
	if err := dst.ImportState(snap); err != nil {
		t.Fatalf("ImportState failed: %v", err)
	}
	if next := dst.PickNext(); next.ID != 2 {
		t.Errorf("PickNext after import = %d, want 2", next.ID)
	}
	if dst.TaskCount() != 3 {
		t.Errorf("TaskCount after import = %d, want 3", dst.TaskCount())
	}
}
