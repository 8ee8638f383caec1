package task

import (
	"testing"

	"github.com/microkernel-labs/schedswap/internal/errors"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateReady, "ready"},
		{StateRunning, "running"},
		{StateBlocked, "blocked"},
		{StateSuspended, "suspended"},
		{StateTerminated, "terminated"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"ready to running", StateReady, StateRunning, true},
		{"running to blocked", StateRunning, StateBlocked, true},
		{"blocked to ready", StateBlocked, StateReady, true},
		{"suspended to ready", StateSuspended, StateReady, true},
		{"ready to blocked", StateReady, StateBlocked, false},
		{"blocked to running", StateBlocked, StateRunning, false},
		{"terminated to ready", StateTerminated, StateReady, false},
		{"running to terminated", StateRunning, StateTerminated, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTableAdd(t *testing.T) {
	tb := NewTable(2)

	t1 := &Task{ID: 1, Name: "a", BasePriority: 10}
	if err := tb.Add(t1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if t1.EffectivePriority != 10 {
		t.Errorf("EffectivePriority = %d, want 10", t1.EffectivePriority)
	}
	if t1.CreationSeq != 0 {
		t.Errorf("CreationSeq = %d, want 0", t1.CreationSeq)
	}

	t2 := &Task{ID: 2, Name: "b"}
	if err := tb.Add(t2); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if t2.CreationSeq != 1 {
		t.Errorf("CreationSeq = %d, want 1", t2.CreationSeq)
	}
}

func TestTableAddRejections(t *testing.T) {
	tb := NewTable(1)

	if err := tb.Add(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Add(nil) error = %v, want validation error", err)
	}
	if err := tb.Add(&Task{ID: 0}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Add(ID=0) error = %v, want validation error", err)
	}

	if err := tb.Add(&Task{ID: 1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := tb.Add(&Task{ID: 1}); !errors.Is(err, &errors.AlreadyExistsError{}) {
		t.Errorf("duplicate Add error = %v, want already exists", err)
	}
	if err := tb.Add(&Task{ID: 2}); !errors.Is(err, errors.ErrNoResource) {
		t.Errorf("Add over capacity error = %v, want ErrNoResource", err)
	}
}

func TestTableGetRemove(t *testing.T) {
	tb := NewTable(0)

	if err := tb.Add(&Task{ID: 7, Name: "io"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := tb.Get(7)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "io" {
		t.Errorf("Name = %q, want %q", got.Name, "io")
	}

	if err := tb.Remove(7); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := tb.Get(7); !errors.Is(err, &errors.NotFoundError{}) {
		t.Errorf("Get after Remove error = %v, want not found", err)
	}
	if err := tb.Remove(7); !errors.Is(err, &errors.NotFoundError{}) {
		t.Errorf("second Remove error = %v, want not found", err)
	}
}

func TestTableTransition(t *testing.T) {
	tb := NewTable(0)
	if err := tb.Add(&Task{ID: 1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := tb.Transition(1, StateRunning); err != nil {
		t.Fatalf("Transition to running failed: %v", err)
	}
	if err := tb.Transition(1, StateBlocked); err != nil {
		t.Fatalf("Transition to blocked failed: %v", err)
	}

	// blocked -> running is illegal; must go through ready
	if err := tb.Transition(1, StateRunning); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("illegal transition error = %v, want validation error", err)
	}

	got, _ := tb.Get(1)
	if got.State != StateBlocked {
		t.Errorf("state after rejected transition = %s, want blocked", got.State)
	}
}

func TestTableListCreationOrder(t *testing.T) {
	tb := NewTable(0)
	for _, id := range []uint32{5, 2, 9, 1} {
		if err := tb.Add(&Task{ID: id}); err != nil {
			t.Fatalf("Add(%d) failed: %v", id, err)
		}
	}

	list := tb.List()
	want := []uint32{5, 2, 9, 1}
	if len(list) != len(want) {
		t.Fatalf("List() len = %d, want %d", len(list), len(want))
	}
	for i, tk := range list {
		if tk.ID != want[i] {
			t.Errorf("List()[%d].ID = %d, want %d", i, tk.ID, want[i])
		}
	}
}

func TestDeadlineRemaining(t *testing.T) {
	tests := []struct {
		name     string
		deadline uint64
		now      uint64
		want     uint64
		wantHas  bool
	}{
		{"no deadline", 0, 100, 0, false},
		{"future deadline", 500, 100, 400, true},
		{"passed deadline", 100, 500, 0, true},
		{"exactly now", 100, 100, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &Task{ID: 1, Deadline: tt.deadline}
			got, has := tk.DeadlineRemaining(tt.now)
			if got != tt.want || has != tt.wantHas {
				t.Errorf("DeadlineRemaining(%d) = (%d, %v), want (%d, %v)",
					tt.now, got, has, tt.want, tt.wantHas)
			}
		})
	}
}

func TestClone(t *testing.T) {
	tk := &Task{ID: 1, Name: "orig", BasePriority: 3}
	c := tk.Clone()

	c.Name = "copy"
	c.BasePriority = 9

	if tk.Name != "orig" || tk.BasePriority != 3 {
		t.Error("Clone() did not produce an independent copy")
	}
}
