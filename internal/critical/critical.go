// Package critical models the interrupt-masked critical section the switch
// controller runs its state capture inside. Sections nest; a restore token
// from Enter must be passed back to Exit in LIFO order. Time spent inside
// the outermost section is measured against the switch policy budget.
package critical

import (
	"sync"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/errors"
)

// MaxNesting bounds how deep sections may nest.
const MaxNesting = 8

// Token is the restore token returned by Enter.
type Token struct {
	depth int
}

// Stats reports critical section usage.
type Stats struct {
	Entries       uint64
	MaxDepth      int
	TotalMicros   uint64
	LongestMicros uint64
}

// Section is a nestable critical section guard. It is safe for
// concurrent use, though entry is serialized by design.
type Section struct {
	mu        sync.Mutex
	clk       clock.Clock
	depth     int
	enteredAt uint64
	stats     Stats
}

// NewSection creates a Section measured against the given clock.
func NewSection(clk clock.Clock) *Section {
	return &Section{clk: clk}
}

// Enter begins (or nests) a critical section and returns the restore token.
func (s *Section) Enter() (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.depth >= MaxNesting {
		return Token{}, errors.NewValidationError("critical section nested too deep").
			WithField("depth").WithValue(s.depth)
	}

	if s.depth == 0 {
		s.enteredAt = s.clk.Micros()
	}
	s.depth++
	s.stats.Entries++
	if s.depth > s.stats.MaxDepth {
		s.stats.MaxDepth = s.depth
	}
	return Token{depth: s.depth}, nil
}

// Exit ends the section opened with the given token. Tokens must be
// returned in LIFO order.
func (s *Section) Exit(t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.depth == 0 {
		return errors.NewValidationError("exit without matching enter")
	}
	if t.depth != s.depth {
		return errors.NewValidationError("critical section tokens returned out of order").
			WithField("depth").WithValue(t.depth)
	}

	s.depth--
	if s.depth == 0 {
		elapsed := s.clk.Micros() - s.enteredAt
		s.stats.TotalMicros += elapsed
		if elapsed > s.stats.LongestMicros {
			s.stats.LongestMicros = elapsed
		}
	}
	return nil
}

// Depth returns the current nesting depth.
func (s *Section) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// Active reports whether any section is currently open.
func (s *Section) Active() bool {
	return s.Depth() > 0
}

// Stats returns a copy of the usage counters.
func (s *Section) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
