package workload

import (
	"iter"
	"sync/atomic"
)

// Spin counts down from Count to zero without touching memory. It is the
// control benchmark: pure instruction issue and branch cost.
type Spin struct {
	Count uint64

	// Each decrement is a real load and store, like a volatile counter.
	left atomic.Uint64
}

// NewSpin creates a Spin policy with count iterations remaining.
func NewSpin(count uint64) *Spin {
	s := &Spin{Count: count}
	s.left.Store(count)

	return s
}

func (s *Spin) Name() string { return "spin" }

func (s *Spin) InitSteps() uint64 { return 0 }

func (s *Spin) AccessSteps() uint64 { return s.Count }

func (s *Spin) WorkingSetBytes(uint64) uint64 { return 0 }

func (s *Spin) Init([]int64, *Counter) {}

// Access decrements the counter to zero. buf, progress and d are unused.
func (s *Spin) Access([]int64, *Counter, *Delay) {
	for n := s.left.Load(); n > 0; n = s.left.Load() {
		s.left.Store(n - 1)
	}
}

// Completed returns how many decrements have happened.
func (s *Spin) Completed() uint64 {
	return s.Count - s.left.Load()
}

// Indices yields nothing; Spin has no buffer.
func (s *Spin) Indices() iter.Seq[uint64] {
	return func(func(uint64) bool) {}
}
