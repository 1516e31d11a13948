package workload

import "iter"

// Strided walks the buffer backwards from Size-Stride to 0 in steps of
// Stride, Repetitions times. With OuterLoop set each repetition makes
// Stride passes, so the number of reads stays comparable across strides.
type Strided struct {
	Size        uint64
	Stride      uint64
	Repetitions uint64
	OuterLoop   bool
}

// NewStrided creates a Strided policy. Stride must be in (0, size].
func NewStrided(size, stride, repetitions uint64, outerLoop bool) *Strided {
	return &Strided{
		Size:        size,
		Stride:      stride,
		Repetitions: repetitions,
		OuterLoop:   outerLoop,
	}
}

func (s *Strided) Name() string { return "rpd" }

// Passes is the number of descending passes per repetition.
func (s *Strided) Passes() uint64 {
	if s.OuterLoop {
		return s.Stride
	}

	return 1
}

// PassLength is the number of indices one descending pass visits.
func (s *Strided) PassLength() uint64 {
	return s.Size / s.Stride
}

func (s *Strided) InitSteps() uint64 { return s.PassLength() }

func (s *Strided) AccessSteps() uint64 {
	return s.Repetitions * s.Passes() * s.PassLength()
}

// WorkingSetBytes estimates distinct cache-line bytes touched per pass.
// Once a stride spans more than a line each read pulls its own line.
func (s *Strided) WorkingSetBytes(cacheLine uint64) uint64 {
	if s.Stride*ElementSize > cacheLine {
		return cacheLine * s.Size / s.Stride
	}

	return s.Size * ElementSize
}

// Init writes the sentinel to the indices a pass visits, descending.
func (s *Strided) Init(buf []int64, progress *Counter) {
	step := int64(s.Stride)
	acc := progress.Load()

	var n uint64

	for i := int64(s.Size - s.Stride); i >= 0; i -= step {
		buf[i] = Sentinel
		acc++

		if n&publishMask == publishMask {
			progress.Store(acc)
		}
		n++
	}

	progress.Store(acc)
}

// Access performs every repetition and pass, accumulating reads into
// progress.
func (s *Strided) Access(buf []int64, progress *Counter, d *Delay) {
	step := int64(s.Stride)
	top := int64(s.Size - s.Stride)
	passes := s.Passes()
	acc := progress.Load()

	var n uint64

	for k := uint64(0); k < s.Repetitions; k++ {
		for j := uint64(0); j < passes; j++ {
			for i := top; i >= 0; i -= step {
				acc += uint64(buf[i])

				if n&publishMask == publishMask {
					progress.Store(acc)
				}
				n++

				d.Inject(i - int64(j) + int64(k))
			}
		}
	}

	progress.Store(acc)
}

// Indices yields the index sequence Access visits.
func (s *Strided) Indices() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		step := int64(s.Stride)
		passes := s.Passes()

		for k := uint64(0); k < s.Repetitions; k++ {
			for j := uint64(0); j < passes; j++ {
				for i := int64(s.Size - s.Stride); i >= 0; i -= step {
					if !yield(uint64(i)) {
						return
					}
				}
			}
		}
	}
}

// InitIndices yields the indices Init writes.
func (s *Strided) InitIndices() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for i := int64(s.Size - s.Stride); i >= 0; i -= int64(s.Stride) {
			if !yield(uint64(i)) {
				return
			}
		}
	}
}
