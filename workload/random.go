package workload

import (
	"iter"
	mrand "math/rand/v2"
)

// pcgStream is the second PCG state word; any odd constant works.
const pcgStream = 0x9e3779b97f4a7c15

// Random visits uniformly random indices in [0, Size). The index stream is
// a PCG generator seeded from Seed; it is not cryptographic and the same
// seed always yields the same order.
type Random struct {
	Size     uint64
	Accesses uint64
	Seed     uint64
}

// NewRandom creates a Random policy.
func NewRandom(size, accesses, seed uint64) *Random {
	return &Random{Size: size, Accesses: accesses, Seed: seed}
}

func (r *Random) Name() string { return "randpd" }

func (r *Random) InitSteps() uint64 { return r.Size }

func (r *Random) AccessSteps() uint64 { return r.Accesses }

// WorkingSetBytes is the whole buffer: random indices touch every line.
func (r *Random) WorkingSetBytes(uint64) uint64 {
	return r.Size * ElementSize
}

// Init writes the sentinel to every element in ascending order.
func (r *Random) Init(buf []int64, progress *Counter) {
	acc := progress.Load()

	for i := uint64(0); i < r.Size; i++ {
		buf[i] = Sentinel
		acc++

		if i&publishMask == publishMask {
			progress.Store(acc)
		}
	}

	progress.Store(acc)
}

// Access reads Accesses random elements, accumulating each into progress.
func (r *Random) Access(buf []int64, progress *Counter, d *Delay) {
	rng := r.source()
	n := r.Size
	acc := progress.Load()

	for i := uint64(0); i < r.Accesses; i++ {
		acc += uint64(buf[rng.Uint64N(n)])

		if i&publishMask == publishMask {
			progress.Store(acc)
		}

		d.Inject(int64(i))
	}

	progress.Store(acc)
}

// Indices yields the index sequence Access visits.
func (r *Random) Indices() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		rng := r.source()

		for i := uint64(0); i < r.Accesses; i++ {
			if !yield(rng.Uint64N(r.Size)) {
				return
			}
		}
	}
}

func (r *Random) source() *mrand.Rand {
	return mrand.New(mrand.NewPCG(r.Seed, r.Seed^pcgStream))
}
