// Package workload implements the traversal policies driven by the benchmark
// engine: uniform-random access, reverse strided access with repetition, and
// a memory-free spin loop. It also holds the progress counter and the delay
// injector that every access loop feeds.
package workload

import "iter"

const (
	// ElementSize is the size in bytes of one work buffer element.
	ElementSize = 8

	// Sentinel is written to every initialized element so that reads
	// cannot be proven redundant.
	Sentinel int64 = 1
)

// Policy is a traversal order over a work buffer.
//
// Init and Access are the measured loops and are written out per policy;
// Indices replays the same order without touching memory.
type Policy interface {
	Name() string

	// InitSteps is the number of elements Init writes.
	InitSteps() uint64

	// AccessSteps is the number of element reads Access performs.
	AccessSteps() uint64

	// WorkingSetBytes estimates the footprint of one pass for the given
	// cache line size. It never influences control flow.
	WorkingSetBytes(cacheLine uint64) uint64

	Init(buf []int64, progress *Counter)
	Access(buf []int64, progress *Counter, d *Delay)
	Indices() iter.Seq[uint64]
}

// Tracker is implemented by policies that count their own completed work
// instead of accumulating buffer reads into a Counter.
type Tracker interface {
	Completed() uint64
}

// ExpectedTotal returns the units of work a run of p intends to perform.
// Init steps are counted whether or not initialization is enabled.
func ExpectedTotal(p Policy) uint64 {
	return p.InitSteps() + p.AccessSteps()
}
