// Package buffer provisions the page-backed work buffer a benchmark run
// traverses. Buffers are mapped once, never resized, and released when the
// run ends.
package buffer

import (
	"errors"
	"fmt"
	"math"
	"unsafe"
)

// ElementSize is the size in bytes of one buffer element.
const ElementSize = 8

// DefaultHugePageSize is used for rounding when the host did not report
// its huge page size.
const DefaultHugePageSize = 2 << 20

// MaxElements is the largest element count whose byte size fits a mapping.
const MaxElements = math.MaxInt / ElementSize

// ErrResourceExhausted is returned when the backing memory cannot be
// obtained.
var ErrResourceExhausted = errors.New("resource exhausted")

// Mode selects the page type backing a buffer.
type Mode int

const (
	// ModeHuge maps from the reserved huge page pool (MAP_HUGETLB).
	ModeHuge Mode = iota
	// ModeTransparent maps normally and asks for transparent huge pages.
	ModeTransparent
	// ModeNormal maps base pages.
	ModeNormal
)

func (m Mode) String() string {
	switch m {
	case ModeHuge:
		return "huge"
	case ModeTransparent:
		return "transparent"
	case ModeNormal:
		return "normal"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a page mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "huge":
		return ModeHuge, nil
	case "transparent", "thp":
		return ModeTransparent, nil
	case "normal":
		return ModeNormal, nil
	default:
		return 0, fmt.Errorf("unknown page mode %q (want huge, transparent or normal)", s)
	}
}

// Options controls how Alloc maps memory.
type Options struct {
	Mode Mode

	// HugePageSize is the host huge page size in bytes.
	// Zero means DefaultHugePageSize.
	HugePageSize uint64

	// HugePagesFree is the number of free pages in the huge page pool.
	// When non-zero, ModeHuge requests that cannot fit fail before mapping.
	HugePagesFree uint64
}

// Buffer is a contiguous run of int64 elements over one mapping.
type Buffer struct {
	Words []int64

	mapped []byte
	mode   Mode
}

// Alloc maps a buffer of exactly n elements. Every failure wraps
// ErrResourceExhausted.
func Alloc(n uint64, opts Options) (*Buffer, error) {
	if n == 0 {
		return nil, fmt.Errorf("allocate empty buffer: %w", ErrResourceExhausted)
	}

	if n > MaxElements {
		return nil, fmt.Errorf(
			"allocate %d elements: exceeds address space: %w",
			n, ErrResourceExhausted,
		)
	}

	size := n * ElementSize

	if opts.Mode == ModeHuge {
		page := opts.HugePageSize
		if page == 0 {
			page = DefaultHugePageSize
		}

		size = roundUp(size, page)

		if opts.HugePagesFree > 0 && size/page > opts.HugePagesFree {
			return nil, fmt.Errorf(
				"allocate %d huge pages: only %d free: %w",
				size/page, opts.HugePagesFree, ErrResourceExhausted,
			)
		}
	}

	mapped, err := mapRegion(size, opts.Mode)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		Words:  unsafe.Slice((*int64)(unsafe.Pointer(&mapped[0])), n),
		mapped: mapped,
		mode:   opts.Mode,
	}, nil
}

// Bytes is the length of the underlying mapping, which may exceed
// len(Words)*ElementSize after huge page rounding.
func (b *Buffer) Bytes() uint64 {
	return uint64(len(b.mapped))
}

// Mode reports the page mode the buffer was mapped with.
func (b *Buffer) Mode() Mode {
	return b.mode
}

// Release unmaps the buffer. The buffer must not be used afterwards.
func (b *Buffer) Release() error {
	if b.mapped == nil {
		return nil
	}

	mapped := b.mapped
	b.mapped = nil
	b.Words = nil

	return unmapRegion(mapped)
}

func roundUp(v, to uint64) uint64 {
	return (v + to - 1) / to * to
}
