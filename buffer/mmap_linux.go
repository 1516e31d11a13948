//go:build linux

package buffer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// madvise is replaced in tests.
var madvise = unix.Madvise

func mapRegion(size uint64, mode Mode) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if mode == ModeHuge {
		flags |= unix.MAP_HUGETLB
	}

	mapped, err := unix.Mmap(
		-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, flags,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"mmap %d bytes (%s pages): %w: %w",
			size, mode, ErrResourceExhausted, err,
		)
	}

	if mode == ModeTransparent {
		if err := madvise(mapped, unix.MADV_HUGEPAGE); err != nil {
			_ = unix.Munmap(mapped)

			return nil, fmt.Errorf(
				"madvise %d bytes (transparent pages): %w: %w",
				size, ErrResourceExhausted, err,
			)
		}
	}

	return mapped, nil
}

func unmapRegion(mapped []byte) error {
	if err := unix.Munmap(mapped); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}

	return nil
}
