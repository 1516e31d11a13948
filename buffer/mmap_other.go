//go:build !linux

package buffer

import "unsafe"

// Without mmap control the buffer comes from the Go heap and the page
// mode is advisory only.
func mapRegion(size uint64, _ Mode) ([]byte, error) {
	words := make([]int64, (size+ElementSize-1)/ElementSize)

	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size), nil
}

func unmapRegion([]byte) error {
	return nil
}
