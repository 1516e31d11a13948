//go:build unix

package harness

import (
	"os"
	"runtime"
	"syscall"
)

// peakRSS returns the child's maximum resident set size in bytes.
func peakRSS(ps *os.ProcessState) uint64 {
	if ps == nil {
		return 0
	}

	ru, ok := ps.SysUsage().(*syscall.Rusage)
	if !ok || ru.Maxrss <= 0 {
		return 0
	}

	// Darwin reports bytes, everyone else kilobytes.
	if runtime.GOOS == "darwin" {
		return uint64(ru.Maxrss)
	}

	return uint64(ru.Maxrss) * 1024
}
