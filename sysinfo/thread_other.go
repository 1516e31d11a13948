//go:build !linux

package sysinfo

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("cpu affinity not supported on " + runtime.GOOS)

// HWThread is unknown on this platform.
func HWThread() int {
	return -1
}

// Pin is not supported on this platform.
func Pin(int) (func(), error) {
	return nil, errUnsupported
}

// AllowedCPUs lists every CPU the runtime sees.
func AllowedCPUs() ([]int, error) {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}

	return cpus, nil
}
