//go:build linux

package sysinfo

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// HWThread returns the hardware thread the calling OS thread is running
// on, or -1 if it cannot be determined. The answer is informational: an
// unpinned thread may migrate right after the call.
func HWThread() int {
	var cpu, node uint32

	_, _, errno := unix.RawSyscall(
		unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&cpu)),
		uintptr(unsafe.Pointer(&node)),
		0,
	)
	if errno != 0 {
		return -1
	}

	return int(cpu)
}

// Pin locks the calling goroutine to its OS thread and restricts that
// thread to the given CPU. The returned func undoes the goroutine lock;
// the affinity stays with the thread.
func Pin(cpu int) (func(), error) {
	if cpu < 0 {
		return nil, fmt.Errorf("invalid cpu %d", cpu)
	}

	runtime.LockOSThread()

	var set unix.CPUSet
	set.Set(cpu)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()

		return nil, fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}

	return runtime.UnlockOSThread, nil
}

// AllowedCPUs lists the CPUs the calling thread may run on.
func AllowedCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}

	cpus := make([]int, 0, set.Count())
	for i := 0; len(cpus) < set.Count(); i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}

	return cpus, nil
}
