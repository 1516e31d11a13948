// Package sysinfo describes the host a benchmark runs on: CPU model, memory
// and huge page pool, and which hardware thread the caller is running on.
package sysinfo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a point-in-time view of the host.
type Snapshot struct {
	CPUModel     string
	LogicalCPUs  int
	CacheSizeKB  int32
	MemTotal     uint64
	MemAvailable uint64

	HugePagesTotal uint64
	HugePagesFree  uint64
	HugePageSize   uint64
}

// Probe collects a Snapshot. A partial snapshot is returned alongside the
// first error encountered.
func Probe(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("read memory stats: %w", err)
	}

	snap.MemTotal = vm.Total
	snap.MemAvailable = vm.Available
	snap.HugePagesTotal = vm.HugePagesTotal
	snap.HugePagesFree = vm.HugePagesFree
	snap.HugePageSize = vm.HugePageSize

	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return snap, fmt.Errorf("count cpus: %w", err)
	}

	snap.LogicalCPUs = counts

	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("read cpu info: %w", err)
	}

	if len(infos) > 0 {
		snap.CPUModel = infos[0].ModelName
		snap.CacheSizeKB = infos[0].CacheSize
	}

	return snap, nil
}

// HugePoolBytes is the free capacity of the huge page pool.
func (s Snapshot) HugePoolBytes() uint64 {
	return s.HugePagesFree * s.HugePageSize
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("cpu_model", s.CPUModel),
		slog.Int("logical_cpus", s.LogicalCPUs),
		slog.Int("cache_kb", int(s.CacheSizeKB)),
		slog.String("mem_total", humanize.IBytes(s.MemTotal)),
		slog.String("mem_available", humanize.IBytes(s.MemAvailable)),
		slog.Uint64("hugepages_total", s.HugePagesTotal),
		slog.Uint64("hugepages_free", s.HugePagesFree),
		slog.String("hugepage_size", humanize.IBytes(s.HugePageSize)),
		slog.String("hugepool_free", humanize.IBytes(s.HugePoolBytes())),
	)
}
