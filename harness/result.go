// Package harness describes benchmark results and drives benchmark runs as
// child processes, so a sweep survives interrupted or timed-out runs.
package harness

// Result is the structured outcome of one benchmark run. A run emits it as
// JSON on stdout when started with --json.
type Result struct {
	Label   string `json:"label,omitempty"`
	Variant string `json:"variant"`

	// Group names the contention set a run belongs to and Instances is
	// how many runs of the group shared the machine, 1 for its solo
	// baseline. Both are set by the sweep, not the run.
	Group     string `json:"group,omitempty"`
	Instances int    `json:"instances,omitempty"`

	ArraySize   uint64 `json:"array_size,omitempty"`
	Accesses    uint64 `json:"accesses,omitempty"`
	Stride      uint64 `json:"stride,omitempty"`
	Repetitions uint64 `json:"repetitions,omitempty"`
	OuterLoop   bool   `json:"outer_loop,omitempty"`
	SpinCount   uint64 `json:"spin_count,omitempty"`
	Delay       uint64 `json:"delay"`
	Init        bool   `json:"init"`
	Seed        uint64 `json:"seed,omitempty"`
	Pages       string `json:"pages,omitempty"`

	Progress    uint64 `json:"progress"`
	Expected    uint64 `json:"expected"`
	AccessSteps uint64 `json:"access_steps"`
	Interrupted bool   `json:"interrupted"`

	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	HWThread        int     `json:"hwthread"`
	WorkingSetBytes uint64  `json:"working_set_bytes,omitempty"`
	BufferBytes     uint64  `json:"buffer_bytes,omitempty"`
	PeakMemoryBytes uint64  `json:"peak_memory_bytes,omitempty"`
	WallSeconds     float64 `json:"wall_seconds,omitempty"`
}

// NanosPerAccess is the mean elapsed time per access step, or zero when
// the run did not complete.
func (r Result) NanosPerAccess() float64 {
	if r.Interrupted || r.AccessSteps == 0 {
		return 0
	}

	return r.ElapsedSeconds * 1e9 / float64(r.AccessSteps)
}

// ProgressRate is completed work per second of process wall time. Unlike
// NanosPerAccess it is defined for runs stopped by a timeout.
func (r Result) ProgressRate() float64 {
	if r.WallSeconds <= 0 {
		return 0
	}

	return float64(r.Progress) / r.WallSeconds
}
