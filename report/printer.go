package report

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/sugawarayuuta/sonnet"
	"github.com/weiihann/synthbench/bench"
	"github.com/weiihann/synthbench/harness"
)

// Printer writes the status lines of one run. In JSON mode it stays quiet
// until Finish and then writes the result document alone.
//
// Finish may run on the interrupt goroutine while the run is still going,
// so every method writes straight through to w with no buffering.
type Printer struct {
	w      io.Writer
	json   bool
	logger *slog.Logger
}

var _ bench.Reporter = (*Printer)(nil)

// NewPrinter returns a Printer writing to w. Failures to write the JSON
// result go to logger.
func NewPrinter(w io.Writer, asJSON bool, logger *slog.Logger) *Printer {
	return &Printer{w: w, json: asJSON, logger: logger}
}

// Start echoes the configuration.
func (p *Printer) Start(r harness.Result) {
	if p.json {
		return
	}

	switch bench.Variant(r.Variant) {
	case bench.VariantRandom:
		fmt.Fprintf(p.w, "doInit: %d\n", boolInt(r.Init))
		fmt.Fprintf(p.w, "arraySize: %d, accesses: %d, delay: %d\n",
			r.ArraySize, r.Accesses, r.Delay)

	case bench.VariantStrided:
		fmt.Fprintf(p.w, "doInit: %d, doOuterLoop: %d\n",
			boolInt(r.Init), boolInt(r.OuterLoop))
		fmt.Fprintf(p.w, "arraySize: %d, stride: %d, reps: %d, delay: %d\n",
			r.ArraySize, r.Stride, r.Repetitions, r.Delay)
		fmt.Fprintf(p.w, "%fMB working set (%s)\n",
			float64(r.WorkingSetBytes)/1e6, humanize.IBytes(r.WorkingSetBytes))

	case bench.VariantSpin:
		fmt.Fprintf(p.w, "starting spin on hwthread %d\n", r.HWThread)
	}
}

// Phase prints a phase marker.
func (p *Printer) Phase(phase bench.Phase) {
	if p.json {
		return
	}

	switch phase {
	case bench.PhaseFill:
		fmt.Fprint(p.w, "filling...\n")
	case bench.PhaseAccess:
		fmt.Fprint(p.w, "accessing...")
	case bench.PhaseDone:
		fmt.Fprint(p.w, "done\n")
	}
}

// Finish prints the progress report and, for completed runs, the elapsed
// time.
func (p *Printer) Finish(r harness.Result) {
	if p.json {
		if err := sonnet.NewEncoder(p.w).Encode(r); err != nil {
			p.logger.Error("failed to write result",
				slog.String("variant", r.Variant),
				slog.Uint64("progress", r.Progress),
				slog.Uint64("expected", r.Expected),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	spin := bench.Variant(r.Variant) == bench.VariantSpin

	if !spin {
		fmt.Fprintf(p.w, "\n%d out of %d accesses completed\n",
			r.Progress, r.Expected)
	} else if r.Interrupted {
		fmt.Fprintf(p.w, "\n%d out of %d spins completed\n",
			r.Progress, r.Expected)
	}

	if r.Interrupted {
		return
	}

	if spin {
		fmt.Fprintf(p.w, "spin on hwthread %d took %f seconds\n",
			r.HWThread, r.ElapsedSeconds)

		return
	}

	fmt.Fprintf(p.w, "hwthread %d took %f seconds\n",
		r.HWThread, r.ElapsedSeconds)
}

func boolInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
