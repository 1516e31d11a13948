// Package report formats benchmark runs: the live status lines of a single
// run, its JSON result, and comparison tables for sweeps.
package report

import (
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/sugawarayuuta/sonnet"
	"github.com/weiihann/synthbench/harness"
)

// Generate writes a markdown comparison table for the given results.
func Generate(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	fastest := findFastest(results)

	fmt.Fprintln(w, "## Sweep Results")
	fmt.Fprintln(w)

	if n := countInterrupted(results); n > 0 {
		fmt.Fprintf(w, "Interrupted runs: **%d of %d** (partial progress shown)\n",
			n, len(results))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "| Run | Variant | Array Size | Working Set | Progress "+
		"| Elapsed | ns/access | HW Thread | Peak RSS | Relative |")
	fmt.Fprintln(w, "|-----|---------|------------|-------------|----------"+
		"|---------|-----------|-----------|----------|----------|")

	for _, r := range results {
		relative := "-"
		if ns := r.NanosPerAccess(); fastest > 0 && ns > 0 {
			relative = fmt.Sprintf("%.2fx", ns/fastest)
		}

		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			r.Label,
			r.Variant,
			formatCount(r.ArraySize),
			formatBytes(r.WorkingSetBytes),
			formatProgress(r),
			formatSeconds(r),
			formatNanos(r.NanosPerAccess()),
			formatThread(r.HWThread),
			formatBytes(r.PeakMemoryBytes),
			relative,
		)
	}

	if groups := contentionGroups(results); len(groups) > 0 {
		writeContention(w, groups)
	}

	return nil
}

// contention is one solo baseline and the runs that shared the machine.
type contention struct {
	name      string
	solo      *harness.Result
	contended []harness.Result
}

func contentionGroups(results []harness.Result) []*contention {
	var groups []*contention

	byName := make(map[string]*contention)

	for i := range results {
		r := &results[i]
		if r.Group == "" {
			continue
		}

		g, ok := byName[r.Group]
		if !ok {
			g = &contention{name: r.Group}
			byName[r.Group] = g
			groups = append(groups, g)
		}

		if r.Instances <= 1 {
			g.solo = r
		} else {
			g.contended = append(g.contended, *r)
		}
	}

	return slices.DeleteFunc(groups, func(g *contention) bool {
		return len(g.contended) == 0
	})
}

// writeContention compares each group's mean per-instance progress rate
// with its solo run. Slowdown is solo rate over mean contended rate.
func writeContention(w io.Writer, groups []*contention) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Contention")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Group | Instances | Solo Progress | Combined Progress "+
		"| Solo Rate | Mean Rate | Slowdown |")
	fmt.Fprintln(w, "|-------|-----------|---------------|-------------------"+
		"|-----------|-----------|----------|")

	for _, g := range groups {
		var combined uint64
		var rates float64

		for _, r := range g.contended {
			combined += r.Progress
			rates += r.ProgressRate()
		}

		mean := rates / float64(len(g.contended))

		soloProgress, soloRate, slowdown := "-", "-", "-"
		if g.solo != nil {
			soloProgress = humanize.Comma(int64(g.solo.Progress))
			soloRate = formatRate(g.solo.ProgressRate())

			if mean > 0 && g.solo.ProgressRate() > 0 {
				slowdown = fmt.Sprintf("%.2fx", g.solo.ProgressRate()/mean)
			}
		}

		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %s |\n",
			g.name,
			len(g.contended),
			soloProgress,
			humanize.Comma(int64(combined)),
			soloRate,
			formatRate(mean),
			slowdown,
		)
	}
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	enc := sonnet.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

func findFastest(results []harness.Result) float64 {
	fastest := math.Inf(1)
	for _, r := range results {
		if ns := r.NanosPerAccess(); ns > 0 && ns < fastest {
			fastest = ns
		}
	}

	if math.IsInf(fastest, 1) {
		return 0
	}

	return fastest
}

func countInterrupted(results []harness.Result) int {
	n := 0
	for _, r := range results {
		if r.Interrupted {
			n++
		}
	}

	return n
}

func formatProgress(r harness.Result) string {
	s := fmt.Sprintf("%s / %s",
		humanize.Comma(int64(r.Progress)), humanize.Comma(int64(r.Expected)))
	if r.Interrupted {
		s += " (partial)"
	}

	return s
}

func formatSeconds(r harness.Result) string {
	if r.Interrupted {
		return "-"
	}

	if r.ElapsedSeconds < 1 {
		return fmt.Sprintf("%.1fms", r.ElapsedSeconds*1000)
	}

	return fmt.Sprintf("%.2fs", r.ElapsedSeconds)
}

func formatNanos(ns float64) string {
	if ns == 0 {
		return "-"
	}

	return fmt.Sprintf("%.2f", ns)
}

func formatCount(n uint64) string {
	if n == 0 {
		return "-"
	}

	return humanize.Comma(int64(n))
}

func formatThread(hw int) string {
	if hw < 0 {
		return "?"
	}

	return fmt.Sprintf("%d", hw)
}

func formatRate(perSecond float64) string {
	if perSecond <= 0 {
		return "-"
	}

	return humanize.SIWithDigits(perSecond, 2, "/s")
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	return humanize.IBytes(b)
}
