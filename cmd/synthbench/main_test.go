package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/weiihann/synthbench/bench"
	"github.com/weiihann/synthbench/harness"
)

// childEnv makes the test binary behave as synthbench, so sweep can
// launch it as its own child.
const childEnv = "SYNTHBENCH_TEST_CHILD"

func TestMain(m *testing.M) {
	if os.Getenv(childEnv) == "1" {
		main()
		os.Exit(0)
	}

	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := newRootCmd(logger, new(slog.LevelVar))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), err
}

func TestRandomCommand(t *testing.T) {
	out, err := execute(t, "randpd", "--pages", "normal", "--seed", "7",
		"1024", "500", "0")
	if err != nil {
		t.Fatalf("randpd failed: %v", err)
	}

	for _, want := range []string{
		"doInit: 1\n",
		"arraySize: 1024, accesses: 500, delay: 0\n",
		"filling...\n",
		"accessing...done\n",
		"1524 out of 1524 accesses completed\n",
		" took ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRandomCommandNoInit(t *testing.T) {
	out, err := execute(t, "randpd", "--no-init", "--pages", "normal",
		"1024", "500", "3")
	if err != nil {
		t.Fatalf("randpd failed: %v", err)
	}

	if !strings.HasPrefix(out, "doInit: 0\n") {
		t.Errorf("missing init echo:\n%s", out)
	}
	if !strings.Contains(out, "500 out of 1524 accesses completed") {
		t.Errorf("unexpected progress:\n%s", out)
	}
}

func TestStridedCommandJSON(t *testing.T) {
	out, err := execute(t, "rpd", "--json", "--pages", "normal",
		"--with-outer-loop", "64", "4", "2", "0")
	if err != nil {
		t.Fatalf("rpd failed: %v", err)
	}

	var r harness.Result
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("output is not a JSON result: %v\n%s", err, out)
	}

	// 16 init steps, then 2 reps of 4 passes over 16 elements.
	if r.Expected != 16+2*4*16 || r.Progress != r.Expected {
		t.Errorf("progress = %d/%d, want %d/%d",
			r.Progress, r.Expected, 16+2*4*16, 16+2*4*16)
	}
	if r.Variant != "rpd" || !r.OuterLoop || r.Stride != 4 {
		t.Errorf("unexpected echo: %+v", r)
	}
	if r.Interrupted {
		t.Error("interrupted = true, want false")
	}
}

func TestSpinCommand(t *testing.T) {
	out, err := execute(t, "spin", "1000")
	if err != nil {
		t.Fatalf("spin failed: %v", err)
	}

	if !strings.HasPrefix(out, "starting spin on hwthread ") {
		t.Errorf("missing start line:\n%s", out)
	}
	if !strings.Contains(out, "seconds\n") {
		t.Errorf("missing timing line:\n%s", out)
	}
	if strings.Contains(out, "spins completed") {
		t.Errorf("completed spin should not report progress:\n%s", out)
	}
}

func TestCommandConfigErrors(t *testing.T) {
	tests := map[string][]string{
		"unknown flag":     {"randpd", "--bogus", "1", "1", "0"},
		"missing argument": {"randpd", "1024", "500"},
		"extra argument":   {"spin", "1", "2"},
		"not a number":     {"randpd", "big", "500", "0"},
		"negative":         {"spin", "-5"},
		"zero size":        {"randpd", "--pages", "normal", "0", "500", "0"},
		"zero stride":      {"rpd", "--pages", "normal", "1024", "0", "1", "0"},
		"stride too large": {"rpd", "--pages", "normal", "16", "32", "1", "0"},
		"bad pages":        {"randpd", "--pages", "jumbo", "1024", "500", "0"},
		"sweep spin":       {"sweep", "--variant", "spin", "--sizes", "10"},
		"sweep no sizes":   {"sweep"},
		"sweep bad size":   {"sweep", "--sizes", "10,x"},
		"sweep bad config": {"sweep", "--variant", "rpd", "--stride", "0", "--sizes", "10"},
		"zero instances":   {"sweep", "--sizes", "10", "--instances", "0"},
		"too few cpus":     {"sweep", "--sizes", "10", "--instances", "3", "--cpus", "0,1"},
		"cpu as cpus":      {"sweep", "--cpu", "0", "--sizes", "10", "--instances", "2"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := execute(t, args...)
			if !errors.Is(err, bench.ErrConfig) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
			if out != "" {
				t.Errorf("config error produced output:\n%s", out)
			}
		})
	}
}

func TestSweepArgs(t *testing.T) {
	opts := &globalOptions{pages: "normal", seed: 9}

	tests := []struct {
		name    string
		variant bench.Variant
		cfg     sweepConfig
		cpu     int
		want    []string
	}{
		{
			name:    "random",
			variant: bench.VariantRandom,
			cfg:     sweepConfig{accesses: 500, delay: 2},
			cpu:     -1,
			want: []string{
				"randpd", "--json", "--pages", "normal", "--seed", "9",
				"1024", "500", "2",
			},
		},
		{
			name:    "strided pinned",
			variant: bench.VariantStrided,
			cfg: sweepConfig{
				stride: 8, reps: 3, noInit: true, outerLoop: true, cacheLine: 128,
			},
			cpu: 4,
			want: []string{
				"rpd", "--json", "--pages", "normal", "--seed", "9",
				"--no-init", "--with-outer-loop", "--cache-line", "128",
				"--cpu", "4", "1024", "8", "3", "0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := append(sharedArgs(tt.variant, tt.cfg, opts),
				runArgs(tt.variant, tt.cfg, 1024, tt.cpu)...)
			if !slices.Equal(got, tt.want) {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPickCPU(t *testing.T) {
	tests := []struct {
		cpus []int
		i    int
		want int
	}{
		{nil, 0, -1},
		{[]int{3}, 5, 3},
		{[]int{2, 4, 6}, 0, 2},
		{[]int{2, 4, 6}, 4, 4},
	}

	for _, tt := range tests {
		if got := pickCPU(tt.cpus, tt.i); got != tt.want {
			t.Errorf("pickCPU(%v, %d) = %d, want %d", tt.cpus, tt.i, got, tt.want)
		}
	}
}

func TestSweep(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sweep children need SIGTERM")
	}

	t.Setenv(childEnv, "1")

	out, err := execute(t, "sweep", "--json", "--pages", "normal", "--seed", "5",
		"--sizes", "1024,2048", "--accesses", "500", "--timeout", "1m")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var results []harness.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not a JSON result list: %v\n%s", err, out)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	for i, want := range []struct {
		label    string
		progress uint64
	}{
		{"size1024", 1524},
		{"size2048", 2548},
	} {
		r := results[i]
		if r.Label != want.label {
			t.Errorf("result %d label = %q, want %q", i, r.Label, want.label)
		}
		if r.Progress != want.progress || r.Expected != want.progress {
			t.Errorf("%s progress = %d/%d, want %d", r.Label,
				r.Progress, r.Expected, want.progress)
		}
		if r.Seed != 5 {
			t.Errorf("%s seed = %d, want 5", r.Label, r.Seed)
		}
	}
}

func TestSweepTable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sweep children need SIGTERM")
	}

	t.Setenv(childEnv, "1")

	out, err := execute(t, "sweep", "--variant", "rpd", "--pages", "normal",
		"--sizes", "256,512", "--stride", "4", "--reps", "2")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	for _, want := range []string{"## Sweep Results", "| size256 | rpd |", "| size512 | rpd |"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

var progressLine = regexp.MustCompile(`\n(\d+) out of (\d+) (accesses|spins) completed\n`)

func TestInterruptReportsPartialProgress(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs SIGINT delivery")
	}

	tests := []struct {
		name  string
		args  []string
		ready string
		unit  string
	}{
		{
			name:  "randpd",
			args:  []string{"randpd", "--pages", "normal", "1024", "1000000000000", "0"},
			ready: "accessing...",
			unit:  "accesses",
		},
		{
			name: "rpd outer loop",
			args: []string{"rpd", "--pages", "normal", "--with-outer-loop",
				"65536", "16", "1000000000", "1"},
			ready: "accessing...",
			unit:  "accesses",
		},
		{
			name:  "spin",
			args:  []string{"spin", "1000000000000000"},
			ready: "starting spin on hwthread ",
			unit:  "spins",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, code := interruptChild(t, tt.args, tt.ready)

			if code != 1 {
				t.Fatalf("exit status = %d, want 1\n%s", code, output)
			}

			m := progressLine.FindStringSubmatch(output)
			if m == nil {
				t.Fatalf("missing progress line:\n%s", output)
			}

			progress, _ := strconv.ParseUint(m[1], 10, 64)
			expected, _ := strconv.ParseUint(m[2], 10, 64)

			if progress >= expected {
				t.Errorf("progress = %d/%d, want partial", progress, expected)
			}
			if m[3] != tt.unit {
				t.Errorf("unit = %q, want %q", m[3], tt.unit)
			}
			if strings.Contains(output, " took ") {
				t.Errorf("interrupted run reported a time:\n%s", output)
			}
		})
	}
}

// interruptChild starts synthbench with args, sends SIGINT once ready has
// been printed, and returns everything it wrote to stdout with its exit
// status.
func interruptChild(t *testing.T, args []string, ready string) (string, int) {
	t.Helper()

	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = append(os.Environ(), childEnv+"=1")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}

	r := bufio.NewReader(stdout)

	var out strings.Builder
	for !strings.Contains(out.String(), ready) {
		b, err := r.ReadByte()
		if err != nil {
			_ = cmd.Process.Kill()
			t.Fatalf("child exited before %q: %v\n%s", ready, err, out.String())
		}
		out.WriteByte(b)
	}

	time.Sleep(50 * time.Millisecond)

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("signal child: %v", err)
	}

	rest, _ := io.ReadAll(r)
	out.Write(rest)

	err = cmd.Wait()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		t.Fatalf("wait: %v", err)
	}

	return out.String(), cmd.ProcessState.ExitCode()
}

func TestSweepTimeoutKeepsPartialResult(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sweep children need SIGTERM")
	}

	t.Setenv(childEnv, "1")

	out, err := execute(t, "sweep", "--json", "--pages", "normal",
		"--sizes", "1024", "--accesses", "1000000000000", "--timeout", "2s")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var results []harness.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not a JSON result list: %v\n%s", err, out)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if !r.Interrupted {
		t.Error("interrupted = false, want true")
	}
	if r.Progress < 1024 || r.Progress >= r.Expected {
		t.Errorf("progress = %d/%d, want partial past init", r.Progress, r.Expected)
	}
}

func TestSweepContention(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sweep children need SIGTERM")
	}

	t.Setenv(childEnv, "1")

	out, err := execute(t, "sweep", "--json", "--pages", "normal",
		"--variant", "rpd", "--with-outer-loop", "--sizes", "65536",
		"--stride", "16", "--reps", "1000000000",
		"--instances", "2", "--timeout", "2s")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var results []harness.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not a JSON result list: %v\n%s", err, out)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want solo plus 2 instances", len(results))
	}

	for i, want := range []struct {
		label     string
		instances int
	}{
		{"size65536/solo", 1},
		{"size65536/1", 2},
		{"size65536/2", 2},
	} {
		r := results[i]
		if r.Label != want.label || r.Group != "size65536" || r.Instances != want.instances {
			t.Errorf("result %d = %s group %q x%d, want %s group size65536 x%d",
				i, r.Label, r.Group, r.Instances, want.label, want.instances)
		}
		if !r.Interrupted {
			t.Errorf("%s interrupted = false, want true", r.Label)
		}
		if r.Progress == 0 || r.Progress >= r.Expected {
			t.Errorf("%s progress = %d/%d, want partial", r.Label, r.Progress, r.Expected)
		}
		if r.WallSeconds < 2 {
			t.Errorf("%s wall_seconds = %v, want at least the timeout", r.Label, r.WallSeconds)
		}
	}
}
