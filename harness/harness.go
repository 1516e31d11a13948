package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// DefaultWaitDelay bounds how long a child may take to report after being
// asked to stop.
const DefaultWaitDelay = 5 * time.Second

// RunConfig holds parameters for a single benchmark execution.
type RunConfig struct {
	Args    []string
	Timeout time.Duration
}

// Runner launches and manages a single benchmark binary.
type Runner struct {
	Name       string
	BinaryPath string
	ExtraArgs  []string
	Logger     *slog.Logger
	WaitDelay  time.Duration
}

// NewRunner creates a Runner that labels its results with name. extraArgs
// precede the per-run arguments on every invocation.
func NewRunner(
	name, binaryPath string,
	extraArgs []string,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		Name:       name,
		BinaryPath: binaryPath,
		ExtraArgs:  extraArgs,
		Logger:     logger.With(slog.String("run", name)),
		WaitDelay:  DefaultWaitDelay,
	}
}

// Run executes the binary and returns its parsed result. When the timeout
// fires the child gets SIGTERM; a partial result it reports in response is
// returned without error.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	args := make([]string, 0, len(r.ExtraArgs)+len(cfg.Args))
	args = append(args, r.ExtraArgs...)
	args = append(args, cfg.Args...)

	cmd := exec.CommandContext(ctx, r.BinaryPath, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Info("starting run",
		slog.String("binary", r.BinaryPath),
		slog.Any("args", args),
	)

	wallStart := time.Now()
	runErr := cmd.Run()
	wallElapsed := time.Since(wallStart)

	result, parseErr := parseResult(r.Name, &stdout)

	switch {
	case runErr == nil && parseErr == nil:
		r.Logger.Info("run finished",
			slog.Duration("wall_time", wallElapsed),
		)

	case runErr != nil && parseErr == nil && result.Interrupted &&
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.Logger.Warn("run timed out, keeping partial result",
			slog.Duration("wall_time", wallElapsed),
			slog.Uint64("progress", result.Progress),
			slog.Uint64("expected", result.Expected),
		)

	case runErr != nil:
		return nil, fmt.Errorf(
			"run %s failed: %w\nstderr: %s",
			r.Name, runErr, stderr.String(),
		)

	default:
		return nil, fmt.Errorf(
			"parse %s output: %w\nstdout: %s",
			r.Name, parseErr, stdout.String(),
		)
	}

	result.WallSeconds = wallElapsed.Seconds()
	result.PeakMemoryBytes = peakRSS(cmd.ProcessState)

	return result, nil
}

func parseResult(label string, r io.Reader) (*Result, error) {
	var result Result
	if err := sonnet.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	if result.Variant == "" {
		return nil, fmt.Errorf("decode JSON: missing variant")
	}

	if result.Label == "" {
		result.Label = label
	}

	return &result, nil
}
