package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/weiihann/synthbench/bench"
	"github.com/weiihann/synthbench/harness"
	"github.com/weiihann/synthbench/report"
)

type sweepConfig struct {
	variant   string
	sizes     []string
	accesses  uint64
	stride    uint64
	reps      uint64
	delay     uint64
	noInit    bool
	outerLoop bool
	cacheLine uint64
	cpus      []int
	instances int
	timeout   time.Duration
	binary    string
}

func newSweepCmd(logger *slog.Logger, opts *globalOptions) *cobra.Command {
	var cfg sweepConfig

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a benchmark variant over a range of array sizes",
		Long: `Run randpd or rpd once per array size, each as its own process,
optionally pinned to CPUs round-robin. Runs that exceed --timeout receive
SIGTERM and contribute their partial progress to the comparison table.

With --instances N > 1 every size is first run alone, then as N copies
started together on the first N of --cpus, and the report adds the
slowdown the copies suffer from sharing caches and the memory bus.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), cmd.OutOrStdout(), logger, opts, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.variant, "variant", string(bench.VariantRandom),
		"Variant to sweep: randpd or rpd")
	flags.StringSliceVar(&cfg.sizes, "sizes", nil,
		"Array sizes in elements (e.g. 20000,22000,24000)")
	flags.Uint64Var(&cfg.accesses, "accesses", 200_000_000,
		"Accesses per randpd run")
	flags.Uint64Var(&cfg.stride, "stride", 8,
		"Stride for rpd runs")
	flags.Uint64Var(&cfg.reps, "reps", 1,
		"Repetitions for rpd runs")
	flags.Uint64Var(&cfg.delay, "delay", 0,
		"Delay factor between accesses")
	flags.BoolVar(&cfg.noInit, "no-init", false,
		"Skip buffer initialization")
	flags.BoolVar(&cfg.outerLoop, "with-outer-loop", false,
		"Repeat each rpd pass <stride> times")
	flags.Uint64Var(&cfg.cacheLine, "cache-line", bench.DefaultCacheLineSize,
		"Cache line size in bytes for the working set estimate")
	flags.IntSliceVar(&cfg.cpus, "cpus", nil,
		"Hardware threads to pin runs to (default: --cpu if set)")
	flags.IntVar(&cfg.instances, "instances", 1,
		"Copies of each run to start together on distinct CPUs")
	flags.DurationVar(&cfg.timeout, "timeout", 0,
		"Per-run time limit (0 = none)")
	flags.StringVar(&cfg.binary, "binary", "",
		"synthbench binary to run (default: this executable)")

	return cmd
}

func runSweep(
	ctx context.Context,
	out io.Writer,
	logger *slog.Logger,
	opts *globalOptions,
	cfg sweepConfig,
) error {
	variant, err := bench.ParseVariant(cfg.variant)
	if err != nil {
		return err
	}

	if variant == bench.VariantSpin {
		return fmt.Errorf("%w: spin has no array size to sweep", bench.ErrConfig)
	}

	if len(cfg.sizes) == 0 {
		return fmt.Errorf("%w: at least one size must be given via --sizes",
			bench.ErrConfig)
	}

	if len(cfg.cpus) == 0 && opts.cpu >= 0 {
		cfg.cpus = []int{opts.cpu}
	}

	if cfg.instances < 1 {
		return fmt.Errorf("%w: --instances must be at least 1, got %d",
			bench.ErrConfig, cfg.instances)
	}

	if cfg.instances > 1 && len(cfg.cpus) > 0 && len(cfg.cpus) < cfg.instances {
		return fmt.Errorf("%w: %d instances need %d cpus, got %v",
			bench.ErrConfig, cfg.instances, cfg.instances, cfg.cpus)
	}

	sizes := make([]uint64, len(cfg.sizes))
	for i, s := range cfg.sizes {
		sizes[i], err = parseUint("array size", s)
		if err != nil {
			return err
		}

		// Reject the whole sweep up front rather than part way through.
		if err := sweepRunConfig(variant, cfg, sizes[i]).Validate(); err != nil {
			return fmt.Errorf("size %d: %w", sizes[i], err)
		}
	}

	binPath, err := harness.ResolveBinary(cfg.binary)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting sweep",
		slog.String("variant", string(variant)),
		slog.Any("sizes", sizes),
		slog.Any("cpus", cfg.cpus),
		slog.Int("instances", cfg.instances),
		slog.Duration("timeout", cfg.timeout),
	)

	shared := sharedArgs(variant, cfg, opts)

	var results []harness.Result

	for i, size := range sizes {
		var batch []harness.Result

		if cfg.instances > 1 {
			batch, err = runContended(ctx, logger, binPath, shared, variant, cfg, size)
		} else {
			batch, err = runSolo(ctx, logger, binPath, shared, variant, cfg, size,
				fmt.Sprintf("size%d", size), pickCPU(cfg.cpus, i))
		}

		if err != nil {
			return err
		}

		results = append(results, batch...)
	}

	if opts.outputJSON {
		if err := report.GenerateJSON(out, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	} else {
		if err := report.Generate(out, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	logger.InfoContext(ctx, "sweep complete")

	return nil
}

func runSolo(
	ctx context.Context,
	logger *slog.Logger,
	binPath string,
	shared []string,
	variant bench.Variant,
	cfg sweepConfig,
	size uint64,
	label string,
	cpu int,
) ([]harness.Result, error) {
	runner := harness.NewRunner(label, binPath, shared, logger)

	result, err := runner.Run(ctx, harness.RunConfig{
		Args:    runArgs(variant, cfg, size, cpu),
		Timeout: cfg.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("run size %d: %w", size, err)
	}

	return []harness.Result{*result}, nil
}

// runContended runs size alone on the first CPU, then as cfg.instances
// concurrent copies, one per CPU.
func runContended(
	ctx context.Context,
	logger *slog.Logger,
	binPath string,
	shared []string,
	variant bench.Variant,
	cfg sweepConfig,
	size uint64,
) ([]harness.Result, error) {
	group := fmt.Sprintf("size%d", size)

	solo, err := runSolo(ctx, logger, binPath, shared, variant, cfg, size,
		group+"/solo", pickCPU(cfg.cpus, 0))
	if err != nil {
		return nil, err
	}

	solo[0].Group = group
	solo[0].Instances = 1

	jobs := make([]harness.Job, cfg.instances)
	for k := range jobs {
		jobs[k] = harness.Job{
			Runner: harness.NewRunner(
				fmt.Sprintf("%s/%d", group, k+1), binPath, shared, logger,
			),
			Config: harness.RunConfig{
				Args:    runArgs(variant, cfg, size, pickCPU(cfg.cpus, k)),
				Timeout: cfg.timeout,
			},
		}
	}

	contended, err := harness.RunConcurrent(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("run size %d with %d instances: %w",
			size, cfg.instances, err)
	}

	for k := range contended {
		contended[k].Group = group
		contended[k].Instances = cfg.instances
	}

	return append(solo, contended...), nil
}

// pickCPU assigns CPUs round-robin, or -1 when none were given.
func pickCPU(cpus []int, i int) int {
	if len(cpus) == 0 {
		return -1
	}

	return cpus[i%len(cpus)]
}

func sweepRunConfig(variant bench.Variant, cfg sweepConfig, size uint64) bench.Config {
	return bench.Config{
		Variant:       variant,
		ArraySize:     size,
		Accesses:      cfg.accesses,
		Stride:        cfg.stride,
		Repetitions:   cfg.reps,
		OuterLoop:     cfg.outerLoop,
		CacheLineSize: cfg.cacheLine,
		Delay:         cfg.delay,
		Init:          !cfg.noInit,
	}
}

// sharedArgs builds the leading arguments common to every run of a
// sweep. Children always report JSON so their results can be parsed.
func sharedArgs(variant bench.Variant, cfg sweepConfig, opts *globalOptions) []string {
	args := []string{
		string(variant),
		"--json",
		"--pages", opts.pages,
	}

	if opts.seed != 0 {
		args = append(args, "--seed", strconv.FormatUint(opts.seed, 10))
	}

	if cfg.noInit {
		args = append(args, "--no-init")
	}

	if variant == bench.VariantStrided {
		if cfg.outerLoop {
			args = append(args, "--with-outer-loop")
		}

		args = append(args, "--cache-line", strconv.FormatUint(cfg.cacheLine, 10))
	}

	return args
}

// runArgs builds the arguments that differ between runs: the CPU to pin
// to and the positional parameters.
func runArgs(variant bench.Variant, cfg sweepConfig, size uint64, cpu int) []string {
	var args []string

	if cpu >= 0 {
		args = append(args, "--cpu", strconv.Itoa(cpu))
	}

	u := func(v uint64) string { return strconv.FormatUint(v, 10) }

	if variant == bench.VariantStrided {
		return append(args, u(size), u(cfg.stride), u(cfg.reps), u(cfg.delay))
	}

	return append(args, u(size), u(cfg.accesses), u(cfg.delay))
}
