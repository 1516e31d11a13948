// Package main provides the CLI entry point for synthbench, a family of
// synthetic memory-access microbenchmarks.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/weiihann/synthbench/bench"
	"github.com/weiihann/synthbench/buffer"
	"github.com/weiihann/synthbench/report"
	"github.com/weiihann/synthbench/sysinfo"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	root := newRootCmd(logger, level)
	if err := root.Execute(); err != nil {
		logger.Error("synthbench failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type globalOptions struct {
	outputJSON bool
	cpu        int
	pages      string
	seed       uint64
	verbose    bool
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "synthbench",
		Short: "Synthetic memory-access microbenchmarks",
		Long: `Synthbench drives a large page-backed buffer with random or strided
access patterns, optionally diluted by delay computation, to characterize
cache, TLB and memory bus behavior. A spin variant provides a control with
no memory traffic.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", bench.ErrConfig, err)
	})

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.outputJSON, "json", false,
		"Output the result as JSON instead of status lines")
	flags.IntVar(&opts.cpu, "cpu", -1,
		"Pin the benchmark to this hardware thread (-1 = no pinning)")
	flags.StringVar(&opts.pages, "pages", "huge",
		"Buffer page type: huge, transparent, normal")
	flags.Uint64Var(&opts.seed, "seed", 0,
		"Random seed for randpd (0 = use current time)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging")

	root.AddCommand(
		newRandomCmd(logger, opts),
		newStridedCmd(logger, opts),
		newSpinCmd(logger, opts),
		newSweepCmd(logger, opts),
	)

	return root
}

func newRandomCmd(logger *slog.Logger, opts *globalOptions) *cobra.Command {
	var noInit bool

	cmd := &cobra.Command{
		Use:   "randpd [flags] <array size> <accesses> <delay>",
		Short: "Uniform-random array accesses",
		Long: `Read <accesses> uniformly random elements of an <array size> element
buffer, running <delay> junk computations between accesses.`,
		Args: positional("array size", "accesses", "delay"),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseUints(args, "array size", "accesses", "delay")
			if err != nil {
				return err
			}

			return runVariant(cmd.Context(), cmd.OutOrStdout(), logger, opts, bench.Config{
				Variant:   bench.VariantRandom,
				ArraySize: v[0],
				Accesses:  v[1],
				Delay:     v[2],
				Init:      !noInit,
			})
		},
	}

	cmd.Flags().BoolVar(&noInit, "no-init", false,
		"Skip initializing the buffer before accessing it")

	return cmd
}

func newStridedCmd(logger *slog.Logger, opts *globalOptions) *cobra.Command {
	var (
		noInit    bool
		outerLoop bool
		cacheLine uint64
	)

	cmd := &cobra.Command{
		Use:   "rpd [flags] <array size> <stride> <repetitions> <delay>",
		Short: "Reverse strided array accesses",
		Long: `Walk an <array size> element buffer backwards in steps of <stride>,
<repetitions> times, running <delay> junk computations between accesses.`,
		Args: positional("array size", "stride", "repetitions", "delay"),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseUints(args, "array size", "stride", "repetitions", "delay")
			if err != nil {
				return err
			}

			return runVariant(cmd.Context(), cmd.OutOrStdout(), logger, opts, bench.Config{
				Variant:       bench.VariantStrided,
				ArraySize:     v[0],
				Stride:        v[1],
				Repetitions:   v[2],
				Delay:         v[3],
				OuterLoop:     outerLoop,
				CacheLineSize: cacheLine,
				Init:          !noInit,
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&noInit, "no-init", false,
		"Skip initializing the visited elements before accessing them")
	flags.BoolVar(&outerLoop, "with-outer-loop", false,
		"Repeat each pass <stride> times to normalize accesses across strides")
	flags.Uint64Var(&cacheLine, "cache-line", bench.DefaultCacheLineSize,
		"Cache line size in bytes for the working set estimate")

	return cmd
}

func newSpinCmd(logger *slog.Logger, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "spin <count>",
		Short: "Count down without touching memory",
		Args:  positional("count"),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseUints(args, "count")
			if err != nil {
				return err
			}

			return runVariant(cmd.Context(), cmd.OutOrStdout(), logger, opts, bench.Config{
				Variant:   bench.VariantSpin,
				SpinCount: v[0],
			})
		},
	}
}

func runVariant(
	ctx context.Context,
	out io.Writer,
	logger *slog.Logger,
	opts *globalOptions,
	cfg bench.Config,
) error {
	mode, err := buffer.ParseMode(opts.pages)
	if err != nil {
		return fmt.Errorf("%w: %w", bench.ErrConfig, err)
	}

	cfg.Pages = mode
	cfg.CPU = opts.cpu

	cfg.Seed = opts.seed
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.CPU >= 0 {
		release, err := sysinfo.Pin(cfg.CPU)
		if err != nil {
			return fmt.Errorf("pin benchmark: %w", err)
		}
		defer release()
	}

	bufOpts := buffer.Options{Mode: mode}

	host, err := sysinfo.Probe(ctx)
	if err != nil {
		logger.WarnContext(ctx, "host probe incomplete",
			slog.String("error", err.Error()),
		)
	} else {
		bufOpts.HugePageSize = host.HugePageSize
		bufOpts.HugePagesFree = host.HugePagesFree
	}

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("variant", string(cfg.Variant)),
		slog.String("buffer", humanize.IBytes(cfg.ArraySize*buffer.ElementSize)),
		slog.String("pages", mode.String()),
		slog.Int("cpu", cfg.CPU),
		slog.Any("host", host),
	)

	printer := report.NewPrinter(out, opts.outputJSON, logger)

	b, err := bench.New(cfg, printer, logger)
	if err != nil {
		return err
	}

	b.BufferOptions = bufOpts

	logger.DebugContext(ctx, "benchmark ready",
		slog.Uint64("expected", b.Expected()),
	)

	stop := b.Watch()
	defer stop()

	if _, err := b.Run(ctx); err != nil {
		return fmt.Errorf("run %s: %w", cfg.Variant, err)
	}

	return nil
}

// positional requires exactly the named arguments.
func positional(names ...string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != len(names) {
			return fmt.Errorf(
				"%w: want %d arguments %v, got %d",
				bench.ErrConfig, len(names), names, len(args),
			)
		}

		return nil
	}
}

func parseUints(args []string, names ...string) ([]uint64, error) {
	vals := make([]uint64, len(args))

	for i, arg := range args {
		v, err := parseUint(names[i], arg)
		if err != nil {
			return nil, err
		}

		vals[i] = v
	}

	return vals, nil
}

func parseUint(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an unsigned decimal integer",
			bench.ErrConfig, name, s)
	}

	return v, nil
}
