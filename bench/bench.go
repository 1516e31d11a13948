// Package bench is the access-pattern benchmark engine. A Benchmark
// provisions its work buffer, optionally initializes it, times the access
// loop of its traversal policy and reports exactly once, either on normal
// completion or when interrupted.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/weiihann/synthbench/buffer"
	"github.com/weiihann/synthbench/harness"
	"github.com/weiihann/synthbench/sysinfo"
	"github.com/weiihann/synthbench/workload"
)

// Phase marks a step of a run for the reporter.
type Phase int

const (
	PhaseFill Phase = iota
	PhaseAccess
	PhaseDone
)

// Reporter receives the externally visible events of a run. Finish is
// called exactly once, possibly from the interrupt goroutine.
type Reporter interface {
	Start(r harness.Result)
	Phase(p Phase)
	Finish(r harness.Result)
}

const (
	stateRunning int32 = iota
	stateFinalizing
)

// Benchmark is a single benchmark run. It is not reusable.
type Benchmark struct {
	cfg        Config
	policy     workload.Policy
	expected   uint64
	workingSet uint64
	hwthread   int

	progress workload.Counter
	delay    workload.Delay

	state  atomic.Int32
	halted chan struct{}

	out    Reporter
	logger *slog.Logger

	// BufferOptions controls work buffer provisioning.
	BufferOptions buffer.Options

	// Alloc provisions the work buffer. Defaults to buffer.Alloc.
	Alloc func(n uint64, opts buffer.Options) (*buffer.Buffer, error)

	// Clock is the monotonic time source. Defaults to time.Now.
	Clock func() time.Time

	// Exit ends the process after an interrupted run has been reported.
	// Defaults to os.Exit.
	Exit func(code int)
}

// New validates cfg and prepares a run. The hardware thread is sampled
// here, so pin the calling goroutine before calling New.
func New(cfg Config, out Reporter, logger *slog.Logger) (*Benchmark, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	cacheLine := cfg.CacheLineSize
	if cacheLine == 0 {
		cacheLine = DefaultCacheLineSize
	}

	return &Benchmark{
		cfg:           cfg,
		policy:        policy,
		expected:      workload.ExpectedTotal(policy),
		workingSet:    policy.WorkingSetBytes(cacheLine),
		hwthread:      sysinfo.HWThread(),
		delay:         workload.Delay{Factor: cfg.Delay},
		halted:        make(chan struct{}),
		out:           out,
		logger:        logger,
		BufferOptions: buffer.Options{Mode: cfg.Pages},
		Alloc:         buffer.Alloc,
		Clock:         time.Now,
		Exit:          os.Exit,
	}, nil
}

// Expected is the total units of work the run intends to perform.
func (b *Benchmark) Expected() uint64 {
	return b.expected
}

// Progress is the best-effort count of completed work. It may lag the
// running loop by less than workload.PublishInterval steps.
func (b *Benchmark) Progress() uint64 {
	if t, ok := b.policy.(workload.Tracker); ok {
		return t.Completed()
	}

	return b.progress.Load()
}

// Run executes the benchmark and returns its result. Only the access loop
// is timed.
func (b *Benchmark) Run(ctx context.Context) (*harness.Result, error) {
	b.out.Start(b.result(false, 0))

	var words []int64

	if b.cfg.UsesBuffer() {
		buf, err := b.Alloc(b.cfg.ArraySize, b.BufferOptions)
		if err != nil {
			return nil, fmt.Errorf("provision buffer: %w", err)
		}

		defer func() {
			if err := buf.Release(); err != nil {
				b.logger.WarnContext(ctx, "failed to release buffer",
					slog.String("error", err.Error()),
				)
			}
		}()

		b.logger.DebugContext(ctx, "buffer provisioned",
			slog.Uint64("elements", b.cfg.ArraySize),
			slog.Uint64("mapped_bytes", buf.Bytes()),
			slog.String("pages", buf.Mode().String()),
		)

		words = buf.Words

		b.out.Phase(PhaseFill)

		if b.cfg.Init {
			b.policy.Init(words, &b.progress)
		}

		b.out.Phase(PhaseAccess)
	}

	start := b.Clock()
	b.policy.Access(words, &b.progress, &b.delay)
	elapsed := b.Clock().Sub(start)

	if b.cfg.UsesBuffer() {
		b.out.Phase(PhaseDone)
	}

	if !b.state.CompareAndSwap(stateRunning, stateFinalizing) {
		<-b.halted

		return nil, ErrInterrupted
	}

	result := b.result(false, elapsed)
	b.out.Finish(result)

	b.logger.DebugContext(ctx, "run complete",
		slog.Duration("elapsed", elapsed),
		slog.Int64("delay_sink", b.delay.Sink()),
	)

	return &result, nil
}

// Interrupt finalizes the run early: it reports the current progress and
// exits with status 1. It does nothing if the run was already finalized.
func (b *Benchmark) Interrupt() {
	if !b.state.CompareAndSwap(stateRunning, stateFinalizing) {
		return
	}

	b.out.Finish(b.result(true, 0))
	b.Exit(1)
	close(b.halted)
}

// Watch routes SIGINT and SIGTERM to Interrupt until the returned stop
// function is called.
func (b *Benchmark) Watch() (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			b.logger.Debug("received signal", slog.String("signal", sig.String()))
			b.Interrupt()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// result reads only fields fixed by New plus the progress counter, so the
// interrupt goroutine may call it at any time.
func (b *Benchmark) result(interrupted bool, elapsed time.Duration) harness.Result {
	r := harness.Result{
		Variant:         string(b.cfg.Variant),
		Delay:           b.cfg.Delay,
		Init:            b.cfg.Init,
		Progress:        b.Progress(),
		Expected:        b.expected,
		AccessSteps:     b.policy.AccessSteps(),
		Interrupted:     interrupted,
		ElapsedSeconds:  elapsed.Seconds(),
		HWThread:        b.hwthread,
		WorkingSetBytes: b.workingSet,
	}

	switch b.cfg.Variant {
	case VariantRandom:
		r.Accesses = b.cfg.Accesses
		r.Seed = b.cfg.Seed
	case VariantStrided:
		r.Stride = b.cfg.Stride
		r.Repetitions = b.cfg.Repetitions
		r.OuterLoop = b.cfg.OuterLoop
	case VariantSpin:
		r.SpinCount = b.cfg.SpinCount
		r.Init = false
	}

	if b.cfg.UsesBuffer() {
		r.ArraySize = b.cfg.ArraySize
		r.BufferBytes = b.cfg.ArraySize * buffer.ElementSize
		r.Pages = b.BufferOptions.Mode.String()
	}

	return r
}
