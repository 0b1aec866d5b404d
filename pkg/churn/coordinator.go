package churn

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options configures a coordinated churn run.
type Options struct {
	// NumWorkers is the number of independent workers (default: 1).
	NumWorkers int

	// Runtime is the length of the churn window (default: 30s).
	Runtime time.Duration

	// Seed makes the run reproducible. Worker i draws from NewRand(Seed, i);
	// zero selects a time-based seed.
	Seed uint64

	// Worker is the template for every worker. ID and Rand are assigned per
	// worker; a Rand set here is ignored because *rand.Rand is not safe to
	// share between goroutines.
	Worker WorkerConfig
}

// DefaultRuntime is the churn window when Options.Runtime is unset.
const DefaultRuntime = 30 * time.Second

// Report summarizes a coordinated run.
type Report struct {
	Workers []Stats

	// Cause is why the run stopped: ErrRuntimeElapsed, ErrInterrupted or a
	// *WorkerPanicError.
	Cause error

	Elapsed time.Duration
}

// Totals sums the per-worker counters. PeakPool is the largest single pool.
func (r Report) Totals() Stats {
	var t Stats
	t.WorkerID = -1
	for _, s := range r.Workers {
		t.Attempts += s.Attempts
		t.Connected += s.Connected
		t.Failed += s.Failed
		t.Timeouts += s.Timeouts
		t.Closed += s.Closed
		t.PeakPool = max(t.PeakPool, s.PeakPool)
	}
	t.Elapsed = r.Elapsed
	return t
}

// RunAll runs opts.NumWorkers workers sharing one StopSignal and one
// deadline, and returns after every worker has drained its pool.
// The signal is set when Runtime elapses or when ctx is cancelled,
// whichever comes first. A panicking worker stops the others and its
// *WorkerPanicError is returned with the report.
func RunAll(ctx context.Context, opts Options) (Report, error) {
	if opts.NumWorkers == 0 {
		opts.NumWorkers = 1
	}
	if opts.Runtime == 0 {
		opts.Runtime = DefaultRuntime
	}
	if opts.NumWorkers < 0 {
		return Report{}, fmt.Errorf("%w: number of workers must be positive, got %d", ErrInvalidConfig, opts.NumWorkers)
	}
	if opts.Runtime < 0 {
		return Report{}, fmt.Errorf("%w: runtime must be positive, got %s", ErrInvalidConfig, opts.Runtime)
	}

	workers := make([]*Worker, opts.NumWorkers)
	for i := range workers {
		cfg := opts.Worker
		cfg.ID = i
		cfg.Rand = NewRand(opts.Seed, i)
		w, err := NewWorker(cfg)
		if err != nil {
			return Report{}, err
		}
		workers[i] = w
	}

	start := time.Now()
	deadline := start.Add(opts.Runtime)
	stop := NewStopSignal()

	timer := time.AfterFunc(opts.Runtime, func() { stop.Set(ErrRuntimeElapsed) })
	defer timer.Stop()
	unwatch := context.AfterFunc(ctx, func() { stop.Set(ErrInterrupted) })
	defer unwatch()

	report := Report{Workers: make([]Stats, len(workers))}

	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &WorkerPanicError{WorkerID: i, Value: r}
					report.Workers[i] = w.abort(start)
					stop.Set(err)
				}
			}()
			report.Workers[i] = w.Run(stop, deadline)
			return nil
		})
	}
	err := g.Wait()

	// Workers can observe the deadline before the timer fires.
	stop.Set(ErrRuntimeElapsed)

	report.Cause = stop.Cause()
	report.Elapsed = time.Since(start)
	return report, err
}
