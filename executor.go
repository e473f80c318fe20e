package demwb

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tbonfort/gobs"
	"go.uber.org/zap"
)

// DefaultWorkers is the default size of the executor pool.
const DefaultWorkers = 3

// A Result is the outcome of processing one Context.
type Result struct {
	Context *Context
	Err     error
	// Skipped is set for contexts that were never started because the run
	// was interrupted.
	Skipped bool
}

// Report holds one Result per submitted Context, in submission order.
type Report []Result

// Failed returns the results that did not complete successfully.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r {
		if res.Err != nil || res.Skipped {
			failed = append(failed, res)
		}
	}
	return failed
}

// Executor runs independent Contexts on a bounded pool of workers.
type Executor struct {
	Workers int
	// ProgressInterval is the period at which progress is logged while
	// waiting for the pool. Zero disables progress logging.
	ProgressInterval time.Duration
	Logger           *zap.Logger
}

// Run processes every context with fn. A failing context does not affect the
// others. When ctx is cancelled the contexts still queued are skipped, the
// running ones see a cancelled context, and Run returns ctx.Err() once all
// workers have returned.
func (e *Executor) Run(ctx context.Context, contexts []*Context, fn func(context.Context, *Context) error) (Report, error) {
	logger := loggerOrNop(e.Logger)
	workers := e.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := make(Report, len(contexts))
	var finished atomic.Int64

	done := make(chan error, 1)
	go func() {
		pool := gobs.NewPool(workers)
		batch := pool.Batch()
		for i, tc := range contexts {
			i, tc := i, tc
			report[i].Context = tc
			batch.Submit(func() error {
				defer finished.Add(1)
				if wctx.Err() != nil {
					report[i].Skipped = true
					return nil
				}
				report[i].Err = fn(wctx, tc)
				return nil
			})
		}
		done <- batch.Wait()
	}()

	var tick <-chan time.Time
	if e.ProgressInterval > 0 {
		ticker := time.NewTicker(e.ProgressInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-done:
			return report, ctx.Err()
		case <-tick:
			logger.Info("progress", zap.Int64("finished", finished.Load()), zap.Int("total", len(contexts)))
		case <-ctx.Done():
			logger.Warn("interrupted, terminating workers")
			cancel()
			<-done
			return report, ctx.Err()
		}
	}
}
