package screening

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// workerPool fans candidates out to a fixed number of goroutines.
type workerPool struct {
	workers int
	logger  *slog.Logger
}

func newWorkerPool(workers int, logger *slog.Logger) *workerPool {
	if workers < 1 {
		workers = 1
	}
	return &workerPool{workers: workers, logger: logger}
}

// run applies fn to every candidate and returns the outcomes in completion
// order. Each worker owns its outcome until it is sent; the collector is the
// only writer of the returned slice. Feeding stops when ctx ends.
func (wp *workerPool) run(ctx context.Context, candidates []tle.TrackedObject, fn func(context.Context, tle.TrackedObject) candidateOutcome) []candidateOutcome {
	if len(candidates) == 0 {
		return nil
	}

	jobs := make(chan tle.TrackedObject, wp.workers*2)
	results := make(chan candidateOutcome, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				result := fn(ctx, c)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, c := range candidates {
			select {
			case jobs <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]candidateOutcome, 0, len(candidates))
	for r := range results {
		outcomes = append(outcomes, r)
	}

	wp.logger.Debug("worker pool drained", "candidates", len(candidates), "outcomes", len(outcomes))
	return outcomes
}
