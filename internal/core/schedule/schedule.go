// Package schedule runs independent fetch-and-process units with bounded
// concurrency, keeping whichever succeed. A unit that returns nil, errors,
// or panics contributes nothing to the aggregate and never aborts siblings.
package schedule

import (
	"context"
	"sync"

	"reelforge/internal/logger"
)

// DefaultConcurrency caps the fan-out when the caller passes 0.
const DefaultConcurrency = 6

// Unit is one independent piece of work. A nil result means "nothing for
// this unit" and is excluded from the aggregate.
type Unit[T any] func(ctx context.Context) (*T, error)

// RunAll executes every unit and returns the non-nil results in completion
// order. It blocks until all units reach a terminal outcome. The aggregate
// may be shorter than the input; callers must tolerate that.
func RunAll[T any](ctx context.Context, units []Unit[T], maxConcurrency int) []*T {
	if len(units) == 0 {
		return nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}
	if maxConcurrency > len(units) {
		maxConcurrency = len(units)
	}

	log := logger.New("Scheduler")
	jobs := make(chan Unit[T])
	results := make(chan *T, len(units))

	var wg sync.WaitGroup
	for i := 0; i < maxConcurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for u := range jobs {
				if res := runUnit(ctx, u, log); res != nil {
					results <- res
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(jobs)
		for _, u := range units {
			select {
			case jobs <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	out := make([]*T, 0, len(units))
	for r := range results {
		out = append(out, r)
	}
	log.LogDebugf("ran %d units, %d produced results", len(units), len(out))
	return out
}

// runUnit isolates one unit: its error or panic is its own problem.
func runUnit[T any](ctx context.Context, u Unit[T], log *logger.Logger) (res *T) {
	defer func() {
		if r := recover(); r != nil {
			log.LogWarnf("unit panicked: %v", r)
			res = nil
		}
	}()
	r, err := u(ctx)
	if err != nil {
		log.LogDebugf("unit failed: %v", err)
		return nil
	}
	return r
}
