package translate

import (
	"context"
	"sync"
	"time"
)

// runParallelGeneric runs any typed tasks in parallel with concurrency limit and delay.
// It stops launching new tasks once ctx is done or a task has failed, and
// returns the first error.
func runParallelGeneric[T any](ctx context.Context, tasks []T, maxConcurrent int, delay time.Duration, fn func(context.Context, T) error) error {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex
	launched := 0
	failed := func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return firstErr != nil
	}

launch:
	for i, task := range tasks {
		// Delay between launching tasks (skip first)
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				break launch
			case <-time.After(delay):
			}
		}

		sem <- struct{}{}
		// Checked after a slot frees up, so a sequential run stops
		// right after the task that failed or saw cancellation.
		if ctx.Err() != nil || failed() {
			<-sem
			break
		}
		wg.Add(1)
		launched++

		go func(t T) {
			defer func() {
				<-sem
				wg.Done()
			}()

			if err := fn(ctx, t); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(task)
	}

	wg.Wait()
	if firstErr == nil && launched < len(tasks) {
		return ctx.Err()
	}
	return firstErr
}
