package catalog

import (
	"context"
	"sync"
)

// MapLimit runs fn over inputs with at most limit workers in flight and
// returns results in input order regardless of completion order. fn is
// expected to absorb its own failures (returning a zero value), matching
// how catalog lookups degrade.
func MapLimit[T, R any](ctx context.Context, inputs []T, limit int, fn func(context.Context, T) R) []R {
	if len(inputs) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(inputs) {
		limit = len(inputs)
	}

	results := make([]R, len(inputs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = fn(ctx, inputs[i])
			}
		}()
	}

	for i := range inputs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			// Remaining inputs keep their zero values.
			close(jobs)
			wg.Wait()
			return results
		}
	}
	close(jobs)
	wg.Wait()

	return results
}
