package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapLimit_PreservesInputOrder(t *testing.T) {
	inputs := []int{5, 1, 4, 2, 3}

	results := MapLimit(context.Background(), inputs, 2, func(_ context.Context, n int) int {
		// Later inputs finish first to exercise out-of-order completion.
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10
	})

	assert.Equal(t, []int{50, 10, 40, 20, 30}, results)
}

func TestMapLimit_BoundsConcurrency(t *testing.T) {
	const limit = 3
	var inFlight, maxInFlight int64
	var mu sync.Mutex

	inputs := make([]int, 20)
	MapLimit(context.Background(), inputs, limit, func(_ context.Context, n int) int {
		current := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if current > maxInFlight {
			maxInFlight = current
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return n
	})

	assert.LessOrEqual(t, maxInFlight, int64(limit))
}

func TestMapLimit_EmptyInput(t *testing.T) {
	results := MapLimit(context.Background(), nil, 4, func(_ context.Context, n int) int {
		return n
	})
	assert.Nil(t, results)
}

func TestMapLimit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := make([]string, 50)
	results := MapLimit(ctx, inputs, 2, func(_ context.Context, s string) string {
		time.Sleep(time.Millisecond)
		return "done"
	})

	// Results slice always matches input length; unprocessed slots keep
	// their zero value.
	assert.Len(t, results, 50)
}
