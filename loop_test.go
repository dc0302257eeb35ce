package gamenet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestLoop(t *testing.T) {
	require := require.New(t)
	mock := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		calls []float64
	)
	done := make(chan error, 1)
	go func() {
		done <- Loop(ctx, mock, 100*time.Millisecond, func(dt float64, now uint64) {
			mu.Lock()
			calls = append(calls, dt)
			mu.Unlock()
		})
	}()

	require.Eventually(func() bool {
		mock.Add(100 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		return len(calls) >= 3
	}, 5*time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(<-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	for _, dt := range calls {
		require.GreaterOrEqual(dt, 0.1-1e-9)
	}
}
