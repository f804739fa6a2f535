package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_NeverExceedsSize(t *testing.T) {
	l := New(3)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(ctx context.Context) error {
				assert.LessOrEqual(t, l.InFlight(), 3)
				time.Sleep(2 * time.Millisecond)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, l.Size())
	assert.LessOrEqual(t, l.Peak(), 3)
	assert.Greater(t, l.Peak(), 0)
	assert.Equal(t, 0, l.InFlight())
}

func TestLimiter_ContextCancelledWhileWaiting(t *testing.T) {
	l := New(1)
	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = l.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := l.Do(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	close(hold)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestNew_ClampsSize(t *testing.T) {
	assert.Equal(t, 1, New(0).Size())
}
