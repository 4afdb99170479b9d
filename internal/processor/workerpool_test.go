package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_Do(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	var ran bool
	err := pool.Do(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	sentinel := errors.New("task failed")
	err = pool.Do(context.Background(), func(ctx context.Context) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestWorkerPool_RecoversPanic(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	err := pool.Do(context.Background(), func(ctx context.Context) error {
		panic("bad page")
	})
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad page", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	// the worker survives the panic
	assert.NoError(t, pool.Do(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestWorkerPool_BoundsParallelism(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func(ctx context.Context) error {
				cur := active.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 3, pool.Size())
}

func TestWorkerPool_ContextCancelled(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestWorkerPool_Close(t *testing.T) {
	pool := NewWorkerPool(0)
	assert.Equal(t, 1, pool.Size())

	pool.Close()
	pool.Close()

	err := pool.Do(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}
