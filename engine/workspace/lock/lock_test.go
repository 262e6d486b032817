package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"durableagent.dev/engine/workspace/lock"
)

func TestNormalizeCollapsesSeparatorsAndDotSegments(t *testing.T) {
	require.Equal(t, lock.Normalize(`/test/file.txt`), lock.Normalize(`\test\file.txt`))
	require.Equal(t, lock.Normalize(`/test/file.txt`), lock.Normalize(`//test/./file.txt`))
}

func TestWithLockSerializesSamePath(t *testing.T) {
	m := lock.New(0)
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, err := lock.WithLock(ctx, m, "/a/b.txt", 0, func(ctx context.Context) (struct{}, error) {
				time.Sleep(time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return struct{}{}, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Len(t, order, 5)
}

func TestWithLockParallelAcrossDistinctPaths(t *testing.T) {
	m := lock.New(0)
	ctx := context.Background()

	var inFlight int32
	var maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		path := "/file-" + string(rune('a'+i))
		go func() {
			defer wg.Done()
			_, _ = lock.WithLock(ctx, m, path, 0, func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					cur := atomic.LoadInt32(&maxInFlight)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()
	require.Greater(t, int(maxInFlight), 1)
}

func TestWithLockTimeoutAdvancesQueue(t *testing.T) {
	m := lock.New(0)
	ctx := context.Background()

	var ran int32
	_, err := lock.WithLock(ctx, m, "/slow.txt", 5*time.Millisecond, func(ctx context.Context) (struct{}, error) {
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&ran, 1)
		return struct{}{}, nil
	})
	require.ErrorIs(t, err, lock.ErrTimeout)

	start := time.Now()
	_, err = lock.WithLock(ctx, m, "/slow.txt", 0, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, err)
	require.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestWithLockErrorIsolatedPerWaiter(t *testing.T) {
	m := lock.New(0)
	ctx := context.Background()

	_, err := lock.WithLock(ctx, m, "/f.txt", 0, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, assertError{}
	})
	require.Error(t, err)

	_, err = lock.WithLock(ctx, m, "/f.txt", 0, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, err)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
