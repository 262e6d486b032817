package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"durableagent.dev/engine/workspace/lock"
)

// genPathSegment yields path-safe segments, avoiding "." and "" which
// Normalize treats specially rather than as ordinary path components.
func genPathSegment() gopter.Gen {
	return gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 })
}

func genPath() gopter.Gen {
	return gen.SliceOfN(4, genPathSegment()).Map(func(segs []string) string {
		path := ""
		for _, s := range segs {
			path += "/" + s
		}
		if path == "" {
			path = "/"
		}
		return path
	})
}

// TestNormalizeIsIdempotentProperty verifies Normalize(Normalize(p)) ==
// Normalize(p) for any path built from path-safe segments: once a path has
// been canonicalized, running it through Normalize again must be a no-op.
func TestNormalizeIsIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("normalizing an already-normalized path changes nothing", prop.ForAll(
		func(p string) bool {
			once := lock.Normalize(p)
			twice := lock.Normalize(once)
			return once == twice
		},
		genPath(),
	))

	properties.TestingRun(t)
}

// TestNormalizeCollapsesBackslashesProperty verifies that swapping every
// forward slash in a normalized path for a backslash and renormalizing
// recovers the original normalized form.
func TestNormalizeCollapsesBackslashesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("backslash and forward-slash forms normalize identically", prop.ForAll(
		func(p string) bool {
			canonical := lock.Normalize(p)
			withBackslashes := ""
			for _, r := range canonical {
				if r == '/' {
					withBackslashes += `\`
					continue
				}
				withBackslashes += string(r)
			}
			return lock.Normalize(withBackslashes) == canonical
		},
		genPath(),
	))

	properties.TestingRun(t)
}

// TestWithLockMutualExclusionProperty verifies that for any number of
// concurrent waiters on the same path, at most one of them runs fn at a time
// and every one of them eventually settles.
func TestWithLockMutualExclusionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("at most one waiter on a path runs fn at a time", prop.ForAll(
		func(n int) bool {
			m := lock.New(0)
			ctx := context.Background()

			var inFlight int32
			var sawOverlap int32
			var settled int32
			var wg sync.WaitGroup

			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = lock.WithLock(ctx, m, "/same/path", 0, func(ctx context.Context) (struct{}, error) {
						if atomic.AddInt32(&inFlight, 1) > 1 {
							atomic.StoreInt32(&sawOverlap, 1)
						}
						time.Sleep(time.Millisecond)
						atomic.AddInt32(&inFlight, -1)
						atomic.AddInt32(&settled, 1)
						return struct{}{}, nil
					})
				}()
			}
			wg.Wait()

			return sawOverlap == 0 && int(settled) == n
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
