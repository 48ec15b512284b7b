// Package resource implements shared budgets for iterators.
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        Controller                           │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Memory Limit   │  Background     │  IO Rate Limiter        │
//	│  (fail-fast)    │  Workers (sem)  │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  prefetch slot  │  parallel shard │  shard reads            │
//	│  allocation     │  verification   │  RateLimitedReader      │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded when the
// slot ring of a new iterator does not fit into the remaining budget:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	})
//	if err := rc.AcquireMemory(4 * 64 << 20); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(4 * 64 << 20)
//
// Shard readers are throttled by wrapping them:
//
//	r := resource.NewRateLimitedReader(ctx, blobReader, rc)
//
// All methods are safe for concurrent use and handle a nil Controller as
// "no limits".
package resource
