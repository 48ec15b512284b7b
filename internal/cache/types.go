package cache

import "context"

// Key identifies one fixed-size block of a shard blob.
type Key struct {
	// Blob is the store-relative blob name.
	Blob string
	// Block is the block index (byte offset / block size).
	Block uint64
}

// BlockCache is a byte-oriented cache for immutable shard blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. Implementations may retain b; callers must not mutate it.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Close waits for background work and releases resources.
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}

// ForBlob returns a predicate matching every block of one blob.
func ForBlob(name string) func(Key) bool {
	return func(k Key) bool { return k.Blob == name }
}
