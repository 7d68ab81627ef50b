package cache

import "context"

// Cache is the typed access facade over a sharded LRU cache.
// All methods are safe for concurrent use by multiple goroutines.
//
// Values are copied out on read. For reference types (pointers, slices,
// maps) the copy shares the underlying data, so treat stored values as
// immutable.
type Cache[K comparable, V any] interface {
	// Get returns the value for k and whether it was found. Expired entries
	// are reported as missing. Reads do not refresh recency.
	Get(k K) (V, bool)

	// Contains reports whether Get would find k.
	Contains(k K) bool

	// MGet looks up keys and returns the values found plus, in input order,
	// the keys that were missing or expired.
	MGet(keys []K) (found map[K]V, missing []K)

	// Set inserts or updates k→v and makes it the most recently written
	// entry of its shard. It returns false only after Close.
	Set(k K, v V) bool

	// MSet stores all pairs of data with at most one eviction request per
	// shard touched.
	MSet(data map[K]V)

	// Size returns the approximate number of entries.
	Size() int

	// Keys returns a snapshot of resident keys, most recently written first
	// within each shard.
	Keys() []K

	// GetOrLoad returns the value for k, loading it via Options.Loader on a
	// miss. Concurrent loads for the same key are coalesced.
	// If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// Close stops background eviction workers owned by the cache.
	Close() error
}
