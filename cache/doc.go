// Package cache provides a concurrent, capacity-bounded, sharded key/value
// cache with approximate LRU eviction and optional TTL expiry, meant as a
// hot-path lookup structure for values that are expensive to recompute.
//
// Design
//
//   - Shard: a striped hash index (one RWMutex per stripe) for values and a
//     recency list (one RWMutex per shard) ordered by last write. Lookups only
//     touch the index; they never take the list lock and never reorder the
//     list. Only writes move an entry to the head ("approximate LRU").
//
//   - Recency list: nodes live in a slab and are addressed by generational
//     handles. The index stores handles, never pointers; a released slot
//     invalidates every handle that named it.
//
//   - Eviction: each write requests one background pass. Requests are
//     counted and served by at most one Launcher task per shard. Passes
//     are single-flight per shard (a concurrent pass returns at once) and
//     always remove from the tail. Removal is two-phase: unlink
//     under the list lock, then erase under the stripe lock. The policy
//     package decides how much a pass removes (evict-one or batch ≤ 64).
//
//   - TTL: Options.Timeout is checked lazily by Find (an expired entry reads
//     as missing but stays resident) and authoritatively by eviction passes.
//
//   - Size: an atomic counter that may briefly exceed the capacity while a
//     pass is pending.
//
//   - Scalable: routes each key to one shard by the top 16 bits of its hash
//     and splits capacity evenly, shard 0 taking the remainder. Batch writes
//     are grouped per shard.
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{MaxSize: 10_000})
//	defer c.Close()
//	c.Set("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//
// With TTL and batch eviction
//
//	c := cache.New[string, string](cache.Options[string, string]{
//	    MaxSize: 50_000,
//	    Timeout: 30 * time.Second,
//	    Policy:  batch.New(0), // up to 64 removals per pass
//	})
//
// Deterministic eviction (tests)
//
//	s := cache.NewShard[string, int](2, cache.Options[string, int]{Launcher: launch.Inline{}})
//
// Exporting metrics
//
//	m := prom.New(nil, "lrucache", "demo", nil) // implements Metrics
//	c := cache.New[string, []byte](cache.Options[string, []byte]{MaxSize: 10_000, Metrics: m})
package cache
