package cache

import (
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/IvanBrykalov/lrucache/internal/util"
	"github.com/IvanBrykalov/lrucache/launch"
)

// Scalable partitions a logical cache over independent shards. Every key is
// routed to exactly one shard by the high bits of its hash, so the shard of
// a key never changes while the cache lives.
//
// LRU order is kept per shard only; Snapshot returns each shard's keys in
// shard-local order, one shard after another.
type Scalable[K comparable, V any] struct {
	shards []*Shard[K, V]
	hash   func(K) uint64
	logger log.Logger
	closed atomic.Bool

	// pool is non-nil when the cache created its own launcher.
	pool *launch.Pool
}

// NewScalable constructs a sharded cache. See Options for defaults.
// Capacity is split evenly; shard 0 also takes the remainder.
func NewScalable[K comparable, V any](opt Options[K, V]) *Scalable[K, V] {
	if opt.MaxSize < 0 {
		panic("MaxSize must be >= 0")
	}
	n := opt.Shards
	if n <= 0 {
		n = util.DefaultShardCount()
	}
	applyDefaults(&opt)

	c := &Scalable[K, V]{
		shards: make([]*Shard[K, V], n),
		hash:   opt.Hasher,
		logger: opt.Logger,
	}
	if opt.Launcher == nil {
		// A shard keeps at most one task queued or running, so a queue of
		// one slot per shard never drops.
		workers, depth := opt.Workers, opt.QueueDepth
		if workers <= 0 {
			workers = n
		}
		if depth <= 0 {
			depth = n
		}
		c.pool = launch.NewPool(launch.Config{MaxWorkers: workers, QueueDepth: depth}, nil, opt.Logger)
		opt.Launcher = c.pool
	}

	per, rem := opt.MaxSize/n, opt.MaxSize%n
	for i := range c.shards {
		size := per
		if i == 0 {
			size += rem
		}
		c.shards[i] = newShard(i, size, opt)
	}

	level.Info(c.logger).Log("msg", "cache created", "max_size", opt.MaxSize, "shards", n, "timeout_seconds", opt.timeoutSeconds())
	return c
}

// Route returns the index of the shard owning k.
func (c *Scalable[K, V]) Route(k K) int {
	return util.ShardIndex(c.hash(k), len(c.shards))
}

// Find returns the value stored for k; expired entries are reported missing.
func (c *Scalable[K, V]) Find(k K) (V, bool) {
	h := c.hash(k)
	e, ok := c.shardFor(h).lookup(k, h)
	return e.Value, ok
}

// FindEntry is Find that also returns the time of the entry's last write.
func (c *Scalable[K, V]) FindEntry(k K) (Entry[V], bool) {
	h := c.hash(k)
	return c.shardFor(h).lookup(k, h)
}

// Insert stores k→v in its shard. It returns false only after Close.
func (c *Scalable[K, V]) Insert(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	h := c.hash(k)
	s := c.shardFor(h)
	ok := s.set(k, h, v)
	s.scheduleEvict()
	return ok
}

// InsertBatch groups data by destination shard and issues one batched write
// per shard touched, so at most one eviction request is made per shard.
func (c *Scalable[K, V]) InsertBatch(data map[K]V) {
	if c.closed.Load() || len(data) == 0 {
		return
	}
	parts := make([][]keyHash[K], len(c.shards))
	for k := range data {
		h := c.hash(k)
		i := util.ShardIndex(h, len(c.shards))
		parts[i] = append(parts[i], keyHash[K]{key: k, hash: h})
	}
	for i, keys := range parts {
		if len(keys) > 0 {
			c.shards[i].insertKeys(keys, data)
		}
	}
}

// Clear empties every shard. Not safe for concurrent use; see Shard.Clear.
func (c *Scalable[K, V]) Clear() {
	for _, s := range c.shards {
		s.Clear()
	}
}

// Snapshot returns all resident keys, shard by shard, each shard's keys
// from most to least recently written.
func (c *Scalable[K, V]) Snapshot() []K {
	keys := make([]K, 0, c.Size())
	for _, s := range c.shards {
		keys = s.appendSnapshot(keys)
	}
	return keys
}

// Size returns the approximate number of entries across all shards.
func (c *Scalable[K, V]) Size() int {
	total := 0
	for _, s := range c.shards {
		total += s.Size()
	}
	return total
}

// Evict runs one eviction pass on every shard on the calling goroutine and
// returns the total number of removed entries.
func (c *Scalable[K, V]) Evict() int {
	removed := 0
	for _, s := range c.shards {
		removed += s.Evict()
	}
	return removed
}

// ShardCount returns the number of shards.
func (c *Scalable[K, V]) ShardCount() int { return len(c.shards) }

// Shard returns shard i. It panics if i is out of range.
func (c *Scalable[K, V]) Shard(i int) *Shard[K, V] { return c.shards[i] }

// Close stops the background pool the cache created (if any) after it has
// drained its queue. Writes after Close are ignored; reads keep working.
func (c *Scalable[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.pool != nil {
		c.pool.Shutdown()
	}
	level.Debug(c.logger).Log("msg", "cache closed", "size", c.Size())
	return nil
}

func (c *Scalable[K, V]) shardFor(hash uint64) *Shard[K, V] {
	return c.shards[util.ShardIndex(hash, len(c.shards))]
}
