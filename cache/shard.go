package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/IvanBrykalov/lrucache/internal/util"
	"github.com/IvanBrykalov/lrucache/launch"
	"github.com/IvanBrykalov/lrucache/policy"
	"github.com/IvanBrykalov/lrucache/policy/single"
)

// Entry is a value together with the time of its last write.
type Entry[V any] struct {
	Value   V
	Touched time.Time
}

// Shard is a single concurrent LRU store: a striped hash index for values
// plus a recency list ordered by last write (head = newest).
//
// Reads only touch the index and never reorder the list ("approximate LRU"):
// only writes move an entry to the head. Capacity and TTL are enforced by
// eviction passes that run in the background after writes, so Size can
// briefly exceed the capacity and an expired entry may linger until a pass
// reaches it.
//
// All methods are safe for concurrent use except Clear.
type Shard[K comparable, V any] struct {
	id      int
	maxSize int64
	timeout int64 // seconds; 0 disables expiry

	index *hashIndex[K, V]

	// ---- guarded by mu ----
	mu   sync.RWMutex
	list recencyList[K]

	pol      policy.ShardPolicy
	launcher Launcher
	hash     func(K) uint64
	clock    Clock
	metrics  Metrics
	logger   log.Logger

	// ---- hot atomics (separate cache lines to avoid false sharing) ----
	_         util.CacheLinePad
	size      util.PaddedAtomicInt64
	evicting  util.PaddedAtomicBool
	pending   util.PaddedAtomicInt64 // eviction requests not yet served
	scheduled atomic.Bool            // a task is queued or running
}

// NewShard builds a standalone shard holding up to maxSize entries.
// opt.MaxSize and opt.Shards are ignored; a nil opt.Launcher runs each
// eviction pass on its own goroutine.
func NewShard[K comparable, V any](maxSize int, opt Options[K, V]) *Shard[K, V] {
	if maxSize < 0 {
		panic("MaxSize must be >= 0")
	}
	if opt.Launcher == nil {
		opt.Launcher = launch.Go{}
	}
	applyDefaults(&opt)
	return newShard(0, maxSize, opt)
}

// applyDefaults fills every nil collaborator except the launcher, which
// differs between a standalone shard and a Scalable.
func applyDefaults[K comparable, V any](opt *Options[K, V]) {
	if opt.Policy == nil {
		opt.Policy = single.New()
	}
	if opt.Hasher == nil {
		opt.Hasher = util.Hash[K]
	}
	if opt.Clock == nil {
		opt.Clock = wallClock{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = log.NewNopLogger()
	}
}

func newShard[K comparable, V any](id, maxSize int, opt Options[K, V]) *Shard[K, V] {
	s := &Shard[K, V]{
		id:       id,
		maxSize:  int64(maxSize),
		timeout:  opt.timeoutSeconds(),
		index:    newHashIndex[K, V](4*util.DefaultShardCount(), maxSize),
		list:     newRecencyList[K](maxSize),
		launcher: opt.Launcher,
		hash:     opt.Hasher,
		clock:    opt.Clock,
		metrics:  opt.Metrics,
		logger:   log.With(opt.Logger, "shard", id),
	}
	s.pol = opt.Policy.New(shardHooks[K, V]{s: s})
	return s
}

// Find returns the value stored for k. An entry older than the timeout is
// reported as missing but is not removed here.
func (s *Shard[K, V]) Find(k K) (V, bool) {
	e, ok := s.lookup(k, s.hash(k))
	return e.Value, ok
}

// FindEntry is Find that also returns the time of the entry's last write.
func (s *Shard[K, V]) FindEntry(k K) (Entry[V], bool) {
	return s.lookup(k, s.hash(k))
}

// Insert stores k→v as the most recently written entry, replacing any
// previous value, and requests an eviction pass. It always reports true.
func (s *Shard[K, V]) Insert(k K, v V) bool {
	ok := s.set(k, s.hash(k), v)
	s.scheduleEvict()
	return ok
}

// InsertBatch stores every pair of data and requests a single eviction pass.
func (s *Shard[K, V]) InsertBatch(data map[K]V) {
	for k, v := range data {
		s.set(k, s.hash(k), v)
	}
	s.scheduleEvict()
}

// Clear drops every entry and resets the size to zero.
//
// NOT SAFE for concurrent use: the caller must make sure no other operation
// (including a background eviction pass) is running on this shard.
func (s *Shard[K, V]) Clear() {
	s.index.clear()
	s.mu.Lock()
	s.list.reset()
	s.mu.Unlock()
	s.size.Store(0)
	level.Debug(s.logger).Log("msg", "shard cleared")
}

// Snapshot returns the resident keys from most to least recently written.
// Writes and eviction on this shard wait until it returns; reads do not.
func (s *Shard[K, V]) Snapshot() []K {
	return s.appendSnapshot(make([]K, 0, s.Size()))
}

// Size returns the approximate number of entries.
func (s *Shard[K, V]) Size() int {
	if n := s.size.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// Capacity returns the configured maximum entry count.
func (s *Shard[K, V]) Capacity() int { return int(s.maxSize) }

// -------------------- internals --------------------

func (s *Shard[K, V]) lookup(k K, hash uint64) (Entry[V], bool) {
	st := s.index.stripeFor(hash)
	st.mu.RLock()
	r, ok := st.m[k]
	if !ok {
		st.mu.RUnlock()
		s.metrics.Miss()
		return Entry[V]{}, false
	}
	val, touched := r.val, r.touched
	st.mu.RUnlock()

	if s.timeout != 0 && s.expired(touched, s.nowSeconds()) {
		s.metrics.Miss()
		return Entry[V]{}, false
	}
	s.metrics.Hit()
	return Entry[V]{Value: val, Touched: time.Unix(touched, 0)}, true
}

// set upserts k under its stripe lock. The list lock is taken inside the
// stripe lock, never the other way round.
func (s *Shard[K, V]) set(k K, hash uint64, v V) bool {
	now := s.nowSeconds()
	st := s.index.stripeFor(hash)
	st.mu.Lock()
	defer st.mu.Unlock()

	if r, ok := st.m[k]; ok {
		r.val = v
		r.touched = now
		s.mu.Lock()
		if s.list.moveToFront(r.node, now) {
			s.mu.Unlock()
			return true
		}
		// An eviction pass delinked the node but has not erased the record
		// yet. Relink under a fresh node; the evictor sees a different handle
		// and leaves the record in place.
		r.node = s.list.pushNew(k, hash, now)
		s.mu.Unlock()
		s.size.Add(1)
		return true
	}

	s.mu.Lock()
	h := s.list.pushNew(k, hash, now)
	s.mu.Unlock()
	st.m[k] = &record[V]{val: v, touched: now, node: h}
	// Count only once the node is reachable, so evictors never run ahead
	// of the insert.
	s.size.Add(1)
	return true
}

func (s *Shard[K, V]) appendSnapshot(dst []K) []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.appendKeys(dst)
}

func (s *Shard[K, V]) expired(touched, now int64) bool {
	return s.timeout != 0 && now-touched > s.timeout
}

func (s *Shard[K, V]) nowSeconds() int64 {
	return s.clock.NowUnixNano() / int64(time.Second)
}

// keyHash carries a key together with its precomputed hash.
type keyHash[K comparable] struct {
	key  K
	hash uint64
}

// insertKeys upserts the listed keys, reading values from data, and
// requests a single eviction pass.
func (s *Shard[K, V]) insertKeys(keys []keyHash[K], data map[K]V) {
	for _, kh := range keys {
		s.set(kh.key, kh.hash, data[kh.key])
	}
	s.scheduleEvict()
}
