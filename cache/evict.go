package cache

import (
	"github.com/go-kit/log/level"

	"github.com/IvanBrykalov/lrucache/policy"
)

// Evict runs one eviction pass on the calling goroutine and returns the
// number of removed entries. If another pass is already running on this
// shard it returns 0 immediately.
func (s *Shard[K, V]) Evict() int {
	return s.evict()
}

// scheduleEvict records one eviction request and makes sure a task is
// pending to serve it. At most one task per shard is queued or running;
// requests made meanwhile are counted and served by that task, one pass each.
func (s *Shard[K, V]) scheduleEvict() {
	s.pending.Add(1)
	if !s.scheduled.CompareAndSwap(false, true) {
		return
	}
	if !s.launcher.Launch(s.runScheduled) {
		// requests stay counted; the next accepted task serves them
		s.scheduled.Store(false)
		level.Debug(s.logger).Log("msg", "eviction pass dropped by launcher", "size", s.Size(), "max_size", s.maxSize, "pending", s.pending.Load())
	}
}

// runScheduled runs one pass per outstanding request. A pass that removes
// nothing discards the rest of the requests taken with it: they were all
// made before the pass found the shard within bounds.
func (s *Shard[K, V]) runScheduled() {
	for {
		for n := s.pending.Swap(0); n > 0; n-- {
			if s.evict() == 0 {
				break
			}
		}
		s.scheduled.Store(false)
		// a request that arrived after the last Swap saw scheduled set and
		// did not launch; pick it up here
		if s.pending.Load() == 0 || !s.scheduled.CompareAndSwap(false, true) {
			return
		}
	}
}

// evict is single-flight per shard: a caller losing the race returns at once.
func (s *Shard[K, V]) evict() int {
	if !s.evicting.CompareAndSwap(false, true) {
		return 0
	}
	removed := s.pol.Pass()
	s.evicting.Store(false)

	s.metrics.Size(s.id, s.Size())
	return removed
}

// removeTail removes the least recently written entry in two phases: the
// node is unlinked under the list lock, then the record is erased under its
// stripe lock. The two locks are never held together.
func (s *Shard[K, V]) removeTail(expiredOnly bool) bool {
	s.mu.Lock()
	idx, ok := s.list.back()
	if !ok {
		s.mu.Unlock()
		return false
	}
	if expiredOnly && !s.expired(s.list.nodes[idx].ts, s.nowSeconds()) {
		s.mu.Unlock()
		return false
	}
	n, h, _ := s.list.unlinkBack()
	s.mu.Unlock()

	// Between the phases a Find on this key still hits; that is harmless
	// because the node is no longer reachable from the list.
	s.index.eraseIf(n.key, n.hash, h)
	s.size.Add(-1)

	if expiredOnly {
		s.metrics.Evict(EvictTTL)
	} else {
		s.metrics.Evict(EvictOverload)
	}
	return true
}

func (s *Shard[K, V]) tailExpired() bool {
	if s.timeout == 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.list.back()
	if !ok {
		return false
	}
	return s.expired(s.list.nodes[idx].ts, s.nowSeconds())
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's eviction primitives to policy.Hooks.
type shardHooks[K comparable, V any] struct{ s *Shard[K, V] }

func (h shardHooks[K, V]) Overloaded() bool { return h.s.size.Load() > h.s.maxSize }
func (h shardHooks[K, V]) TailExpired() bool {
	return h.s.tailExpired()
}
func (h shardHooks[K, V]) RemoveTail(expiredOnly bool) bool { return h.s.removeTail(expiredOnly) }

var _ policy.Hooks = shardHooks[string, int]{}
