package cache

import (
	"sync"

	"github.com/IvanBrykalov/lrucache/internal/util"
)

// record is the index side of an entry. touched mirrors the list node's
// timestamp so lookups can judge expiry without the list lock.
type record[V any] struct {
	val     V
	touched int64 // unix seconds of the last write
	node    handle
}

// stripe is one independently locked bucket of the index.
type stripe[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*record[V]
	_  util.CacheLinePad
}

// hashIndex maps keys to records. Keys are spread over stripes by the low
// bits of their hash, so operations on keys in different stripes never
// contend; operations on one key serialize on its stripe lock.
type hashIndex[K comparable, V any] struct {
	stripes []stripe[K, V]
	mask    uint64
}

func newHashIndex[K comparable, V any](stripes, capacity int) *hashIndex[K, V] {
	n := int(util.NextPow2(uint64(max(stripes, 1))))
	ix := &hashIndex[K, V]{
		stripes: make([]stripe[K, V], n),
		mask:    uint64(n - 1),
	}
	per := capacity / n
	for i := range ix.stripes {
		ix.stripes[i].m = make(map[K]*record[V], per)
	}
	return ix
}

func (ix *hashIndex[K, V]) stripeFor(hash uint64) *stripe[K, V] {
	return &ix.stripes[hash&ix.mask]
}

// eraseIf removes k only while it still points at node h. A record that was
// relinked under a new node by a concurrent write is left alone.
func (ix *hashIndex[K, V]) eraseIf(k K, hash uint64, h handle) bool {
	st := ix.stripeFor(hash)
	st.mu.Lock()
	defer st.mu.Unlock()

	r, ok := st.m[k]
	if !ok || r.node != h {
		return false
	}
	delete(st.m, k)
	return true
}

// len counts records exactly, stripe by stripe. Meant for tests and
// diagnostics, not the hot path.
func (ix *hashIndex[K, V]) len() int {
	total := 0
	for i := range ix.stripes {
		st := &ix.stripes[i]
		st.mu.RLock()
		total += len(st.m)
		st.mu.RUnlock()
	}
	return total
}

func (ix *hashIndex[K, V]) clear() {
	for i := range ix.stripes {
		st := &ix.stripes[i]
		st.mu.Lock()
		clear(st.m)
		st.mu.Unlock()
	}
}
