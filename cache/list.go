package cache

// handle addresses a node slot in a recencyList. The generation makes a
// handle go stale once its slot is released, so a slot reused for another
// key is never mistaken for the old one. The zero handle is never valid.
type handle struct {
	idx uint32
	gen uint32
}

type nodeState uint8

const (
	nodeFree nodeState = iota
	nodeLinked
)

// Slots 0 and 1 are the head and tail sentinels.
const (
	headIdx uint32 = 0
	tailIdx uint32 = 1
)

// node is one recency list element. It keeps a copy of the key (and its
// hash) so an evictor can find the index record from a list position.
type node[K comparable] struct {
	key   K
	hash  uint64
	ts    int64 // unix seconds of the last write
	prev  uint32
	next  uint32
	gen   uint32
	state nodeState
}

// recencyList is a doubly linked list stored in a slab of nodes, head = most
// recently written, tail = least recently written. Released slots are kept on
// a free list and reused. Not safe for concurrent use; the shard guards it
// with its list lock.
type recencyList[K comparable] struct {
	nodes []node[K]
	free  []uint32
	n     int
}

func newRecencyList[K comparable](capacity int) recencyList[K] {
	if capacity < 0 {
		capacity = 0
	}
	l := recencyList[K]{nodes: make([]node[K], 2, capacity+2)}
	l.reset()
	return l
}

// reset drops every node. Slot generations survive so handles issued
// before the reset stay stale.
func (l *recencyList[K]) reset() {
	var zero K
	l.free = l.free[:0]
	for idx := uint32(len(l.nodes)) - 1; idx > tailIdx; idx-- {
		n := &l.nodes[idx]
		n.key, n.state, n.prev, n.next = zero, nodeFree, 0, 0
		l.free = append(l.free, idx)
	}
	l.nodes[headIdx] = node[K]{prev: headIdx, next: tailIdx, state: nodeLinked}
	l.nodes[tailIdx] = node[K]{prev: headIdx, next: tailIdx, state: nodeLinked}
	l.n = 0
}

// pushNew stores key in a fresh slot linked at the head.
func (l *recencyList[K]) pushNew(key K, hash uint64, ts int64) handle {
	var idx uint32
	if k := len(l.free); k > 0 {
		idx = l.free[k-1]
		l.free = l.free[:k-1]
	} else {
		l.nodes = append(l.nodes, node[K]{})
		idx = uint32(len(l.nodes) - 1)
	}
	n := &l.nodes[idx]
	n.key, n.hash, n.ts = key, hash, ts
	n.gen++
	if n.gen == 0 { // wrapped; zero is reserved for "no handle"
		n.gen = 1
	}
	l.pushFront(idx)
	return handle{idx: idx, gen: n.gen}
}

// valid reports whether h still names a linked node.
func (l *recencyList[K]) valid(h handle) bool {
	if h.gen == 0 || h.idx <= tailIdx || int(h.idx) >= len(l.nodes) {
		return false
	}
	n := &l.nodes[h.idx]
	return n.gen == h.gen && n.state == nodeLinked
}

// moveToFront refreshes the timestamp of h and relinks it at the head.
// It returns false if h is stale.
func (l *recencyList[K]) moveToFront(h handle, ts int64) bool {
	if !l.valid(h) {
		return false
	}
	l.nodes[h.idx].ts = ts
	if l.nodes[headIdx].next == h.idx {
		return true
	}
	l.delink(h.idx)
	l.pushFront(h.idx)
	return true
}

// back returns the least recently written node, if any.
func (l *recencyList[K]) back() (uint32, bool) {
	idx := l.nodes[tailIdx].prev
	if idx == headIdx {
		return 0, false
	}
	return idx, true
}

// unlinkBack delinks and releases the tail node, returning a copy of it
// and the handle it was linked under.
func (l *recencyList[K]) unlinkBack() (node[K], handle, bool) {
	idx, ok := l.back()
	if !ok {
		return node[K]{}, handle{}, false
	}
	n := l.nodes[idx]
	h := handle{idx: idx, gen: n.gen}
	l.delink(idx)
	l.release(idx)
	return n, h, true
}

func (l *recencyList[K]) len() int { return l.n }

// appendKeys appends keys head to tail.
func (l *recencyList[K]) appendKeys(dst []K) []K {
	for idx := l.nodes[headIdx].next; idx != tailIdx; idx = l.nodes[idx].next {
		dst = append(dst, l.nodes[idx].key)
	}
	return dst
}

func (l *recencyList[K]) pushFront(idx uint32) {
	first := l.nodes[headIdx].next
	n := &l.nodes[idx]
	n.prev = headIdx
	n.next = first
	n.state = nodeLinked
	l.nodes[first].prev = idx
	l.nodes[headIdx].next = idx
	l.n++
}

func (l *recencyList[K]) delink(idx uint32) {
	n := &l.nodes[idx]
	l.nodes[n.prev].next = n.next
	l.nodes[n.next].prev = n.prev
	n.state = nodeFree
	l.n--
}

// release returns a delinked slot to the free list. The key is zeroed so
// the slab does not pin memory the caller no longer references.
func (l *recencyList[K]) release(idx uint32) {
	n := &l.nodes[idx]
	if n.state == nodeLinked {
		l.nodes[n.prev].next = n.next
		l.nodes[n.next].prev = n.prev
		l.n--
	}
	var zero K
	n.key = zero
	n.state = nodeFree
	n.prev, n.next = 0, 0
	l.free = append(l.free, idx)
}
