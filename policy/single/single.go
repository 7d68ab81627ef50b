// Package single implements the evict-one policy: each pass removes at most
// one entry for overload and at most one expired entry.
package single

import "github.com/IvanBrykalov/lrucache/policy"

type single struct {
	h policy.Hooks
}

type singlePolicy struct{}

// New returns the evict-one policy factory.
func New() policy.Policy { return singlePolicy{} }

func (singlePolicy) New(h policy.Hooks) policy.ShardPolicy { return &single{h: h} }

// Pass removes the tail once if the shard is overloaded, then once more if
// the (new) tail has expired.
func (p *single) Pass() int {
	removed := 0
	if p.h.Overloaded() && p.h.RemoveTail(false) {
		removed++
	}
	if p.h.TailExpired() && p.h.RemoveTail(true) {
		removed++
	}
	return removed
}
