// Package batch implements the batch eviction policy: one pass keeps
// removing from the tail, overload first and expired entries second, until
// neither trigger holds or the per-pass limit is reached.
package batch

import "github.com/IvanBrykalov/lrucache/policy"

type batch struct {
	h     policy.Hooks
	limit int
}

type batchPolicy struct {
	limit int
}

// New returns a batch policy factory removing at most limit entries per
// pass. limit is clamped to [1, policy.MaxEvictBatch]; 0 selects the maximum.
func New(limit int) policy.Policy {
	if limit <= 0 || limit > policy.MaxEvictBatch {
		limit = policy.MaxEvictBatch
	}
	return batchPolicy{limit: limit}
}

func (p batchPolicy) New(h policy.Hooks) policy.ShardPolicy {
	return &batch{h: h, limit: p.limit}
}

// Pass drains overload first, then expired tails, sharing one budget.
// It stops early when a removal finds nothing to remove.
func (p *batch) Pass() int {
	removed := 0
	for removed < p.limit && p.h.Overloaded() {
		if !p.h.RemoveTail(false) {
			break
		}
		removed++
	}
	for removed < p.limit && p.h.TailExpired() {
		if !p.h.RemoveTail(true) {
			break
		}
		removed++
	}
	return removed
}
