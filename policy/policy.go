// Package policy defines how a shard's eviction pass decides what to remove.
//
// Victims always come from the tail (least-recently written end) of the
// shard's recency list; a policy only decides how many removals a pass
// performs and in which order the triggers are checked.
package policy

// MaxEvictBatch caps the number of removals a single pass may perform.
const MaxEvictBatch = 64

// Hooks expose the shard operations a policy needs. Implementations are
// provided by the shard and do their own locking.
type Hooks interface {
	// Overloaded reports whether the approximate size exceeds capacity.
	Overloaded() bool
	// TailExpired reports whether the current tail is older than the
	// shard's timeout. Always false when TTL is disabled.
	TailExpired() bool
	// RemoveTail unlinks and erases the current tail. With expiredOnly the
	// removal happens only if the tail is still expired once the list lock
	// is held. It returns false when nothing was removed.
	RemoveTail(expiredOnly bool) bool
}

// ShardPolicy is a per-shard policy instance bound to shard hooks.
// Pass is never called concurrently for the same shard.
type ShardPolicy interface {
	// Pass runs one eviction pass and returns how many entries it removed.
	Pass() int
}

// Policy is a factory that binds a policy to a shard's hooks.
type Policy interface {
	New(Hooks) ShardPolicy
}
