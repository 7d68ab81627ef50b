package util

import "runtime"

// RouteShift selects the top 16 bits of a 64-bit hash for shard routing.
// Stripe selection inside a shard uses the low bits, so the two stay
// uncorrelated.
const RouteShift = 64 - 16

// DefaultShardCount is the shard count used when none is configured:
// one shard per logical CPU.
func DefaultShardCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// ShardIndex maps a 64-bit hash to a shard index in [0, shards).
// Only the high bits take part, which keeps the result independent of
// how the low bits are spent elsewhere.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int((hash >> RouteShift) % uint64(shards))
}
