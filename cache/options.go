package cache

import (
	"context"
	"time"

	"github.com/go-kit/log"

	"github.com/IvanBrykalov/lrucache/policy"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictOverload: the shard held more entries than its capacity.
	EvictOverload EvictReason = iota
	// EvictTTL: the entry was older than the configured timeout.
	EvictTTL
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	default:
		return "overload"
	}
}

// Metrics exposes cache-level observability hooks.
// NoopMetrics is used when none is configured.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Size reports the approximate entry count of one shard after an
	// eviction pass.
	Size(shard int, entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
// Entries are timestamped with whole seconds derived from it.
type Clock interface{ NowUnixNano() int64 }

// Launcher runs background tasks. Launch must not block; it reports
// whether the task was accepted. See package launch for implementations.
type Launcher interface {
	Launch(task func()) bool
}

// Options configures the cache behavior. Zero values are safe;
// sane defaults are applied by the constructors:
//   - Shards <= 0     => one shard per CPU
//   - nil Policy      => evict-one
//   - nil Launcher    => a bounded launch.Pool owned by the cache
//     (NewShard uses launch.Go instead)
//   - nil Metrics     => NoopMetrics
//   - nil Logger      => no-op logger
type Options[K comparable, V any] struct {
	// MaxSize is the total entry capacity. Zero is allowed: every insert
	// becomes immediately evictable.
	MaxSize int

	// Timeout is the entry TTL measured from its last write, in whole
	// seconds (a positive value below one second counts as one second).
	// Zero disables expiry.
	Timeout time.Duration

	// Shards is the number of independent shards.
	Shards int

	// Policy controls how much an eviction pass removes.
	Policy policy.Policy

	// Launcher runs eviction passes in the background.
	Launcher Launcher
	// Workers and QueueDepth size the default pool when Launcher is nil.
	// Zero picks one worker per shard and a queue of one slot per shard.
	Workers    int
	QueueDepth int

	// Hasher overrides the key hash used for shard routing and stripe
	// selection. Nil => xxhash-based default.
	Hasher func(K) uint64

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	Metrics Metrics
	Logger  log.Logger

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}

// timeoutSeconds converts Timeout to whole seconds, rounding a positive
// sub-second value up to one.
func (o *Options[K, V]) timeoutSeconds() int64 {
	if o.Timeout <= 0 {
		return 0
	}
	s := int64(o.Timeout / time.Second)
	if s == 0 {
		s = 1
	}
	return s
}

type wallClock struct{}

func (wallClock) NowUnixNano() int64 { return time.Now().UnixNano() }
