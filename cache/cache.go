package cache

import (
	"context"

	"github.com/pkg/errors"

	"github.com/IvanBrykalov/lrucache/internal/singleflight"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
var ErrNoLoader = errors.New("cache: no Loader provided")

type cache[K comparable, V any] struct {
	sc     *Scalable[K, V]
	loader func(ctx context.Context, k K) (V, error)

	// sf coalesces concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]
}

// New constructs a Cache with the provided Options. See Options for the
// defaults applied to zero fields.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	return &cache[K, V]{
		sc:     NewScalable(opt),
		loader: opt.Loader,
	}
}

func (c *cache[K, V]) Get(k K) (V, bool) { return c.sc.Find(k) }

func (c *cache[K, V]) Contains(k K) bool {
	_, ok := c.sc.Find(k)
	return ok
}

func (c *cache[K, V]) MGet(keys []K) (map[K]V, []K) {
	found := make(map[K]V, len(keys))
	var missing []K
	for _, k := range keys {
		if v, ok := c.sc.Find(k); ok {
			found[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	return found, missing
}

func (c *cache[K, V]) Set(k K, v V) bool { return c.sc.Insert(k, v) }

func (c *cache[K, V]) MSet(data map[K]V) { c.sc.InsertBatch(data) }

func (c *cache[K, V]) Size() int { return c.sc.Size() }

func (c *cache[K, V]) Keys() []K { return c.sc.Snapshot() }

func (c *cache[K, V]) Close() error { return c.sc.Close() }

// GetOrLoad checks the cache, then runs the loader once per key across
// concurrent callers. A successful load is stored before it is returned.
func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	if v, ok := c.sc.Find(k); ok {
		return v, nil
	}
	if c.loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	v, _, err := c.sf.Do(ctx, k, func() (V, error) {
		// double-check after winning the flight
		if v, ok := c.sc.Find(k); ok {
			return v, nil
		}
		v, err := c.loader(ctx, k)
		if err != nil {
			return v, errors.Wrap(err, "cache: load")
		}
		c.sc.Insert(k, v)
		return v, nil
	})
	return v, err
}
