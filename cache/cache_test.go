package cache

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/lrucache/launch"
)

// Uses a fake clock to avoid timing flakiness.
// Ensures that the cache-wide timeout is respected.
func TestCache_TTL_FakeClock(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	c := New[string, string](Options[string, string]{MaxSize: 4, Timeout: time.Second, Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("x", "v")
	if _, ok := c.Get("x"); !ok {
		t.Fatal("fresh miss")
	}
	clk.add(2 * time.Second)
	if _, ok := c.Get("x"); ok {
		t.Fatal("expired hit")
	}
	if c.Contains("x") {
		t.Fatal("Contains must agree with Get")
	}
}

// Basic Set/Get/Contains semantics. Set always overwrites.
func TestCache_BasicSetGet(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{MaxSize: 8})
	t.Cleanup(func() { _ = c.Close() })

	if !c.Set("a", 1) {
		t.Fatal("Set a=1 must be true")
	}
	if !c.Set("a", 11) {
		t.Fatal("Set a=11 must be true")
	}
	if v, ok := c.Get("a"); !ok || v != 11 {
		t.Fatalf("Get a want 11, got %v ok=%v", v, ok)
	}
	if !c.Contains("a") || c.Contains("b") {
		t.Fatal("Contains mismatch")
	}
	if got := c.Size(); got != 1 {
		t.Fatalf("Size want 1, got %d", got)
	}
}

// Deterministic eviction: single shard, small capacity, inline passes.
// Reading "a" does not promote it, so inserting "c" evicts "a".
func TestCache_EvictionByWriteOrder(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{
		MaxSize:  2,
		Shards:   1, // force a single shard so LRU is global
		Launcher: launch.Inline{},
	})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1) // LRU = a
	c.Set("b", 2) // MRU = b

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expect hit for a")
	}
	c.Set("c", 3) // overflow -> evict LRU (a)

	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b must survive")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("c must be present")
	}
	require.Equal(t, []string{"c", "b"}, c.Keys())
}

func TestCache_MSetMGet(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{MaxSize: 1_000, Shards: 4, Launcher: launch.Inline{}})
	t.Cleanup(func() { _ = c.Close() })

	data := make(map[string]int, 100)
	for i := 0; i < 100; i++ {
		data[fmt.Sprintf("k%03d", i)] = i
	}
	c.MSet(data)
	require.Equal(t, 100, c.Size())

	found, missing := c.MGet([]string{"k001", "nope", "k050", "zzz"})
	require.Equal(t, map[string]int{"k001": 1, "k050": 50}, found)
	require.Equal(t, []string{"nope", "zzz"}, missing, "missing keys keep input order")

	keys := c.Keys()
	sort.Strings(keys)
	want := make([]string, 0, len(data))
	for k := range data {
		want = append(want, k)
	}
	sort.Strings(want)
	require.Equal(t, want, keys)
}

func TestCache_MGetAllMissing(t *testing.T) {
	t.Parallel()

	c := New[int, int](Options[int, int]{MaxSize: 4})
	t.Cleanup(func() { _ = c.Close() })

	found, missing := c.MGet([]int{1, 2})
	require.Empty(t, found)
	require.Equal(t, []int{1, 2}, missing)

	found, missing = c.MGet(nil)
	require.Empty(t, found)
	require.Nil(t, missing)
}

// Singleflight test: concurrent GetOrLoad calls for the same key
// should trigger the Loader at most once; subsequent calls are cache hits.
func TestCache_GetOrLoad_Singleflight(t *testing.T) {
	var calls int64

	c := New[string, string](Options[string, string]{
		MaxSize: 64,
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(5 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.GetOrLoad(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader must run exactly once, got %d", got)
	}

	if v, err := c.GetOrLoad(context.Background(), "k"); err != nil || v != "v:k" {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("cached value must not reload, got %d calls", got)
	}
}

func TestCache_GetOrLoad_NoLoader(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{MaxSize: 4})
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.GetOrLoad(context.Background(), "k")
	require.ErrorIs(t, err, ErrNoLoader)

	// a cached value is returned even without a loader
	c.Set("k", 3)
	v, err := c.GetOrLoad(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestCache_GetOrLoad_LoaderError(t *testing.T) {
	t.Parallel()

	errBackend := errors.New("backend down")
	c := New[string, int](Options[string, int]{
		MaxSize: 4,
		Loader: func(context.Context, string) (int, error) {
			return 0, errBackend
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.GetOrLoad(context.Background(), "k")
	require.Error(t, err)
	require.Equal(t, errBackend, errors.Cause(err))
	require.False(t, c.Contains("k"), "failed loads are not cached")
}

func TestCache_ClosedIgnoresWrites(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{MaxSize: 4})
	c.Set("a", 1)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")

	require.False(t, c.Set("b", 2))
	c.MSet(map[string]int{"c": 3})
	require.False(t, c.Contains("b"))
	require.False(t, c.Contains("c"))

	v, ok := c.Get("a")
	require.True(t, ok, "reads keep working after Close")
	require.Equal(t, 1, v)
}

func TestNew_NegativeMaxSizePanics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { New[string, int](Options[string, int]{MaxSize: -1}) })
	require.Panics(t, func() { NewShard[string, int](-1, Options[string, int]{}) })
}

// Plain Set calls against the default configuration stay within MaxSize
// once background eviction catches up.
func TestCache_DefaultsEnforceCapacity(t *testing.T) {
	const maxSize = 100
	c := New[int, int](Options[int, int]{MaxSize: maxSize, Shards: 4})
	t.Cleanup(func() { _ = c.Close() })

	for i := 0; i < 10_000; i++ {
		c.Set(i, i)
	}
	require.Eventually(t, func() bool { return c.Size() <= maxSize }, 5*time.Second, time.Millisecond)
	require.True(t, c.Contains(9_999))
}

func TestCache_DefaultsEnforceCapacityConcurrently(t *testing.T) {
	const maxSize = 256
	c := New[int, int](Options[int, int]{MaxSize: maxSize, Shards: 8})
	t.Cleanup(func() { _ = c.Close() })

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 5_000; i++ {
				c.Set(w*5_000+i, i)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Eventually(t, func() bool { return c.Size() <= maxSize }, 5*time.Second, time.Millisecond)
}
