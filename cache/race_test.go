package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/IvanBrykalov/lrucache/policy/batch"
)

// A mixed workload of concurrent Set/Get/MSet/MGet on random keys, with
// background eviction on the default pool. Should pass under `-race`
// without detector reports and leave no goroutines behind.
func TestRace_Basic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for _, tc := range []struct {
		name string
		opt  Options[string, []byte]
	}{
		{"one", Options[string, []byte]{MaxSize: 8_192, Shards: 32, Timeout: time.Second}},
		{"batch", Options[string, []byte]{MaxSize: 8_192, Shards: 32, Timeout: time.Second, Policy: batch.New(0)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := New[string, []byte](tc.opt)
			defer func() { _ = c.Close() }()

			workers := 4 * runtime.GOMAXPROCS(0)
			keyspace := 50_000
			deadline := time.Now().Add(time.Second)

			var wg sync.WaitGroup
			wg.Add(workers)
			for w := 0; w < workers; w++ {
				go func(id int) {
					defer wg.Done()
					r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
					for time.Now().Before(deadline) {
						k := "k:" + strconv.Itoa(r.Intn(keyspace))
						switch r.Intn(100) {
						case 0, 1, 2, 3, 4: // ~5% MSet
							kv := make(map[string][]byte, 8)
							for i := 0; i < 8; i++ {
								kv["k:"+strconv.Itoa(r.Intn(keyspace))] = []byte("b")
							}
							c.MSet(kv)
						case 5, 6, 7, 8, 9: // ~5% MGet
							c.MGet([]string{k, "k:" + strconv.Itoa(r.Intn(keyspace))})
						case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% Set
							c.Set(k, []byte("x"))
						default: // ~80% Get
							c.Get(k)
						}
					}
				}(w)
			}
			wg.Wait()
		})
	}
}

// One hundred goroutines call GetOrLoad on the same key concurrently.
// The Loader should run at most once (singleflight coalescing).
func TestRace_GetOrLoad(t *testing.T) {
	var calls int64

	c := New[string, string](Options[string, string]{
		MaxSize: 1024,
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(2 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrLoad(context.Background(), key)
			if err != nil {
				t.Errorf("GetOrLoad error: %v", err)
				return
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got > 1 {
		t.Fatalf("loader should run at most once, got %d", got)
	}

	// Subsequent call should be a pure cache hit.
	if v, err := c.GetOrLoad(context.Background(), key); err != nil || v != "v:"+key {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
}

// Writers hammer a few hot keys on a tiny shard so updates keep racing with
// the two phases of eviction. Afterwards every key still in the index must
// be reachable from the list and vice versa.
func TestRace_UpdatesDuringEviction(t *testing.T) {
	s := NewShard[int, int](4, Options[int, int]{})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 5_000; i++ {
				s.Insert((i+w)%8, i)
			}
		}(w)
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for {
		s.Evict()
		s.mu.RLock()
		listLen := s.list.len()
		s.mu.RUnlock()
		if s.Size() <= 4 && listLen == s.index.len() && listLen == s.Size() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("shard did not settle: size=%d list=%d index=%d", s.Size(), listLen, s.index.len())
		}
		runtime.Gosched()
	}

	for _, k := range s.Snapshot() {
		if _, ok := s.Find(k); !ok {
			t.Fatalf("key %d listed but not indexed", k)
		}
	}
}
