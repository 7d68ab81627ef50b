// Package singleflight coalesces concurrent loads of the same key.
package singleflight

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Group runs fn at most once per key among concurrent callers. The first
// caller for a key becomes the leader; the rest wait for its result.
//
// A follower whose ctx is cancelled stops waiting and returns ctx.Err();
// the leader keeps running fn.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

// errGoexit is handed to waiters when the loader called runtime.Goexit.
var errGoexit = errors.New("singleflight: load called runtime.Goexit")

type call[V any] struct {
	done chan struct{} // closed once val/err are published
	val  V
	err  error
	dups int
}

// Do executes fn for key unless a call for key is already in flight, in
// which case it waits for that call. shared reports whether the result was
// handed to more than one caller.
//
// A panic in fn is turned into an error for every waiter and re-raised in the
// leader. If fn calls runtime.Goexit, waiters get an error and the leader's
// goroutine exits.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			var zero V
			return zero, true, ctx.Err()
		}
	}
	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)

	g.mu.Lock()
	shared = c.dups > 0
	g.mu.Unlock()
	return c.val, shared, c.err
}

// Forget drops the in-flight marker for key; the next Do starts a new call
// even if the current one has not returned yet.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	normal, recovered := false, false
	var r any
	defer func() {
		if !normal && !recovered {
			// fn called runtime.Goexit; let it keep unwinding
			c.err = errGoexit
		}
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
		close(c.done)
		if recovered {
			panic(r)
		}
	}()

	func() {
		defer func() {
			if !normal {
				// Goexit makes recover return nil and is not stopped by it.
				if r = recover(); r != nil {
					c.err = errors.Errorf("singleflight: load panicked: %v", r)
				}
			}
		}()
		c.val, c.err = fn()
		normal = true
	}()
	if !normal {
		recovered = true
	}
}
