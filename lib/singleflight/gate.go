// Package singleflight provides a FIFO mutual-exclusion gate for the
// document-retrieval path: the portal does not tolerate concurrent
// authenticated sessions, so only one PDF fetch may drive a browser at
// a time. Unlike a plain mutex, waiters are served strictly in arrival
// order and ownership is handed to the next waiter directly on release,
// without a window where the gate appears idle.
package singleflight

import (
	"context"
	"sync"
)

type waiter chan struct{}

type Gate struct {
	mu      sync.Mutex
	busy    bool
	waiters []waiter
}

func NewGate() *Gate {
	return &Gate{}
}

// Acquire takes the gate, blocking in FIFO order behind earlier callers.
// If ctx is cancelled while waiting the waiter is removed from the
// queue; when cancellation races with a hand-off that already happened,
// ownership is passed on to the next waiter instead of being leaked.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	w := make(waiter)
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, q := range g.waiters {
			if q == w {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// the hand-off fired before we could withdraw: we own the gate
		g.Release()
		return ctx.Err()
	}
}

// Release passes the gate to the head of the wait list, or marks it
// idle when nobody is waiting. Calling Release without holding the
// gate is a programming error.
func (g *Gate) Release() {
	g.mu.Lock()
	if len(g.waiters) > 0 {
		w := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.mu.Unlock()
		// busy stays true: ownership transfers directly
		close(w)
		return
	}
	g.busy = false
	g.mu.Unlock()
}

// Busy reports whether the gate is currently held.
func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// Len reports the number of queued waiters.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
