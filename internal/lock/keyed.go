// Package lock provides in-process mutual exclusion keyed by an identifier.
package lock

import (
	"context"
	"sync"
)

// Keyed is a set of FIFO mutexes, one per key, created on demand and
// dropped once nobody holds or waits for them. Waiters on the same key are
// granted the lock in arrival order. Different keys never contend beyond
// the short bookkeeping section guarded by mu.
type Keyed[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

type entry struct {
	held    bool
	waiters []chan struct{}
}

func NewKeyed[K comparable]() *Keyed[K] {
	return &Keyed[K]{entries: make(map[K]*entry)}
}

// Lock blocks until the lock for key is held or ctx is done. On success the
// returned function releases the lock; it must be called exactly once.
func (k *Keyed[K]) Lock(ctx context.Context, key K) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	if !e.held {
		e.held = true
		k.mu.Unlock()
		return k.releaser(key), nil
	}
	ready := make(chan struct{})
	e.waiters = append(e.waiters, ready)
	k.mu.Unlock()

	select {
	case <-ready:
		return k.releaser(key), nil
	case <-ctx.Done():
		k.mu.Lock()
		for i, w := range e.waiters {
			if w == ready {
				e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
				k.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		k.mu.Unlock()
		// Ownership was handed over while ctx fired; pass it on.
		k.unlock(key)
		return nil, ctx.Err()
	}
}

// Len reports how many keys currently have a holder or waiters.
func (k *Keyed[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Waiters reports how many callers are queued behind the holder of key.
func (k *Keyed[K]) Waiters(key K) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.entries[key]; ok {
		return len(e.waiters)
	}
	return 0
}

func (k *Keyed[K]) releaser(key K) func() {
	var once sync.Once
	return func() { once.Do(func() { k.unlock(key) }) }
}

func (k *Keyed[K]) unlock(key K) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok || !e.held {
		panic("lock: unlock of unlocked key")
	}
	if len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		close(next)
		return
	}
	delete(k.entries, key)
}
