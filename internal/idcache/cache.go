// Package idcache holds extracted document identifiers for the lifetime
// of a verification run. Entries are keyed by request id and dropped once
// the run reaches a terminal state; a worker that picks up a later phase
// without a cache entry recomputes through GetOrCompute.
package idcache

import (
	"context"
	"sync"
)

// Identifiers maps identifier names to extracted values.
type Identifiers map[string]string

type entry struct {
	once sync.Once
	ids  Identifiers
	err  error
}

// Cache is a concurrent get-or-compute cache of run identifiers.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// GetOrCompute returns the identifiers for a request, computing them at
// most once per cache lifetime. Concurrent callers for the same request
// share a single compute; a failed compute is not cached.
func (c *Cache) GetOrCompute(ctx context.Context, requestID string, compute func(ctx context.Context) (Identifiers, error)) (Identifiers, error) {
	c.mu.Lock()
	e, ok := c.entries[requestID]
	if !ok {
		e = &entry{}
		c.entries[requestID] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.ids, e.err = compute(ctx)
	})

	if e.err != nil {
		// Drop the failed entry so a retry can recompute
		c.mu.Lock()
		if c.entries[requestID] == e {
			delete(c.entries, requestID)
		}
		c.mu.Unlock()
		return nil, e.err
	}

	return e.ids, nil
}

// Peek returns the cached identifiers without computing.
func (c *Cache) Peek(requestID string) (Identifiers, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[requestID]
	if !ok || e.err != nil || e.ids == nil {
		return nil, false
	}
	return e.ids, true
}

// Put stores identifiers directly, overwriting any cached value.
func (c *Cache) Put(requestID string, ids Identifiers) {
	e := &entry{ids: ids}
	e.once.Do(func() {})

	c.mu.Lock()
	c.entries[requestID] = e
	c.mu.Unlock()
}

// Drop removes a request's entry once its run is terminal.
func (c *Cache) Drop(requestID string) {
	c.mu.Lock()
	delete(c.entries, requestID)
	c.mu.Unlock()
}
