// Package cache holds approved transactions in memory until they are
// cancelled or their TTL runs out.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[T any] struct {
	value    T
	storedAt time.Time
}

// InMemory is a mutex-guarded map with a per-store TTL. Expired entries are
// invisible to readers immediately and removed by Purge.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
	now   func() time.Time
}

// Option configures an InMemory store.
type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

// New creates a store whose entries live for ttl. A ttl <= 0 keeps entries
// until they are deleted.
func New[T any](ttl time.Duration, opts ...Option) *InMemory[T] {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		now:   o.now,
	}
}

func (c *InMemory[T]) expired(e entry[T], now time.Time) bool {
	return c.ttl > 0 && !now.Before(e.storedAt.Add(c.ttl))
}

// Get returns the live value stored under key.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || c.expired(e, c.now()) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing and re-timing any previous entry.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[T]{value: value, storedAt: c.now()}
}

// Delete removes key. Missing keys are ignored.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Values returns the live values in no particular order.
func (c *InMemory[T]) Values() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make([]T, 0, len(c.items))
	for _, e := range c.items {
		if !c.expired(e, now) {
			out = append(out, e.value)
		}
	}
	return out
}

// Purge drops expired entries and reports how many were removed.
func (c *InMemory[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.items {
		if c.expired(e, now) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Run purges every interval until ctx is done. It returns nil so it can sit
// in an errgroup next to the HTTP server.
func (c *InMemory[T]) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = c.ttl
	}
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Purge()
		}
	}
}
