// Package cache provides a small in-process read-through cache with a
// bounded freshness window and single-flight de-duplication: concurrent
// callers of a stale entry share one fetch instead of issuing duplicates.
// Instances are injected as dependencies rather than held as globals.
package cache

import (
	"context"
	"sync"
	"time"
)

// FetchFunc loads the cached value from its source of truth.
type FetchFunc[T any] func(ctx context.Context) (T, error)

type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Resource caches a single value with a freshness window.
type Resource[T any] struct {
	mu        sync.Mutex
	fetch     FetchFunc[T]
	ttl       time.Duration
	value     T
	fetchedAt time.Time
	hasValue  bool
	inflight  *call[T]
}

// NewResource creates a resource cache over the given fetch function.
// A non-positive ttl disables caching entirely; every Get fetches.
func NewResource[T any](ttl time.Duration, fetch FetchFunc[T]) *Resource[T] {
	return &Resource[T]{fetch: fetch, ttl: ttl}
}

// Get returns the cached value if it is still fresh, otherwise fetches it.
// Concurrent callers during a fetch block on the same in-flight request.
func (r *Resource[T]) Get(ctx context.Context) (T, error) {
	r.mu.Lock()

	if r.hasValue && r.ttl > 0 && time.Since(r.fetchedAt) < r.ttl {
		v := r.value
		r.mu.Unlock()
		return v, nil
	}

	if r.inflight != nil {
		c := r.inflight
		r.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}

	c := &call[T]{done: make(chan struct{})}
	r.inflight = c
	r.mu.Unlock()

	v, err := r.fetch(ctx)

	r.mu.Lock()
	if err == nil {
		r.value = v
		r.fetchedAt = time.Now()
		r.hasValue = true
	}
	r.inflight = nil
	r.mu.Unlock()

	c.val, c.err = v, err
	close(c.done)

	return v, err
}

// Invalidate discards the cached value so the next Get fetches fresh data.
func (r *Resource[T]) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	r.value = zero
	r.hasValue = false
}

// KeyedFetchFunc loads the cached value for a specific key.
type KeyedFetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Keyed caches one value per string key (e.g. per steam id), each with its
// own freshness window and single-flight de-duplication.
type Keyed[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	fetch   KeyedFetchFunc[T]
	entries map[string]*Resource[T]
}

// NewKeyed creates a keyed resource cache over the given fetch function.
func NewKeyed[T any](ttl time.Duration, fetch KeyedFetchFunc[T]) *Keyed[T] {
	return &Keyed[T]{
		ttl:     ttl,
		fetch:   fetch,
		entries: make(map[string]*Resource[T]),
	}
}

// Get returns the cached value for key, fetching it when stale.
func (k *Keyed[T]) Get(ctx context.Context, key string) (T, error) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = NewResource(k.ttl, func(ctx context.Context) (T, error) {
			return k.fetch(ctx, key)
		})
		k.entries[key] = entry
	}
	k.mu.Unlock()

	return entry.Get(ctx)
}

// Invalidate discards the cached value for key.
func (k *Keyed[T]) Invalidate(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	k.mu.Unlock()
	if ok {
		entry.Invalidate()
	}
}
