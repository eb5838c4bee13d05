package cache

import (
	"sync"
	"time"
)

// DefaultStatsTTL is how long per-process resource stats stay fresh
const DefaultStatsTTL = 2 * time.Second

type item[V any] struct {
	value      V
	expiration int64
}

// Cache is a thread-safe in-memory TTL cache
type Cache[V any] struct {
	items map[string]item[V]
	mu    sync.RWMutex
	ttl   time.Duration

	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a new cache with the specified default TTL
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]item[V]),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	go c.cleanup(time.Minute)

	return c
}

// Set stores a value with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{
		value:      value,
		expiration: time.Now().Add(ttl).UnixNano(),
	}
}

// Get retrieves a value that has not expired yet
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	it, found := c.items[key]
	if !found || time.Now().UnixNano() > it.expiration {
		return zero, false
	}
	return it.value, true
}

// GetOrSet retrieves a value or computes and stores it with fn
func (c *Cache[V]) GetOrSet(key string, fn func() (V, error)) (V, error) {
	if value, found := c.Get(key); found {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, value)
	return value, nil
}

// Delete removes a value
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Len returns the number of stored items, expired ones included
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all items
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]item[V])
}

// Close stops the cleanup goroutine
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Cache[V]) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for key, it := range c.items {
		if now > it.expiration {
			delete(c.items, key)
		}
	}
}

// StatsKey returns the cache key for a process's resource stats
func StatsKey(id string) string {
	return "stats:" + id
}
