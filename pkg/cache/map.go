package cache

import "sync"

// Map is a lazily filled collection of values computed from their key.
// Invalidate drops every entry.
type Map[K comparable, V any] struct {
	producer  func(K) (V, error)
	enabled   func() bool
	untracked bool

	mu    sync.RWMutex
	epoch uint64
	items map[K]V
}

// NewMap returns a Map registered in scope of b. While enabled returns
// false values are computed on every Get and nothing is stored. A nil
// enabled always caches. The switch is the owner's, Map does not look at
// the caching options of b. A Map of a closed bucket never stores values.
func NewMap[K comparable, V any](b *Bucket, scope Scope, enabled func() bool, producer func(K) (V, error)) *Map[K, V] {
	c := &Map[K, V]{producer: producer, enabled: enabled}
	if b != nil {
		c.untracked = !registerWeak(b, scope, c, (*Map[K, V]).Invalidate)
	}
	return c
}

// Get returns the value for k, computing it if it is not cached.
func (c *Map[K, V]) Get(k K) (V, error) {
	if c.untracked || (c.enabled != nil && !c.enabled()) {
		return c.producer(k)
	}
	c.mu.RLock()
	v, ok := c.items[k]
	epoch := c.epoch
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := c.producer(k)
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		if c.items == nil {
			c.items = make(map[K]V)
		}
		c.items[k] = v
	}
	c.mu.Unlock()
	return v, nil
}

// Len returns the number of cached entries.
func (c *Map[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Invalidate drops every cached entry.
func (c *Map[K, V]) Invalidate() {
	c.mu.Lock()
	c.epoch++
	c.items = nil
	c.mu.Unlock()
}
