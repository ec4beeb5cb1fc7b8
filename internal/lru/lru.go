// Package lru provides a thread-safe, size-bounded LRU cache with optional
// per-entry expiry.
package lru

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache is a thread-safe LRU cache. Entries may carry an expiry; expired
// entries are dropped lazily on lookup or when they reach the tail.
type Cache[K comparable, V any] struct {
	maxEntries int
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[K]*entry[K, V]
	head       *entry[K, V] // most recently used
	tail       *entry[K, V] // least recently used
}

type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time // zero means never
	prev    *entry[K, V]
	next    *entry[K, V]
}

// New creates a cache holding at most maxEntries items. A nil clock uses the
// real clock.
func New[K comparable, V any](maxEntries int, clock clockwork.Clock) *Cache[K, V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache[K, V]{
		maxEntries: maxEntries,
		clock:      clock,
		entries:    make(map[K]*entry[K, V]),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.expired(e) {
		c.delete(e)
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

// Put stores value under key. A ttl <= 0 means the entry never expires.
func (c *Cache[K, V]) Put(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = c.clock.Now().Add(ttl)
	}

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry[K, V]{key: key, value: value, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.delete(c.tail)
	}
}

// Len returns the number of stored entries, including any not yet reaped.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expires.IsZero() && !c.clock.Now().Before(e.expires)
}

func (c *Cache[K, V]) moveToFront(e *entry[K, V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *Cache[K, V]) addToFront(e *entry[K, V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[K, V]) remove(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *Cache[K, V]) delete(e *entry[K, V]) {
	if e == nil {
		return
	}
	delete(c.entries, e.key)
	c.remove(e)
}
