package channel

import (
	"sync"

	"github.com/winbridge/winbridge/wire"
)

// Cache shares one Channel per (Endpoint, secretKey) pair via reference counting, the
// Go analogue of a window-scoped cache keyed on a well-known symbol so multiple bundles
// of a library can coexist without creating duplicate channels for the same window. In
// Go there is no global mutable window object to hang a key off of, so the cache is an
// explicit, ordinary sidecar registry, scoped per wire.Endpoint rather than per
// process: two distinct windows must never share a Channel.
//
// wire.Endpoint implementations are expected to be pointer types (e.g. *wire.LocalBus),
// which makes them valid, distinct Go map keys -- the same identity postMessage uses
// when it compares window references.
type Cache struct {
	mu sync.Mutex
	entries map[cacheKey]*entry
}

type cacheKey struct {
	endpoint wire.Endpoint
	secretKey string
}

type entry struct {
	ch *Channel
	ref int
}

// NewCache returns an empty, process-local cache. Production code typically keeps one
// Cache per process (or per test), mirroring a single window-scoped symbol.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*entry)}
}

// AddRef returns the shared Channel for (self, secretKey), creating it on the first
// call and incrementing a reference count on every call thereafter.
func (c *Cache) AddRef(self wire.Endpoint, secretKey string) *Channel {
	key := cacheKey{endpoint: self, secretKey: secretKey}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.ref++
		return e.ch
	}
	ch := New(self, secretKey)
	c.entries[key] = &entry{ch: ch, ref: 1}
	return ch
}

// Release decrements the reference count for (self, secretKey) and, once it reaches
// zero, unsubscribes the Channel and evicts it from the cache. It returns the resulting
// reference count (0 meaning the Channel was just destroyed).
func (c *Cache) Release(self wire.Endpoint, secretKey string) int {
	key := cacheKey{endpoint: self, secretKey: secretKey}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0
	}
	e.ref--
	if e.ref <= 0 {
		e.ch.Unsubscribe()
		delete(c.entries, key)
		return 0
	}
	return e.ref
}

// RefCount reports the current reference count for (self, secretKey), 0 if absent.
func (c *Cache) RefCount(self wire.Endpoint, secretKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[cacheKey{endpoint: self, secretKey: secretKey}]; ok {
		return e.ref
	}
	return 0
}

// Size reports the number of distinct (endpoint, secretKey) Channels currently cached,
// used by tests verifying that Release leaves no entry behind once refcount hits zero.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
