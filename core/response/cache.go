package response

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 10 * time.Minute
)

type cacheEntry struct {
	key        string
	unit       Unit
	insertedAt time.Time
	lastAccess time.Time
	element    *list.Element
}

// Cache is the bounded response de-duplication cache: LRU by entry count,
// TTL from insertion, and single-flight generation so N concurrent requests
// for the same key run the generator exactly once and share its result.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	// order keeps the most recently used entry at the front.
	order *list.List

	maxEntries int
	ttl        time.Duration

	flight singleflight.Group
}

func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Cache{
		entries:    map[string]*cacheEntry{},
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// GetOrGenerate returns the cached unit for key if a fresh entry exists.
// Otherwise it runs generate, stores the result when store is true, and
// releases any callers that piled up on the same key in the meantime. The
// second return reports whether the unit came from the cache.
func (c *Cache) GetOrGenerate(key string, generate func() (Unit, error), store bool) (Unit, bool, error) {
	if unit, ok := c.lookup(key); ok {
		return unit, true, nil
	}

	result, err, _ := c.flight.Do(key, func() (any, error) {
		// A previous flight may have stored the entry between our lookup
		// and joining the flight.
		if unit, ok := c.lookup(key); ok {
			return unit, nil
		}

		unit, err := generate()
		if err != nil {
			return Unit{}, err
		}
		if store {
			c.put(key, unit)
		}
		return unit, nil
	})
	if err != nil {
		return Unit{}, false, err
	}

	return result.(Unit), false, nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (Unit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Unit{}, false
	}

	if time.Since(entry.insertedAt) > c.ttl {
		c.removeLocked(entry)
		return Unit{}, false
	}

	entry.lastAccess = time.Now()
	c.order.MoveToFront(entry.element)

	unit := entry.unit
	unit.Source = SourceCache
	return unit, true
}

func (c *Cache) put(key string, unit Unit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.unit = unit
		entry.insertedAt = time.Now()
		entry.lastAccess = time.Now()
		c.order.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		key:        key,
		unit:       unit,
		insertedAt: time.Now(),
		lastAccess: time.Now(),
	}
	entry.element = c.order.PushFront(entry)
	c.entries[key] = entry

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*cacheEntry))
	}
}

func (c *Cache) removeLocked(entry *cacheEntry) {
	c.order.Remove(entry.element)
	delete(c.entries, entry.key)
}
