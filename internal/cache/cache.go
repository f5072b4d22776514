// Package cache holds the process-wide resolution-aware result cache.
// Entries live for one resolution period, which bounds staleness to the
// same granularity the caller already expects, and are evicted in strict
// least-recently-accessed order once the cache is full.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"sentimentflow/internal/resolution"
)

// Stats counts cache activity since the last Clear.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

type entry struct {
	key          string
	data         interface{}
	ttl          time.Duration
	createdAt    time.Time
	lastAccessed time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// ResolutionCache is a capacity-bounded LRU cache keyed by
// (ticker, resolution). It is constructed once and shared across request
// handlers; all access goes through a single mutex and never blocks on
// store I/O.
type ResolutionCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	stats      Stats
	now        func() time.Time
}

// Option customises a ResolutionCache at construction time.
type Option func(*ResolutionCache)

// WithClock replaces the wall clock, letting tests control expiry.
func WithClock(now func() time.Time) Option {
	return func(c *ResolutionCache) {
		c.now = now
	}
}

func New(maxEntries int, opts ...Option) *ResolutionCache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	c := &ResolutionCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(ticker string, r resolution.Resolution) string {
	return fmt.Sprintf("%s#%s", ticker, r)
}

// Get returns the cached payload for the key, refreshing its recency. An
// expired entry is removed and reported as a miss.
func (c *ResolutionCache) Get(ticker string, r resolution.Resolution) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[cacheKey(ticker, r)]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	ent := elem.Value.(*entry)
	now := c.now()
	if ent.expired(now) {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false
	}

	ent.lastAccessed = now
	c.order.MoveToFront(elem)
	c.stats.Hits++
	return ent.data, true
}

// Set stores a payload with TTL equal to the resolution's duration,
// replacing any existing entry and evicting the least recently used entry
// when at capacity.
func (c *ResolutionCache) Set(ticker string, r resolution.Resolution, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(ticker, r)
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}

	if c.order.Len() >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.stats.Evictions++
		}
	}

	now := c.now()
	ent := &entry{
		key:          key,
		data:         data,
		ttl:          r.Duration(),
		createdAt:    now,
		lastAccessed: now,
	}
	c.entries[key] = c.order.PushFront(ent)
}

// Clear empties the cache and resets statistics.
func (c *ResolutionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.stats = Stats{}
}

// Stats returns a snapshot of the counters.
func (c *ResolutionCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = c.order.Len()
	return s
}

func (c *ResolutionCache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.entries, ent.key)
	c.order.Remove(elem)
}
