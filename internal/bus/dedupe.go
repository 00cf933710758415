package bus

import (
	"container/list"
	"sync"
	"time"
)

// DedupeCache remembers recently seen message ids so webhook retries do
// not trigger duplicate turns. Entries expire after ttl; the cache also
// holds at most maxEntries, evicting oldest first.
type DedupeCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = oldest
}

type dedupeEntry struct {
	id     string
	seenAt time.Time
}

// NewDedupeCache creates a cache with the given ttl and entry cap.
func NewDedupeCache(ttl time.Duration, maxEntries int) *DedupeCache {
	return &DedupeCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Seen reports whether id was recorded within the ttl, recording it if
// not. Empty ids are never deduplicated.
func (c *DedupeCache) Seen(id string) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.evictExpired(now)

	if el, ok := c.entries[id]; ok {
		if now.Sub(el.Value.(*dedupeEntry).seenAt) < c.ttl {
			return true
		}
		// Expired but not yet evicted: refresh.
		c.order.Remove(el)
		delete(c.entries, id)
	}

	for c.order.Len() >= c.maxEntries {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*dedupeEntry).id)
	}

	c.entries[id] = c.order.PushBack(&dedupeEntry{id: id, seenAt: now})
	return false
}

// Len returns the number of live entries.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired(time.Now())
	return c.order.Len()
}

func (c *DedupeCache) evictExpired(now time.Time) {
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		e := front.Value.(*dedupeEntry)
		if now.Sub(e.seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.entries, e.id)
	}
}
