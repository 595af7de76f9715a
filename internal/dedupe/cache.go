// Package dedupe provides a bounded in-memory cache for suppressing
// duplicate provider deliveries.
package dedupe

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Key builds the canonical dedupe key for a provider message on an account.
func Key(accountID, messageID string) string {
	if messageID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", accountID, messageID)
}

// Cache remembers recently seen message keys for a single channel account.
// Entries expire after the configured TTL and the store is capped at
// maxSize entries, evicting the least recently seen first. A zero TTL
// disables age-based expiry; a zero maxSize disables the cache entirely,
// so every key misses. All methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	key    string
	seenAt time.Time
}

// New creates a Cache with the given entry TTL and size cap.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	if maxSize < 0 {
		maxSize = 0
	}
	return &Cache{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// CheckAndMark reports whether key was already seen within the TTL and
// records it as seen now. The check and the record happen under one lock,
// so concurrent calls with the same key yield exactly one miss. An empty
// key is never recorded and never reported as seen.
func (c *Cache) CheckAndMark(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.seen[key]; ok {
		ent := elem.Value.(*entry)
		if c.ttl == 0 || now.Sub(ent.seenAt) < c.ttl {
			ent.seenAt = now
			c.order.MoveToBack(elem)
			return true
		}
	}
	c.markLocked(key, now)
	c.pruneLocked(now)
	return false
}

// Contains reports whether key is currently recorded and fresh, without
// mutating the cache.
func (c *Cache) Contains(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.seen[key]
	if !ok {
		return false
	}
	if c.ttl == 0 {
		return true
	}
	return c.now().Sub(elem.Value.(*entry).seenAt) < c.ttl
}

// Len returns the number of entries currently recorded.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) markLocked(key string, now time.Time) {
	if elem, ok := c.seen[key]; ok {
		elem.Value.(*entry).seenAt = now
		c.order.MoveToBack(elem)
		return
	}
	c.seen[key] = c.order.PushBack(&entry{key: key, seenAt: now})
}

// pruneLocked drops entries past the TTL, then evicts from the oldest end
// until the size cap holds. With maxSize zero nothing survives, not even
// the key recorded by the current call.
func (c *Cache) pruneLocked(now time.Time) {
	if c.ttl > 0 {
		for elem := c.order.Front(); elem != nil; {
			ent := elem.Value.(*entry)
			if now.Sub(ent.seenAt) < c.ttl {
				break
			}
			next := elem.Next()
			c.order.Remove(elem)
			delete(c.seen, ent.key)
			elem = next
		}
	}
	for c.order.Len() > c.maxSize {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	elem := c.order.Front()
	if elem == nil {
		return
	}
	ent := c.order.Remove(elem).(*entry)
	delete(c.seen, ent.key)
}
