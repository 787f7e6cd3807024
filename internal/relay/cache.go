package relay

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// ChatID identifies the group being announced.
type ChatID int64

// Cache maps recently announced chats to their absolute expiry.
//
// Entries are removed only by Prune; Contains does not consult the clock, so
// callers prune first.
type Cache struct {
	mu      sync.Mutex
	entries map[ChatID]time.Time
}

func NewCache() *Cache {
	return &Cache{entries: map[ChatID]time.Time{}}
}

// Prune drops every entry whose expiry is <= now and returns the removed ids.
func (c *Cache) Prune(now time.Time) []ChatID {
	c.mu.Lock()
	defer c.mu.Unlock()
	expired := lo.Keys(lo.PickBy(c.entries, func(_ ChatID, exp time.Time) bool {
		return !exp.After(now)
	}))
	for _, id := range expired {
		delete(c.entries, id)
	}
	return expired
}

func (c *Cache) Contains(id ChatID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Expiry returns the stored expiry for id.
func (c *Cache) Expiry(id ChatID) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.entries[id]
	return exp, ok
}

// MarkAnnounced sets the expiry of id to now+ttl, overwriting any previous value.
func (c *Cache) MarkAnnounced(id ChatID, now time.Time, ttl time.Duration) {
	c.mu.Lock()
	c.entries[id] = now.Add(ttl)
	c.mu.Unlock()
}

// Size may include expired entries until the next Prune.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
