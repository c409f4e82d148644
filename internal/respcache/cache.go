package respcache

import (
	"sync"
	"time"

	"github.com/ariadne-ai/aria/internal/intent"
)

// DefaultTTL bounds how long a cached response stays servable.
const DefaultTTL = 300 * time.Second

type entry struct {
	response string
	cachedAt time.Time
}

// Cache is a small time-bounded intent→response store owned by exactly
// one orchestrator. Expired entries are treated as absent and evicted
// lazily on lookup; there is no background sweep.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[intent.Intent]entry
	now     func() time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[intent.Intent]entry),
		now:     time.Now,
	}
}

// Get returns the cached response for in, or ok=false when missing or
// expired. An expired entry is removed on the way out.
func (c *Cache) Get(in intent.Intent) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[in]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.cachedAt) > c.ttl {
		delete(c.entries, in)
		return "", false
	}
	return e.response, true
}

// Put stores response under in, replacing any previous entry.
func (c *Cache) Put(in intent.Intent, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[in] = entry{response: response, cachedAt: c.now()}
}

// Len reports the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
