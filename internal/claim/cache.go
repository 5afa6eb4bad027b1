package claim

import (
	"sync"
	"time"

	"github.com/set-night/coinledger/internal/domain"
)

// Cache is a read accelerator for instrument lookups by code. It never
// decides a claim: the authoritative store re-confirms every transition with
// a conditional write, and successful claims invalidate the entry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	instrument domain.Instrument
	cachedAt   time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: map[string]cacheEntry{}, ttl: ttl}
}

func (c *Cache) Get(code string) *domain.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[code]
	if !ok || time.Since(e.cachedAt) > c.ttl {
		return nil
	}
	inst := e.instrument
	return &inst
}

func (c *Cache) Set(inst *domain.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[inst.Code] = cacheEntry{instrument: *inst, cachedAt: time.Now()}
}

func (c *Cache) Invalidate(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
}
