package procmeta

import (
	"sync"
	"time"
)

type cwdEntry struct {
	dir        string // may be empty: confirmed-unresolved is cached too
	resolvedAt time.Time
}

// cwdCache is a per-pid TTL cache of working-directory lookups. Entries
// older than the TTL are treated as missing and re-resolved.
type cwdCache struct {
	mu      sync.Mutex
	entries map[int32]cwdEntry
	ttl     time.Duration

	now func() time.Time // swappable in tests
}

func newCwdCache(ttl time.Duration) *cwdCache {
	return &cwdCache{
		entries: make(map[int32]cwdEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *cwdCache) get(pid int32) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[pid]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.resolvedAt) >= c.ttl {
		delete(c.entries, pid)
		return "", false
	}
	return e.dir, true
}

func (c *cwdCache) put(pid int32, dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pid] = cwdEntry{dir: dir, resolvedAt: c.now()}
}

// sweep drops expired entries so pids of exited processes do not
// accumulate across cycles.
func (c *cwdCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for pid, e := range c.entries {
		if now.Sub(e.resolvedAt) >= c.ttl {
			delete(c.entries, pid)
		}
	}
}
