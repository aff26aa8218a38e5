package rollback

import "sync"

// keyedLocks hands out one mutex per type-key, lazily, so rollback of
// unrelated type-keys never blocks on each other while a single type-key's
// capture/rollback sequence stays serialized.
type keyedLocks struct {
	mu    sync.Mutex
	perKey map[string]*sync.Mutex
}

func newKeyedLocks() keyedLocks {
	return keyedLocks{perKey: make(map[string]*sync.Mutex)}
}

func (c *keyedLocks) lock(key string) {
	c.mu.Lock()
	m, ok := c.perKey[key]
	if !ok {
		m = &sync.Mutex{}
		c.perKey[key] = m
	}
	c.mu.Unlock()
	m.Lock()
}

func (c *keyedLocks) unlock(key string) {
	c.mu.Lock()
	m, ok := c.perKey[key]
	c.mu.Unlock()
	if ok {
		m.Unlock()
	}
}
