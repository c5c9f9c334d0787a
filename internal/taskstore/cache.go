package taskstore

import "sync"

// Cache hands out one Store per project root so every writer for a given
// root shares the same write lock.
type Cache struct {
	defaultTag string
	mu         sync.Mutex
	stores     map[string]*Store
}

func NewCache(defaultTag string) *Cache {
	return &Cache{defaultTag: defaultTag, stores: make(map[string]*Store)}
}

func (c *Cache) Get(projectRoot string) *Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stores[projectRoot]
	if !ok {
		s = New(projectRoot, c.defaultTag)
		c.stores[projectRoot] = s
	}
	return s
}
