package dex

import (
	"sync"

	"ammcore/internal/amm"
	"ammcore/internal/model"
)

// PoolMetaCache caches pool identity and latest known reserves by pool key.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[amm.PoolKey]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[amm.PoolKey]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(key amm.PoolKey) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[key]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(key amm.PoolKey, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[key] = meta
	c.mu.Unlock()
}

// Len returns the number of cached pools.
func (c *PoolMetaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
