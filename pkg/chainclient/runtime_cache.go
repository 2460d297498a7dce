package chainclient

import (
	"sync"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// runtimeInfo is what signing an extrinsic needs from the chain
type runtimeInfo struct {
	meta    *types.Metadata
	version *types.RuntimeVersion
	genesis types.Hash
}

// runtimeCache keeps the runtime metadata and version so they are not fetched
// for every extrinsic. Entries older than the TTL are reloaded, which picks up
// runtime upgrades on a long-lived connection.
type runtimeCache struct {
	mu       sync.RWMutex
	cached   *runtimeInfo
	loadedAt time.Time
	cacheTTL time.Duration
	load     func() (*runtimeInfo, error)
	now      func() time.Time
}

// newRuntimeCache creates a cache around a loader
func newRuntimeCache(cacheTTL time.Duration, load func() (*runtimeInfo, error)) *runtimeCache {
	return &runtimeCache{
		cacheTTL: cacheTTL,
		load:     load,
		now:      time.Now,
	}
}

func (c *runtimeCache) fresh() *runtimeInfo {
	if c.cached == nil || c.now().Sub(c.loadedAt) > c.cacheTTL {
		return nil
	}
	return c.cached
}

// Get returns the cached runtime, loading it if missing or stale
func (c *runtimeCache) Get() (*runtimeInfo, error) {
	c.mu.RLock()
	info := c.fresh()
	c.mu.RUnlock()
	if info != nil {
		return info, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// another caller may have reloaded meanwhile
	if info := c.fresh(); info != nil {
		return info, nil
	}
	info, err := c.load()
	if err != nil {
		return nil, err
	}
	c.cached = info
	c.loadedAt = c.now()
	return info, nil
}

// Invalidate drops the cached runtime
func (c *runtimeCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}
