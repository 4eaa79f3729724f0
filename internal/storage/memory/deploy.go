package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/static-mirror/internal/deployer"
)

// DeployQueue is an in-memory deploy worklist keyed by local path.
type DeployQueue struct {
	mu    sync.RWMutex
	items map[string]deployer.Item
}

// NewDeployQueue constructs an empty DeployQueue.
func NewDeployQueue() *DeployQueue {
	return &DeployQueue{items: make(map[string]deployer.Item)}
}

// Add inserts or replaces items.
func (q *DeployQueue) Add(_ context.Context, items []deployer.Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range items {
		q.items[it.LocalPath] = it
	}
	return nil
}

// Remaining counts queued items.
func (q *DeployQueue) Remaining(context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items), nil
}

// Batch returns up to limit items ordered by local path.
func (q *DeployQueue) Batch(_ context.Context, limit int) ([]deployer.Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]deployer.Item, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalPath < out[j].LocalPath })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Remove drops the item for localPath.
func (q *DeployQueue) Remove(_ context.Context, localPath string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, localPath)
	return nil
}

// Truncate empties the queue.
func (q *DeployQueue) Truncate(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(map[string]deployer.Item)
	return nil
}

type cacheKey struct {
	pathHash  string
	namespace string
}

// DeployCache is an in-memory content cache.
type DeployCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]deployer.CacheEntry
}

// NewDeployCache constructs an empty DeployCache.
func NewDeployCache() *DeployCache {
	return &DeployCache{entries: make(map[cacheKey]deployer.CacheEntry)}
}

// Get returns the entry for pathHash in namespace.
func (c *DeployCache) Get(_ context.Context, pathHash, namespace string) (deployer.CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{pathHash, namespace}]
	return e, ok, nil
}

// Upsert stores entry, replacing any earlier hash.
func (c *DeployCache) Upsert(_ context.Context, entry deployer.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{entry.PathHash, entry.Namespace}] = entry
	return nil
}

// Clear forgets every entry in namespace.
func (c *DeployCache) Clear(_ context.Context, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.namespace == namespace {
			delete(c.entries, k)
		}
	}
	return nil
}

// Count returns how many entries namespace holds.
func (c *DeployCache) Count(_ context.Context, namespace string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for k := range c.entries {
		if k.namespace == namespace {
			n++
		}
	}
	return n, nil
}
