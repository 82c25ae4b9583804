package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wbrown/janus-traversal/traversal"
)

// CacheOptions configures a Cache
type CacheOptions struct {
	MaxSize int                          // Maximum cached estimates (default 1000)
	TTL     time.Duration                // Lifetime of an estimate (default 5 minutes)
	KeyFunc func(*traversal.Node) string // Cache key of a node (default: label, else node id)
}

// Cache shares estimates of a slower oracle across planning calls. Nodes
// with the same key are assumed to have the same estimate. Safe for
// concurrent use.
type Cache struct {
	oracle  Oracle
	keyFunc func(*traversal.Node) string

	cache map[string]*cachedEstimate
	mu    sync.RWMutex

	// Statistics
	hits   int64
	misses int64

	// Configuration
	maxSize int
	ttl     time.Duration
}

type cachedEstimate struct {
	estimate  float64
	timestamp time.Time
}

// NewCache wraps oracle with a shared estimate cache
func NewCache(oracle Oracle, opts CacheOptions) *Cache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1000 // Default to 1000 cached estimates
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute // Default to 5 minute TTL
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = defaultKey
	}

	return &Cache{
		oracle:  oracle,
		keyFunc: opts.KeyFunc,
		cache:   make(map[string]*cachedEstimate),
		maxSize: opts.MaxSize,
		ttl:     opts.TTL,
	}
}

func defaultKey(n *traversal.Node) string {
	if n.Label != "" {
		return "label:" + n.Label
	}
	return "node:" + n.ID.String()
}

// Estimate implements Oracle. Errors from the wrapped oracle are returned
// unchanged and never cached.
func (c *Cache) Estimate(ctx context.Context, node *traversal.Node) (float64, error) {
	key := c.keyFunc(node)
	if est, ok := c.get(key); ok {
		return est, nil
	}

	est, err := c.oracle.Estimate(ctx, node)
	if err != nil {
		return 0, err
	}
	c.set(key, est)
	return est, nil
}

// get retrieves a cached estimate if it exists and is not expired
func (c *Cache) get(key string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.cache[key]
	if !ok || time.Since(cached.timestamp) > c.ttl {
		// Expired entries are dropped lazily on set
		atomic.AddInt64(&c.misses, 1)
		return 0, false
	}

	atomic.AddInt64(&c.hits, 1)
	return cached.estimate, true
}

func (c *Cache) set(key string, est float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= c.maxSize {
		c.evictExpired()

		// If still full, evict oldest
		if len(c.cache) >= c.maxSize {
			c.evictOldest()
		}
	}

	c.cache[key] = &cachedEstimate{
		estimate:  est,
		timestamp: time.Now(),
	}
}

// Invalidate drops every cached estimate, e.g. after the statistics changed
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cachedEstimate)
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Stats returns cache statistics
func (c *Cache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), len(c.cache)
}

// evictExpired removes expired entries from the cache
func (c *Cache) evictExpired() {
	now := time.Now()
	for key, cached := range c.cache {
		if now.Sub(cached.timestamp) > c.ttl {
			delete(c.cache, key)
		}
	}
}

// evictOldest removes the oldest entry from the cache
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, cached := range c.cache {
		if oldestKey == "" || cached.timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = cached.timestamp
		}
	}

	if oldestKey != "" {
		delete(c.cache, oldestKey)
	}
}
