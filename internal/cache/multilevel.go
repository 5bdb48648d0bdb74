package cache

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Cache is the idempotency op-cache the sync engine's inbound path
// consults before falling through to the store's processed-ops table.
// It is intentionally narrow to that one job — MarkProcessed/
// WasProcessed — rather than a general key/value cache, since that is
// the only thing anything in this process ever caches.
type Cache interface {
	MarkProcessed(opID string, ttl time.Duration) error
	WasProcessed(opID string) (bool, error)
	Stats() map[string]interface{}
	Health() error
	Close() error
}

type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	warmer  *CacheWarmer
	metrics *CacheMetrics
}

func NewMultiLevelCache(redisCache *RedisCache, log *zap.Logger) *MultiLevelCache {
	c := &MultiLevelCache{
		l1:      NewMemoryCache(),
		l2:      redisCache,
		metrics: NewCacheMetrics(),
	}
	c.warmer = NewCacheWarmer(c, nil, log)
	return c
}

// GetWarmer exposes the background warmer so bootstrap can Start/Stop
// it alongside the rest of the process singletons.
func (c *MultiLevelCache) GetWarmer() *CacheWarmer {
	return c.warmer
}

// MarkProcessed records opId as processed in both tiers; L1 is
// authoritative for reads within its own TTL, L2 (if configured)
// survives a process restart.
func (c *MultiLevelCache) MarkProcessed(opID string, ttl time.Duration) error {
	c.l1.Set(opID, true, ttl)

	if c.l2 != nil {
		err := c.l2.MarkProcessed(opID, ttl)
		if err != nil {
			c.metrics.RecordError()
		} else {
			c.metrics.RecordMarkProcessed()
		}
		return err
	}

	c.metrics.RecordMarkProcessed()
	return nil
}

// WasProcessed checks L1 first, then falls through to L2 and
// backfills L1 on a hit so the next lookup for the same opId doesn't
// need Redis again.
func (c *MultiLevelCache) WasProcessed(opID string) (bool, error) {
	if _, found := c.l1.Get(opID); found {
		c.metrics.RecordHit()
		return true, nil
	}

	if c.l2 != nil {
		seen, err := c.l2.WasProcessed(opID)
		if err == nil {
			c.l1.Set(opID, true, 5*time.Minute)
			c.metrics.RecordHit()
			return seen, nil
		}
		if errors.Is(err, ErrCacheMiss) {
			c.metrics.RecordMiss()
			return false, nil
		}
		c.metrics.RecordError()
		return false, err
	}

	c.metrics.RecordMiss()
	return false, nil
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":      c.l1.Stats(),
		"metrics": c.metrics.GetStats(),
	}

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}

	return stats
}

func (c *MultiLevelCache) Health() error {
	if c.l2 != nil {
		return c.l2.Health()
	}

	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}

	return nil
}
