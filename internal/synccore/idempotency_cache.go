package synccore

import (
	"time"

	"github.com/tasksync/engine/internal/cache"
)

// ProcessedCacheTTL bounds how long a "seen" verdict is trusted before
// falling back to the store; it only ever needs to outlive the
// window during which the same opId might be redelivered in a burst.
// The maintenance scheduler reuses it as the lookback window and TTL
// when re-seeding the cache warmer after a cold restart.
const ProcessedCacheTTL = 10 * time.Minute

// idempotencyCache fronts Store.IsProcessed with an L1/L2 cache (spec's
// Supplemented Features: cache-fronted idempotency lookup) so a hot
// loop of duplicate redeliveries from an unreliable bus doesn't hit
// SQLite on every single one. It only ever caches positive ("seen")
// verdicts — a cache miss always falls through to the authoritative
// store check, so a cold cache can never cause a duplicate to be
// mistakenly re-applied.
type idempotencyCache struct {
	c cache.Cache
}

func newIdempotencyCache(c cache.Cache) *idempotencyCache {
	return &idempotencyCache{c: c}
}

func (i *idempotencyCache) seen(opID string) bool {
	if i.c == nil {
		return false
	}
	seen, err := i.c.WasProcessed(opID)
	if err != nil {
		return false
	}
	return seen
}

func (i *idempotencyCache) remember(opID string) {
	if i.c == nil {
		return
	}
	_ = i.c.MarkProcessed(opID, ProcessedCacheTTL)
}
