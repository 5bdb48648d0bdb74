package cache

import (
	"sync/atomic"
	"time"
)

// CacheMetrics counts the idempotency cache's own traffic: how often a
// WasProcessed lookup was answered from cache versus fell through to
// the store, and how often MarkProcessed itself failed.
type CacheMetrics struct {
	ProcessedHits   int64 `json:"processed_hits"`
	ProcessedMisses int64 `json:"processed_misses"`
	Errors          int64 `json:"errors"`

	MarkProcessedCount int64 `json:"mark_processed_count"`
	StartTime          int64 `json:"start_time"`
}

func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{
		StartTime: time.Now().Unix(),
	}
}

func (m *CacheMetrics) RecordHit() {
	atomic.AddInt64(&m.ProcessedHits, 1)
}

func (m *CacheMetrics) RecordMiss() {
	atomic.AddInt64(&m.ProcessedMisses, 1)
}

func (m *CacheMetrics) RecordError() {
	atomic.AddInt64(&m.Errors, 1)
}

func (m *CacheMetrics) RecordMarkProcessed() {
	atomic.AddInt64(&m.MarkProcessedCount, 1)
}

func (m *CacheMetrics) GetStats() CacheMetrics {
	return CacheMetrics{
		ProcessedHits:      atomic.LoadInt64(&m.ProcessedHits),
		ProcessedMisses:    atomic.LoadInt64(&m.ProcessedMisses),
		Errors:             atomic.LoadInt64(&m.Errors),
		MarkProcessedCount: atomic.LoadInt64(&m.MarkProcessedCount),
		StartTime:          m.StartTime,
	}
}

func (m *CacheMetrics) HitRate() float64 {
	hits := atomic.LoadInt64(&m.ProcessedHits)
	misses := atomic.LoadInt64(&m.ProcessedMisses)
	total := hits + misses

	if total == 0 {
		return 0.0
	}

	return float64(hits) / float64(total) * 100.0
}

func (m *CacheMetrics) Reset() {
	atomic.StoreInt64(&m.ProcessedHits, 0)
	atomic.StoreInt64(&m.ProcessedMisses, 0)
	atomic.StoreInt64(&m.Errors, 0)
	atomic.StoreInt64(&m.MarkProcessedCount, 0)
	m.StartTime = time.Now().Unix()
}
