package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WarmupJob names one opId the idempotency cache should hold as
// "processed" for the given TTL. Every warmup job carries the same
// shape because the only thing this cache ever fronts is the
// is_processed verdict — there is no priority ordering worth keeping
// jobs sorted by, so the pending set is a plain deduplicated map keyed
// by opId rather than a priority queue.
type WarmupJob struct {
	OpID string
	TTL  time.Duration
}

type WarmupStrategy struct {
	Jobs            []WarmupJob
	BatchSize       int
	ConcurrentJobs  int
	WarmupInterval  time.Duration
	HealthCheckFunc func() bool
}

// CacheWarmer periodically re-populates the idempotency cache with
// recently processed opIds so a cold restart doesn't force every
// is_processed check out to Redis. The maintenance scheduler re-seeds
// the pending set on every tick via Reset; jobs are drained in
// batches of BatchSize, each batch spread over up to ConcurrentJobs
// workers.
type CacheWarmer struct {
	cache    Cache
	strategy *WarmupStrategy
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	log      *zap.Logger

	pending map[string]WarmupJob
}

func NewCacheWarmer(cache Cache, strategy *WarmupStrategy, log *zap.Logger) *CacheWarmer {
	if strategy == nil {
		strategy = &WarmupStrategy{
			BatchSize:      10,
			ConcurrentJobs: 3,
			WarmupInterval: 5 * time.Minute,
		}
	}
	if log == nil {
		log = zap.NewNop()
	}

	cw := &CacheWarmer{
		cache:    cache,
		strategy: strategy,
		stopCh:   make(chan struct{}),
		log:      log,
		pending:  make(map[string]WarmupJob, len(strategy.Jobs)),
	}

	for _, job := range strategy.Jobs {
		cw.pending[job.OpID] = job
	}

	return cw
}

func (cw *CacheWarmer) AddWarmupJob(job WarmupJob) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.pending[job.OpID] = job
	cw.log.Debug("added warmup job", zap.String("op_id", job.OpID))
}

// Reset replaces the pending job set atomically. The maintenance
// scheduler calls this every tick with a fresh snapshot of recently
// processed opIds, rather than accumulating duplicate entries across
// ticks forever.
func (cw *CacheWarmer) Reset(jobs []WarmupJob) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.pending = make(map[string]WarmupJob, len(jobs))
	for _, job := range jobs {
		cw.pending[job.OpID] = job
	}
	cw.log.Debug("reset warmup job queue", zap.Int("jobs", len(jobs)))
}

func (cw *CacheWarmer) Start(ctx context.Context) {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = true
	cw.stopCh = make(chan struct{})
	pending := len(cw.pending)
	cw.mu.Unlock()

	cw.log.Info("starting cache warmer", zap.Int("pending_jobs", pending))

	go cw.warmCache(ctx)

	if cw.strategy.WarmupInterval > 0 {
		ticker := time.NewTicker(cw.strategy.WarmupInterval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if cw.shouldWarmup() {
						go cw.warmCache(ctx)
					}
				case <-cw.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

func (cw *CacheWarmer) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.running {
		return
	}
	cw.running = false
	close(cw.stopCh)
	cw.log.Info("cache warmer stopped")
}

func (cw *CacheWarmer) WarmCacheManually(ctx context.Context) {
	go cw.warmCache(ctx)
}

func (cw *CacheWarmer) warmCache(ctx context.Context) {
	cw.mu.RLock()
	batchSize := cw.strategy.BatchSize
	concurrentJobs := cw.strategy.ConcurrentJobs
	jobs := make([]WarmupJob, 0, len(cw.pending))
	for _, job := range cw.pending {
		jobs = append(jobs, job)
	}
	cw.mu.RUnlock()

	if len(jobs) == 0 {
		return
	}

	cw.log.Debug("warming cache", zap.Int("jobs", len(jobs)), zap.Int("batch_size", batchSize), zap.Int("concurrent_jobs", concurrentJobs))

	for i := 0; i < len(jobs); i += batchSize {
		end := i + batchSize
		if end > len(jobs) {
			end = len(jobs)
		}

		cw.processBatch(ctx, jobs[i:end], concurrentJobs)

		select {
		case <-ctx.Done():
			cw.log.Debug("cache warming cancelled")
			return
		default:
		}
	}
}

func (cw *CacheWarmer) processBatch(ctx context.Context, jobs []WarmupJob, concurrency int) {
	jobCh := make(chan WarmupJob, len(jobs))
	var wg sync.WaitGroup

	for i := 0; i < concurrency && i < len(jobs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				select {
				case <-ctx.Done():
					return
				default:
					cw.processJob(job)
				}
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	wg.Wait()
}

func (cw *CacheWarmer) processJob(job WarmupJob) {
	if err := cw.cache.MarkProcessed(job.OpID, job.TTL); err != nil {
		cw.log.Warn("failed to warm cache entry", zap.String("op_id", job.OpID), zap.Error(err))
	}
}

func (cw *CacheWarmer) shouldWarmup() bool {
	if cw.strategy.HealthCheckFunc != nil {
		return cw.strategy.HealthCheckFunc()
	}
	if healthChecker, ok := cw.cache.(interface{ Health() error }); ok {
		return healthChecker.Health() == nil
	}
	return true
}

func (cw *CacheWarmer) GetStats() map[string]interface{} {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	return map[string]interface{}{
		"running":         cw.running,
		"interval":        cw.strategy.WarmupInterval.String(),
		"batch_size":      cw.strategy.BatchSize,
		"concurrent_jobs": cw.strategy.ConcurrentJobs,
		"pending_jobs":    len(cw.pending),
	}
}
