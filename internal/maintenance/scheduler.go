// Package maintenance is the periodic tick spec §4.7 calls the
// maintenance scheduler: reset stuck sends, drain the outbox, purge
// acked entries and aged-out rows, and reschedule alarms. It is
// grounded on the teacher's internal/worker background-loop shape (a
// context-cancellable goroutine started/stopped explicitly, driven by
// a ticker rather than BLPOP on a Redis queue) generalized from a
// Redis job dequeue loop to the spec's "ticker-driven, also
// triggerable on demand" maintenance tick.
package maintenance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tasksync/engine/internal/cache"
	"github.com/tasksync/engine/internal/outbox"
	"github.com/tasksync/engine/internal/synccore"
)

// Config controls maintenance timing, matching spec §6's configuration
// defaults.
type Config struct {
	Interval       time.Duration
	StuckThreshold time.Duration
	ProcessedTTL   time.Duration
	TombstoneTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:       15 * time.Minute,
		StuckThreshold: 5 * time.Minute,
		ProcessedTTL:   7 * 24 * time.Hour,
		TombstoneTTL:   30 * 24 * time.Hour,
	}
}

// Scheduler is the single "maintenance" logical task spec §5 names.
type Scheduler struct {
	core   *synccore.SyncCore
	pump   *outbox.Pump
	warmer *cache.CacheWarmer
	cfg    Config
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// now is never set or read: Tick uses core.Now() throughout, and
	// tests control time through the clock passed to synccore.New.
	now func() int64

	statsMu sync.Mutex
	stats   TickStats
}

// TickStats accumulates counters across every completed Tick, surfaced
// on the admin /metrics endpoint.
type TickStats struct {
	Ticks                 int64
	ResetStuckTotal       int64
	AckedPurgedTotal      int64
	ProcessedPurgedTotal  int64
	TombstonesPurgedTotal int64
	LastTickAt            int64
	LastTickErr           string
}

// New builds a Scheduler. warmer may be nil, in which case Tick skips
// the cache-warmup step entirely.
func New(core *synccore.SyncCore, pump *outbox.Pump, cfg Config, warmer *cache.CacheWarmer, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{core: core, pump: pump, warmer: warmer, cfg: cfg, log: log}
}

// Start launches the periodic tick loop; Stop cancels it and waits for
// any in-flight tick to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(s.ctx); err != nil {
				s.log.Warn("maintenance tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one maintenance pass, in the order spec §4.7 specifies.
// Every step is independently idempotent, so a failure partway through
// leaves the system in a state the next tick (or an explicit "sync
// now") can safely continue from (spec §4.7: "a failed tick is
// retryable; partial progress is acceptable").
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.core.Now()

	resetStuck, err := s.core.ResetStuckOutbox(now - s.cfg.StuckThreshold.Milliseconds())
	if err != nil {
		s.recordTick(now, err)
		return err
	}

	if err := s.pump.DrainOnce(ctx); err != nil {
		// the pump already recorded per-operation failures on the
		// outbox rows and updated its own observable state; maintenance
		// still proceeds with the remaining cleanup steps.
		s.log.Warn("maintenance: outbox drain reported an error", zap.Error(err))
	}

	ackedPurged, err := s.core.DeleteAckedOutbox()
	if err != nil {
		s.recordTick(now, err)
		return err
	}

	processedPurged, err := s.core.CleanupOldProcessed(now - s.cfg.ProcessedTTL.Milliseconds())
	if err != nil {
		s.recordTick(now, err)
		return err
	}

	tombstonesPurged, err := s.core.CleanupDeletedTasks(now - s.cfg.TombstoneTTL.Milliseconds())
	if err != nil {
		s.recordTick(now, err)
		return err
	}

	if err := s.core.RescheduleAlarms(); err != nil {
		s.recordTick(now, err)
		return err
	}

	s.warmIdempotencyCache(ctx, now)

	s.statsMu.Lock()
	s.stats.ResetStuckTotal += resetStuck
	s.stats.AckedPurgedTotal += ackedPurged
	s.stats.ProcessedPurgedTotal += processedPurged
	s.stats.TombstonesPurgedTotal += tombstonesPurged
	s.statsMu.Unlock()
	s.recordTick(now, nil)

	return nil
}

// warmIdempotencyCache re-seeds the cache warmer with every opId
// processed within the idempotency cache's own TTL window, so a
// process restart's is_processed cache catches back up to the store
// instead of missing on every redelivered op until the store itself
// has served it once (spec's Supplemented Features: cache-fronted
// idempotency lookup).
func (s *Scheduler) warmIdempotencyCache(ctx context.Context, now int64) {
	if s.warmer == nil {
		return
	}

	ops, err := s.core.RecentProcessedOps(now - synccore.ProcessedCacheTTL.Milliseconds())
	if err != nil {
		s.log.Warn("maintenance: listing recent processed ops for cache warmup failed", zap.Error(err))
		return
	}

	jobs := make([]cache.WarmupJob, 0, len(ops))
	for _, op := range ops {
		jobs = append(jobs, cache.WarmupJob{
			OpID: op.OpID,
			TTL:  synccore.ProcessedCacheTTL,
		})
	}
	s.warmer.Reset(jobs)
	s.warmer.WarmCacheManually(ctx)
}

func (s *Scheduler) recordTick(now int64, tickErr error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Ticks++
	s.stats.LastTickAt = now
	if tickErr != nil {
		s.stats.LastTickErr = tickErr.Error()
	} else {
		s.stats.LastTickErr = ""
	}
}

// Stats returns a snapshot of cumulative maintenance counters, for the
// admin /metrics endpoint.
func (s *Scheduler) Stats() TickStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// SyncNow runs an immediate tick outside the regular interval, for the
// admin surface's POST /sync/now and for a de-duplicated inbound
// /sync/request (spec §4.7: "on explicit 'sync now' requests").
func (s *Scheduler) SyncNow(ctx context.Context) error {
	return s.Tick(ctx)
}
