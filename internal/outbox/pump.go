// Package outbox is the drain loop that empties the Store's outbox
// table onto the Transport, advancing each entry through the state
// machine spec §4.5 defines. It is grounded on the teacher's
// internal/worker package: a context-cancellable background loop
// started/stopped explicitly, with retry and a dead-letter-style
// terminal state, here re-purposed from a Redis BLPOP job queue to a
// single-threaded FIFO drain over the outbox table itself (spec §9:
// "the outbox pump is conceptually a single-consumer loop over an
// in-database queue, not an in-memory channel").
package outbox

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tasksync/engine/internal/cache"
	"github.com/tasksync/engine/internal/models"
	"github.com/tasksync/engine/internal/synccore"
	"github.com/tasksync/engine/internal/transport"
)

// SyncState is the coarse observable state spec §7 exposes to the UI:
// individual per-operation errors never bubble up, only this summary.
type SyncState int32

const (
	StateIdle SyncState = iota
	StateSyncing
	StateError
)

func (s SyncState) String() string {
	switch s {
	case StateSyncing:
		return "SYNCING"
	case StateError:
		return "ERROR"
	default:
		return "IDLE"
	}
}

// Config controls pump timing and retry policy.
type Config struct {
	DrainInterval  time.Duration
	StuckThreshold time.Duration
	MaxAttempts    int
	NonUrgentRate  rate.Limit // tokens/sec budget for non-urgent ops
	NonUrgentBurst int
}

func DefaultConfig() Config {
	return Config{
		DrainInterval:  5 * time.Second,
		StuckThreshold: 5 * time.Minute,
		MaxAttempts:    DefaultMaxAttempts,
		NonUrgentRate:  1,
		NonUrgentBurst: 1,
	}
}

// Pump is the single-instance, single-flight background task spec §5
// names as one of the four logical tasks converging on the Store.
type Pump struct {
	core      *synccore.SyncCore
	transport transport.Transport
	breaker   *cache.CircuitBreaker
	limiter   *rate.Limiter
	cfg       Config
	log       *zap.Logger

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(core *synccore.SyncCore, t transport.Transport, cfg Config, log *zap.Logger) *Pump {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pump{
		core:      core,
		transport: t,
		breaker:   cache.NewCircuitBreaker(nil),
		limiter:   rate.NewLimiter(cfg.NonUrgentRate, cfg.NonUrgentBurst),
		cfg:       cfg,
		log:       log,
	}
}

func (p *Pump) State() SyncState {
	return SyncState(p.state.Load())
}

// Start launches the background drain loop; Stop cancels it and waits
// for the in-flight tick (if any) to finish.
func (p *Pump) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop()
}

func (p *Pump) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pump) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.DrainOnce(p.ctx); err != nil {
				p.log.Warn("outbox drain tick failed", zap.Error(err))
			}
		}
	}
}

// DrainOnce runs exactly one drain tick: reset stuck sends, then send
// every PENDING/SENDING entry in FIFO order (spec §4.5). It is also
// invoked directly by the maintenance scheduler and by an explicit
// "sync now" admin request.
func (p *Pump) DrainOnce(ctx context.Context) error {
	p.state.Store(int32(StateSyncing))

	now := p.core.Now()
	if _, err := p.core.ResetStuckOutbox(now - p.cfg.StuckThreshold.Milliseconds()); err != nil {
		p.state.Store(int32(StateError))
		return err
	}

	entries, err := p.core.ListPendingOutbox()
	if err != nil {
		p.state.Store(int32(StateError))
		return err
	}

	var lastErr error
	for _, entry := range entries {
		if err := p.sendOne(ctx, entry); err != nil {
			lastErr = err
		}
	}

	if lastErr != nil {
		p.state.Store(int32(StateError))
		return lastErr
	}
	p.state.Store(int32(StateIdle))
	return nil
}

func (p *Pump) sendOne(ctx context.Context, entry models.OutboxEntry) error {
	if !entry.Type.Urgent() {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if err := p.core.MarkOutboxSending(entry.OpID); err != nil {
		return err
	}

	path := transport.OutboxPath(p.core.LocalLabel, entry.OpID)
	sendErr := p.breaker.ExecuteSend(strconv.FormatUint(entry.OpID, 10), func() error {
		return p.transport.Put(ctx, path, entry.Payload)
	})

	if sendErr != nil {
		nextState := nextFailureState(entry.Attempts+1, p.cfg.MaxAttempts)
		if markErr := p.core.MarkOutboxFailed(entry.OpID, nextState, sendErr.Error()); markErr != nil {
			return markErr
		}
		if nextState == models.OutboxFailed {
			p.log.Error("outbox entry exceeded max attempts, dead-lettered",
				zap.Uint64("op_id", entry.OpID), zap.String("task_id", entry.TaskID),
				zap.Int("attempts", entry.Attempts+1), zap.Error(sendErr))
		}
		return sendErr
	}

	return p.core.MarkOutboxSent(entry.OpID)
}
