// Package bootstrap wires the sync engine's singletons — Store,
// Transport, SyncCore, the outbox pump, the inbox router, and the
// maintenance scheduler — from a loaded Config. Grounded on gravity's
// cmd/gravity-api/main.go runServer, which builds its database,
// service, and HTTP handler as explicit handles from one appConfig
// rather than relying on package-level globals (spec §9: "inject them
// as explicit handles from a bootstrap(config) entry point").
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/tasksync/engine/internal/admin"
	"github.com/tasksync/engine/internal/alarm"
	"github.com/tasksync/engine/internal/cache"
	"github.com/tasksync/engine/internal/config"
	"github.com/tasksync/engine/internal/database"
	"github.com/tasksync/engine/internal/inbox"
	"github.com/tasksync/engine/internal/maintenance"
	"github.com/tasksync/engine/internal/outbox"
	"github.com/tasksync/engine/internal/store"
	"github.com/tasksync/engine/internal/synccore"
	"github.com/tasksync/engine/internal/transport"
)

// Engine holds every running singleton New assembles. Pass Admin to
// admin.NewRouter, serve the result under an *http.Server, and call
// Stop when the process receives a termination signal.
type Engine struct {
	Store     *store.Store
	Transport transport.Transport
	Core      *synccore.SyncCore
	Pump      *outbox.Pump
	Router    *inbox.Router
	Scheduler *maintenance.Scheduler
	Admin     *admin.Deps

	idemCache *cache.MultiLevelCache
	pool      *database.DatabasePool
}

// New assembles every singleton but starts nothing; callers decide
// when to call Start so tests can construct an Engine without
// spawning goroutines.
func New(cfg *config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dbLogLevel := logger.Warn
	if cfg.IsProduction() {
		dbLogLevel = logger.Error
	}
	pool, err := database.NewDatabasePool(&database.PoolConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        dbLogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database: %w", err)
	}

	st, err := store.Open(pool.DB, log)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: store: %w", err)
	}

	bus, err := newTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: transport: %w", err)
	}

	idemCache := newIdempotencyCache(cfg, log)
	collaborator := alarm.NewLoggingCollaborator(log)

	core := synccore.New(st, idemCache, collaborator, cfg.Sync.PeerLabelLocal, cfg.Sync.PeerLabelPeer, nil)

	pump := outbox.New(core, bus, outbox.Config{
		DrainInterval:  cfg.Sync.MaintenanceInterval,
		StuckThreshold: cfg.Sync.StuckThreshold,
		MaxAttempts:    cfg.Sync.MaxOutboxAttempts,
		NonUrgentRate:  1,
		NonUrgentBurst: 1,
	}, log)

	router := inbox.New(core, bus, log)

	sched := maintenance.New(core, pump, maintenance.Config{
		Interval:       cfg.Sync.MaintenanceInterval,
		StuckThreshold: cfg.Sync.StuckThreshold,
		ProcessedTTL:   cfg.Sync.ProcessedOpTTL,
		TombstoneTTL:   cfg.Sync.TombstoneTTL,
	}, idemCache.GetWarmer(), log)

	// a de-duplicated /sync/request from the peer triggers the same
	// immediate maintenance pass POST /sync/now does.
	router.OnSyncRequest = func(ctx context.Context) {
		if err := sched.SyncNow(ctx); err != nil {
			log.Warn("bootstrap: sync-now from peer request failed", zap.Error(err))
		}
	}

	return &Engine{
		Store:     st,
		Transport: bus,
		Core:      core,
		Pump:      pump,
		Router:    router,
		Scheduler: sched,
		Admin: &admin.Deps{
			Store:     st,
			Transport: bus,
			Core:      core,
			Pump:      pump,
			Router:    router,
			Scheduler: sched,
			Cache:     idemCache,
			Log:       log,
		},
		idemCache: idemCache,
		pool:      pool,
	}, nil
}

// Start launches the pump, inbox router, and maintenance scheduler as
// background goroutines bound to ctx.
func (e *Engine) Start(ctx context.Context) {
	e.Pump.Start(ctx)
	e.Scheduler.Start(ctx)
	e.idemCache.GetWarmer().Start(ctx)
	go func() {
		if err := e.Router.Start(ctx); err != nil {
			e.Admin.Log.Warn("bootstrap: inbox router stopped", zap.Error(err))
		}
	}()
}

// Stop halts the pump and scheduler and closes the transport and
// database pool. Callers invoke this after the admin HTTP server has
// drained in-flight requests.
func (e *Engine) Stop() error {
	e.Pump.Stop()
	e.Scheduler.Stop()
	e.idemCache.GetWarmer().Stop()
	if err := e.Transport.Close(); err != nil {
		return err
	}
	return e.pool.Close()
}

func newTransport(cfg *config.Config) (transport.Transport, error) {
	return transport.NewRedisTransport(&transport.RedisConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}), nil
}

// newIdempotencyCache builds the L1/L2 read-through cache
// synccore.idempotencyCache wraps around the store's processed-ops
// table. Redis is optional: if it can't be reached the multilevel
// cache degrades to L1-only, matching the teacher's MultiLevelCache
// behavior when its L2 is unset.
func newIdempotencyCache(cfg *config.Config, log *zap.Logger) *cache.MultiLevelCache {
	redisCache := cache.NewRedisCache(&cache.CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	return cache.NewMultiLevelCache(redisCache, log)
}
