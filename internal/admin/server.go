// Package admin is the diagnostics-only HTTP surface SPEC_FULL §6
// describes: liveness/readiness probes, outbox/inbox/maintenance
// metrics, and a sync-state/sync-now pair for an operator or local UI
// to poll. None of it is part of the peer sync protocol itself — that
// travels entirely over the Transport bus. Grounded on the teacher's
// internal/monitoring handlers (reused as-is here, since health and
// metrics plumbing is domain-agnostic) wired to a gin engine the way
// the teacher's middleware package assumes a router is built, plus
// gravity's cobra/viper cmd/ shape for how the surface gets started.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tasksync/engine/internal/cache"
	"github.com/tasksync/engine/internal/inbox"
	"github.com/tasksync/engine/internal/maintenance"
	"github.com/tasksync/engine/internal/middleware"
	"github.com/tasksync/engine/internal/models"
	"github.com/tasksync/engine/internal/monitoring"
	"github.com/tasksync/engine/internal/outbox"
	"github.com/tasksync/engine/internal/store"
	"github.com/tasksync/engine/internal/synccore"
	"github.com/tasksync/engine/internal/transport"
)

// pinger is the optional readiness check a Transport implementation
// may satisfy; MemoryTransport and RedisTransport both do.
type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the singletons the admin surface reports on. It never
// mutates sync state directly except via Scheduler.SyncNow.
type Deps struct {
	Store     *store.Store
	Transport transport.Transport
	Core      *synccore.SyncCore
	Pump      *outbox.Pump
	Router    *inbox.Router
	Scheduler *maintenance.Scheduler
	Cache     cache.Cache
	Log       *zap.Logger
}

// NewRouter builds the gin engine for the admin surface: recovery,
// CORS for a local UI dev server, request metrics, then the routes
// SPEC_FULL §6 names.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.RecoveryWithLog())
	router.Use(monitoring.MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	monitoring.RegisterHealthCheck("store", func(ctx context.Context) error {
		return deps.Store.Health()
	})
	monitoring.RegisterHealthCheck("transport", func(ctx context.Context) error {
		if p, ok := deps.Transport.(pinger); ok {
			return p.Ping(ctx)
		}
		return nil
	})

	router.GET("/healthz", monitoring.LivenessHandler())
	router.GET("/readyz", monitoring.ReadinessHandler())
	router.GET("/health", monitoring.HealthHandler())
	router.GET("/metrics", metricsHandler(deps))
	router.GET("/sync/state", syncStateHandler(deps.Pump))
	router.POST("/sync/now", syncNowHandler(deps.Scheduler, deps.Log))

	return router
}

// metricsHandler reports the sync engine's own domain counters —
// outbox state counts (including the FAILED dead-letter count),
// idempotency-log size, inbox dispatch counters, cumulative
// maintenance-tick counters, and the idempotency cache's own
// Stats() — alongside the generic HTTP-request and Go-runtime metrics
// the middleware chain already collects (spec §6, SPEC_FULL §9's
// dead-letter observability).
func metricsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		outboxCounts, err := deps.Core.OutboxStateCounts()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		processedCount, err := deps.Core.ProcessedOpCount()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		response := gin.H{
			"sync_state": deps.Pump.State().String(),
			"outbox": gin.H{
				"pending": outboxCounts[models.OutboxPending],
				"sending": outboxCounts[models.OutboxSending],
				"sent":    outboxCounts[models.OutboxSent],
				"acked":   outboxCounts[models.OutboxAcked],
				"failed":  outboxCounts[models.OutboxFailed],
			},
			"processed_ops": processedCount,
			"maintenance":   deps.Scheduler.Stats(),
			"http":          monitoring.GetMetrics(),
			"system":        monitoring.GetSystemMetrics(),
			"timestamp":     time.Now(),
		}
		if deps.Router != nil {
			response["inbox"] = deps.Router.Stats()
		}
		if deps.Cache != nil {
			response["cache"] = deps.Cache.Stats()
		}

		if outboxCounts[models.OutboxFailed] > 0 {
			deps.Log.Warn("admin: outbox has dead-lettered entries",
				zap.Int64("failed_count", outboxCounts[models.OutboxFailed]))
		}

		c.JSON(http.StatusOK, response)
	}
}

func syncStateHandler(pump *outbox.Pump) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":     pump.State().String(),
			"timestamp": time.Now(),
		})
	}
}

func syncNowHandler(sched *maintenance.Scheduler, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		if err := sched.SyncNow(ctx); err != nil {
			log.Warn("admin: sync now failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
	}
}
