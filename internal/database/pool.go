// Package database owns the connection pool the Store is built on top
// of. The sync engine's local node always talks to a local SQLite file;
// a Postgres dialector is wired in so an operator can point the same
// pool at a detachable mirror database for inspection tooling, without
// the sync algorithm itself ever depending on which backend is in use.
package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig controls how the underlying *sql.DB pool beneath gorm is
// sized and logged.
type PoolConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        logger.LogLevel
}

// DefaultPoolConfig mirrors sane production defaults; callers still
// need to set DSN.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        logger.Info,
	}
}

// DatabasePool wraps an opened gorm.DB with the config it was created
// from, so Stats/Health/Close can report on it uniformly.
type DatabasePool struct {
	DB     *gorm.DB
	config *PoolConfig
}

func validate(config *PoolConfig) error {
	if strings.TrimSpace(config.DSN) == "" {
		return fmt.Errorf("database: DSN must not be empty")
	}
	if config.MaxOpenConns <= 0 {
		return fmt.Errorf("database: MaxOpenConns must be positive, got %d", config.MaxOpenConns)
	}
	if config.MaxIdleConns < 0 {
		return fmt.Errorf("database: MaxIdleConns must not be negative, got %d", config.MaxIdleConns)
	}
	if config.ConnMaxLifetime < 0 {
		return fmt.Errorf("database: ConnMaxLifetime must not be negative, got %v", config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime < 0 {
		return fmt.Errorf("database: ConnMaxIdleTime must not be negative, got %v", config.ConnMaxIdleTime)
	}
	return nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:", !strings.Contains(dsn, "://"):
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("database: unsupported DSN scheme in %q", dsn)
	}
}

// NewDatabasePool opens a pool according to config, or DefaultPoolConfig
// if config is nil (which will fail validation on its empty DSN — the
// caller must always supply one).
func NewDatabasePool(config *PoolConfig) (*DatabasePool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if err := validate(config); err != nil {
		return nil, err
	}

	dialector, err := dialectorFor(config.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(config.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return &DatabasePool{DB: db, config: config}, nil
}

// Stats reports pool statistics, or an explanatory error entry if the
// pool was never opened (e.g. a zero-value DatabasePool in a test).
func (p *DatabasePool) Stats() map[string]interface{} {
	if p == nil || p.DB == nil {
		return map[string]interface{}{"error": "database pool is not connected"}
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	stats := sqlDB.Stats()
	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// Health pings the underlying connection.
func (p *DatabasePool) Health() error {
	if p == nil || p.DB == nil {
		return fmt.Errorf("database: pool is not connected")
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the underlying connection, tolerating an unopened pool.
func (p *DatabasePool) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
