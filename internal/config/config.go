// Package config is environment-variable driven configuration for the
// sync engine's ambient stack: where the store lives, how to reach the
// bus, and every knob spec §6 names for the outbox pump and
// maintenance scheduler. Grounded on the teacher's internal/config
// (env-var-with-typed-defaults, validated at load) generalized from a
// REST-API config surface (server/DB/Redis/auth/rate-limit) to the
// sync engine's own concerns; the Auth and RateLimit sections had no
// SPEC_FULL.md component to bind to (no end-user accounts or inbound
// HTTP request volume exist in a two-peer sync core) and are dropped.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of settings bootstrap(config) (spec §9) needs
// to construct the Store, Transport, SyncCore, outbox pump, and
// maintenance scheduler singletons.
type Config struct {
	Admin    AdminConfig    `json:"admin"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Sync     SyncConfig     `json:"sync"`
}

// AdminConfig controls the diagnostics-only HTTP surface (SPEC_FULL §6);
// it is never part of the peer sync protocol.
type AdminConfig struct {
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
}

// DatabaseConfig configures the Store's backing database via a DSN
// (see internal/database.dialectorFor for the accepted schemes) plus
// pool sizing.
type DatabaseConfig struct {
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// RedisConfig configures the RedisTransport bus adapter.
type RedisConfig struct {
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// SyncConfig carries every knob spec §6's "Configuration" section
// names, with the defaults it specifies.
type SyncConfig struct {
	StuckThreshold      time.Duration `json:"stuck_threshold_ms"`
	MaintenanceInterval time.Duration `json:"maintenance_interval_ms"`
	ProcessedOpTTL      time.Duration `json:"processed_op_ttl_ms"`
	TombstoneTTL        time.Duration `json:"tombstone_ttl_ms"`
	PeerLabelLocal      string        `json:"peer_label_local"`
	PeerLabelPeer       string        `json:"peer_label_peer"`
	MaxOutboxAttempts   int           `json:"max_outbox_attempts"`
}

// LoadConfig reads configuration from the environment, applying spec
// §6's documented defaults for anything unset.
func LoadConfig() (*Config, error) {
	environment := getEnv("ENVIRONMENT", "development")
	redisHostDefault := "localhost"
	if environment == "production" {
		redisHostDefault = ""
	}

	config := &Config{
		Admin: AdminConfig{
			Host:         getEnv("ADMIN_HOST", "localhost"),
			Port:         getEnv("ADMIN_PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("ADMIN_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("ADMIN_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("ADMIN_IDLE_TIMEOUT", 60*time.Second),
			Environment:  environment,
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "tasksync.db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", redisHostDefault),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Sync: SyncConfig{
			StuckThreshold:      getEnvAsDuration("STUCK_THRESHOLD", 5*time.Minute),
			MaintenanceInterval: getEnvAsDuration("MAINTENANCE_INTERVAL", 15*time.Minute),
			ProcessedOpTTL:      getEnvAsDuration("PROCESSED_OP_TTL", 7*24*time.Hour),
			TombstoneTTL:        getEnvAsDuration("TOMBSTONE_TTL", 30*24*time.Hour),
			PeerLabelLocal:      getEnv("PEER_LABEL_LOCAL", "watch"),
			PeerLabelPeer:       getEnv("PEER_LABEL_PEER", "phone"),
			MaxOutboxAttempts:   getEnvAsInt("MAX_OUTBOX_ATTEMPTS", 10),
		},
	}

	if strings.TrimSpace(config.Sync.PeerLabelLocal) == strings.TrimSpace(config.Sync.PeerLabelPeer) {
		return nil, fmt.Errorf("config: peer_label_local and peer_label_peer must differ, both are %q", config.Sync.PeerLabelLocal)
	}

	if config.Admin.Environment == "production" && strings.TrimSpace(config.Redis.Host) == "" {
		return nil, fmt.Errorf("config: redis host is required in production")
	}

	return config, nil
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetAdminAddr() string {
	return fmt.Sprintf("%s:%s", c.Admin.Host, c.Admin.Port)
}

func (c *Config) IsProduction() bool {
	return c.Admin.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
