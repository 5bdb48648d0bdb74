package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

// RedisCache is the L2 tier behind MultiLevelCache: it holds "opId was
// processed" verdicts under a fixed key prefix, not arbitrary
// application data — the idempotency cache is the only consumer this
// process has for a shared cache tier.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func NewRedisCache(config *CacheConfig) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &RedisCache{
		client: rdb,
		ctx:    context.Background(),
	}
}

// processedKey namespaces every entry this cache ever holds under a
// fixed "processed:<opId>" key, so a Redis instance shared with another
// process's keyspace can never collide with it.
func processedKey(opID string) string {
	return "processed:" + opID
}

// MarkProcessed records opId as seen for ttl. The value is always the
// literal "1" marker — this cache never stores anything else.
func (r *RedisCache) MarkProcessed(opID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
	defer cancel()

	if err := r.client.Set(ctx, processedKey(opID), []byte("1"), ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark opId processed: %w", err)
	}
	return nil
}

// WasProcessed reports whether opId has a live "processed" entry.
func (r *RedisCache) WasProcessed(opID string) (bool, error) {
	ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
	defer cancel()

	_, err := r.client.Get(ctx, processedKey(opID)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, ErrCacheMiss
		}
		return false, fmt.Errorf("failed to read processed marker: %w", err)
	}
	return true, nil
}

func (r *RedisCache) Health() error {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() map[string]interface{} {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	info, err := r.client.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	poolStats := r.client.PoolStats()

	return map[string]interface{}{
		"redis_info":    info,
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
		"pool_stale":    poolStats.StaleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
