package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	if config.Addr != "localhost:6379" {
		t.Errorf("Expected Addr to be localhost:6379, got %s", config.Addr)
	}

	if config.Password != "" {
		t.Errorf("Expected Password to be empty, got %s", config.Password)
	}

	if config.DB != 0 {
		t.Errorf("Expected DB to be 0, got %d", config.DB)
	}

	if config.PoolSize != 10 {
		t.Errorf("Expected PoolSize to be 10, got %d", config.PoolSize)
	}

	if config.MinIdleConns != 5 {
		t.Errorf("Expected MinIdleConns to be 5, got %d", config.MinIdleConns)
	}

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", config.MaxRetries)
	}

	if config.DialTimeout != 5*time.Second {
		t.Errorf("Expected DialTimeout to be 5s, got %v", config.DialTimeout)
	}

	if config.ReadTimeout != 3*time.Second {
		t.Errorf("Expected ReadTimeout to be 3s, got %v", config.ReadTimeout)
	}

	if config.WriteTimeout != 3*time.Second {
		t.Errorf("Expected WriteTimeout to be 3s, got %v", config.WriteTimeout)
	}
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	config := &CacheConfig{
		Addr:         mr.Addr(),
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	cache := NewRedisCache(config)
	return cache, mr
}

func TestNewRedisCache_WithNilConfig(t *testing.T) {
	cache := NewRedisCache(nil)

	if cache == nil {
		t.Error("Expected cache to be created with default config")
	}

	if cache.client == nil {
		t.Error("Expected Redis client to be initialized")
	}
}

func TestNewRedisCache_WithCustomConfig(t *testing.T) {
	config := &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "test-password",
		DB:           1,
		PoolSize:     20,
		MinIdleConns: 10,
		MaxRetries:   5,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	cache := NewRedisCache(config)

	if cache == nil {
		t.Error("Expected cache to be created")
	}

	if cache.client == nil {
		t.Error("Expected Redis client to be initialized")
	}
}

func TestRedisCache_MarkAndWasProcessed(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()

	opID := "op-123"

	if err := cache.MarkProcessed(opID, time.Minute); err != nil {
		t.Fatalf("Failed to mark opId processed: %v", err)
	}

	seen, err := cache.WasProcessed(opID)
	if err != nil {
		t.Fatalf("Failed to read processed marker: %v", err)
	}
	if !seen {
		t.Error("Expected opId to be reported as processed")
	}
}

func TestRedisCache_WasProcessed_CacheMiss(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()

	seen, err := cache.WasProcessed("never-seen-op")
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
	if seen {
		t.Error("Expected seen=false on cache miss")
	}
}

func TestRedisCache_MarkProcessed_ExpiresAfterTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()

	opID := "op-expiring"
	if err := cache.MarkProcessed(opID, time.Minute); err != nil {
		t.Fatalf("Failed to mark opId processed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	seen, err := cache.WasProcessed(opID)
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after TTL, got %v (seen=%v)", err, seen)
	}
}

func TestRedisCache_Health(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()

	err := cache.Health()
	if err != nil {
		t.Errorf("Expected healthy cache, got error: %v", err)
	}

	mr.Close()

	err = cache.Health()
	if err == nil {
		t.Error("Expected unhealthy cache after closing Redis")
	}
}

func TestRedisCache_Stats(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()

	stats := cache.Stats()

	if stats == nil {
		t.Error("Expected non-nil stats")
	}

	if len(stats) == 0 {
		t.Log("Stats is empty, which is expected with miniredis mock")
	}
}

func TestRedisCache_Close(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()

	err := cache.Close()
	if err != nil {
		t.Errorf("Failed to close cache: %v", err)
	}

	err = cache.MarkProcessed("op-after-close", time.Minute)
	if err == nil {
		t.Error("Expected error when using cache after close")
	}
}

func BenchmarkRedisCache_MarkProcessed(b *testing.B) {
	mr := miniredis.RunT(&testing.T{})
	defer mr.Close()

	config := &CacheConfig{Addr: mr.Addr()}
	cache := NewRedisCache(config)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cache.MarkProcessed("benchmark-op", time.Minute); err != nil {
			b.Fatalf("Failed to mark opId processed: %v", err)
		}
	}
}

func BenchmarkRedisCache_WasProcessed(b *testing.B) {
	mr := miniredis.RunT(&testing.T{})
	defer mr.Close()

	config := &CacheConfig{Addr: mr.Addr()}
	cache := NewRedisCache(config)

	if err := cache.MarkProcessed("benchmark-op", time.Minute); err != nil {
		b.Fatalf("Failed to mark opId processed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cache.WasProcessed("benchmark-op"); err != nil {
			b.Fatalf("Failed to read processed marker: %v", err)
		}
	}
}

func TestErrCacheMiss(t *testing.T) {
	if ErrCacheMiss.Error() != "cache miss" {
		t.Errorf("Expected ErrCacheMiss message to be 'cache miss', got '%s'", ErrCacheMiss.Error())
	}
}

func TestErrCacheDown(t *testing.T) {
	if ErrCacheDown.Error() != "cache unavailable" {
		t.Errorf("Expected ErrCacheDown message to be 'cache unavailable', got '%s'", ErrCacheDown.Error())
	}
}
