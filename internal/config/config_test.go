package config

import (
	"os"
	"testing"
	"time"
)

func setEnvVars(vars map[string]string) {
	for k, v := range vars {
		os.Setenv(k, v)
	}
}

func clearEnvVars(vars []string) {
	for _, k := range vars {
		os.Unsetenv(k)
	}
}

var allEnvVars = []string{
	"ADMIN_HOST", "ADMIN_PORT", "ADMIN_READ_TIMEOUT", "ADMIN_WRITE_TIMEOUT", "ADMIN_IDLE_TIMEOUT", "ENVIRONMENT",
	"DATABASE_DSN", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
	"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"STUCK_THRESHOLD", "MAINTENANCE_INTERVAL", "PROCESSED_OP_TTL", "TOMBSTONE_TTL",
	"PEER_LABEL_LOCAL", "PEER_LABEL_PEER", "MAX_OUTBOX_ATTEMPTS",
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnvVars(allEnvVars)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Admin.Host != "localhost" {
		t.Errorf("Expected default admin host 'localhost', got %s", config.Admin.Host)
	}
	if config.Admin.Port != "8080" {
		t.Errorf("Expected default admin port '8080', got %s", config.Admin.Port)
	}
	if config.Admin.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", config.Admin.Environment)
	}

	if config.Database.DSN != "tasksync.db" {
		t.Errorf("Expected default DSN 'tasksync.db', got %s", config.Database.DSN)
	}
	if config.Database.MaxOpenConns != 25 {
		t.Errorf("Expected default max open conns 25, got %d", config.Database.MaxOpenConns)
	}

	if config.Redis.Host != "localhost" {
		t.Errorf("Expected default Redis host 'localhost', got %s", config.Redis.Host)
	}
	if config.Redis.Port != "6379" {
		t.Errorf("Expected default Redis port '6379', got %s", config.Redis.Port)
	}
	if config.Redis.PoolSize != 10 {
		t.Errorf("Expected default Redis pool size 10, got %d", config.Redis.PoolSize)
	}

	if config.Sync.StuckThreshold != 5*time.Minute {
		t.Errorf("Expected default stuck threshold 5m, got %v", config.Sync.StuckThreshold)
	}
	if config.Sync.MaintenanceInterval != 15*time.Minute {
		t.Errorf("Expected default maintenance interval 15m, got %v", config.Sync.MaintenanceInterval)
	}
	if config.Sync.ProcessedOpTTL != 7*24*time.Hour {
		t.Errorf("Expected default processed-op TTL 7d, got %v", config.Sync.ProcessedOpTTL)
	}
	if config.Sync.TombstoneTTL != 30*24*time.Hour {
		t.Errorf("Expected default tombstone TTL 30d, got %v", config.Sync.TombstoneTTL)
	}
	if config.Sync.PeerLabelLocal != "watch" {
		t.Errorf("Expected default local peer label 'watch', got %s", config.Sync.PeerLabelLocal)
	}
	if config.Sync.PeerLabelPeer != "phone" {
		t.Errorf("Expected default peer label 'phone', got %s", config.Sync.PeerLabelPeer)
	}
	if config.Sync.MaxOutboxAttempts != 10 {
		t.Errorf("Expected default max outbox attempts 10, got %d", config.Sync.MaxOutboxAttempts)
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	envVars := map[string]string{
		"ADMIN_HOST":           "0.0.0.0",
		"ADMIN_PORT":           "9000",
		"ENVIRONMENT":          "production",
		"DATABASE_DSN":         "postgres://db.example.com/tasksync",
		"DB_MAX_OPEN_CONNS":    "50",
		"REDIS_HOST":           "redis.example.com",
		"REDIS_PORT":           "6380",
		"REDIS_PASSWORD":       "redis_pass",
		"REDIS_DB":             "1",
		"STUCK_THRESHOLD":      "10m",
		"MAINTENANCE_INTERVAL": "30m",
		"PEER_LABEL_LOCAL":     "phone",
		"PEER_LABEL_PEER":      "watch",
	}

	clearEnvVars(allEnvVars)
	setEnvVars(envVars)
	defer clearEnvVars(allEnvVars)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with custom config, got: %v", err)
	}

	if config.Admin.Host != "0.0.0.0" {
		t.Errorf("Expected admin host '0.0.0.0', got %s", config.Admin.Host)
	}
	if config.Admin.Port != "9000" {
		t.Errorf("Expected admin port '9000', got %s", config.Admin.Port)
	}
	if config.Admin.Environment != "production" {
		t.Errorf("Expected environment 'production', got %s", config.Admin.Environment)
	}

	if config.Database.DSN != "postgres://db.example.com/tasksync" {
		t.Errorf("Expected custom DSN, got %s", config.Database.DSN)
	}
	if config.Database.MaxOpenConns != 50 {
		t.Errorf("Expected max open conns 50, got %d", config.Database.MaxOpenConns)
	}

	if config.Redis.Host != "redis.example.com" {
		t.Errorf("Expected Redis host 'redis.example.com', got %s", config.Redis.Host)
	}
	if config.Redis.DB != 1 {
		t.Errorf("Expected Redis DB 1, got %d", config.Redis.DB)
	}

	if config.Sync.StuckThreshold != 10*time.Minute {
		t.Errorf("Expected stuck threshold 10m, got %v", config.Sync.StuckThreshold)
	}
	if config.Sync.MaintenanceInterval != 30*time.Minute {
		t.Errorf("Expected maintenance interval 30m, got %v", config.Sync.MaintenanceInterval)
	}
	if config.Sync.PeerLabelLocal != "phone" || config.Sync.PeerLabelPeer != "watch" {
		t.Errorf("Expected swapped peer labels phone/watch, got %s/%s", config.Sync.PeerLabelLocal, config.Sync.PeerLabelPeer)
	}
}

func TestLoadConfig_SamePeerLabelsRejected(t *testing.T) {
	clearEnvVars(allEnvVars)
	setEnvVars(map[string]string{
		"PEER_LABEL_LOCAL": "watch",
		"PEER_LABEL_PEER":  "watch",
	})
	defer clearEnvVars(allEnvVars)

	_, err := LoadConfig()
	if err == nil {
		t.Error("Expected error when peer_label_local == peer_label_peer")
	}
}

func TestLoadConfig_ProductionRequiresRedisHost(t *testing.T) {
	clearEnvVars(allEnvVars)
	setEnvVars(map[string]string{
		"ENVIRONMENT": "production",
		"REDIS_HOST":  "",
	})
	defer clearEnvVars(allEnvVars)
	os.Setenv("REDIS_HOST", "")

	_, err := LoadConfig()
	if err == nil {
		t.Error("Expected error for missing Redis host in production")
	}
}

func TestConfig_GetRedisAddr(t *testing.T) {
	config := &Config{
		Redis: RedisConfig{
			Host: "redis.example.com",
			Port: "6380",
		},
	}

	expected := "redis.example.com:6380"
	actual := config.GetRedisAddr()

	if actual != expected {
		t.Errorf("Expected Redis addr '%s', got '%s'", expected, actual)
	}
}

func TestConfig_GetAdminAddr(t *testing.T) {
	config := &Config{
		Admin: AdminConfig{
			Host: "0.0.0.0",
			Port: "9000",
		},
	}

	expected := "0.0.0.0:9000"
	actual := config.GetAdminAddr()

	if actual != expected {
		t.Errorf("Expected admin addr '%s', got '%s'", expected, actual)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		expected    bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, test := range tests {
		config := &Config{Admin: AdminConfig{Environment: test.environment}}
		actual := config.IsProduction()
		if actual != test.expected {
			t.Errorf("For environment '%s', expected IsProduction() = %v, got %v",
				test.environment, test.expected, actual)
		}
	}
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	defaultValue := "default"

	os.Unsetenv(key)
	result := getEnv(key, defaultValue)
	if result != defaultValue {
		t.Errorf("Expected default value '%s', got '%s'", defaultValue, result)
	}

	expectedValue := "custom_value"
	os.Setenv(key, expectedValue)
	defer os.Unsetenv(key)

	result = getEnv(key, defaultValue)
	if result != expectedValue {
		t.Errorf("Expected env value '%s', got '%s'", expectedValue, result)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	key := "TEST_INT_VAR"
	defaultValue := 42

	os.Unsetenv(key)
	result := getEnvAsInt(key, defaultValue)
	if result != defaultValue {
		t.Errorf("Expected default value %d, got %d", defaultValue, result)
	}

	os.Setenv(key, "100")
	defer os.Unsetenv(key)

	result = getEnvAsInt(key, defaultValue)
	if result != 100 {
		t.Errorf("Expected env value 100, got %d", result)
	}

	os.Setenv(key, "not-a-number")
	result = getEnvAsInt(key, defaultValue)
	if result != defaultValue {
		t.Errorf("Expected default value %d for invalid int, got %d", defaultValue, result)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"
	defaultValue := 30 * time.Second

	os.Unsetenv(key)
	result := getEnvAsDuration(key, defaultValue)
	if result != defaultValue {
		t.Errorf("Expected default value %v, got %v", defaultValue, result)
	}

	os.Setenv(key, "5m")
	defer os.Unsetenv(key)

	result = getEnvAsDuration(key, defaultValue)
	if result != 5*time.Minute {
		t.Errorf("Expected env value 5m, got %v", result)
	}

	os.Setenv(key, "900000")
	result = getEnvAsDuration(key, defaultValue)
	if result != 900000*time.Millisecond {
		t.Errorf("Expected bare-millisecond env value to parse, got %v", result)
	}

	os.Setenv(key, "not-a-duration")
	result = getEnvAsDuration(key, defaultValue)
	if result != defaultValue {
		t.Errorf("Expected default value %v for invalid duration, got %v", defaultValue, result)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	clearEnvVars(allEnvVars)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := LoadConfig()
		if err != nil {
			b.Fatalf("Failed to load config: %v", err)
		}
	}
}

func BenchmarkGetEnvAsInt(b *testing.B) {
	os.Setenv("BENCH_INT", "42")
	defer os.Unsetenv("BENCH_INT")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = getEnvAsInt("BENCH_INT", 0)
	}
}

func BenchmarkGetEnvAsDuration(b *testing.B) {
	os.Setenv("BENCH_DURATION", "30s")
	defer os.Unsetenv("BENCH_DURATION")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = getEnvAsDuration("BENCH_DURATION", time.Second)
	}
}
