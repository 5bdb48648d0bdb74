package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// busChannel is the single pub/sub channel every RedisTransport
// publishes envelopes on; subscribers filter by path prefix
// themselves, mirroring how the real Data Layer fans a single event
// stream out to every listener regardless of what paths it watches.
const busChannel = "tasksync:bus"

type busEnvelope struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	Payload []byte `json:"payload"`
}

// RedisConfig configures the Redis client a RedisTransport wraps.
type RedisConfig struct {
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

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisTransport implements Transport over a Redis SET/DEL keyspace
// for durability plus PUBLISH/SUBSCRIBE on busChannel for event delivery — the bus
// entry at a path and the notification that it changed are two
// different Redis mechanisms, just as the real Data Layer separates
// "what's there" from "something changed".
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(config *RedisConfig) *RedisTransport {
	if config == nil {
		config = DefaultRedisConfig()
	}
	client := redis.NewClient(&redis.Options{
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
	return &RedisTransport{client: client}
}

// NewRedisTransportFromClient wraps an already-constructed client,
// used by tests to point at a miniredis instance.
func NewRedisTransportFromClient(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (r *RedisTransport) Put(ctx context.Context, path string, payload []byte) error {
	if err := r.client.Set(ctx, busKey(path), payload, 0).Err(); err != nil {
		return fmt.Errorf("transport: put %s: %w", path, err)
	}
	return r.publish(ctx, EventChanged, path, payload)
}

func (r *RedisTransport) Delete(ctx context.Context, path string) error {
	if err := r.client.Del(ctx, busKey(path)).Err(); err != nil {
		return fmt.Errorf("transport: delete %s: %w", path, err)
	}
	return r.publish(ctx, EventDeleted, path, nil)
}

func (r *RedisTransport) publish(ctx context.Context, eventType EventType, path string, payload []byte) error {
	envelope := busEnvelope{Type: eventType.String(), Path: path, Payload: payload}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("transport: marshal envelope: %w", err)
	}
	return r.client.Publish(ctx, busChannel, data).Err()
}

func (r *RedisTransport) Subscribe(ctx context.Context, pattern string) (<-chan Event, func(), error) {
	sub := r.client.Subscribe(ctx, busChannel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, nil, fmt.Errorf("transport: subscribe: %w", err)
	}

	out := make(chan Event, 16)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				var envelope busEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
					continue
				}
				if !strings.HasPrefix(envelope.Path, pattern) {
					continue
				}
				eventType := EventChanged
				if envelope.Type == EventDeleted.String() {
					eventType = EventDeleted
				}
				// Copy the payload out of the decoded envelope before
				// handing it across the channel boundary — the
				// envelope itself is about to go out of scope, but the
				// discipline matters more once a caller starts reusing
				// buffers (spec §9 transport event-buffer aliasing).
				owned := make([]byte, len(envelope.Payload))
				copy(owned, envelope.Payload)
				select {
				case out <- Event{Type: eventType, Path: envelope.Path, Payload: owned}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

// Ping checks that the bus is reachable, for the admin surface's
// GET /readyz.
func (r *RedisTransport) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisTransport) Close() error {
	return r.client.Close()
}

func busKey(path string) string {
	return "tasksync:path:" + path
}
