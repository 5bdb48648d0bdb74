package transport

import (
	"context"
	"strings"
	"sync"
)

// MemoryTransport is an in-process Transport for tests and
// single-process demos: Put/Delete fan out directly to subscribers
// without a network hop.
type MemoryTransport struct {
	mu   sync.Mutex
	data map[string][]byte
	subs map[chan Event]string
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		data: make(map[string][]byte),
		subs: make(map[chan Event]string),
	}
}

func (m *MemoryTransport) Put(ctx context.Context, path string, payload []byte) error {
	owned := make([]byte, len(payload))
	copy(owned, payload)

	m.mu.Lock()
	m.data[path] = owned
	m.mu.Unlock()

	m.dispatch(Event{Type: EventChanged, Path: path, Payload: owned})
	return nil
}

func (m *MemoryTransport) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	delete(m.data, path)
	m.mu.Unlock()

	m.dispatch(Event{Type: EventDeleted, Path: path})
	return nil
}

func (m *MemoryTransport) dispatch(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch, pattern := range m.subs {
		if !strings.HasPrefix(evt.Path, pattern) {
			continue
		}
		owned := evt
		if evt.Payload != nil {
			owned.Payload = append([]byte(nil), evt.Payload...)
		}
		select {
		case ch <- owned:
		default:
		}
	}
}

func (m *MemoryTransport) Subscribe(ctx context.Context, pattern string) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)

	m.mu.Lock()
	m.subs[ch] = pattern
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
		m.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}

// Ping always succeeds: an in-process transport has no network hop to
// fail. It exists so MemoryTransport satisfies the admin surface's
// optional readiness-check interface the same way RedisTransport does.
func (m *MemoryTransport) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		close(ch)
	}
	m.subs = make(map[chan Event]string)
	return nil
}
