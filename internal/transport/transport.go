// Package transport adapts the sync engine's outbox pump and inbox
// router to an opaque, byte-keyed KV bus (spec §1: "the Data Layer
// transport itself ... the core treats it as an opaque sink/source").
// Two implementations exist: a Redis-pub/sub-backed one for real
// deployments, and an in-memory one for tests and single-process
// demos. Both satisfy the same Transport interface.
package transport

import "context"

// EventType is the closed tagged variant of bus event kinds the
// transport delivers to a subscriber (spec §4.4's on_event callback).
type EventType int

const (
	EventChanged EventType = iota
	EventDeleted
)

func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "CHANGED"
	case EventDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Event is a materialized bus notification. Payload is always a fresh
// copy owned by the caller — transports MUST NOT hand out a buffer
// that could be mutated or reused after the event is delivered (spec
// §4.6 event-buffer discipline, §9 transport event-buffer aliasing).
type Event struct {
	Type    EventType
	Path    string
	Payload []byte
}

// Transport is the contract the outbox pump and inbox router depend
// on. put/delete are at-least-once from the bus's perspective;
// duplicate deliveries of the same path are possible and are the
// idempotency log's responsibility to absorb, not the transport's.
type Transport interface {
	Put(ctx context.Context, path string, payload []byte) error
	Delete(ctx context.Context, path string) error

	// Subscribe returns a channel of events matching pattern (a path
	// prefix, e.g. "/outbox/phone/") and a cancel function. The
	// channel is closed when cancel is called or ctx is done.
	Subscribe(ctx context.Context, pattern string) (<-chan Event, func(), error)

	Close() error
}
