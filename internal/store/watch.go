package store

import "sync"

// broadcaster implements the lazy, restartable, infinite observation of
// list_active() that spec §4.1 requires for the UI: it fires at least
// once after every committed transaction that changed the tasks table.
// Subscribers that fall behind simply miss intermediate notifications
// and pick up the latest state on their next read — this is a
// level-triggered signal, not a queue of events.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan struct{}]struct{})}
}

// Subscribe returns a channel that receives a value (non-blockingly)
// every time the tasks table changes, plus a cancel function. Callers
// should re-run list_active() whenever they read from the channel, not
// treat values as deltas.
func (b *broadcaster) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *broadcaster) notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch exposes the reactive task-change signal to external callers
// such as a UI adapter.
func (s *Store) Watch() (<-chan struct{}, func()) {
	return s.watch.Subscribe()
}
