// Package inbox is the demultiplexer spec §4.6 assigns to the inbox
// router: it turns raw bus events into typed SyncCore calls. It is
// grounded on the teacher's internal/cache read-through dispatch style
// (a small struct wrapping a lower layer, switching on a closed kind
// before doing anything with the payload) generalized from a cache-key
// prefix switch to transport.Parse's sum-typed path kind (spec §9:
// "implementations SHOULD use sum types, not string comparison, at the
// hot path").
package inbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tasksync/engine/internal/models"
	"github.com/tasksync/engine/internal/synccore"
	"github.com/tasksync/engine/internal/transport"
)

// Router dispatches bus events by path prefix to SyncCore, per spec
// §4.6. One Router instance is the "inbox listener" logical task spec
// §5 describes.
type Router struct {
	core      *synccore.SyncCore
	transport transport.Transport
	log       *zap.Logger

	// nonceTTL bounds how long a /sync/request nonce is remembered
	// (supplemented feature, SPEC_FULL §9): a redelivered request
	// within the window is dropped rather than triggering a second
	// snapshot send.
	nonceTTL time.Duration

	mu     sync.Mutex
	nonces map[string]time.Time

	// OnSyncRequest is invoked (if set) when a de-duplicated
	// /sync/request event arrives; bootstrap wires it to the
	// maintenance scheduler's SyncNow. Nothing in the router publishes
	// a /snapshot/tasks reply. Left nil in tests that don't exercise
	// the reconnect path.
	OnSyncRequest func(ctx context.Context)

	acksHandled         atomic.Int64
	peerOpsApplied      atomic.Int64
	taskUpdatesApplied  atomic.Int64
	snapshotsApplied    atomic.Int64
	syncRequestsHandled atomic.Int64
	malformedDropped    atomic.Int64
}

// Stats returns cumulative per-path-kind dispatch counters, for the
// admin /metrics endpoint's inbox section.
func (r *Router) Stats() map[string]int64 {
	return map[string]int64{
		"acks_handled":         r.acksHandled.Load(),
		"peer_ops_applied":     r.peerOpsApplied.Load(),
		"task_updates_applied": r.taskUpdatesApplied.Load(),
		"snapshots_applied":    r.snapshotsApplied.Load(),
		"sync_requests":        r.syncRequestsHandled.Load(),
		"malformed_dropped":    r.malformedDropped.Load(),
	}
}

// New builds a Router bound to core and t. Call Start to begin
// consuming events; New does not subscribe, and Start subscribes to a
// fixed set of path prefixes that callers cannot change.
func New(core *synccore.SyncCore, t transport.Transport, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		core:      core,
		transport: t,
		log:       log,
		nonceTTL:  5 * time.Minute,
		nonces:    make(map[string]time.Time),
	}
}

// Start subscribes to every path prefix the router understands and
// dispatches events on the caller's goroutine until ctx is done. It
// blocks; callers typically run it in its own goroutine.
func (r *Router) Start(ctx context.Context) error {
	// RedisTransport fans every Put out to all subscribers on one
	// shared channel, including the publisher itself — there is no
	// origin filtering at the bus level (spec §9's "the core treats it
	// as an opaque sink/source" means the core, not the transport,
	// owns loop-back rejection). Scoping these two patterns to the
	// label the node expects to receive on keeps its own echoed
	// /outbox and /ack writes out of the channel entirely, rather than
	// relying solely on the Dispatch-time check below.
	patterns := []string{
		"/ack/" + r.core.LocalLabel + "/",
		"/outbox/" + r.core.PeerLabel + "/",
		"/snapshot/", "/tasks/", "/sync/",
	}

	var chans []<-chan transport.Event
	var cancels []func()
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	for _, pattern := range patterns {
		ch, cancel, err := r.transport.Subscribe(ctx, pattern)
		if err != nil {
			return fmt.Errorf("inbox: subscribe %s: %w", pattern, err)
		}
		chans = append(chans, ch)
		cancels = append(cancels, cancel)
	}

	merged := merge(ctx, chans...)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-merged:
			if !ok {
				return nil
			}
			r.Dispatch(ctx, evt)
		}
	}
}

// Dispatch handles exactly one event. It is exported so tests and a
// single-process demo can feed events synchronously without going
// through a live Subscribe loop. Event data (Path/Payload) must
// already be owned by the caller — transport.Event guarantees this
// (spec §4.6 event-buffer discipline, §9 transport event-buffer
// aliasing) so no further copy is needed here.
func (r *Router) Dispatch(ctx context.Context, evt transport.Event) {
	parsed := transport.Parse(evt.Path)

	switch parsed.Kind {
	case transport.PathAck:
		// /ack/<local>/... is a peer confirming one of this node's own
		// outbox entries. /ack/<peer>/... is this node's own reply to
		// the peer's outbox (published by handlePeerOutbox below) —
		// discard it rather than re-processing it as an inbound ack.
		if parsed.Peer != r.core.LocalLabel {
			return
		}
		r.handleAck(parsed, evt)
	case transport.PathOutbox:
		// /outbox/<peer>/... is a genuine queued op from the remote
		// peer. /outbox/<local>/... is this node's own publish
		// (internal/outbox.Pump.sendOne) echoed back by the shared
		// bus — discard it rather than self-acking.
		if parsed.Peer != r.core.PeerLabel {
			return
		}
		r.handlePeerOutbox(ctx, parsed, evt)
	case transport.PathTask:
		r.handleTaskUpdate(parsed, evt)
	case transport.PathSnapshotTasks:
		r.handleSnapshot(evt)
	case transport.PathSyncRequest:
		r.handleSyncRequest(ctx, evt)
	default:
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: unrecognized bus path", zap.String("path", evt.Path))
	}
}

// handleAck processes /ack/<local>/<opId>: the peer telling us it saw
// (or rejected) one of our own outbox entries.
func (r *Router) handleAck(parsed transport.ParsedPath, evt transport.Event) {
	opID, err := parsed.OpIDAsUint64()
	if err != nil {
		r.log.Warn("inbox: malformed ack path", zap.String("path", evt.Path), zap.Error(err))
		return
	}

	payload, err := transport.Decode(evt.Payload)
	if err != nil {
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: malformed ack payload", zap.String("path", evt.Path), zap.Error(err))
		return
	}
	r.acksHandled.Add(1)

	success, _ := payload.Bool("success")
	errMsg, _ := payload.String("error")

	// An explicit success=false ack is the peer rejecting the op
	// outright, unlike a transport timeout the pump will retry — so it
	// escalates straight to FAILED rather than staying PENDING.
	var applyErr error
	if success {
		applyErr = r.core.MarkOutboxAcked(opID)
	} else {
		applyErr = r.core.MarkOutboxFailed(opID, models.OutboxFailed, errMsg)
	}
	if applyErr != nil {
		r.log.Warn("inbox: failed to record ack", zap.Uint64("op_id", opID), zap.Error(applyErr))
		return
	}

	if err := r.transport.Delete(context.Background(), evt.Path); err != nil {
		r.log.Warn("inbox: failed to clean up ack entry", zap.String("path", evt.Path), zap.Error(err))
	}
}

// handlePeerOutbox processes /outbox/<peer>/<opId>: a queued operation
// from the remote peer. It applies the delta through SyncCore and
// replies with an ack at /ack/<peer>/<opId>, per spec §4.6.
func (r *Router) handlePeerOutbox(ctx context.Context, parsed transport.ParsedPath, evt transport.Event) {
	payload, err := transport.Decode(evt.Payload)
	if err != nil {
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: malformed outbox payload, dropping (peer will redeliver)",
			zap.String("path", evt.Path), zap.Error(err))
		return
	}

	taskID, _ := payload.String("taskId")
	applyErr := r.core.ApplyInbound(parsed.OpID, taskID, payload)

	// Spec §7: a malformed inbound payload is logged and dropped, not
	// acked — the peer redelivers it on its own retry schedule. Only
	// a payload that decoded and was merged (successfully or not) gets
	// an ack back.
	if errors.Is(applyErr, synccore.ErrMalformedDelta) {
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: malformed inbound delta, dropping without ack (peer will redeliver)",
			zap.String("path", evt.Path), zap.Error(applyErr))
		return
	}
	r.peerOpsApplied.Add(1)

	ackPath := transport.AckPathForPeerOp(parsed.Peer, parsed.OpID)
	ackPayload := transport.AckPayload(parsed.OpID, applyErr == nil, errString(applyErr), r.core.Now())
	body, err := transport.Encode(ackPayload)
	if err != nil {
		r.log.Error("inbox: failed to encode ack payload", zap.Error(err))
		return
	}
	if err := r.transport.Put(ctx, ackPath, body); err != nil {
		r.log.Warn("inbox: failed to publish ack", zap.String("path", ackPath), zap.Error(err))
	}
}

// handleTaskUpdate processes /tasks/<taskId>: a single incremental
// update. opId is derived deterministically from the path and the
// payload's own timestamp (spec §4.6), so redelivery is naturally
// idempotent without the sender needing to track opIds of its own.
func (r *Router) handleTaskUpdate(parsed transport.ParsedPath, evt transport.Event) {
	payload, err := transport.Decode(evt.Payload)
	if err != nil {
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: malformed task payload, dropping", zap.String("path", evt.Path), zap.Error(err))
		return
	}

	ts, _ := payload.Int64("timestamp")
	opID := fmt.Sprintf("task:%s:%d", parsed.TaskID, ts)

	if err := r.core.ApplyInbound(opID, parsed.TaskID, payload); err != nil {
		r.log.Warn("inbox: failed to apply task update", zap.String("task_id", parsed.TaskID), zap.Error(err))
		return
	}
	r.taskUpdatesApplied.Add(1)
}

// handleSnapshot decodes a full /snapshot/tasks payload (taskCount
// plus task_<i>_* field arrays, spec §6) and applies it.
func (r *Router) handleSnapshot(evt transport.Event) {
	payload, err := transport.Decode(evt.Payload)
	if err != nil {
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: malformed snapshot payload, dropping", zap.Error(err))
		return
	}

	tasks, err := decodeSnapshot(payload)
	if err != nil {
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: failed to decode snapshot", zap.Error(err))
		return
	}

	if err := r.core.ApplySnapshot(tasks); err != nil {
		r.log.Error("inbox: failed to apply snapshot", zap.Error(err))
		return
	}
	r.snapshotsApplied.Add(1)
}

// handleSyncRequest de-duplicates a /sync/request by its nonce (spec
// §6, SPEC_FULL supplemented feature) and, on first sight, invokes
// OnSyncRequest.
func (r *Router) handleSyncRequest(ctx context.Context, evt transport.Event) {
	payload, err := transport.Decode(evt.Payload)
	if err != nil {
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: malformed sync-request payload, dropping", zap.Error(err))
		return
	}

	nonce, ok := payload.String("nonce")
	if !ok || nonce == "" {
		r.malformedDropped.Add(1)
		r.log.Warn("inbox: sync-request missing nonce, dropping")
		return
	}

	if r.seenNonce(nonce) {
		return
	}
	r.syncRequestsHandled.Add(1)

	if r.OnSyncRequest != nil {
		r.OnSyncRequest(ctx)
	}
}

func (r *Router) seenNonce(nonce string) bool {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	for n, at := range r.nonces {
		if now.Sub(at) > r.nonceTTL {
			delete(r.nonces, n)
		}
	}

	if _, ok := r.nonces[nonce]; ok {
		return true
	}
	r.nonces[nonce] = now
	return false
}

// decodeSnapshot unpacks the taskCount/task_<i>_* encoding spec §6
// defines for /snapshot/tasks into the per-task delta form ApplySnapshot
// expects.
func decodeSnapshot(payload transport.Payload) ([]synccore.SnapshotTask, error) {
	count, ok := payload.Int("taskCount")
	if !ok {
		return nil, fmt.Errorf("inbox: snapshot missing taskCount")
	}

	tasks := make([]synccore.SnapshotTask, 0, count)
	for i := 0; i < count; i++ {
		prefix := "task_" + strconv.Itoa(i) + "_"

		taskID, ok := payload.String(prefix + "id")
		if !ok {
			return nil, fmt.Errorf("inbox: snapshot entry %d missing id", i)
		}

		item := transport.Payload{}
		for _, field := range snapshotFields {
			if v, ok := payload[prefix+field]; ok {
				item[field] = v
			}
		}
		// the snapshot encoding names the cross-peer identifier
		// "phoneId" regardless of which peer produced it (spec §6);
		// normalize it to the delta's "peerId" key.
		if v, ok := payload[prefix+"phoneId"]; ok {
			item["peerId"] = v
		}

		peerID := ""
		if v, ok := item.Int64("peerId"); ok {
			peerID = strconv.FormatInt(v, 10)
		}

		tasks = append(tasks, synccore.SnapshotTask{
			TaskID:  taskID,
			PeerID:  peerID,
			Payload: item,
		})
	}
	return tasks, nil
}

var snapshotFields = []string{
	"title", "titleUpdatedAt", "notes", "notesUpdatedAt",
	"completed", "completedUpdatedAt", "deleted", "priority", "dueDate",
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// merge fans multiple event channels into one, closing the output once
// every input is closed or ctx is done.
func merge(ctx context.Context, chans ...<-chan transport.Event) <-chan transport.Event {
	out := make(chan transport.Event)
	var wg sync.WaitGroup
	wg.Add(len(chans))
	for _, c := range chans {
		go func(c <-chan transport.Event) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-c:
					if !ok {
						return
					}
					select {
					case out <- evt:
					case <-ctx.Done():
						return
					}
				}
			}
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
