package inbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/gofrs/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tasksync/engine/internal/alarm"
	"github.com/tasksync/engine/internal/store"
	"github.com/tasksync/engine/internal/synccore"
	"github.com/tasksync/engine/internal/transport"
)

func newTestRouter(t *testing.T) (*Router, *synccore.SyncCore, *transport.MemoryTransport) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st, err := store.Open(db, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	core := synccore.New(st, nil, alarm.NewLoggingCollaborator(nil), "watch", "phone", func() int64 { return 100 })
	tr := transport.NewMemoryTransport()
	return New(core, tr, nil), core, tr
}

func TestRouter_HandlePeerOutbox_AppliesDeltaAndPublishesAck(t *testing.T) {
	r, core, tr := newTestRouter(t)
	ctx := context.Background()

	id, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}

	ackCh, cancel, err := tr.Subscribe(ctx, "/ack/")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	payload := transport.Payload{
		"taskId":         id.String(),
		"title":          "Milk",
		"titleUpdatedAt": float64(50),
	}
	body, err := transport.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	r.Dispatch(ctx, transport.Event{
		Type:    transport.EventChanged,
		Path:    transport.OutboxPathForPeerOp("phone", "op-1"),
		Payload: body,
	})

	task, err := core.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Title != "Milk" {
		t.Errorf("expected title Milk, got %q", task.Title)
	}

	wantAckPath := transport.AckPathForPeerOp("phone", "op-1")
	select {
	case evt := <-ackCh:
		if evt.Path != wantAckPath {
			t.Errorf("expected ack at %s, got %s", wantAckPath, evt.Path)
		}
	default:
		t.Errorf("expected ack published at %s", wantAckPath)
	}
}

func TestRouter_Dispatch_IgnoresSelfPublishedOutboxEcho(t *testing.T) {
	r, core, tr := newTestRouter(t)
	ctx := context.Background()

	id, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}

	ackCh, cancel, err := tr.Subscribe(ctx, "/ack/")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	payload := transport.Payload{
		"taskId":         id.String(),
		"title":          "Milk",
		"titleUpdatedAt": float64(50),
	}
	body, err := transport.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// The router's own node label is "watch" (newTestRouter); a bus
	// event echoed back under that same label is this node's own
	// outbox publish, not a peer op, and must not be applied or acked.
	r.Dispatch(ctx, transport.Event{
		Type:    transport.EventChanged,
		Path:    transport.OutboxPathForPeerOp("watch", "op-1"),
		Payload: body,
	})

	if _, err := core.GetTask(id); err == nil {
		t.Errorf("expected self-published outbox echo to be ignored, but task was created")
	}

	select {
	case evt := <-ackCh:
		t.Errorf("expected no ack published for a self-published outbox echo, got one at %s", evt.Path)
	default:
	}
}

func TestRouter_Dispatch_IgnoresSelfPublishedAckEcho(t *testing.T) {
	r, core, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := core.CreateTask(synccore.CreateTaskFields{Title: "Bread"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	pending, err := core.ListPendingOutbox()
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending outbox entry, got %d", len(pending))
	}
	opID := pending[0].OpID

	// This node's own label is "watch"; an ack addressed to "phone" is
	// the ack this node itself published in reply to a peer outbox
	// entry, echoed back by the shared bus, not a real confirmation of
	// this node's own pending op.
	ackPath := transport.AckPathForPeerOp("phone", fmt.Sprintf("%d", opID))
	r.Dispatch(ctx, transport.Event{Type: transport.EventChanged, Path: ackPath, Payload: mustEncode(t, transport.AckPayload("", true, "", 200))})

	stillPending, err := core.ListPendingOutbox()
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	if len(stillPending) != 1 {
		t.Errorf("expected the pending entry to survive a self-published ack echo, got %d remaining", len(stillPending))
	}
}

func TestRouter_HandlePeerOutbox_MalformedDeltaDropsWithoutAck(t *testing.T) {
	r, core, tr := newTestRouter(t)
	ctx := context.Background()

	ackCh, cancel, err := tr.Subscribe(ctx, "/ack/")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	payload := transport.Payload{
		"taskId":         "not-a-valid-uuid",
		"title":          "Milk",
		"titleUpdatedAt": float64(50),
	}
	body, err := transport.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	r.Dispatch(ctx, transport.Event{
		Type:    transport.EventChanged,
		Path:    transport.OutboxPathForPeerOp("phone", "op-1"),
		Payload: body,
	})

	select {
	case evt := <-ackCh:
		t.Errorf("expected no ack published for a malformed delta, got one at %s", evt.Path)
	default:
	}

	if _, err := core.ListPendingOutbox(); err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
}

func TestRouter_HandleAck_MarksAckedAndDeletesEntry(t *testing.T) {
	r, core, _ := newTestRouter(t)
	ctx := context.Background()

	id, err := core.CreateTask(synccore.CreateTaskFields{Title: "Bread"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	pending, err := core.ListPendingOutbox()
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending outbox entry, got %d", len(pending))
	}
	opID := pending[0].OpID

	ackPath := transport.AckPathForLocalOp("watch", opID)
	r.Dispatch(ctx, transport.Event{Type: transport.EventChanged, Path: ackPath, Payload: mustEncode(t, transport.AckPayload("", true, "", 200))})

	entry, err := core.ListPendingOutbox()
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	if len(entry) != 0 {
		t.Errorf("expected no pending entries after ack, got %d", len(entry))
	}

	task, err := core.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.SyncedAt == 0 {
		t.Errorf("expected task to be marked synced after ack")
	}
}

func TestRouter_HandleSnapshot_DecodesAndApplies(t *testing.T) {
	r, core, _ := newTestRouter(t)
	ctx := context.Background()

	id, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}

	payload := transport.Payload{
		"taskCount":        1,
		"snapshotTimestamp": float64(500),
		"task_0_id":        id.String(),
		"task_0_title":     "Eggs",
		"task_0_titleUpdatedAt": float64(500),
	}
	body, err := transport.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	r.Dispatch(ctx, transport.Event{Type: transport.EventChanged, Path: transport.SnapshotPath, Payload: body})

	task, err := core.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Title != "Eggs" {
		t.Errorf("expected title Eggs, got %q", task.Title)
	}
}

func TestRouter_HandleSyncRequest_DedupesByNonce(t *testing.T) {
	r, _, _ := newTestRouter(t)
	ctx := context.Background()

	var calls int
	r.OnSyncRequest = func(ctx context.Context) { calls++ }

	body := mustEncode(t, transport.SyncRequestPayload(100, "nonce-1"))
	evt := transport.Event{Type: transport.EventChanged, Path: transport.SyncRequestPath, Payload: body}

	r.Dispatch(ctx, evt)
	r.Dispatch(ctx, evt)

	if calls != 1 {
		t.Errorf("expected OnSyncRequest to fire once for a repeated nonce, got %d", calls)
	}
}

func mustEncode(t *testing.T, p transport.Payload) []byte {
	t.Helper()
	b, err := transport.Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}
