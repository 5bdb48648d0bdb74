package merge

import (
	"testing"

	"github.com/gofrs/uuid"

	"github.com/tasksync/engine/internal/models"
)

func newID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return id
}

func ptr[T any](v T) *T { return &v }

func TestResolve_CreateIfAbsent(t *testing.T) {
	id := newID(t)
	delta := Delta{
		ID:             id,
		Title:          ptr("Milk"),
		TitleUpdatedAt: ptr(int64(10)),
		PeerID:         ptr(int64(42)),
	}

	out := Resolve(nil, delta, 100)
	if out.HardDelete {
		t.Fatal("expected insert, not delete")
	}
	if !out.Changed {
		t.Fatal("expected Changed=true for a new row")
	}
	if out.Task.Title != "Milk" || out.Task.TitleUpdatedAt != 10 {
		t.Fatalf("unexpected title state: %+v", out.Task)
	}
	if out.Task.PeerID == nil || *out.Task.PeerID != 42 {
		t.Fatalf("expected peerId=42, got %+v", out.Task.PeerID)
	}
	if out.Task.Dirty {
		t.Fatal("newly created-from-peer rows must not be dirty")
	}
	if out.Task.SyncedAt != 100 {
		t.Fatalf("expected syncedAt=100, got %d", out.Task.SyncedAt)
	}
}

func TestResolve_TombstoneWinsRegardlessOfOtherFields(t *testing.T) {
	local := &models.Task{ID: newID(t), Title: "A", TitleUpdatedAt: 10}
	delta := Delta{
		ID:             local.ID,
		Title:          ptr("A2"),
		TitleUpdatedAt: ptr(int64(1)), // older, would otherwise be ignored
		Deleted:        ptr(true),
	}

	out := Resolve(local, delta, 100)
	if !out.HardDelete {
		t.Fatal("expected delete to win a tombstone")
	}
	if out.Task != nil {
		t.Fatal("expected no task on hard delete")
	}
}

func TestResolve_PerFieldUpdateIfNewer(t *testing.T) {
	local := &models.Task{
		ID: newID(t),
		Title: "A", TitleUpdatedAt: 10,
		Notes: "n1", NotesUpdatedAt: 10,
		Completed: false, CompletedUpdatedAt: 10,
	}

	// Local edits title to "B" @20 (simulated by caller before Resolve
	// runs — here we only exercise the inbound merge). Remote edits
	// notes to "n2" @25.
	local.Title = "B"
	local.TitleUpdatedAt = 20

	delta := Delta{
		ID:             local.ID,
		Notes:          ptr("n2"),
		NotesUpdatedAt: ptr(int64(25)),
	}

	out := Resolve(local, delta, 100)
	if out.HardDelete {
		t.Fatal("did not expect a delete")
	}
	if out.Task.Title != "B" || out.Task.TitleUpdatedAt != 20 {
		t.Fatalf("title must be untouched by a delta with no title field: %+v", out.Task)
	}
	if out.Task.Notes != "n2" || out.Task.NotesUpdatedAt != 25 {
		t.Fatalf("expected notes=n2@25, got %+v", out.Task)
	}
	if !out.Changed {
		t.Fatal("expected Changed=true")
	}
}

func TestResolve_TieBreakingKeepsLocal(t *testing.T) {
	local := &models.Task{ID: newID(t), Title: "A", TitleUpdatedAt: 30}
	delta := Delta{
		ID:             local.ID,
		Title:          ptr("Z"),
		TitleUpdatedAt: ptr(int64(30)), // equal timestamp
	}

	out := Resolve(local, delta, 100)
	if out.Task.Title != "A" {
		t.Fatalf("equal timestamp must keep local value, got %q", out.Task.Title)
	}
	if out.Changed {
		t.Fatal("a no-op merge should report Changed=false")
	}
}

func TestResolve_DuplicateInboundIsIdempotent(t *testing.T) {
	local := &models.Task{ID: newID(t), Title: "A", TitleUpdatedAt: 10}
	delta := Delta{ID: local.ID, Title: ptr("Z"), TitleUpdatedAt: ptr(int64(30))}

	first := Resolve(local, delta, 100)
	second := Resolve(first.Task, delta, 200)

	if second.Changed {
		t.Fatal("re-applying the same delta must be a no-op the second time")
	}
	if second.Task.Title != first.Task.Title || second.Task.TitleUpdatedAt != first.Task.TitleUpdatedAt {
		t.Fatalf("idempotency violated: first=%+v second=%+v", first.Task, second.Task)
	}
}

func TestResolve_PeerLinkageIsOneDirectional(t *testing.T) {
	existingPeer := int64(7)
	local := &models.Task{ID: newID(t), PeerID: &existingPeer}
	delta := Delta{ID: local.ID, PeerID: ptr(int64(99))}

	out := Resolve(local, delta, 100)
	if out.Task.PeerID == nil || *out.Task.PeerID != existingPeer {
		t.Fatalf("peerId must not be overwritten once set, got %+v", out.Task.PeerID)
	}
}

func TestResolve_PeerLinkageSetsWhenAbsent(t *testing.T) {
	local := &models.Task{ID: newID(t)}
	delta := Delta{ID: local.ID, PeerID: ptr(int64(99))}

	out := Resolve(local, delta, 100)
	if out.Task.PeerID == nil || *out.Task.PeerID != 99 {
		t.Fatalf("expected peerId to be set to 99, got %+v", out.Task.PeerID)
	}
	if !out.Changed {
		t.Fatal("setting peerId counts as a change")
	}
}

func TestResolve_DueDateAuthorityIsPeer(t *testing.T) {
	local := &models.Task{ID: newID(t)}
	delta := Delta{ID: local.ID, DueDate: ptr(int64(1_700_000_000_000))}

	out := Resolve(local, delta, 100)
	if out.Task.DueDate == nil {
		t.Fatal("expected due date to be written from peer delta")
	}
}

func TestResolve_UnsetDueDateZeroMeansClear(t *testing.T) {
	existingDue := *ptr(int64(0))
	_ = existingDue
	local := &models.Task{ID: newID(t)}
	withDue := Resolve(local, Delta{ID: local.ID, DueDate: ptr(int64(1_700_000_000_000))}, 1)
	cleared := Resolve(withDue.Task, Delta{ID: local.ID, DueDate: ptr(int64(0))}, 2)

	if cleared.Task.DueDate != nil {
		t.Fatalf("0 must clear the due date, got %v", cleared.Task.DueDate)
	}
}

func TestResolve_CommutativityAcrossDistinctFields(t *testing.T) {
	base := &models.Task{ID: newID(t), Title: "A", TitleUpdatedAt: 1, Notes: "x", NotesUpdatedAt: 1}
	d1 := Delta{ID: base.ID, Title: ptr("B"), TitleUpdatedAt: ptr(int64(5))}
	d2 := Delta{ID: base.ID, Notes: ptr("y"), NotesUpdatedAt: ptr(int64(6))}

	order1 := Resolve(base, d1, 10)
	order1 = Resolve(order1.Task, d2, 11)

	order2 := Resolve(base, d2, 10)
	order2 = Resolve(order2.Task, d1, 11)

	if order1.Task.Title != order2.Task.Title || order1.Task.Notes != order2.Task.Notes {
		t.Fatalf("expected commuting results, got %+v vs %+v", order1.Task, order2.Task)
	}
}
