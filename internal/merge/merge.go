// Package merge implements the per-field last-writer-wins resolution
// algorithm that reconciles a local task against an inbound delta. It
// is a pure function: given a local task snapshot (or none) and a
// delta, it decides what the resulting task should look like and
// never touches a database itself — callers (internal/synccore) are
// responsible for finding the local row (including duplicate
// reconciliation) and for persisting whatever Resolve decides.
package merge

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/tasksync/engine/internal/models"
)

// Delta is an inbound task delta: every content/metadata field is
// optional so a sender can describe a minimal edit.
type Delta struct {
	ID uuid.UUID

	Title   *string
	Notes   *string
	PeerID  *int64
	Deleted *bool

	TitleUpdatedAt     *int64
	NotesUpdatedAt     *int64
	CompletedUpdatedAt *int64

	Completed *bool
	Priority  *int

	// DueDate is milliseconds since epoch; 0 means "unset" (spec §6).
	DueDate *int64
}

// Outcome is the decision Resolve reaches. Exactly one of HardDelete
// or Task is meaningful: HardDelete means the row is to be removed
// outright; otherwise Task holds the full merged record. internal/synccore
// inserts it when no local row exists; for an existing row it re-applies
// the delta's fields through the store's IfNewer primitives and copies
// the remaining metadata from Task.
type Outcome struct {
	HardDelete bool
	Task       *models.Task
	// Changed reports whether any field differs from the local record
	// that was passed in, i.e. whether this merge actually did
	// anything beyond confirming the existing state.
	Changed bool
}

// Resolve applies spec's per-field LWW algorithm. local is nil when no
// row exists for this id (after duplicate reconciliation has already
// failed to find one) or when it wasn't needed because the caller
// performs the lookup; now is the wall-clock millisecond the caller
// observed apply happening at.
func Resolve(local *models.Task, delta Delta, now int64) Outcome {
	// Step 1: delete wins a tombstone unconditionally, regardless of
	// any other field in the delta or of timestamps.
	if delta.Deleted != nil && *delta.Deleted {
		return Outcome{HardDelete: true}
	}

	// Step 2: create-if-absent.
	if local == nil {
		return Outcome{Task: createFromDelta(delta, now), Changed: true}
	}

	updated := *local
	changed := false

	// Step 3: per-field update-if-newer. Equal timestamps keep local
	// (tie-breaking, spec §8 invariant 4).
	if delta.Title != nil && delta.TitleUpdatedAt != nil && *delta.TitleUpdatedAt > local.TitleUpdatedAt {
		updated.Title = *delta.Title
		updated.TitleUpdatedAt = *delta.TitleUpdatedAt
		changed = true
	}
	if delta.Notes != nil && delta.NotesUpdatedAt != nil && *delta.NotesUpdatedAt > local.NotesUpdatedAt {
		updated.Notes = *delta.Notes
		updated.NotesUpdatedAt = *delta.NotesUpdatedAt
		changed = true
	}
	if delta.Completed != nil && delta.CompletedUpdatedAt != nil && *delta.CompletedUpdatedAt > local.CompletedUpdatedAt {
		updated.Completed = *delta.Completed
		updated.CompletedUpdatedAt = *delta.CompletedUpdatedAt
		changed = true
	}

	// Step 4: peer linkage, one-directional once set.
	if updated.PeerID == nil && delta.PeerID != nil {
		peerID := *delta.PeerID
		updated.PeerID = &peerID
		changed = true
	}

	// Step 5: the peer is authoritative for dueDate (spec §9 open
	// question, resolved in favor of peer authority).
	if delta.DueDate != nil {
		var incoming *time.Time
		if *delta.DueDate != 0 {
			t := time.UnixMilli(*delta.DueDate)
			incoming = &t
		}
		if !sameInstant(updated.DueDate, incoming) {
			updated.DueDate = incoming
			changed = true
		}
	}

	if delta.Priority != nil && *delta.Priority != updated.Priority {
		updated.Priority = *delta.Priority
		changed = true
	}

	// Step 6: commit. A write from the peer supersedes any unsent
	// local edit to the same record as far as sync bookkeeping is
	// concerned — the record now reflects peer-confirmed state.
	if changed {
		updated.SyncedAt = now
		updated.Dirty = false
		if updated.UpdatedAt < now {
			updated.UpdatedAt = now
		}
	}

	return Outcome{Task: &updated, Changed: changed}
}

func createFromDelta(delta Delta, now int64) *models.Task {
	t := &models.Task{
		ID:       delta.ID,
		SyncedAt: now,
		Dirty:    false,
	}
	if delta.Title != nil {
		t.Title = *delta.Title
	}
	if delta.TitleUpdatedAt != nil {
		t.TitleUpdatedAt = *delta.TitleUpdatedAt
	} else {
		t.TitleUpdatedAt = now
	}
	if delta.Notes != nil {
		t.Notes = *delta.Notes
	}
	if delta.NotesUpdatedAt != nil {
		t.NotesUpdatedAt = *delta.NotesUpdatedAt
	} else {
		t.NotesUpdatedAt = now
	}
	if delta.Completed != nil {
		t.Completed = *delta.Completed
	}
	if delta.CompletedUpdatedAt != nil {
		t.CompletedUpdatedAt = *delta.CompletedUpdatedAt
	} else {
		t.CompletedUpdatedAt = now
	}
	if delta.Priority != nil {
		t.Priority = *delta.Priority
	}
	if delta.PeerID != nil {
		peerID := *delta.PeerID
		t.PeerID = &peerID
	}
	if delta.DueDate != nil && *delta.DueDate != 0 {
		due := time.UnixMilli(*delta.DueDate)
		t.DueDate = &due
		// Preserving the source behavior verbatim (spec §9 open
		// question): a present due date is treated as wanting a
		// reminder on first import, conflating "has due date" with
		// "user wants a reminder".
		t.Reminder = true
	}
	t.UpdatedAt = now
	return t
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
