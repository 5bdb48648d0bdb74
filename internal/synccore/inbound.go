package synccore

import (
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/tasksync/engine/internal/merge"
	"github.com/tasksync/engine/internal/models"
	"github.com/tasksync/engine/internal/store"
	"github.com/tasksync/engine/internal/transport"
)

// ApplyInbound applies a single inbound operation, idempotent in
// opID (spec §4.3, §8 invariant 2).
func (s *SyncCore) ApplyInbound(opID string, taskID string, payload transport.Payload) error {
	if s.idem.seen(opID) {
		return nil
	}

	now := s.now()

	err := s.store.Run(func(tx *store.Tx) error {
		processed, err := tx.IsProcessed(opID)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		if err := s.mergeAndPersist(tx, taskID, payload, now); err != nil {
			return err
		}
		return tx.MarkProcessed(opID, now)
	})
	if err != nil {
		return err
	}

	s.idem.remember(opID)
	return nil
}

// SnapshotTask is one element of a /snapshot/tasks payload.
type SnapshotTask struct {
	TaskID  string
	PeerID  string
	Payload transport.Payload
}

// ApplySnapshot applies every element of a full task-list payload
// through the merge engine with a deterministic opId, bypassing the
// processed-op check so repeated snapshot delivery is safe but never
// skipped outright (spec §4.3): re-running merge on already-applied
// timestamps is a no-op, so this is safe to call on every reconnect.
func (s *SyncCore) ApplySnapshot(tasks []SnapshotTask) error {
	now := s.now()
	return s.store.Run(func(tx *store.Tx) error {
		for _, item := range tasks {
			opID := fmt.Sprintf("snapshot:%s:%s", item.TaskID, item.PeerID)
			if err := s.mergeAndPersist(tx, item.TaskID, item.Payload, now); err != nil {
				return err
			}
			if err := tx.MarkProcessed(opID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// mergeAndPersist performs duplicate reconciliation, runs the merge
// engine, and applies its outcome — shared by ApplyInbound and
// ApplySnapshot since both ultimately do the same merge step.
//
// For an existing row it writes title/notes/completed through the
// update_<field>_if_newer primitives (spec §4.1: "the primitive on
// which Merge is built") rather than a blind full-row Save, so two
// inbound ops racing on the same row each check the field's own
// stored timestamp at write time instead of the possibly-stale
// in-memory snapshot Resolve read. peerId/dueDate/priority have no
// per-field timestamp to race on, so Resolve's decision for those is
// folded in afterward via ApplyMergeMetadata.
func (s *SyncCore) mergeAndPersist(tx *store.Tx, taskID string, payload transport.Payload, now int64) error {
	delta, err := decodeDelta(taskID, payload)
	if err != nil {
		return err
	}

	local, err := findLocalTask(tx, delta)
	if err != nil {
		return err
	}

	outcome := merge.Resolve(local, delta, now)
	if outcome.HardDelete {
		targetID := delta.ID
		if local != nil {
			targetID = local.ID
		}
		return tx.HardDeleteTask(targetID)
	}

	if local == nil {
		return tx.InsertOrReplaceTask(outcome.Task)
	}

	if delta.Title != nil && delta.TitleUpdatedAt != nil {
		if _, err := tx.UpdateTitleIfNewer(local.ID, *delta.Title, *delta.TitleUpdatedAt); err != nil {
			return err
		}
	}
	if delta.Notes != nil && delta.NotesUpdatedAt != nil {
		if _, err := tx.UpdateNotesIfNewer(local.ID, *delta.Notes, *delta.NotesUpdatedAt); err != nil {
			return err
		}
	}
	if delta.Completed != nil && delta.CompletedUpdatedAt != nil {
		if _, err := tx.UpdateCompletedIfNewer(local.ID, *delta.Completed, *delta.CompletedUpdatedAt); err != nil {
			return err
		}
	}

	if !outcome.Changed {
		return nil
	}
	return tx.ApplyMergeMetadata(local.ID, outcome.Task)
}

// findLocalTask performs the duplicate-reconciliation lookup order
// spec §4.2 specifies: by id, then by peerId, then by a dirty local
// task with matching title and no peerId yet.
func findLocalTask(tx *store.Tx, delta merge.Delta) (*models.Task, error) {
	local, err := tx.GetTask(delta.ID)
	if err == nil {
		return &local, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	if delta.PeerID != nil {
		local, err = tx.GetTaskByPeerID(*delta.PeerID)
		if err == nil {
			return &local, nil
		}
		if err != store.ErrNotFound {
			return nil, err
		}
	}

	if delta.Title != nil {
		local, err = tx.FindDirtyTaskByTitle(*delta.Title)
		if err == nil {
			return &local, nil
		}
		if err != store.ErrNotFound {
			return nil, err
		}
	}

	return nil, nil
}

func decodeDelta(taskID string, payload transport.Payload) (merge.Delta, error) {
	id, err := uuid.FromString(taskID)
	if err != nil {
		return merge.Delta{}, fmt.Errorf("%w: invalid taskId %q: %v", ErrMalformedDelta, taskID, err)
	}

	delta := merge.Delta{ID: id}

	if v, ok := payload.String("title"); ok {
		delta.Title = &v
	}
	if v, ok := payload.Int64("titleUpdatedAt"); ok {
		delta.TitleUpdatedAt = &v
	}
	if v, ok := payload.String("notes"); ok {
		delta.Notes = &v
	}
	if v, ok := payload.Int64("notesUpdatedAt"); ok {
		delta.NotesUpdatedAt = &v
	}
	if v, ok := payload.Bool("completed"); ok {
		delta.Completed = &v
	}
	if v, ok := payload.Int64("completedUpdatedAt"); ok {
		delta.CompletedUpdatedAt = &v
	}
	if v, ok := payload.Bool("deleted"); ok {
		delta.Deleted = &v
	}
	if v, ok := payload.Int("priority"); ok {
		delta.Priority = &v
	}
	if v, ok := payload.Int64("dueDate"); ok {
		delta.DueDate = &v
	}
	if v, ok := payload.Int64("peerId"); ok {
		delta.PeerID = &v
	}

	return delta, nil
}
