package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"github.com/tasksync/engine/internal/models"
)

// GetTask reads a single task by id within tx.
func (tx *Tx) GetTask(id uuid.UUID) (models.Task, error) {
	var t models.Task
	err := tx.db.First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

// GetTaskByPeerID looks up a task by its peer-assigned id, used during
// duplicate reconciliation when a task cannot be found by id.
func (tx *Tx) GetTaskByPeerID(peerID int64) (models.Task, error) {
	var t models.Task
	err := tx.db.First(&t, "peer_id = ?", peerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

// FindDirtyTaskByTitle locates a dirty, peer-unlinked local task by exact
// title match — the last step of duplicate reconciliation (spec §4.2),
// resolving the race where a locally-created task appears in a peer
// snapshot before its CREATE outbox op has been acked.
func (tx *Tx) FindDirtyTaskByTitle(title string) (models.Task, error) {
	var t models.Task
	err := tx.db.Where("title = ? AND dirty = ? AND peer_id IS NULL", title, true).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

// ListActiveTasks returns all non-deleted tasks.
func (tx *Tx) ListActiveTasks() ([]models.Task, error) {
	var tasks []models.Task
	err := tx.db.Where("deleted = ?", false).Find(&tasks).Error
	return tasks, err
}

// ListActive is the Store-level counterpart used by the reactive UI
// stream; it reads outside any caller transaction, against a
// consistent snapshot.
func (s *Store) ListActive() ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.Where("deleted = ?", false).Find(&tasks).Error
	return tasks, err
}

// GetTask is the Store-level counterpart of Tx.GetTask, for callers
// that need a post-commit read (e.g. SyncCore deciding whether to
// notify the alarm collaborator) without opening a new transaction.
func (s *Store) GetTask(id uuid.UUID) (models.Task, error) {
	var t models.Task
	err := s.db.First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

// ListDirtyTasks returns all tasks with unsynced local edits.
func (tx *Tx) ListDirtyTasks() ([]models.Task, error) {
	var tasks []models.Task
	err := tx.db.Where("dirty = ?", true).Find(&tasks).Error
	return tasks, err
}

// ListTasksWithReminders returns active tasks the alarm collaborator
// should keep scheduled: reminder requested, not completed, not deleted.
func (tx *Tx) ListTasksWithReminders() ([]models.Task, error) {
	var tasks []models.Task
	err := tx.db.Where("reminder = ? AND completed = ? AND deleted = ?", true, false, false).Find(&tasks).Error
	return tasks, err
}

// InsertOrReplaceTask upserts a full task row, marking the tasks table
// as changed so Run() notifies the reactive watchers on commit.
func (tx *Tx) InsertOrReplaceTask(t *models.Task) error {
	if err := tx.db.Save(t).Error; err != nil {
		return err
	}
	tx.tasksChanged = true
	return nil
}

// SetPeerID assigns the remote-peer identifier to a local task once it
// becomes known (peer linkage, spec §4.2 step 4).
func (tx *Tx) SetPeerID(id uuid.UUID, peerID int64) error {
	res := tx.db.Model(&models.Task{}).Where("id = ?", id).Update("peer_id", peerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return nil
}

// MarkSynced clears dirty and stamps syncedAt after an outbound op for
// this task has been acked.
func (tx *Tx) MarkSynced(id uuid.UUID, now int64) error {
	res := tx.db.Model(&models.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"dirty":     false,
		"synced_at": now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return nil
}

// HardDeleteTask removes a task row outright (tombstone purge by
// maintenance, or immediate delete-wins-tombstone per spec §4.2 step 1).
func (tx *Tx) HardDeleteTask(id uuid.UUID) error {
	res := tx.db.Delete(&models.Task{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return nil
}

// CleanupDeletedTasks hard-deletes tombstones that have been synced and
// aged past threshold (spec §4.7 step 5).
func (tx *Tx) CleanupDeletedTasks(threshold int64) (int64, error) {
	res := tx.db.Where("deleted = ? AND synced_at > 0 AND synced_at < ?", true, threshold).Delete(&models.Task{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return res.RowsAffected, nil
}

// UpdateTitleIfNewer writes title iff ts is strictly greater than the
// stored titleUpdatedAt. This is the atomic predicate the merge engine
// is built on (spec §4.1): a single UPDATE ... WHERE clause, so two
// concurrent callers racing on the same row can never both "win".
func (tx *Tx) UpdateTitleIfNewer(id uuid.UUID, title string, ts int64) (int64, error) {
	res := tx.db.Model(&models.Task{}).
		Where("id = ? AND title_updated_at < ?", id, ts).
		Updates(map[string]interface{}{"title": title, "title_updated_at": ts})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return res.RowsAffected, nil
}

// UpdateNotesIfNewer is UpdateTitleIfNewer's counterpart for notes,
// the second of the three fields the merge engine writes through this
// family rather than a full-row Save (spec §4.1).
func (tx *Tx) UpdateNotesIfNewer(id uuid.UUID, notes string, ts int64) (int64, error) {
	res := tx.db.Model(&models.Task{}).
		Where("id = ? AND notes_updated_at < ?", id, ts).
		Updates(map[string]interface{}{"notes": notes, "notes_updated_at": ts})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return res.RowsAffected, nil
}

// UpdateCompletedIfNewer is UpdateTitleIfNewer's counterpart for
// completed, the third field the merge engine writes atomically.
func (tx *Tx) UpdateCompletedIfNewer(id uuid.UUID, completed bool, ts int64) (int64, error) {
	res := tx.db.Model(&models.Task{}).
		Where("id = ? AND completed_updated_at < ?", id, ts).
		Updates(map[string]interface{}{"completed": completed, "completed_updated_at": ts})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return res.RowsAffected, nil
}

// ApplyMergeMetadata writes the merge outcome's remaining fields —
// peer linkage, dueDate, priority, and the dirty/syncedAt/updatedAt
// sync bookkeeping — once title/notes/completed have already been
// written through their own IfNewer primitives above. These fields
// have no per-field HLC timestamp of their own (spec §3), so there is
// no atomic predicate to route them through; resolved carries the
// merge engine's already-decided values.
func (tx *Tx) ApplyMergeMetadata(id uuid.UUID, resolved *models.Task) error {
	res := tx.db.Model(&models.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"peer_id":    resolved.PeerID,
		"due_date":   resolved.DueDate,
		"priority":   resolved.Priority,
		"dirty":      resolved.Dirty,
		"synced_at":  resolved.SyncedAt,
		"updated_at": resolved.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return nil
}

// TouchUpdatedAt bumps the any-field-write timestamp and sets dirty,
// the bookkeeping every local-mutation API call in SyncCore performs
// alongside its field write.
func (tx *Tx) TouchUpdatedAt(id uuid.UUID, now int64) error {
	res := tx.db.Model(&models.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"updated_at": now,
		"dirty":      true,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return nil
}

// The Set* family below are unconditional local writes — unlike the
// If-Newer family, the local node is always authoritative for its own
// edits, so there is no timestamp comparison to make. Each stamps the
// per-field timestamp, updatedAt, and dirty=true in one statement.

func (tx *Tx) SetTitle(id uuid.UUID, title string, now int64) error {
	return tx.touch(id, map[string]interface{}{
		"title": title, "title_updated_at": now,
	}, now)
}

func (tx *Tx) SetNotes(id uuid.UUID, notes string, now int64) error {
	return tx.touch(id, map[string]interface{}{
		"notes": notes, "notes_updated_at": now,
	}, now)
}

func (tx *Tx) SetTitleAndNotes(id uuid.UUID, title, notes string, now int64) error {
	return tx.touch(id, map[string]interface{}{
		"title": title, "title_updated_at": now,
		"notes": notes, "notes_updated_at": now,
	}, now)
}

func (tx *Tx) SetCompletedLocal(id uuid.UUID, completed bool, now int64) error {
	return tx.touch(id, map[string]interface{}{
		"completed": completed, "completed_updated_at": now,
	}, now)
}

// SetSchedule writes the due-date/reminder fields together; they have
// no individual per-field LWW timestamp of their own (spec §3 lists
// them only under content, not under the three HLC surrogates).
func (tx *Tx) SetSchedule(id uuid.UUID, dueDate, dueTime, reminderAt *time.Time, reminder bool, now int64) error {
	return tx.touch(id, map[string]interface{}{
		"due_date": dueDate, "due_time": dueTime,
		"reminder": reminder, "reminder_at": reminderAt,
	}, now)
}

// SoftDelete sets the tombstone flag on a local delete (spec §4.3:
// delete_task keeps the row as a tombstone rather than removing it).
func (tx *Tx) SoftDelete(id uuid.UUID, now int64) error {
	return tx.touch(id, map[string]interface{}{"deleted": true}, now)
}

func (tx *Tx) touch(id uuid.UUID, fields map[string]interface{}, now int64) error {
	fields["updated_at"] = now
	fields["dirty"] = true
	res := tx.db.Model(&models.Task{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		tx.tasksChanged = true
	}
	return nil
}
