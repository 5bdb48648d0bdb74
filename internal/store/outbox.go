package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/tasksync/engine/internal/models"
)

// InsertOutbox enqueues a new outbox entry. The caller (SyncCore) is
// responsible for inserting exactly one of these per local mutation,
// in the same transaction as the task write (spec §4.3 invariant 1).
func (tx *Tx) InsertOutbox(e *models.OutboxEntry) error {
	return tx.db.Create(e).Error
}

// GetOutbox reads a single outbox row by opId.
func (tx *Tx) GetOutbox(opID uint64) (models.OutboxEntry, error) {
	var e models.OutboxEntry
	err := tx.db.First(&e, "op_id = ?", opID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.OutboxEntry{}, ErrNotFound
	}
	return e, err
}

// ListPendingOutboxInOrder returns every PENDING or SENDING entry
// ordered by createdAt ascending — the pump's FIFO drain order (spec
// §4.5), which guarantees per-task op ordering since all entries for a
// given task are drained in insertion order.
func (tx *Tx) ListPendingOutboxInOrder() ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := tx.db.
		Where("state IN ?", []models.OutboxState{models.OutboxPending, models.OutboxSending}).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// MarkSending transitions an entry to SENDING and increments attempts,
// the pump's first step before attempting Transport.Put.
func (tx *Tx) MarkSending(opID uint64, now int64) error {
	return tx.db.Model(&models.OutboxEntry{}).Where("op_id = ?", opID).Updates(map[string]interface{}{
		"state":           models.OutboxSending,
		"last_attempt_at": now,
		"attempts":        gorm.Expr("attempts + 1"),
	}).Error
}

// MarkSent transitions an entry to SENT after a successful Transport.Put.
func (tx *Tx) MarkSent(opID uint64) error {
	return tx.db.Model(&models.OutboxEntry{}).Where("op_id = ?", opID).Update("state", models.OutboxSent).Error
}

// MarkAcked transitions an entry to ACKED on receipt of the peer's ack.
func (tx *Tx) MarkAcked(opID uint64) error {
	return tx.db.Model(&models.OutboxEntry{}).Where("op_id = ?", opID).Update("state", models.OutboxAcked).Error
}

// MarkFailed records a send failure. Callers decide, based on attempts,
// whether to leave the row PENDING for retry or escalate it to FAILED
// once past the implementation-defined attempt ceiling (spec §7,
// UnrecoverableOutbox).
func (tx *Tx) MarkFailed(opID uint64, state models.OutboxState, errMsg string) error {
	return tx.db.Model(&models.OutboxEntry{}).Where("op_id = ?", opID).Updates(map[string]interface{}{
		"state":         state,
		"error_message": errMsg,
	}).Error
}

// ResetStuck resets any SENDING entry whose last attempt predates
// threshold back to PENDING (spec §4.5, §4.7 step 1, §8 invariant 7).
func (tx *Tx) ResetStuck(threshold int64) (int64, error) {
	res := tx.db.Model(&models.OutboxEntry{}).
		Where("state = ? AND last_attempt_at < ?", models.OutboxSending, threshold).
		Update("state", models.OutboxPending)
	return res.RowsAffected, res.Error
}

// DeleteAcked removes every ACKED outbox row (spec §4.7 step 3).
func (tx *Tx) DeleteAcked() (int64, error) {
	res := tx.db.Where("state = ?", models.OutboxAcked).Delete(&models.OutboxEntry{})
	return res.RowsAffected, res.Error
}
