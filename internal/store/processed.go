package store

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tasksync/engine/internal/models"
)

// IsProcessed reports whether opId already has an idempotency-log row.
func (tx *Tx) IsProcessed(opID string) (bool, error) {
	var row models.ProcessedOp
	err := tx.db.First(&row, "op_id = ?", opID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// MarkProcessed records opId as applied. Insert-ignore semantics: a
// duplicate call (opId already present) is not an error, matching the
// idempotency-log's set semantics (spec §3).
func (tx *Tx) MarkProcessed(opID string, now int64) error {
	return tx.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ProcessedOp{
		OpID:        opID,
		ProcessedAt: now,
	}).Error
}

// CleanupOldProcessed purges idempotency-log rows older than threshold
// (spec §4.7 step 4, default TTL 7 days).
func (tx *Tx) CleanupOldProcessed(threshold int64) (int64, error) {
	res := tx.db.Where("processed_at < ?", threshold).Delete(&models.ProcessedOp{})
	return res.RowsAffected, res.Error
}

// ListRecentProcessed returns idempotency-log rows processed since the
// given wall-clock millisecond threshold, the set the maintenance
// scheduler feeds to the cache warmer so a cold restart's is_processed
// cache is repopulated instead of falling through to Store on every
// redelivered op.
func (tx *Tx) ListRecentProcessed(since int64) ([]models.ProcessedOp, error) {
	var rows []models.ProcessedOp
	err := tx.db.Where("processed_at >= ?", since).Find(&rows).Error
	return rows, err
}

// CountOutboxByState groups outbox entries by lifecycle state, backing
// the admin /metrics surface's dead-letter (FAILED) observability.
func (tx *Tx) CountOutboxByState() (map[models.OutboxState]int64, error) {
	var rows []struct {
		State models.OutboxState
		Count int64
	}
	if err := tx.db.Model(&models.OutboxEntry{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[models.OutboxState]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}

// CountProcessed returns the total number of idempotency-log rows.
func (tx *Tx) CountProcessed() (int64, error) {
	var n int64
	err := tx.db.Model(&models.ProcessedOp{}).Count(&n).Error
	return n, err
}
