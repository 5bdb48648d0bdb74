package synccore

import (
	"github.com/gofrs/uuid"

	"github.com/tasksync/engine/internal/models"
	"github.com/tasksync/engine/internal/store"
)

// The methods below are the "Outbox-state transitions API" spec §4.3
// assigns to SyncCore, called by the outbox pump and, for acks
// (MarkOutboxAcked/MarkOutboxFailed), by the inbox router.

func (s *SyncCore) MarkOutboxSending(opID uint64) error {
	now := s.now()
	return s.store.Run(func(tx *store.Tx) error {
		return tx.MarkSending(opID, now)
	})
}

func (s *SyncCore) MarkOutboxSent(opID uint64) error {
	return s.store.Run(func(tx *store.Tx) error {
		return tx.MarkSent(opID)
	})
}

// MarkOutboxAcked transitions the entry to ACKED and marks its task
// synced, since an ack means the peer has durably recorded this op.
func (s *SyncCore) MarkOutboxAcked(opID uint64) error {
	now := s.now()
	return s.store.Run(func(tx *store.Tx) error {
		entry, err := tx.GetOutbox(opID)
		if err != nil {
			return err
		}
		if err := tx.MarkAcked(opID); err != nil {
			return err
		}
		taskID, err := uuid.FromString(entry.TaskID)
		if err != nil {
			return nil
		}
		return tx.MarkSynced(taskID, now)
	})
}

func (s *SyncCore) MarkOutboxFailed(opID uint64, state models.OutboxState, errMsg string) error {
	return s.store.Run(func(tx *store.Tx) error {
		return tx.MarkFailed(opID, state, errMsg)
	})
}

// ListPendingOutbox and ResetStuckOutbox are read/maintenance
// primitives the pump and maintenance scheduler need but that don't
// themselves warrant a dedicated mark_* method.
func (s *SyncCore) ListPendingOutbox() ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		entries, err = tx.ListPendingOutboxInOrder()
		return err
	})
	return entries, err
}

func (s *SyncCore) ResetStuckOutbox(threshold int64) (int64, error) {
	var n int64
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		n, err = tx.ResetStuck(threshold)
		return err
	})
	return n, err
}

func (s *SyncCore) DeleteAckedOutbox() (int64, error) {
	var n int64
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		n, err = tx.DeleteAcked()
		return err
	})
	return n, err
}

// OutboxStateCounts backs the admin /metrics surface's outbox section,
// including the FAILED dead-letter count spec's Supplemented Features
// call for.
func (s *SyncCore) OutboxStateCounts() (map[models.OutboxState]int64, error) {
	var counts map[models.OutboxState]int64
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		counts, err = tx.CountOutboxByState()
		return err
	})
	return counts, err
}

func (s *SyncCore) Now() int64 { return s.now() }
