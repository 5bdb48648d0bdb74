package synccore

import (
	"github.com/tasksync/engine/internal/models"
	"github.com/tasksync/engine/internal/store"
)

// The methods below back the maintenance scheduler (spec §4.7): purge
// acked outbox entries, age out the idempotency log, hard-delete
// synced tombstones, and list the tasks the alarm collaborator should
// keep scheduled.

func (s *SyncCore) CleanupOldProcessed(threshold int64) (int64, error) {
	var n int64
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		n, err = tx.CleanupOldProcessed(threshold)
		return err
	})
	return n, err
}

func (s *SyncCore) CleanupDeletedTasks(threshold int64) (int64, error) {
	var n int64
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		n, err = tx.CleanupDeletedTasks(threshold)
		return err
	})
	return n, err
}

// TasksWithReminders lists the tasks whose alarms the maintenance tick
// should reschedule: reminder requested, not completed, not deleted
// (spec §4.7 step 6). Filtering by "next-fire > now" is the alarm
// collaborator's own responsibility, since only it knows how to
// compute next-fire for a repeating task.
func (s *SyncCore) TasksWithReminders() ([]models.Task, error) {
	var tasks []models.Task
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		tasks, err = tx.ListTasksWithReminders()
		return err
	})
	return tasks, err
}

// RescheduleAlarms re-issues Schedule() for every task that still
// wants a reminder. Schedule is documented as idempotent (spec §8
// invariant 2), so calling it again on every maintenance tick is safe.
func (s *SyncCore) RescheduleAlarms() error {
	tasks, err := s.TasksWithReminders()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		s.alarm.Schedule(t)
	}
	return nil
}

// RecentProcessedOps lists idempotency-log rows processed since the
// given wall-clock millisecond threshold. The maintenance scheduler
// uses this to re-seed the cache warmer's job queue each tick, so a
// cold restart's idempotency cache catches back up to the store.
func (s *SyncCore) RecentProcessedOps(since int64) ([]models.ProcessedOp, error) {
	var ops []models.ProcessedOp
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		ops, err = tx.ListRecentProcessed(since)
		return err
	})
	return ops, err
}

// ProcessedOpCount is the idempotency log's total row count, surfaced
// on the admin /metrics endpoint.
func (s *SyncCore) ProcessedOpCount() (int64, error) {
	var n int64
	err := s.store.Run(func(tx *store.Tx) error {
		var err error
		n, err = tx.CountProcessed()
		return err
	})
	return n, err
}
