package store

import (
	"testing"

	"github.com/gofrs/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tasksync/engine/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := Open(db, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpen_SeedsSettingsSingleton(t *testing.T) {
	s := openTestStore(t)
	var settings models.Settings
	if err := s.Run(func(tx *Tx) error {
		var err error
		settings, err = tx.GetSettings()
		return err
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if settings.ID != models.SettingsSingletonID {
		t.Fatalf("expected singleton id %d, got %d", models.SettingsSingletonID, settings.ID)
	}
}

func TestRun_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	id, _ := uuid.NewV4()
	sentinel := errTest("boom")

	err := s.Run(func(tx *Tx) error {
		task := &models.Task{ID: id, Title: "ghost"}
		if err := tx.InsertOrReplaceTask(task); err != nil {
			return err
		}
		return sentinel
	})
	if err == nil {
		t.Fatal("expected error from Run")
	}

	_ = s.Run(func(tx *Tx) error {
		_, err := tx.GetTask(id)
		if err != ErrNotFound {
			t.Fatalf("expected rollback to erase inserted task, got err=%v", err)
		}
		return nil
	})
}

func TestRun_NotifiesWatchersOnTaskChange(t *testing.T) {
	s := openTestStore(t)
	ch, cancel := s.Watch()
	defer cancel()

	id, _ := uuid.NewV4()
	err := s.Run(func(tx *Tx) error {
		return tx.InsertOrReplaceTask(&models.Task{ID: id, Title: "milk"})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending notification after a task-changing commit")
	}
}

func TestRun_NoNotificationWithoutTaskChange(t *testing.T) {
	s := openTestStore(t)
	ch, cancel := s.Watch()
	defer cancel()

	err := s.Run(func(tx *Tx) error {
		_, err := tx.GetSettings()
		return err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case <-ch:
		t.Fatal("did not expect a notification for a read-only transaction")
	default:
	}
}

func TestUpdateTitleIfNewer_TieKeepsLocal(t *testing.T) {
	s := openTestStore(t)
	id, _ := uuid.NewV4()

	err := s.Run(func(tx *Tx) error {
		if err := tx.InsertOrReplaceTask(&models.Task{ID: id, Title: "A", TitleUpdatedAt: 10}); err != nil {
			return err
		}
		rows, err := tx.UpdateTitleIfNewer(id, "B", 10)
		if err != nil {
			return err
		}
		if rows != 0 {
			t.Fatalf("equal timestamp must not update, rows=%d", rows)
		}
		rows, err = tx.UpdateTitleIfNewer(id, "C", 11)
		if err != nil {
			return err
		}
		if rows != 1 {
			t.Fatalf("strictly newer timestamp must update, rows=%d", rows)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var task models.Task
	_ = s.Run(func(tx *Tx) error {
		var err error
		task, err = tx.GetTask(id)
		return err
	})
	if task.Title != "C" || task.TitleUpdatedAt != 11 {
		t.Fatalf("expected title=C@11, got %s@%d", task.Title, task.TitleUpdatedAt)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	s := openTestStore(t)
	id, _ := uuid.NewV4()

	var opID uint64
	err := s.Run(func(tx *Tx) error {
		if err := tx.InsertOrReplaceTask(&models.Task{ID: id, Title: "A"}); err != nil {
			return err
		}
		entry := &models.OutboxEntry{TaskID: id.String(), Type: models.OutboxOpCreate, CreatedAt: 1}
		if err := tx.InsertOutbox(entry); err != nil {
			return err
		}
		opID = entry.OpID
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	err = s.Run(func(tx *Tx) error {
		pending, err := tx.ListPendingOutboxInOrder()
		if err != nil {
			return err
		}
		if len(pending) != 1 {
			t.Fatalf("expected 1 pending entry, got %d", len(pending))
		}
		if err := tx.MarkSending(opID, 100); err != nil {
			return err
		}
		return tx.MarkSent(opID)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	err = s.Run(func(tx *Tx) error {
		if err := tx.MarkAcked(opID); err != nil {
			return err
		}
		n, err := tx.DeleteAcked()
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("expected DeleteAcked to remove 1 row, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestResetStuck(t *testing.T) {
	s := openTestStore(t)
	id, _ := uuid.NewV4()

	var opID uint64
	err := s.Run(func(tx *Tx) error {
		if err := tx.InsertOrReplaceTask(&models.Task{ID: id, Title: "A"}); err != nil {
			return err
		}
		entry := &models.OutboxEntry{TaskID: id.String(), Type: models.OutboxOpUpdate, CreatedAt: 1}
		if err := tx.InsertOutbox(entry); err != nil {
			return err
		}
		opID = entry.OpID
		return tx.MarkSending(opID, 1000)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	err = s.Run(func(tx *Tx) error {
		n, err := tx.ResetStuck(2000)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("expected 1 stuck entry reset, got %d", n)
		}
		entry, err := tx.GetOutbox(opID)
		if err != nil {
			return err
		}
		if entry.State != models.OutboxPending {
			t.Fatalf("expected state PENDING after reset, got %s", entry.State)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestProcessedOpsIdempotentInsert(t *testing.T) {
	s := openTestStore(t)
	err := s.Run(func(tx *Tx) error {
		if err := tx.MarkProcessed("op-1", 10); err != nil {
			return err
		}
		if err := tx.MarkProcessed("op-1", 20); err != nil {
			t.Fatalf("duplicate MarkProcessed must not error: %v", err)
		}
		processed, err := tx.IsProcessed("op-1")
		if err != nil {
			return err
		}
		if !processed {
			t.Fatal("expected op-1 to be processed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
