// Package synccore wraps the Store and the merge engine into the
// single entry point both the UI edge and the inbox router talk to.
// Every exported method here runs exactly one store transaction and
// never holds a lock across a suspension point, per spec §5.
package synccore

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/tasksync/engine/internal/alarm"
	"github.com/tasksync/engine/internal/cache"
	"github.com/tasksync/engine/internal/models"
	"github.com/tasksync/engine/internal/store"
	"github.com/tasksync/engine/internal/transport"
)

// Clock is injectable so tests can control wall-clock time without
// sleeping; production wiring passes time.Now in milliseconds.
type Clock func() int64

func WallClock() int64 { return time.Now().UnixMilli() }

// SyncCore is a process-wide singleton (spec §9): one instance per
// local node, injected into the UI edge, the inbox router, and the
// outbox pump's mark_* calls.
type SyncCore struct {
	store *store.Store
	idem  *idempotencyCache
	alarm alarm.Collaborator
	now   Clock

	// LocalLabel/PeerLabel name the two fixed peers for path
	// construction (spec §6's peer_label_local/peer_label_peer).
	LocalLabel string
	PeerLabel  string
}

func New(st *store.Store, idemCache cache.Cache, collaborator alarm.Collaborator, localLabel, peerLabel string, now Clock) *SyncCore {
	if now == nil {
		now = WallClock
	}
	if collaborator == nil {
		collaborator = alarm.NewLoggingCollaborator(nil)
	}
	return &SyncCore{
		store:      st,
		idem:       newIdempotencyCache(idemCache),
		alarm:      collaborator,
		now:        now,
		LocalLabel: localLabel,
		PeerLabel:  peerLabel,
	}
}

// CreateTaskFields is the set of fields a caller may supply at
// creation time; zero values are acceptable for all of them.
type CreateTaskFields struct {
	Title      string
	Notes      string
	Priority   int
	DueDate    *time.Time
	DueTime    *time.Time
	Reminder   bool
	ReminderAt *time.Time
	Repeating  bool
}

// CreateTask inserts a brand new task and enqueues its CREATE outbox
// entry atomically (spec §4.3, §8 invariant 1).
func (s *SyncCore) CreateTask(fields CreateTaskFields) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("synccore: generate task id: %w", err)
	}
	now := s.now()

	task := models.Task{
		ID: id, Title: fields.Title, Notes: fields.Notes, Priority: fields.Priority,
		DueDate: fields.DueDate, DueTime: fields.DueTime,
		Reminder: fields.Reminder, ReminderAt: fields.ReminderAt, Repeating: fields.Repeating,
		TitleUpdatedAt: now, NotesUpdatedAt: now, CompletedUpdatedAt: now,
		UpdatedAt: now, Dirty: true,
	}

	err = s.store.Run(func(tx *store.Tx) error {
		if err := tx.InsertOrReplaceTask(&task); err != nil {
			return err
		}
		return s.enqueueFullSnapshotOp(tx, task, models.OutboxOpCreate, now)
	})
	if err != nil {
		return uuid.Nil, err
	}

	if task.HasReminder() {
		s.alarm.Schedule(task)
	}
	return id, nil
}

func (s *SyncCore) UpdateTitle(id uuid.UUID, title string) error {
	now := s.now()
	return s.store.Run(func(tx *store.Tx) error {
		if err := tx.SetTitle(id, title, now); err != nil {
			return err
		}
		return s.enqueueFieldOp(tx, id, models.OutboxOpUpdate, now, transport.Payload{
			"title": title, "titleUpdatedAt": now,
		})
	})
}

func (s *SyncCore) UpdateNotes(id uuid.UUID, notes string) error {
	now := s.now()
	return s.store.Run(func(tx *store.Tx) error {
		if err := tx.SetNotes(id, notes, now); err != nil {
			return err
		}
		return s.enqueueFieldOp(tx, id, models.OutboxOpUpdate, now, transport.Payload{
			"notes": notes, "notesUpdatedAt": now,
		})
	})
}

func (s *SyncCore) UpdateTitleAndNotes(id uuid.UUID, title, notes string) error {
	now := s.now()
	return s.store.Run(func(tx *store.Tx) error {
		if err := tx.SetTitleAndNotes(id, title, notes, now); err != nil {
			return err
		}
		return s.enqueueFieldOp(tx, id, models.OutboxOpUpdate, now, transport.Payload{
			"title": title, "titleUpdatedAt": now,
			"notes": notes, "notesUpdatedAt": now,
		})
	})
}

// SetCompleted flips the completed flag and notifies the alarm
// collaborator: completing a task cancels any scheduled reminder
// (spec §4.3 step 4).
func (s *SyncCore) SetCompleted(id uuid.UUID, completed bool) error {
	now := s.now()
	err := s.store.Run(func(tx *store.Tx) error {
		if err := tx.SetCompletedLocal(id, completed, now); err != nil {
			return err
		}
		return s.enqueueFieldOp(tx, id, models.OutboxOpComplete, now, transport.Payload{
			"completed": completed, "completedUpdatedAt": now,
		})
	})
	if err != nil {
		return err
	}

	if completed {
		s.alarm.Cancel(id)
	} else if task, getErr := s.store.GetTask(id); getErr == nil && task.HasReminder() {
		s.alarm.Schedule(task)
	}
	return nil
}

// UpdateSchedule rewrites the due-date/reminder fields together and
// reschedules or cancels the alarm based on the resulting state.
func (s *SyncCore) UpdateSchedule(id uuid.UUID, dueDate, dueTime, reminderAt *time.Time, reminder bool) error {
	now := s.now()
	err := s.store.Run(func(tx *store.Tx) error {
		if err := tx.SetSchedule(id, dueDate, dueTime, reminderAt, reminder, now); err != nil {
			return err
		}
		delta := transport.Payload{"reminder": reminder}
		if dueDate != nil {
			delta["dueDate"] = dueDate.UnixMilli()
		} else {
			delta["dueDate"] = int64(0)
		}
		return s.enqueueFieldOp(tx, id, models.OutboxOpUpdate, now, delta)
	})
	if err != nil {
		return err
	}

	task, getErr := s.store.GetTask(id)
	if getErr != nil {
		return nil
	}
	if task.HasReminder() {
		s.alarm.Schedule(task)
	} else {
		s.alarm.Cancel(id)
	}
	return nil
}

// DeleteTask soft-deletes (tombstones) a task and cancels any pending
// alarm (spec §4.3: delete_task keeps the tombstone, cancel on delete).
func (s *SyncCore) DeleteTask(id uuid.UUID) error {
	now := s.now()
	err := s.store.Run(func(tx *store.Tx) error {
		if err := tx.SoftDelete(id, now); err != nil {
			return err
		}
		return s.enqueueFieldOp(tx, id, models.OutboxOpDelete, now, transport.Payload{
			"deleted": true,
		})
	})
	if err != nil {
		return err
	}
	s.alarm.Cancel(id)
	return nil
}

// enqueueFieldOp builds and inserts an outbox entry carrying only the
// fields the caller is changing, plus the common envelope keys (spec
// §6): taskId, opType, timestamp.
func (s *SyncCore) enqueueFieldOp(tx *store.Tx, id uuid.UUID, opType models.OutboxOpType, now int64, fields transport.Payload) error {
	fields["taskId"] = id.String()
	fields["opType"] = string(opType)
	fields["timestamp"] = now

	payload, err := transport.Encode(fields)
	if err != nil {
		return fmt.Errorf("synccore: encode outbox payload: %w", err)
	}

	entry := &models.OutboxEntry{
		TaskID: id.String(), Type: opType, Payload: payload,
		CreatedAt: now, State: models.OutboxPending,
	}
	return tx.InsertOutbox(entry)
}

// enqueueFullSnapshotOp is enqueueFieldOp's counterpart for creation,
// where the whole record (not a delta) needs to reach the peer.
func (s *SyncCore) enqueueFullSnapshotOp(tx *store.Tx, task models.Task, opType models.OutboxOpType, now int64) error {
	return s.enqueueFieldOp(tx, task.ID, opType, now, taskToPayload(task))
}

func taskToPayload(t models.Task) transport.Payload {
	p := transport.Payload{
		"title": t.Title, "titleUpdatedAt": t.TitleUpdatedAt,
		"notes": t.Notes, "notesUpdatedAt": t.NotesUpdatedAt,
		"completed": t.Completed, "completedUpdatedAt": t.CompletedUpdatedAt,
		"deleted":  t.Deleted,
		"priority": t.Priority,
	}
	if t.DueDate != nil {
		p["dueDate"] = t.DueDate.UnixMilli()
	} else {
		p["dueDate"] = int64(0)
	}
	if t.PeerID != nil {
		p["peerId"] = *t.PeerID
	}
	return p
}

// Watch exposes the reactive list_active() stream to the UI edge.
func (s *SyncCore) Watch() (<-chan struct{}, func()) {
	return s.store.Watch()
}

// ListActive is the UI's read path.
func (s *SyncCore) ListActive() ([]models.Task, error) {
	return s.store.ListActive()
}

// GetTask is a single-task read path used by diagnostics and tests;
// the UI edge normally reads the whole list via ListActive/Watch.
func (s *SyncCore) GetTask(id uuid.UUID) (models.Task, error) {
	return s.store.GetTask(id)
}
