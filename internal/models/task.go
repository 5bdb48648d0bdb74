package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Task is a single to-do item shared between the two sync peers. Fields
// are grouped into content, tombstone, per-field LWW surrogates, and
// record metadata, matching the data model the merge engine operates on.
type Task struct {
	ID uuid.UUID `gorm:"primaryKey;type:text" json:"id"`

	Title       string     `gorm:"not null" json:"title"`
	Notes       string     `json:"notes"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	Priority    int        `gorm:"not null;default:0" json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	DueTime     *time.Time `json:"due_time,omitempty"`
	Reminder    bool       `gorm:"not null;default:false" json:"reminder"`
	ReminderAt  *time.Time `json:"reminder_at,omitempty"`
	Repeating   bool       `gorm:"not null;default:false" json:"repeating"`

	Deleted bool `gorm:"not null;default:false;index" json:"deleted"`

	TitleUpdatedAt     int64 `gorm:"not null;default:0" json:"title_updated_at"`
	NotesUpdatedAt     int64 `gorm:"not null;default:0" json:"notes_updated_at"`
	CompletedUpdatedAt int64 `gorm:"not null;default:0" json:"completed_updated_at"`

	UpdatedAt int64  `gorm:"not null;default:0;index" json:"updated_at"`
	SyncedAt  int64  `gorm:"not null;default:0" json:"synced_at"`
	Dirty     bool   `gorm:"not null;default:false;index" json:"dirty"`
	PeerID    *int64 `gorm:"uniqueIndex" json:"peer_id,omitempty"`
}

func (Task) TableName() string { return "tasks" }

// HasReminder reports whether maintenance should keep this task's alarm
// scheduled: not completed, not deleted, reminder requested.
func (t Task) HasReminder() bool {
	return t.Reminder && !t.Completed && !t.Deleted
}
