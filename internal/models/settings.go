package models

// Settings is the singleton UI-preferences record. Exactly one row
// exists at all times (see internal/store for the upsert that enforces
// this).
type Settings struct {
	ID uint `gorm:"primaryKey"`

	ShowHidden      bool   `json:"show_hidden"`
	ShowCompleted   bool   `json:"show_completed"`
	Filter          string `json:"filter"`
	CollapsedGroups string `json:"collapsed_groups"` // comma-delimited decimal ids

	Dirty    bool  `gorm:"not null;default:false" json:"dirty"`
	SyncedAt int64 `gorm:"not null;default:0" json:"synced_at"`
}

func (Settings) TableName() string { return "settings" }

// SettingsSingletonID is the fixed primary key of the one Settings row.
const SettingsSingletonID = 1
