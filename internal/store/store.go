// Package store is the transactional persistence layer for tasks, the
// outbox, the processed-ops idempotency log, and settings. Every
// mutation the sync engine performs against these four tables goes
// through here so that SyncCore can rely on atomic multi-table writes.
package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tasksync/engine/internal/models"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// Store wraps a *gorm.DB and the reactive broadcaster fed by committed
// task-table writes.
type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	watch *broadcaster
}

// Open runs AutoMigrate for the four logical tables and seeds the
// Settings singleton row if absent.
func Open(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&models.Task{}, &models.OutboxEntry{}, &models.ProcessedOp{}, &models.Settings{}); err != nil {
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}

	s := &Store{db: db, log: log, watch: newBroadcaster()}

	if err := s.seedSettings(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) seedSettings() error {
	var existing models.Settings
	err := s.db.First(&existing, models.SettingsSingletonID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("store: load settings: %w", err)
	}
	row := models.Settings{ID: models.SettingsSingletonID}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("store: seed settings: %w", err)
	}
	return nil
}

// Health pings the underlying database connection, for the admin
// surface's GET /readyz.
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: health: %w", err)
	}
	return sqlDB.Ping()
}

// Tx is the handle a transaction callback receives; its methods are
// the per-table reads and writes that run inside that transaction.
// Only a few reads (such as GetTask) also exist on Store itself.
type Tx struct {
	db           *gorm.DB
	store        *Store
	tasksChanged bool
}

// Run executes fn atomically. If fn returns a non-nil error, or panics,
// the entire transaction is rolled back and no effect is visible to
// later readers — the store's failure semantics from spec §4.1.
func (s *Store) Run(fn func(tx *Tx) error) error {
	changedTasks := false
	err := s.db.Transaction(func(gtx *gorm.DB) error {
		tx := &Tx{db: gtx, store: s}
		if err := fn(tx); err != nil {
			return err
		}
		changedTasks = tx.tasksChanged
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: transaction: %w", err)
	}
	if changedTasks {
		s.watch.notify()
	}
	return nil
}
