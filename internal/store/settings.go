package store

import "github.com/tasksync/engine/internal/models"

// GetSettings reads the singleton settings row.
func (tx *Tx) GetSettings() (models.Settings, error) {
	var s models.Settings
	err := tx.db.First(&s, models.SettingsSingletonID).Error
	return s, err
}

// SaveSettings overwrites the singleton settings row. Per spec §9's
// open question on settings dirty override, the caller must apply
// peer settings only when local dirty=false — SaveSettings itself does
// not arbitrate that policy, it is a plain write.
func (tx *Tx) SaveSettings(s *models.Settings) error {
	s.ID = models.SettingsSingletonID
	return tx.db.Save(s).Error
}
