package config

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"billing-backend/internal/models"
)

// Settings keys
const (
	KeyMaintenanceMode    = "maintenance_mode"
	KeyMaintenanceMessage = "maintenance_message"
)

// SettingsStore is a small key-value configuration store. It is injected
// into the gating pipeline instead of being read as a process-wide global so
// it can be faked in tests and swapped for a distributed store.
type SettingsStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// DBSettingsStore persists settings as AppSetting rows.
type DBSettingsStore struct {
	db *gorm.DB
}

// NewDBSettingsStore creates a gorm-backed settings store.
func NewDBSettingsStore(db *gorm.DB) *DBSettingsStore {
	return &DBSettingsStore{db: db}
}

// Get returns the stored value for key, or "" when the key does not exist.
func (s *DBSettingsStore) Get(key string) (string, error) {
	var setting models.AppSetting
	if err := s.db.Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

// Set upserts the value for key.
func (s *DBSettingsStore) Set(key, value string) error {
	var setting models.AppSetting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&models.AppSetting{Key: key, Value: value}).Error
	}
	if err != nil {
		return err
	}
	setting.Value = value
	return s.db.Save(&setting).Error
}

// MaintenanceStatus reads the maintenance flag and message. A store read
// error must not take the platform down, so callers treat err as "off".
func MaintenanceStatus(store SettingsStore) (enabled bool, message string, err error) {
	raw, err := store.Get(KeyMaintenanceMode)
	if err != nil {
		return false, "", err
	}
	if !parseBool(raw) {
		return false, "", nil
	}
	message, _ = store.Get(KeyMaintenanceMessage)
	return true, message, nil
}

// SetMaintenance flips the maintenance flag and optional message.
func SetMaintenance(store SettingsStore, enabled bool, message string) error {
	value := "false"
	if enabled {
		value = "true"
	}
	if err := store.Set(KeyMaintenanceMode, value); err != nil {
		return err
	}
	if message != "" {
		return store.Set(KeyMaintenanceMessage, message)
	}
	return nil
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}
