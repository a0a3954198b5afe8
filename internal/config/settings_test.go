package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"billing-backend/internal/models"
)

func newSettingsStore(t *testing.T) *DBSettingsStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AppSetting{}))
	return NewDBSettingsStore(db)
}

func TestSettingsGetMissingKeyReturnsEmpty(t *testing.T) {
	store := newSettingsStore(t)

	value, err := store.Get("nonexistent")
	require.NoError(t, err)
	require.Equal(t, "", value)
}

func TestSettingsSetAndGet(t *testing.T) {
	store := newSettingsStore(t)

	require.NoError(t, store.Set("greeting", "hello"))
	value, err := store.Get("greeting")
	require.NoError(t, err)
	require.Equal(t, "hello", value)

	// Upsert overwrites.
	require.NoError(t, store.Set("greeting", "goodbye"))
	value, err = store.Get("greeting")
	require.NoError(t, err)
	require.Equal(t, "goodbye", value)
}

func TestMaintenanceStatusDefaultsOff(t *testing.T) {
	store := newSettingsStore(t)

	enabled, message, err := MaintenanceStatus(store)
	require.NoError(t, err)
	require.False(t, enabled)
	require.Equal(t, "", message)
}

func TestSetMaintenanceRoundTrip(t *testing.T) {
	store := newSettingsStore(t)

	require.NoError(t, SetMaintenance(store, true, "upgrading the database"))
	enabled, message, err := MaintenanceStatus(store)
	require.NoError(t, err)
	require.True(t, enabled)
	require.Equal(t, "upgrading the database", message)

	require.NoError(t, SetMaintenance(store, false, ""))
	enabled, _, err = MaintenanceStatus(store)
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestParseBoolVariants(t *testing.T) {
	for _, raw := range []string{"true", "TRUE", " 1 ", "on", "Yes"} {
		require.True(t, parseBool(raw), raw)
	}
	for _, raw := range []string{"", "false", "0", "off", "maybe"} {
		require.False(t, parseBool(raw), raw)
	}
}
