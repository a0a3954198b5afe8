package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"billing-backend/internal/models"
)

func newLockoutDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)&mode=memory"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.LoginLockout{}))
	// Each test gets a clean table even with the shared cache.
	require.NoError(t, db.Where("1 = 1").Delete(&models.LoginLockout{}).Error)
	return db
}

func newTestGuard(t *testing.T) (*LockoutGuard, *time.Time) {
	t.Helper()
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	guard := NewLockoutGuard(newLockoutDB(t))
	guard.now = func() time.Time { return current }
	return guard, &current
}

func TestLockoutAfterThresholdFailures(t *testing.T) {
	guard, _ := newTestGuard(t)

	for i := 0; i < LockoutThreshold-1; i++ {
		guard.RecordFailedAttempt("Dana@Example.com")
		locked, _ := guard.IsLockedOut("dana@example.com")
		require.False(t, locked, "attempt %d should not lock", i+1)
	}

	guard.RecordFailedAttempt("dana@example.com")
	locked, until := guard.IsLockedOut("DANA@example.com")
	require.True(t, locked)
	require.NotNil(t, until)
}

func TestLockoutBlocksEvenWithCorrectPassword(t *testing.T) {
	// The guard decides before credentials are checked; a locked account
	// answers 429 regardless of what the caller would have sent.
	guard, _ := newTestGuard(t)

	for i := 0; i < LockoutThreshold; i++ {
		guard.RecordFailedAttempt("dana@example.com")
	}

	locked, _ := guard.IsLockedOut("dana@example.com")
	require.True(t, locked)
}

func TestLockoutWindowExpires(t *testing.T) {
	guard, current := newTestGuard(t)

	for i := 0; i < LockoutThreshold; i++ {
		guard.RecordFailedAttempt("dana@example.com")
	}
	locked, _ := guard.IsLockedOut("dana@example.com")
	require.True(t, locked)

	*current = current.Add(LockoutWindow + time.Minute)
	locked, _ = guard.IsLockedOut("dana@example.com")
	require.False(t, locked)
}

func TestAttemptCounterResetsAfterQuietPeriod(t *testing.T) {
	guard, current := newTestGuard(t)

	for i := 0; i < LockoutThreshold-1; i++ {
		guard.RecordFailedAttempt("dana@example.com")
	}

	// A long gap restarts the sliding window; the next failure counts as
	// the first.
	*current = current.Add(LockoutWindow + time.Minute)
	guard.RecordFailedAttempt("dana@example.com")

	locked, _ := guard.IsLockedOut("dana@example.com")
	require.False(t, locked)

	var row models.LoginLockout
	require.NoError(t, guard.db.Where("normalized_email = ?", "dana@example.com").First(&row).Error)
	require.Equal(t, 1, row.FailedAttempts)
}

func TestClearAttemptsOnSuccess(t *testing.T) {
	guard, _ := newTestGuard(t)

	for i := 0; i < LockoutThreshold; i++ {
		guard.RecordFailedAttempt("dana@example.com")
	}
	guard.ClearAttempts("DANA@EXAMPLE.COM")

	locked, _ := guard.IsLockedOut("dana@example.com")
	require.False(t, locked)

	var count int64
	guard.db.Model(&models.LoginLockout{}).Count(&count)
	require.Equal(t, int64(0), count)
}

func TestClearAttemptsIsIdempotent(t *testing.T) {
	guard, _ := newTestGuard(t)
	guard.ClearAttempts("nobody@example.com")
	guard.ClearAttempts("nobody@example.com")
}

func TestStaleRowsArePruned(t *testing.T) {
	guard, current := newTestGuard(t)

	guard.RecordFailedAttempt("old@example.com")
	*current = current.Add(2 * LockoutWindow)
	guard.RecordFailedAttempt("new@example.com")

	// Reading any account triggers opportunistic pruning.
	guard.IsLockedOut("new@example.com")

	var count int64
	guard.db.Model(&models.LoginLockout{}).Where("normalized_email = ?", "old@example.com").Count(&count)
	require.Equal(t, int64(0), count)
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "dana@example.com", NormalizeEmail("  Dana@Example.COM "))
}
