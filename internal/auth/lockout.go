package auth

import (
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"billing-backend/internal/models"
)

const (
	// LockoutThreshold failed attempts within LockoutWindow lock the email.
	LockoutThreshold = 5
	LockoutWindow    = 15 * time.Minute
)

// LockoutGuard is a persistent brute-force counter keyed by normalized
// email. It guards only the credential-exchange endpoint. Store errors fail
// open: lockout is defense in depth, not a hard security boundary, and a
// transient database error must not block logins.
type LockoutGuard struct {
	db        *gorm.DB
	threshold int
	window    time.Duration
	now       func() time.Time
}

// NewLockoutGuard creates a lockout guard with the default threshold and window.
func NewLockoutGuard(db *gorm.DB) *LockoutGuard {
	return &LockoutGuard{
		db:        db,
		threshold: LockoutThreshold,
		window:    LockoutWindow,
		now:       time.Now,
	}
}

// NormalizeEmail lowercases and trims an email for lockout keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsLockedOut reports whether the email is currently locked and, if so, when
// the lock expires. Stale rows are pruned opportunistically on each check to
// bound storage growth.
func (g *LockoutGuard) IsLockedOut(email string) (bool, *time.Time) {
	g.pruneStale()

	var record models.LoginLockout
	err := g.db.Where("normalized_email = ?", NormalizeEmail(email)).First(&record).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("lockout: failed to read record for lock check: %v", err)
		}
		return false, nil
	}

	if record.LockedUntil != nil && g.now().Before(*record.LockedUntil) {
		return true, record.LockedUntil
	}
	return false, nil
}

// RecordFailedAttempt increments the failed-attempt counter for the email
// and stamps a lockout once the threshold is reached within the window.
// Two racing attempts may lose an increment; that merely delays lockout by
// one attempt, which is acceptable.
func (g *LockoutGuard) RecordFailedAttempt(email string) {
	normalized := NormalizeEmail(email)
	now := g.now()

	var record models.LoginLockout
	err := g.db.Where("normalized_email = ?", normalized).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = models.LoginLockout{
			NormalizedEmail: normalized,
			FailedAttempts:  1,
			LastAttemptAt:   now,
		}
		if err := g.db.Create(&record).Error; err != nil {
			log.Printf("lockout: failed to create record for %s: %v", normalized, err)
		}
		return
	}
	if err != nil {
		log.Printf("lockout: failed to read record for %s: %v", normalized, err)
		return
	}

	// Sliding window: attempts older than the window start a fresh count.
	if now.Sub(record.LastAttemptAt) > g.window {
		record.FailedAttempts = 1
		record.LockedUntil = nil
	} else {
		record.FailedAttempts++
	}
	record.LastAttemptAt = now

	if record.FailedAttempts >= g.threshold {
		lockedUntil := now.Add(g.window)
		record.LockedUntil = &lockedUntil
	}

	if err := g.db.Save(&record).Error; err != nil {
		log.Printf("lockout: failed to update record for %s: %v", normalized, err)
	}
}

// ClearAttempts removes the lockout record for the email. Deleting a missing
// record is a no-op, so a successful login always clears state.
func (g *LockoutGuard) ClearAttempts(email string) {
	normalized := NormalizeEmail(email)
	if err := g.db.Where("normalized_email = ?", normalized).Delete(&models.LoginLockout{}).Error; err != nil {
		log.Printf("lockout: failed to clear record for %s: %v", normalized, err)
	}
}

// pruneStale deletes records older than the window that are not currently
// locked.
func (g *LockoutGuard) pruneStale() {
	cutoff := g.now().Add(-g.window)
	err := g.db.
		Where("last_attempt_at < ?", cutoff).
		Where("locked_until IS NULL OR locked_until < ?", g.now()).
		Delete(&models.LoginLockout{}).Error
	if err != nil {
		log.Printf("lockout: failed to prune stale records: %v", err)
	}
}
