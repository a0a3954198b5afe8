package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"billing-backend/internal/models"
)

// ComputeStatus derives the effective status of a subscription at a given
// instant. Statuses are never advanced by a background job; they are
// computed lazily whenever a subscription is inspected, so a trial that
// lapsed overnight reads as expired on the next request. The second return
// value reports whether the derived status differs from the stored one, so
// callers can persist the transition best-effort.
func ComputeStatus(sub *models.Subscription, now time.Time) (string, bool) {
	status := sub.Status

	switch status {
	case models.SubscriptionTrial:
		if sub.TrialEndsAt != nil && now.After(*sub.TrialEndsAt) {
			status = models.SubscriptionExpired
		}
	}

	// A hard expiry timestamp overrides any non-terminal status, trial
	// included: an operator-set cutoff wins over a still-running trial window.
	switch status {
	case models.SubscriptionCancelled, models.SubscriptionExpired:
	default:
		if sub.ExpiresAt != nil && now.After(*sub.ExpiresAt) {
			status = models.SubscriptionExpired
		}
	}

	return status, status != sub.Status
}

// IsBlocking reports whether a status denies access to the tenant's normal
// surface. Trial and active pass; everything else lands on the renewal flow.
func IsBlocking(status string) bool {
	switch status {
	case models.SubscriptionTrial, models.SubscriptionActive:
		return false
	}
	return true
}

// GormSubscriptionStore reads and updates subscriptions through gorm.
type GormSubscriptionStore struct {
	db *gorm.DB
}

func NewGormSubscriptionStore(db *gorm.DB) *GormSubscriptionStore {
	return &GormSubscriptionStore{db: db}
}

// CurrentForTenant returns the tenant's current subscription, defined as the
// most recently created row. A tenant with no subscription rows returns
// (nil, nil): absence of billing records never blocks access.
func (s *GormSubscriptionStore) CurrentForTenant(tenantID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Where("tenant_id = ?", tenantID).Order("created_at DESC").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateStatus persists a lazily computed status transition.
func (s *GormSubscriptionStore) UpdateStatus(id uint, status string) error {
	return s.db.Model(&models.Subscription{}).Where("id = ?", id).Update("status", status).Error
}
