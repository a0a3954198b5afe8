package gate

import (
	"log"
	"net/http"

	"billing-backend/internal/billing"
	apperrors "billing-backend/internal/errors"
	"billing-backend/internal/models"
)

// SubscriptionStore loads the current subscription for a tenant.
type SubscriptionStore interface {
	CurrentForTenant(tenantID uint) (*models.Subscription, error)
	UpdateStatus(id uint, status string) error
}

// subscriptionExemptPaths let a blocked tenant reach the renewal flow and
// get out cleanly.
var subscriptionExemptPaths = []string{
	"/api/v1/billing/",
	"/api/v1/auth/logout",
}

// SubscriptionLifecycleGuard blocks tenants whose subscription is past due,
// suspended, cancelled, or expired. The status is derived lazily at check
// time; a derived transition is written back after the decision, and a
// failed write-back only costs re-deriving it on the next request.
// A tenant with no subscription rows passes: billing state is allowed to
// lag tenant provisioning.
type SubscriptionLifecycleGuard struct {
	Subscriptions SubscriptionStore
}

func NewSubscriptionLifecycleGuard(subs SubscriptionStore) *SubscriptionLifecycleGuard {
	return &SubscriptionLifecycleGuard{Subscriptions: subs}
}

func (g *SubscriptionLifecycleGuard) Name() string { return "subscription" }

func (g *SubscriptionLifecycleGuard) Check(req *Request, id *Identity) Decision {
	if id.Role == models.RoleSuperAdmin || id.TenantID == models.PlatformTenantID {
		return Allow()
	}
	if hasPrefix(req.Path, subscriptionExemptPaths) {
		return Allow()
	}

	sub, err := g.Subscriptions.CurrentForTenant(id.TenantID)
	if err != nil {
		log.Printf("Subscription check failed for tenant %d, allowing request: %v", id.TenantID, err)
		return Allow()
	}
	if sub == nil {
		return Allow()
	}

	status, changed := billing.ComputeStatus(sub, nowFunc())

	var decision Decision
	if billing.IsBlocking(status) {
		decision = Deny(http.StatusPaymentRequired, apperrors.ErrSubscriptionDue).
			WithExtra("redirect", "/billing/renew").
			WithExtra("subscription_status", status)
	} else {
		decision = Allow()
	}

	if changed {
		if err := g.Subscriptions.UpdateStatus(sub.ID, status); err != nil {
			log.Printf("Failed to persist subscription %d status %s: %v", sub.ID, status, err)
		}
	}
	return decision
}
