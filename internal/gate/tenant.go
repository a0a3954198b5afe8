package gate

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	apperrors "billing-backend/internal/errors"
	"billing-backend/internal/models"
)

// TenantStore loads tenants for the lifecycle guard.
type TenantStore interface {
	ByID(id uint) (*models.Tenant, error)
	UpdateStatus(id uint, status string) error
}

// TenantResolver fixes the effective tenant scope for the request.
// Regular users are pinned to their own tenant. Superadmins default to
// platform scope (tenant 0, meaning all tenants) and may impersonate a
// single tenant for the duration of one request via the X-Tenant-Id header.
// The header is ignored for everyone else.
type TenantResolver struct{}

func NewTenantResolver() *TenantResolver { return &TenantResolver{} }

func (g *TenantResolver) Name() string { return "tenant_resolver" }

func (g *TenantResolver) Check(req *Request, id *Identity) Decision {
	if id.Role != models.RoleSuperAdmin {
		return Allow()
	}

	id.TenantID = models.PlatformTenantID
	if req.TenantOverride == "" {
		return Allow()
	}

	tenantID, err := strconv.ParseUint(req.TenantOverride, 10, 32)
	if err != nil || tenantID == 0 {
		return Deny(http.StatusBadRequest, apperrors.New("INVALID_TENANT_ID", "X-Tenant-Id must be a positive tenant id"))
	}
	id.TenantID = uint(tenantID)
	return Allow()
}

// tenantGuardExemptPaths stay reachable for suspended or expired tenants.
// This is deliberately wider than bare credential exchange: a blocked
// tenant's users can still log out, read their profile, and reach the
// billing surface to pay their way out of an expired trial. Renewal never
// clears an operator suspension, so the billing exemption cannot be used to
// undo one.
var tenantGuardExemptPaths = []string{
	"/api/v1/auth/logout",
	"/api/v1/auth/profile",
	"/api/v1/billing/",
}

// TenantLifecycleGuard denies requests from tenants that are suspended or
// past their trial. Superadmins bypass it entirely, impersonating or not:
// lifecycle enforcement blocks a tenant's own users, never the operator
// inspecting that tenant.
type TenantLifecycleGuard struct {
	Tenants TenantStore
}

func NewTenantLifecycleGuard(tenants TenantStore) *TenantLifecycleGuard {
	return &TenantLifecycleGuard{Tenants: tenants}
}

func (g *TenantLifecycleGuard) Name() string { return "tenant_lifecycle" }

func (g *TenantLifecycleGuard) Check(req *Request, id *Identity) Decision {
	if id.Role == models.RoleSuperAdmin || id.TenantID == models.PlatformTenantID {
		return Allow()
	}
	if hasPrefix(req.Path, tenantGuardExemptPaths) {
		return Allow()
	}

	tenant, err := g.Tenants.ByID(id.TenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Deny(http.StatusForbidden, apperrors.ErrTenantSuspended)
		}
		log.Printf("Tenant check failed for tenant %d, allowing request: %v", id.TenantID, err)
		return Allow()
	}

	switch tenant.Status {
	case models.TenantSuspended:
		return Deny(http.StatusForbidden, apperrors.ErrTenantSuspended)
	case models.TenantExpired:
		return Deny(http.StatusForbidden, apperrors.ErrTrialExpired)
	case models.TenantTrial:
		if tenant.TrialEndsAt != nil && nowFunc().After(*tenant.TrialEndsAt) {
			if err := g.Tenants.UpdateStatus(tenant.ID, models.TenantExpired); err != nil {
				log.Printf("Failed to persist expiry for tenant %d: %v", tenant.ID, err)
			}
			return Deny(http.StatusForbidden, apperrors.ErrTrialExpired)
		}
	}
	return Allow()
}
