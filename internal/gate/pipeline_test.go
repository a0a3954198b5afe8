package gate

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"billing-backend/internal/auth"
	"billing-backend/internal/models"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "pipeline-test-secret")
	auth.InitJWT()
	os.Exit(m.Run())
}

type fakeSettings struct {
	values map[string]string
	err    error
}

func (f *fakeSettings) Get(key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[key], nil
}

func (f *fakeSettings) Set(key, value string) error {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	return nil
}

type fakeUsers struct {
	users map[uint]*models.User
	err   error
}

func (f *fakeUsers) ByID(id uint) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

type fakeTenants struct {
	tenants map[uint]*models.Tenant
	updated map[uint]string
	err     error
}

func (f *fakeTenants) ByID(id uint) (*models.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	tenant, ok := f.tenants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tenant, nil
}

func (f *fakeTenants) UpdateStatus(id uint, status string) error {
	if f.updated == nil {
		f.updated = make(map[uint]string)
	}
	f.updated[id] = status
	return nil
}

type fakeSubs struct {
	subs    map[uint]*models.Subscription
	updated map[uint]string
	err     error
}

func (f *fakeSubs) CurrentForTenant(tenantID uint) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subs[tenantID], nil
}

func (f *fakeSubs) UpdateStatus(id uint, status string) error {
	if f.updated == nil {
		f.updated = make(map[uint]string)
	}
	f.updated[id] = status
	return nil
}

type fixture struct {
	settings *fakeSettings
	users    *fakeUsers
	tenants  *fakeTenants
	subs     *fakeSubs
	pipeline *Pipeline
}

func newFixture() *fixture {
	f := &fixture{
		settings: &fakeSettings{values: map[string]string{}},
		users:    &fakeUsers{users: map[uint]*models.User{}},
		tenants:  &fakeTenants{tenants: map[uint]*models.Tenant{}},
		subs:     &fakeSubs{subs: map[uint]*models.Subscription{}},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f.pipeline = NewPipeline(logger,
		NewMaintenanceGate(f.settings),
		NewTokenAuthenticator(),
		NewSessionEpochGuard(f.users),
		NewTenantResolver(),
		NewTenantLifecycleGuard(f.tenants),
		NewSubscriptionLifecycleGuard(f.subs),
	)
	return f
}

func (f *fixture) addUser(id uint, role string, tenantID uint) *models.User {
	user := &models.User{
		ID:       id,
		Email:    fmt.Sprintf("user%d@example.com", id),
		Role:     role,
		TenantID: tenantID,
		Active:   true,
	}
	f.users.users[id] = user
	return user
}

func (f *fixture) activeTenant(id uint) {
	f.tenants.tenants[id] = &models.Tenant{ID: id, Status: models.TenantActive}
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, _, err := auth.GenerateToken(*user, time.Hour)
	require.NoError(t, err)
	return token
}

func apiRequest(token string) *Request {
	return &Request{
		Method:      http.MethodGet,
		Path:        "/api/v1/expenses",
		TokenString: token,
	}
}

func TestPipelineAllowsHealthyTenantUser(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	f.subs.subs[7] = &models.Subscription{ID: 1, TenantID: 7, Status: models.SubscriptionActive}

	id, decision := f.pipeline.Evaluate(apiRequest(tokenFor(t, user)))
	require.True(t, decision.Allowed)
	require.Equal(t, uint(1), id.UserID)
	require.Equal(t, uint(7), id.TenantID)
	require.Equal(t, models.RoleOwner, id.Role)
}

func TestPipelineDeniesMissingToken(t *testing.T) {
	f := newFixture()

	_, decision := f.pipeline.Evaluate(apiRequest(""))
	require.False(t, decision.Allowed)
	require.Equal(t, http.StatusUnauthorized, decision.Status)
	require.Equal(t, "TOKEN_MISSING", decision.Code)
}

func TestPipelineDeniesGarbageToken(t *testing.T) {
	f := newFixture()

	_, decision := f.pipeline.Evaluate(apiRequest("not-a-jwt"))
	require.False(t, decision.Allowed)
	require.Equal(t, "TOKEN_INVALID", decision.Code)
}

func TestPipelineDeniesExpiredToken(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	token, _, err := auth.GenerateToken(*user, -time.Minute)
	require.NoError(t, err)

	_, decision := f.pipeline.Evaluate(apiRequest(token))
	require.False(t, decision.Allowed)
	require.Equal(t, http.StatusUnauthorized, decision.Status)
	require.Equal(t, "TOKEN_EXPIRED", decision.Code)
}

func TestPipelineRevokesStaleEpoch(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	token := tokenFor(t, user)

	// Epoch bumped after the token was issued.
	user.SessionEpoch = 1

	_, decision := f.pipeline.Evaluate(apiRequest(token))
	require.False(t, decision.Allowed)
	require.Equal(t, http.StatusUnauthorized, decision.Status)
	require.Equal(t, "SESSION_REVOKED", decision.Code)
}

func TestPipelineAcceptsTokenWithoutEpochClaim(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	user.SessionEpoch = 3
	token := tokenFor(t, user)

	// Simulate a token minted before epoch tracking by parsing and
	// reissuing without the claim is not possible via the public API, so
	// exercise the guard directly.
	guard := NewSessionEpochGuard(f.users)
	id := &Identity{UserID: 1, SessionEpoch: nil}
	decision := guard.Check(apiRequest(token), id)
	require.True(t, decision.Allowed)
}

func TestPipelineDeniesDisabledUser(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	token := tokenFor(t, user)
	user.Active = false

	_, decision := f.pipeline.Evaluate(apiRequest(token))
	require.False(t, decision.Allowed)
	require.Equal(t, http.StatusForbidden, decision.Status)
	require.Equal(t, "ACCOUNT_DISABLED", decision.Code)
}

func TestPipelineDeniesDeletedUser(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	token := tokenFor(t, user)
	delete(f.users.users, 1)

	_, decision := f.pipeline.Evaluate(apiRequest(token))
	require.False(t, decision.Allowed)
	require.Equal(t, "TOKEN_INVALID", decision.Code)
}

func TestPipelineDeniesSuspendedTenant(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.tenants.tenants[7] = &models.Tenant{ID: 7, Status: models.TenantSuspended}

	_, decision := f.pipeline.Evaluate(apiRequest(tokenFor(t, user)))
	require.False(t, decision.Allowed)
	require.Equal(t, http.StatusForbidden, decision.Status)
	require.Equal(t, "TENANT_SUSPENDED", decision.Code)
}

func TestPipelineExpiresLapsedTenantTrial(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	ended := time.Now().Add(-time.Hour)
	f.tenants.tenants[7] = &models.Tenant{ID: 7, Status: models.TenantTrial, TrialEndsAt: &ended}

	_, decision := f.pipeline.Evaluate(apiRequest(tokenFor(t, user)))
	require.False(t, decision.Allowed)
	require.Equal(t, "TRIAL_EXPIRED", decision.Code)
	require.Equal(t, models.TenantExpired, f.tenants.updated[7])
}

func TestSuspendedTenantCanStillReachBilling(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.tenants.tenants[7] = &models.Tenant{ID: 7, Status: models.TenantSuspended}

	req := apiRequest(tokenFor(t, user))
	req.Path = "/api/v1/billing/renew"

	_, decision := f.pipeline.Evaluate(req)
	require.True(t, decision.Allowed)
}

func TestPipelineBlocksLapsedSubscription(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	ended := time.Now().Add(-time.Hour)
	f.subs.subs[7] = &models.Subscription{ID: 5, TenantID: 7, Status: models.SubscriptionTrial, TrialEndsAt: &ended}

	_, decision := f.pipeline.Evaluate(apiRequest(tokenFor(t, user)))
	require.False(t, decision.Allowed)
	require.Equal(t, http.StatusPaymentRequired, decision.Status)
	require.Equal(t, "SUBSCRIPTION_BLOCKED", decision.Code)
	require.Equal(t, "/billing/renew", decision.Extra["redirect"])

	// The lazily derived transition is persisted.
	require.Equal(t, models.SubscriptionExpired, f.subs.updated[5])
}

func TestPipelineAllowsTenantWithoutSubscription(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)

	_, decision := f.pipeline.Evaluate(apiRequest(tokenFor(t, user)))
	require.True(t, decision.Allowed)
}

func TestPipelineFailsOpenOnStoreErrors(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	token := tokenFor(t, user)

	f.tenants.err = fmt.Errorf("connection refused")
	f.subs.err = fmt.Errorf("connection refused")

	_, decision := f.pipeline.Evaluate(apiRequest(token))
	require.True(t, decision.Allowed)
}

func TestMaintenanceDeniesRegularUsers(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	require.NoError(t, f.settings.Set("maintenance_mode", "true"))
	require.NoError(t, f.settings.Set("maintenance_message", "back soon"))

	_, decision := f.pipeline.Evaluate(apiRequest(tokenFor(t, user)))
	require.False(t, decision.Allowed)
	require.Equal(t, http.StatusServiceUnavailable, decision.Status)
	require.Equal(t, "MAINTENANCE_MODE", decision.Code)
	require.Equal(t, true, decision.Extra["maintenanceMode"])
	require.Equal(t, "back soon", decision.Extra["maintenanceMessage"])
}

func TestMaintenanceExemptsSuperadmins(t *testing.T) {
	f := newFixture()
	admin := f.addUser(2, models.RoleSuperAdmin, 0)
	require.NoError(t, f.settings.Set("maintenance_mode", "true"))

	_, decision := f.pipeline.Evaluate(apiRequest(tokenFor(t, admin)))
	require.True(t, decision.Allowed)
}

func TestMaintenanceExemptsCredentialExchange(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.settings.Set("maintenance_mode", "true"))

	guard := NewMaintenanceGate(f.settings)
	for _, path := range []string{
		"/api/v1/auth/login",
		"/api/v1/auth/logout",
		"/api/v1/auth/password-reset/request",
		"/api/v1/auth/oauth/github/callback",
	} {
		decision := guard.Check(&Request{Path: path}, &Identity{})
		require.True(t, decision.Allowed, path)
	}
}

func TestMaintenanceCoversAccountEndpoints(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	require.NoError(t, f.settings.Set("maintenance_mode", "true"))

	token := tokenFor(t, user)
	for _, path := range []string{
		"/api/v1/auth/profile",
		"/api/v1/auth/profile/password",
		"/api/v1/auth/mfa/setup",
	} {
		req := apiRequest(token)
		req.Path = path
		_, decision := f.pipeline.Evaluate(req)
		require.False(t, decision.Allowed, path)
		require.Equal(t, http.StatusServiceUnavailable, decision.Status, path)
	}
}

func TestMaintenanceFailsOpenOnSettingsError(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)
	token := tokenFor(t, user)
	f.settings.err = fmt.Errorf("settings store down")

	_, decision := f.pipeline.Evaluate(apiRequest(token))
	require.True(t, decision.Allowed)
}

func TestSuperadminDefaultsToPlatformScope(t *testing.T) {
	f := newFixture()
	admin := f.addUser(2, models.RoleSuperAdmin, 0)

	id, decision := f.pipeline.Evaluate(apiRequest(tokenFor(t, admin)))
	require.True(t, decision.Allowed)
	require.Equal(t, models.PlatformTenantID, id.TenantID)
}

func TestSuperadminImpersonatesTenantViaHeader(t *testing.T) {
	f := newFixture()
	admin := f.addUser(2, models.RoleSuperAdmin, 0)
	f.activeTenant(9)
	f.subs.subs[9] = &models.Subscription{ID: 3, TenantID: 9, Status: models.SubscriptionActive}

	req := apiRequest(tokenFor(t, admin))
	req.TenantOverride = "9"

	id, decision := f.pipeline.Evaluate(req)
	require.True(t, decision.Allowed)
	require.Equal(t, uint(9), id.TenantID)
}

func TestSuperadminImpersonationBypassesLifecycleGuards(t *testing.T) {
	// Lifecycle enforcement blocks a tenant's own users; an operator
	// impersonating a suspended tenant still gets in to inspect it.
	f := newFixture()
	admin := f.addUser(2, models.RoleSuperAdmin, 0)
	f.tenants.tenants[9] = &models.Tenant{ID: 9, Status: models.TenantSuspended}

	req := apiRequest(tokenFor(t, admin))
	req.TenantOverride = "9"

	id, decision := f.pipeline.Evaluate(req)
	require.True(t, decision.Allowed)
	require.Equal(t, uint(9), id.TenantID)
}

func TestInvalidTenantOverrideRejected(t *testing.T) {
	f := newFixture()
	admin := f.addUser(2, models.RoleSuperAdmin, 0)

	req := apiRequest(tokenFor(t, admin))
	req.TenantOverride = "banana"

	_, decision := f.pipeline.Evaluate(req)
	require.False(t, decision.Allowed)
	require.Equal(t, http.StatusBadRequest, decision.Status)
	require.Equal(t, "INVALID_TENANT_ID", decision.Code)
}

func TestTenantOverrideIgnoredForRegularUsers(t *testing.T) {
	f := newFixture()
	user := f.addUser(1, models.RoleOwner, 7)
	f.activeTenant(7)

	req := apiRequest(tokenFor(t, user))
	req.TenantOverride = "9"

	id, decision := f.pipeline.Evaluate(req)
	require.True(t, decision.Allowed)
	require.Equal(t, uint(7), id.TenantID)
}

func TestGuardOrderShortCircuits(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.settings.Set("maintenance_mode", "true"))

	// Maintenance wins over a missing token: the client sees 503, not 401.
	_, decision := f.pipeline.Evaluate(apiRequest(""))
	require.Equal(t, http.StatusServiceUnavailable, decision.Status)
	require.Equal(t, "MAINTENANCE_MODE", decision.Code)
}
