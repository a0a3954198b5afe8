package models

import (
	"database/sql/driver"
	"errors"
	"strings"
	"time"
)

// User roles
const (
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
	RoleSuperAdmin = "superadmin"
)

// PlatformTenantID is the sentinel tenant for platform administrators.
// Superadmin users carry TenantID 0 and are scoped to all tenants unless
// they impersonate one via the X-Tenant-Id header.
const PlatformTenantID uint = 0

type User struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Email        string     `json:"email" gorm:"uniqueIndex"`
	Password     string     `json:"-"`
	Name         string     `json:"name"`
	Role         string     `json:"role" gorm:"default:'staff'"`
	TenantID     uint       `json:"tenant_id" gorm:"index;default:0"`
	Active       bool       `json:"active" gorm:"default:true"`
	SessionEpoch uint       `json:"-" gorm:"default:0"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	PasswordResetToken  string     `json:"-"`
	PasswordResetExpiry *time.Time `json:"-"`

	// MFA fields
	MFAEnabled bool   `json:"mfa_enabled" gorm:"default:false"`
	MFASecret  string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPlatformAdmin reports whether the user operates at platform scope.
func (u *User) IsPlatformAdmin() bool {
	return u.Role == RoleSuperAdmin && u.TenantID == PlatformTenantID
}

// Tenant lifecycle statuses
const (
	TenantTrial     = "trial"
	TenantActive    = "active"
	TenantSuspended = "suspended"
	TenantExpired   = "expired"
)

type Tenant struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name"`
	Status      string     `json:"status" gorm:"default:'trial';index"`
	TrialEndsAt *time.Time `json:"trial_ends_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Subscription plans
type Plan struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"uniqueIndex"`
	DisplayName   string    `json:"display_name"`
	Description   string    `json:"description"`
	Price         int64     `json:"price"`                           // Price in cents
	Interval      string    `json:"interval" gorm:"default:'month'"` // month, year
	StripePriceID string    `json:"stripe_price_id"`
	MaxBranches   int       `json:"max_branches"`
	MaxUsers      int       `json:"max_users"`
	TrialDays     int       `json:"trial_days" gorm:"default:14"`
	Active        bool      `json:"active" gorm:"default:true"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Subscription statuses
const (
	SubscriptionTrial     = "trial"
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionSuspended = "suspended"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

// Subscription represents a tenant's billing subscription. The most recently
// created row per tenant is the current one.
type Subscription struct {
	ID                   uint       `json:"id" gorm:"primaryKey"`
	TenantID             uint       `json:"tenant_id" gorm:"index"`
	Tenant               Tenant     `json:"-" gorm:"foreignKey:TenantID"`
	PlanID               uint       `json:"plan_id"`
	Plan                 Plan       `json:"plan" gorm:"foreignKey:PlanID"`
	Status               string     `json:"status" gorm:"default:'trial'"`
	BillingCycle         string     `json:"billing_cycle" gorm:"default:'monthly'"`
	StripeSubscriptionID string     `json:"-"`
	TrialEndsAt          *time.Time `json:"trial_ends_at"`
	ExpiresAt            *time.Time `json:"expires_at"` // hard expiry
	NextBillingAt        *time.Time `json:"next_billing_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// LoginLockout tracks failed credential-exchange attempts per normalized
// email. Rows are deleted on successful login and pruned once stale.
type LoginLockout struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	NormalizedEmail string     `json:"-" gorm:"uniqueIndex"`
	FailedAttempts  int        `json:"failed_attempts" gorm:"default:0"`
	LastAttemptAt   time.Time  `json:"last_attempt_at"`
	LockedUntil     *time.Time `json:"locked_until"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AppSetting is a key-value configuration row (maintenance flag and friends).
type AppSetting struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"uniqueIndex;column:key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuditLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RequestID string    `json:"request_id" gorm:"size:64;index"`
	UserID    uint      `json:"user_id" gorm:"index"`
	TenantID  uint      `json:"tenant_id" gorm:"index"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// Branch is a tenant location/route; users can be scoped to branches.
type Branch struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"index"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserBranch assigns a user to a branch scope.
type UserBranch struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	UserID   uint `json:"user_id" gorm:"index"`
	BranchID uint `json:"branch_id" gorm:"index"`
}

// Expense is a representative tenant-scoped business entity; its handlers
// sit behind the full gating pipeline.
type Expense struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	TenantID    uint       `json:"tenant_id" gorm:"index"`
	BranchID    *uint      `json:"branch_id" gorm:"index"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Amount      int64      `json:"amount"` // cents
	IncurredAt  *time.Time `json:"incurred_at"`
	CreatedBy   uint       `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StringArray is a custom type for PostgreSQL text[] arrays
type StringArray []string

// Value implements the driver.Valuer interface for StringArray
func (sa StringArray) Value() (driver.Value, error) {
	if len(sa) == 0 {
		return nil, nil
	}
	var quoted []string
	for _, s := range sa {
		quoted = append(quoted, `"`+strings.ReplaceAll(s, `"`, `\"`)+`"`)
	}
	return "{" + strings.Join(quoted, ",") + "}", nil
}

// Scan implements the sql.Scanner interface for StringArray
func (sa *StringArray) Scan(value interface{}) error {
	if value == nil {
		*sa = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			*sa = StringArray{}
			return nil
		}
		content := v
		if strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") {
			content = v[1 : len(v)-1]
		}
		if content == "" {
			*sa = StringArray{}
			return nil
		}
		rawEntries := strings.Split(content, ",")
		clean := make([]string, 0, len(rawEntries))
		for _, entry := range rawEntries {
			entry = strings.TrimSpace(entry)
			entry = strings.Trim(entry, `"`)
			entry = strings.ReplaceAll(entry, `\"`, `"`)
			if entry != "" {
				clean = append(clean, entry)
			}
		}
		*sa = StringArray(clean)
		return nil
	case []byte:
		if len(v) == 0 {
			*sa = StringArray{}
			return nil
		}
		return sa.Scan(string(v))
	default:
		return errors.New("cannot scan into StringArray")
	}
}
