package gate

import (
	"errors"
	"log"
	"net/http"

	"gorm.io/gorm"

	apperrors "billing-backend/internal/errors"
	"billing-backend/internal/models"
)

// UserStore loads users for the session guard.
type UserStore interface {
	ByID(id uint) (*models.User, error)
}

// SessionEpochGuard checks the token's session epoch against the user row.
// Bumping a user's epoch (password change, forced logout) invalidates every
// token issued before the bump without keeping a blacklist. Tokens minted
// before epoch tracking carry no claim and pass.
type SessionEpochGuard struct {
	Users UserStore
}

func NewSessionEpochGuard(users UserStore) *SessionEpochGuard {
	return &SessionEpochGuard{Users: users}
}

func (g *SessionEpochGuard) Name() string { return "session" }

func (g *SessionEpochGuard) Check(req *Request, id *Identity) Decision {
	user, err := g.Users.ByID(id.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Deny(http.StatusUnauthorized, apperrors.ErrTokenInvalid)
		}
		// A store outage degrades to epoch-unchecked access rather than a
		// platform-wide lockout.
		log.Printf("Session check failed for user %d, allowing request: %v", id.UserID, err)
		return Allow()
	}

	if !user.Active {
		return Deny(http.StatusForbidden, apperrors.ErrAccountDisabled)
	}

	if id.SessionEpoch != nil && *id.SessionEpoch != user.SessionEpoch {
		return Deny(http.StatusUnauthorized, apperrors.ErrSessionRevoked)
	}

	// The user row, not the token, is authoritative for role and tenant
	// once the session is confirmed live.
	id.Role = user.Role
	id.TenantID = user.TenantID
	return Allow()
}
