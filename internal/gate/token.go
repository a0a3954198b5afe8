package gate

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"billing-backend/internal/auth"
	apperrors "billing-backend/internal/errors"
)

// TokenAuthenticator validates the bearer token and establishes the
// caller's identity from its claims. It distinguishes three failures so
// clients know whether to re-login, refresh, or fix their request:
// no token at all, an expired token, and everything else.
type TokenAuthenticator struct{}

func NewTokenAuthenticator() *TokenAuthenticator { return &TokenAuthenticator{} }

func (g *TokenAuthenticator) Name() string { return "token" }

func (g *TokenAuthenticator) Check(req *Request, id *Identity) Decision {
	if req.TokenString == "" {
		return Deny(http.StatusUnauthorized, apperrors.ErrTokenMissing)
	}

	claims, err := auth.ParseToken(req.TokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Deny(http.StatusUnauthorized, apperrors.ErrTokenExpired)
		}
		return Deny(http.StatusUnauthorized, apperrors.ErrTokenInvalid)
	}

	id.UserID = claims.UserID
	id.Email = claims.Email
	id.Role = claims.Role
	id.TenantID = claims.TenantID
	id.SessionEpoch = claims.SessionEpoch
	return Allow()
}
