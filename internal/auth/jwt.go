package auth

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"billing-backend/internal/models"
)

const bcryptCost = 14

const (
	// TokenIssuer and TokenAudience are validated on every parse.
	TokenIssuer   = "billing-api"
	TokenAudience = "billing-clients"

	// DefaultTokenTTL applies to normal logins; RememberMeTokenTTL applies
	// when the client sets remember_me. Both remain subject to session-epoch
	// revocation.
	DefaultTokenTTL    = 12 * time.Hour
	RememberMeTokenTTL = 30 * 24 * time.Hour
)

var jwtSecret []byte

// Claims represents JWT claims. SessionEpoch is a pointer: tokens issued
// before epoch tracking existed carry no claim and are accepted, which
// avoids a mass logout on rollout.
type Claims struct {
	UserID       uint   `json:"user_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TenantID     uint   `json:"tenant_id"`
	SessionEpoch *uint  `json:"session_epoch,omitempty"`
	jwt.RegisteredClaims
}

// InitJWT initializes JWT secret from environment
func InitJWT() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	jwtSecret = []byte(secret)
	log.Println("✅ JWT initialized")
}

// GenerateToken generates a JWT token for a user with the given TTL.
func GenerateToken(user models.User, ttl time.Duration) (string, time.Time, error) {
	expiry := time.Now().Add(ttl)
	epoch := user.SessionEpoch

	claims := &Claims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TenantID:     user.TenantID,
		SessionEpoch: &epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiry, nil
}

// ParseToken parses and validates a JWT token. Callers can distinguish an
// expired token from a malformed or badly signed one via
// errors.Is(err, jwt.ErrTokenExpired).
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithAudience(TokenAudience))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token claims")
}
