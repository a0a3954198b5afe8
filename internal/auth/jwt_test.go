package auth

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"billing-backend/internal/models"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "auth-test-secret")
	InitJWT()
	os.Exit(m.Run())
}

func testUser() models.User {
	return models.User{
		ID:           42,
		Email:        "owner@example.com",
		Role:         models.RoleOwner,
		TenantID:     7,
		SessionEpoch: 3,
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	token, expiry, err := GenerateToken(testUser(), time.Hour)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, uint(42), claims.UserID)
	require.Equal(t, "owner@example.com", claims.Email)
	require.Equal(t, models.RoleOwner, claims.Role)
	require.Equal(t, uint(7), claims.TenantID)
	require.NotNil(t, claims.SessionEpoch)
	require.Equal(t, uint(3), *claims.SessionEpoch)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, _, err := GenerateToken(testUser(), -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestParseRejectsTamperedToken(t *testing.T) {
	token, _, err := GenerateToken(testUser(), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token + "x")
	require.Error(t, err)
	require.False(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	claims := &Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("auth-test-secret"))
	require.NoError(t, err)

	_, err = ParseToken(signed)
	require.Error(t, err)
}

func TestParseRejectsWrongAudience(t *testing.T) {
	claims := &Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{"other-clients"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("auth-test-secret"))
	require.NoError(t, err)

	_, err = ParseToken(signed)
	require.Error(t, err)
}

func TestTokenWithoutEpochClaimParses(t *testing.T) {
	claims := &Claims{
		UserID: 8,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("auth-test-secret"))
	require.NoError(t, err)

	parsed, err := ParseToken(signed)
	require.NoError(t, err)
	require.Nil(t, parsed.SessionEpoch)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("bcrypt cost 14 is slow")
	}
	hash, err := HashPassword("s3cret-password")
	require.NoError(t, err)
	require.True(t, CheckPassword("s3cret-password", hash))
	require.False(t, CheckPassword("wrong-password", hash))
}
