package auth

import (
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/github"
	"github.com/markbates/goth/providers/google"

	"billing-backend/internal/database"
	"billing-backend/internal/models"
)

var (
	oauthProvidersMu sync.RWMutex
	oauthProviders   = make(map[string]bool)
)

// InitOAuth initializes OAuth providers from environment variables
func InitOAuth() {
	resetOAuthProviders()

	var providers []goth.Provider

	// GitHub OAuth
	if os.Getenv("GITHUB_CLIENT_ID") != "" && os.Getenv("GITHUB_CLIENT_SECRET") != "" {
		callbackURL := os.Getenv("GITHUB_CALLBACK_URL")
		if callbackURL == "" {
			callbackURL = "http://localhost:8080/api/v1/auth/oauth/github/callback"
		}

		providers = append(providers, github.New(
			os.Getenv("GITHUB_CLIENT_ID"),
			os.Getenv("GITHUB_CLIENT_SECRET"),
			callbackURL,
			"user:email",
		))
		markOAuthProviderConfigured("github")
		log.Println("✅ GitHub OAuth configured")
	}

	// Google OAuth
	if os.Getenv("GOOGLE_CLIENT_ID") != "" && os.Getenv("GOOGLE_CLIENT_SECRET") != "" {
		callbackURL := os.Getenv("GOOGLE_CALLBACK_URL")
		if callbackURL == "" {
			callbackURL = "http://localhost:8080/api/v1/auth/oauth/google/callback"
		}

		providers = append(providers, google.New(
			os.Getenv("GOOGLE_CLIENT_ID"),
			os.Getenv("GOOGLE_CLIENT_SECRET"),
			callbackURL,
			"email", "profile",
		))
		markOAuthProviderConfigured("google")
		log.Println("✅ Google OAuth configured")
	}

	if len(providers) > 0 {
		goth.UseProviders(providers...)
		log.Printf("✅ OAuth initialized with %d providers", len(providers))
	} else {
		log.Println("⚠️  No OAuth providers configured")
	}
}

func resetOAuthProviders() {
	oauthProvidersMu.Lock()
	defer oauthProvidersMu.Unlock()
	oauthProviders = make(map[string]bool)
}

func markOAuthProviderConfigured(provider string) {
	oauthProvidersMu.Lock()
	defer oauthProvidersMu.Unlock()
	oauthProviders[provider] = true
}

func IsOAuthProviderConfigured(provider string) bool {
	oauthProvidersMu.RLock()
	defer oauthProvidersMu.RUnlock()
	return oauthProviders[provider]
}

// HandleOAuthBegin redirects to the provider's consent screen.
func HandleOAuthBegin(c *gin.Context) {
	provider := c.Param("provider")
	if !IsOAuthProviderConfigured(provider) {
		c.JSON(http.StatusNotFound, gin.H{"error": "OAuth provider not configured"})
		return
	}

	// gothic resolves the provider from the query string.
	q := c.Request.URL.Query()
	q.Set("provider", provider)
	c.Request.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleOAuthCallback completes the provider handshake and exchanges the
// external identity for a first-party token. OAuth never provisions users:
// the email must already belong to an active account.
func HandleOAuthCallback(c *gin.Context) {
	provider := c.Param("provider")
	if !IsOAuthProviderConfigured(provider) {
		c.JSON(http.StatusNotFound, gin.H{"error": "OAuth provider not configured"})
		return
	}

	q := c.Request.URL.Query()
	q.Set("provider", provider)
	c.Request.URL.RawQuery = q.Encode()

	gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "OAuth authentication failed"})
		return
	}
	if gothUser.Email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "OAuth provider did not return an email address"})
		return
	}

	var user models.User
	if err := database.DB.Where("email = ? AND active = ?", NormalizeEmail(gothUser.Email), true).First(&user).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "No account is associated with this email"})
		return
	}

	Lockout.ClearAttempts(user.Email)

	now := time.Now()
	user.LastLoginAt = &now
	if err := database.DB.Save(&user).Error; err != nil {
		log.Printf("Failed to record OAuth login time for user %s: %v", user.Email, err)
	}

	token, expiry, err := GenerateToken(user, DefaultTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	SetAuthCookie(c, token, expiry)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiry.Unix(),
		"role":       user.Role,
		"tenant_id":  user.TenantID,
		"name":       user.Name,
		"provider":   provider,
	})
}
