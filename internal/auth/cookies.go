package auth

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AuthCookieName = "billing_session"
)

func shouldUseSecureCookies(c *gin.Context) bool {
	if value := strings.ToLower(strings.TrimSpace(os.Getenv("SECURE_COOKIES"))); value != "" {
		return value != "false"
	}
	if c != nil {
		if proto := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Forwarded-Proto"))); proto == "https" {
			return true
		}
	}
	return c.Request.TLS != nil
}

// SetAuthCookie sets the authentication cookie
func SetAuthCookie(c *gin.Context, token string, expiry time.Time) {
	cookie := &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiry,
		MaxAge:   int(time.Until(expiry).Seconds()),
		HttpOnly: true,
		Secure:   shouldUseSecureCookies(c),
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(c.Writer, cookie)
}

// ClearAuthCookie clears the authentication cookie
func ClearAuthCookie(c *gin.Context) {
	cookie := &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   shouldUseSecureCookies(c),
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(c.Writer, cookie)
}
