package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ValidateLoginInput validates login request input before the handler runs.
// The raw body is restored and also stashed in the context so the handler
// can pick up optional fields without re-reading the stream.
func ValidateLoginInput() gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var payload struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
			c.Abort()
			return
		}

		email := strings.TrimSpace(payload.Email)
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
			c.Abort()
			return
		}
		if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format"})
			c.Abort()
			return
		}
		if payload.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
			c.Abort()
			return
		}

		c.Set("validated_email", strings.ToLower(email))
		c.Set("validated_password", payload.Password)
		c.Set("validated_raw_body", bodyBytes)

		c.Next()
	}
}
