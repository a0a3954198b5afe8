package middleware

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
)

// SecureCORSConfig returns the CORS configuration built from CORS_ORIGINS.
func SecureCORSConfig() cors.Config {
	config := cors.DefaultConfig()

	var allowedOrigins []string
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if err := validateCORSOrigin(origin); err != nil {
			log.Printf("Warning: Invalid CORS origin '%s': %v", origin, err)
			continue
		}
		allowedOrigins = append(allowedOrigins, origin)
	}

	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "development" || env == "dev" {
		for _, origin := range []string{"http://localhost:3000", "http://localhost:8080"} {
			if !containsString(allowedOrigins, origin) {
				allowedOrigins = append(allowedOrigins, origin)
			}
		}
	}

	if len(allowedOrigins) == 0 {
		log.Println("⚠️  No CORS origins configured, CORS will be restrictive")
		allowedOrigins = []string{"https://example.com"}
	}

	if containsString(allowedOrigins, "*") && (env == "production" || env == "prod") {
		log.Fatal("CRITICAL: Wildcard CORS origin (*) is not allowed in production")
	}

	config.AllowOrigins = allowedOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		"X-Tenant-Id", "X-Requested-With",
	}
	config.ExposeHeaders = []string{"Content-Length", "Content-Type"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour

	log.Printf("✅ CORS configured with %d allowed origins", len(allowedOrigins))
	return config
}

func validateCORSOrigin(origin string) error {
	if origin == "*" {
		return nil
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme: %s (must be http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host in origin")
	}
	return nil
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
