package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"billing-backend/internal/config"
	"billing-backend/internal/database"
)

var startTime = time.Now()

// HandleHealthCheck returns basic health status
func HandleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "billing-api",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

// HandleSystemReady returns readiness status
func HandleSystemReady(c *gin.Context) {
	// Check database connection
	dbReady := false
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbReady = true
			}
		}
	}

	status := http.StatusOK
	if !dbReady {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"ready":    dbReady,
		"database": dbReady,
		"service":  "billing-api",
	})
}

// MaintenanceStatusHandler exposes the maintenance flag to unauthenticated
// clients so frontends can show the banner before login.
func MaintenanceStatusHandler(store config.SettingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		enabled, message, err := config.MaintenanceStatus(store)
		if err != nil {
			// Same fail-open stance as the gate: report "off" on store errors.
			enabled, message = false, ""
		}
		c.JSON(http.StatusOK, gin.H{
			"maintenanceMode":    enabled,
			"maintenanceMessage": message,
		})
	}
}
