package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"billing-backend/internal/activity"
	"billing-backend/internal/database"
	"billing-backend/internal/models"
)

var startTime = time.Now()

// HandleSystemMetrics returns system-level metrics
func HandleSystemMetrics(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Count resources
	var tenantCount, userCount, subscriptionCount int64
	dbConnected := false
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbConnected = true
			}
		}
		database.DB.Model(&models.Tenant{}).Count(&tenantCount)
		database.DB.Model(&models.User{}).Count(&userCount)
		database.DB.Model(&models.Subscription{}).Count(&subscriptionCount)
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":     time.Since(startTime).Seconds(),
		"database_connected": dbConnected,
		"redis_connected":    activity.Connected(),
		"activity_drops":     activity.DroppedWrites(),
		"memory": gin.H{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"gc_runs":        m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
		"resources": gin.H{
			"tenants":       tenantCount,
			"users":         userCount,
			"subscriptions": subscriptionCount,
		},
		"timestamp": time.Now(),
	})
}
