package superadmin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"billing-backend/internal/activity"
	"billing-backend/internal/audit"
	"billing-backend/internal/config"
	"billing-backend/internal/database"
	"billing-backend/internal/models"
	"billing-backend/pkg/utils"
)

// RequireSuperAdmin guards the platform administration surface.
func RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != models.RoleSuperAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Superadmin access required"})
			return
		}
		c.Next()
	}
}

// HandleListTenants returns all tenants with their current subscription.
func HandleListTenants(c *gin.Context) {
	var tenants []models.Tenant
	if err := database.DB.Order("created_at DESC").Find(&tenants).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tenants"})
		return
	}

	result := make([]gin.H, len(tenants))
	for i, tenant := range tenants {
		var userCount int64
		database.DB.Model(&models.User{}).Where("tenant_id = ?", tenant.ID).Count(&userCount)

		entry := gin.H{
			"id":            tenant.ID,
			"name":          tenant.Name,
			"status":        tenant.Status,
			"trial_ends_at": tenant.TrialEndsAt,
			"created_at":    tenant.CreatedAt,
			"user_count":    userCount,
		}
		if activity.GlobalTracker != nil {
			entry["requests_today"] = activity.GlobalTracker.CountToday(tenant.ID)
		}

		var sub models.Subscription
		if err := database.DB.Preload("Plan").Where("tenant_id = ?", tenant.ID).Order("created_at DESC").First(&sub).Error; err == nil {
			entry["subscription"] = gin.H{"status": sub.Status, "plan": sub.Plan.Name, "expires_at": sub.ExpiresAt}
		}
		result[i] = entry
	}

	c.JSON(http.StatusOK, gin.H{"tenants": result})
}

// HandleSuspendTenant suspends a tenant. Its users are denied on their next
// request; no tokens need to be revoked.
func HandleSuspendTenant(c *gin.Context) {
	setTenantStatus(c, models.TenantSuspended, "tenant.suspend")
}

// HandleReinstateTenant returns a suspended or expired tenant to active.
func HandleReinstateTenant(c *gin.Context) {
	setTenantStatus(c, models.TenantActive, "tenant.reinstate")
}

func setTenantStatus(c *gin.Context, status, action string) {
	tenantID := c.Param("id")

	var tenant models.Tenant
	if err := database.DB.First(&tenant, tenantID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}

	if err := database.DB.Model(&tenant).Update("status", status).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update tenant"})
		return
	}

	audit.Record(audit.Entry{
		RequestID: c.GetString("request_id"),
		UserID:    c.GetUint("user_id"),
		TenantID:  tenant.ID,
		Action:    action,
		Resource:  "tenant",
		IPAddress: utils.GetClientIP(c),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(http.StatusOK, gin.H{
		"message": "Tenant status updated",
		"tenant":  gin.H{"id": tenant.ID, "name": tenant.Name, "status": status},
	})
}

// HandleForceLogout revokes every outstanding token for a user by bumping
// the session epoch atomically in the database.
func HandleForceLogout(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := database.DB.Model(&user).Update("session_epoch", gorm.Expr("session_epoch + 1")).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke sessions"})
		return
	}

	audit.Record(audit.Entry{
		RequestID: c.GetString("request_id"),
		UserID:    c.GetUint("user_id"),
		TenantID:  user.TenantID,
		Action:    "user.force_logout",
		Resource:  "user",
		Details:   user.Email,
		IPAddress: utils.GetClientIP(c),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "All sessions revoked for user", "user_id": user.ID})
}

// HandleSetMaintenance flips the platform maintenance flag.
func HandleSetMaintenance(c *gin.Context) {
	var req struct {
		Enabled bool   `json:"enabled"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	store := config.NewDBSettingsStore(database.DB)
	if err := config.SetMaintenance(store, req.Enabled, req.Message); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update maintenance mode"})
		return
	}

	detail := "disabled"
	if req.Enabled {
		detail = "enabled"
	}
	audit.Record(audit.Entry{
		RequestID: c.GetString("request_id"),
		UserID:    c.GetUint("user_id"),
		Action:    "platform.maintenance",
		Resource:  "settings",
		Details:   detail,
		IPAddress: utils.GetClientIP(c),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(http.StatusOK, gin.H{"maintenance_enabled": req.Enabled, "message": req.Message})
}

// HandlePlatformStats returns platform-wide counters.
func HandlePlatformStats(c *gin.Context) {
	var tenantCount, userCount, activeSubCount, lockedCount int64
	database.DB.Model(&models.Tenant{}).Count(&tenantCount)
	database.DB.Model(&models.User{}).Count(&userCount)
	database.DB.Model(&models.Subscription{}).Where("status IN ?",
		[]string{models.SubscriptionTrial, models.SubscriptionActive}).Count(&activeSubCount)
	database.DB.Model(&models.LoginLockout{}).Where("locked_until > ?", time.Now()).Count(&lockedCount)

	var byStatus []struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	database.DB.Model(&models.Tenant{}).Select("status, count(*) as count").Group("status").Scan(&byStatus)

	c.JSON(http.StatusOK, gin.H{
		"stats": gin.H{
			"total_tenants":        tenantCount,
			"total_users":          userCount,
			"active_subscriptions": activeSubCount,
			"locked_accounts":      lockedCount,
			"tenants_by_status":    byStatus,
		},
	})
}
