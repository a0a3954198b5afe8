package billing

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"billing-backend/internal/database"
	"billing-backend/internal/models"
)

// HandleGetPlans returns all active billing plans
func HandleGetPlans(c *gin.Context) {
	var plans []models.Plan
	if err := database.DB.Where("active = ?", true).Order("price ASC").Find(&plans).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch plans"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// HandleGetCurrentSubscription returns the tenant's current subscription
// with its lazily derived status.
func HandleGetCurrentSubscription(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")
	if tenantID == models.PlatformTenantID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Platform scope has no subscription. Impersonate a tenant via X-Tenant-Id."})
		return
	}

	var subscription models.Subscription
	if err := database.DB.Preload("Plan").Where("tenant_id = ?", tenantID).Order("created_at DESC").First(&subscription).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription found"})
		return
	}

	status, changed := ComputeStatus(&subscription, time.Now())
	if changed {
		database.DB.Model(&subscription).Update("status", status)
		subscription.Status = status
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": subscription,
		"blocking":     IsBlocking(status),
	})
}

// HandleRenewSubscription starts a renewal. With Stripe configured it
// returns a hosted checkout URL; otherwise it activates the subscription
// directly for one billing cycle.
func HandleRenewSubscription(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")
	if tenantID == models.PlatformTenantID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Platform scope has no subscription"})
		return
	}

	// plan_id is optional; an empty body renews on the current plan.
	var req struct {
		PlanID uint `json:"plan_id"`
	}
	_ = c.ShouldBindJSON(&req)

	var subscription models.Subscription
	err := database.DB.Where("tenant_id = ?", tenantID).Order("created_at DESC").First(&subscription).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription to renew"})
		return
	}

	planID := subscription.PlanID
	if req.PlanID != 0 {
		planID = req.PlanID
	}
	var plan models.Plan
	if err := database.DB.Where("id = ? AND active = ?", planID, true).First(&plan).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Plan not found or inactive"})
		return
	}

	if StripeEnabled() && plan.StripePriceID != "" {
		checkoutURL, err := CreateCheckoutSession(tenantID, plan.Name, plan.StripePriceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start checkout"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"checkout_url": checkoutURL})
		return
	}

	// Direct activation path for installs without Stripe.
	now := time.Now()
	expiry := now.AddDate(0, 1, 0)
	if plan.Interval == "year" {
		expiry = now.AddDate(1, 0, 0)
	}

	renewal := models.Subscription{
		TenantID:      tenantID,
		PlanID:        plan.ID,
		Status:        models.SubscriptionActive,
		BillingCycle:  subscription.BillingCycle,
		ExpiresAt:     &expiry,
		NextBillingAt: &expiry,
	}
	if err := database.DB.Create(&renewal).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to renew subscription"})
		return
	}

	// An expired trial tenant becomes active again on renewal.
	database.DB.Model(&models.Tenant{}).Where("id = ? AND status IN ?", tenantID,
		[]string{models.TenantTrial, models.TenantExpired}).Update("status", models.TenantActive)

	c.JSON(http.StatusCreated, gin.H{
		"message":      "Subscription renewed",
		"subscription": renewal,
	})
}

// HandleCancelSubscription marks the current subscription cancelled. Access
// is cut on the next gated request.
func HandleCancelSubscription(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")
	if tenantID == models.PlatformTenantID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Platform scope has no subscription"})
		return
	}

	var subscription models.Subscription
	if err := database.DB.Where("tenant_id = ?", tenantID).Order("created_at DESC").First(&subscription).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription found"})
		return
	}
	if subscription.Status == models.SubscriptionCancelled {
		c.JSON(http.StatusOK, gin.H{"message": "Subscription already cancelled"})
		return
	}

	if err := database.DB.Model(&subscription).Update("status", models.SubscriptionCancelled).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription cancelled"})
}
