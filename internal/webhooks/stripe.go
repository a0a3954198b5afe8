package webhooks

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"billing-backend/internal/database"
	"billing-backend/internal/models"
)

// HandleStripeWebhook processes checkout completions. A completed checkout
// activates a new subscription row for the tenant carried in the session
// metadata and reinstates the tenant if its trial had lapsed.
func HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	secret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Webhook not configured"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), secret)
	if err != nil {
		log.Printf("Stripe webhook signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event payload"})
			return
		}
		handleCheckoutCompleted(&session)
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event payload"})
			return
		}
		handlePaymentFailed(&invoice)
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func handleCheckoutCompleted(session *stripe.CheckoutSession) {
	tenantID := tenantIDFromMetadata(session.Metadata, session.ClientReferenceID)
	if tenantID == 0 {
		log.Printf("Stripe checkout %s has no tenant reference, skipping", session.ID)
		return
	}

	var plan models.Plan
	if name := session.Metadata["plan"]; name != "" {
		database.DB.Where("name = ?", name).First(&plan)
	}

	now := time.Now()
	expiry := now.AddDate(0, 1, 0)
	if plan.Interval == "year" {
		expiry = now.AddDate(1, 0, 0)
	}

	sub := models.Subscription{
		TenantID:      uint(tenantID),
		PlanID:        plan.ID,
		Status:        models.SubscriptionActive,
		ExpiresAt:     &expiry,
		NextBillingAt: &expiry,
	}
	if session.Subscription != nil {
		sub.StripeSubscriptionID = session.Subscription.ID
	}
	if err := database.DB.Create(&sub).Error; err != nil {
		log.Printf("Failed to record subscription for tenant %d from checkout %s: %v", tenantID, session.ID, err)
		return
	}

	database.DB.Model(&models.Tenant{}).Where("id = ? AND status IN ?", tenantID,
		[]string{models.TenantTrial, models.TenantExpired}).Update("status", models.TenantActive)
	log.Printf("✅ Activated subscription for tenant %d via Stripe checkout", tenantID)
}

func handlePaymentFailed(invoice *stripe.Invoice) {
	if invoice.Subscription == nil {
		return
	}
	err := database.DB.Model(&models.Subscription{}).
		Where("stripe_subscription_id = ? AND status = ?", invoice.Subscription.ID, models.SubscriptionActive).
		Update("status", models.SubscriptionPastDue).Error
	if err != nil {
		log.Printf("Failed to mark subscription %s past due: %v", invoice.Subscription.ID, err)
	}
}

func tenantIDFromMetadata(metadata map[string]string, clientRef string) uint64 {
	if raw := metadata["tenant_id"]; raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			return id
		}
	}
	if strings.HasPrefix(clientRef, "tenant-") {
		if id, err := strconv.ParseUint(strings.TrimPrefix(clientRef, "tenant-"), 10, 32); err == nil {
			return id
		}
	}
	return 0
}
