package billing

import (
	"fmt"
	"log"
	"os"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

var stripeConfigured bool

// InitStripe configures the Stripe client from the environment. Stripe is
// optional: without a key the renewal flow falls back to direct activation,
// which keeps development and self-hosted installs working.
func InitStripe() {
	key := os.Getenv("STRIPE_SECRET_KEY")
	if key == "" {
		log.Println("⚠️  STRIPE_SECRET_KEY not set, checkout disabled")
		return
	}
	stripe.Key = key
	stripeConfigured = true
	log.Println("✅ Stripe initialized")
}

// StripeEnabled reports whether checkout sessions can be created.
func StripeEnabled() bool {
	return stripeConfigured
}

// CreateCheckoutSession opens a Stripe Checkout session for a plan renewal.
// The tenant id rides along as the client reference so the webhook side can
// attribute the completed payment.
func CreateCheckoutSession(tenantID uint, plan string, priceID string) (string, error) {
	if !stripeConfigured {
		return "", fmt.Errorf("stripe is not configured")
	}

	baseURL := os.Getenv("APP_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(fmt.Sprintf("tenant-%d", tenantID)),
		SuccessURL:        stripe.String(baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(baseURL + "/billing/renew"),
		Metadata: map[string]string{
			"tenant_id": fmt.Sprintf("%d", tenantID),
			"plan":      plan,
		},
	}

	s, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return s.URL, nil
}
