package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"billing-backend/internal/models"
)

func TestComputeStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name        string
		sub         models.Subscription
		wantStatus  string
		wantChanged bool
	}{
		{
			name:        "active stays active",
			sub:         models.Subscription{Status: models.SubscriptionActive, ExpiresAt: &future},
			wantStatus:  models.SubscriptionActive,
			wantChanged: false,
		},
		{
			name:        "trial within window",
			sub:         models.Subscription{Status: models.SubscriptionTrial, TrialEndsAt: &future},
			wantStatus:  models.SubscriptionTrial,
			wantChanged: false,
		},
		{
			name:        "trial past deadline expires",
			sub:         models.Subscription{Status: models.SubscriptionTrial, TrialEndsAt: &past},
			wantStatus:  models.SubscriptionExpired,
			wantChanged: true,
		},
		{
			name:        "trial without deadline never expires",
			sub:         models.Subscription{Status: models.SubscriptionTrial},
			wantStatus:  models.SubscriptionTrial,
			wantChanged: false,
		},
		{
			name:        "trial past hard expiry expires despite open trial window",
			sub:         models.Subscription{Status: models.SubscriptionTrial, TrialEndsAt: &future, ExpiresAt: &past},
			wantStatus:  models.SubscriptionExpired,
			wantChanged: true,
		},
		{
			name:        "trial without deadline past hard expiry expires",
			sub:         models.Subscription{Status: models.SubscriptionTrial, ExpiresAt: &past},
			wantStatus:  models.SubscriptionExpired,
			wantChanged: true,
		},
		{
			name:        "suspended past hard expiry expires",
			sub:         models.Subscription{Status: models.SubscriptionSuspended, ExpiresAt: &past},
			wantStatus:  models.SubscriptionExpired,
			wantChanged: true,
		},
		{
			name:        "active past hard expiry expires",
			sub:         models.Subscription{Status: models.SubscriptionActive, ExpiresAt: &past},
			wantStatus:  models.SubscriptionExpired,
			wantChanged: true,
		},
		{
			name:        "past_due past hard expiry expires",
			sub:         models.Subscription{Status: models.SubscriptionPastDue, ExpiresAt: &past},
			wantStatus:  models.SubscriptionExpired,
			wantChanged: true,
		},
		{
			name:        "past_due without expiry stays past_due",
			sub:         models.Subscription{Status: models.SubscriptionPastDue},
			wantStatus:  models.SubscriptionPastDue,
			wantChanged: false,
		},
		{
			name:        "cancelled is terminal",
			sub:         models.Subscription{Status: models.SubscriptionCancelled, ExpiresAt: &past},
			wantStatus:  models.SubscriptionCancelled,
			wantChanged: false,
		},
		{
			name:        "expired is terminal",
			sub:         models.Subscription{Status: models.SubscriptionExpired},
			wantStatus:  models.SubscriptionExpired,
			wantChanged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, changed := ComputeStatus(&tt.sub, now)
			require.Equal(t, tt.wantStatus, status)
			require.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestIsBlocking(t *testing.T) {
	require.False(t, IsBlocking(models.SubscriptionTrial))
	require.False(t, IsBlocking(models.SubscriptionActive))
	require.True(t, IsBlocking(models.SubscriptionPastDue))
	require.True(t, IsBlocking(models.SubscriptionSuspended))
	require.True(t, IsBlocking(models.SubscriptionCancelled))
	require.True(t, IsBlocking(models.SubscriptionExpired))
}
