package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		input   string
		want    Tier
		wantErr bool
	}{
		{"development", TierDevelopment, false},
		{"staging", TierStaging, false},
		{"production", TierProduction, false},
		{"", "", true},
		{"prod", "", true},
		{"Production", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tier, err := ParseTier(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tier)
		})
	}
}

func TestClaim_Age(t *testing.T) {
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	claim := Claim{CreatedAt: created}

	now := created.Add(90 * 24 * time.Hour)
	assert.Equal(t, 90*24*time.Hour, claim.Age(now))
}

func TestClaim_HasOwner(t *testing.T) {
	assert.False(t, Claim{}.HasOwner())
	assert.False(t, Claim{Labels: map[string]string{OwnerLabel: ""}}.HasOwner())
	assert.False(t, Claim{Labels: map[string]string{"team": "payments"}}.HasOwner())
	assert.True(t, Claim{Labels: map[string]string{OwnerLabel: "alice"}}.HasOwner())
}

func TestClaim_Terminal(t *testing.T) {
	assert.True(t, Claim{Status: StatusDenied}.Terminal())
	assert.True(t, Claim{Status: StatusDeleted}.Terminal())
	assert.False(t, Claim{Status: StatusPending}.Terminal())
	assert.False(t, Claim{Status: StatusReady}.Terminal())
	assert.False(t, Claim{Status: StatusFlaggedForCleanup}.Terminal())
}

func TestDecision(t *testing.T) {
	allow := Allow()
	assert.True(t, allow.Allowed)
	assert.Empty(t, allow.Reasons)

	deny := Deny("reason one", "reason two")
	assert.False(t, deny.Allowed)
	assert.Equal(t, []string{"reason one", "reason two"}, deny.Reasons)
}

func TestTerminalApprovalState(t *testing.T) {
	assert.True(t, TerminalApprovalState(StateRejected))
	assert.True(t, TerminalApprovalState(StateProvisioned))
	assert.False(t, TerminalApprovalState(StateSubmitted))
	assert.False(t, TerminalApprovalState(StateNotified))
	assert.False(t, TerminalApprovalState(StateUnderReview))
	assert.False(t, TerminalApprovalState(StateApproved))
}
