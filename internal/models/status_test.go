package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeaseStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from LeaseStatus
		to   LeaseStatus
		want bool
	}{
		{LeaseStatusDraft, LeaseStatusAwaitingSignature, true},
		{LeaseStatusAwaitingSignature, LeaseStatusSigned, true},
		{LeaseStatusSigned, LeaseStatusActive, true},
		{LeaseStatusSigned, LeaseStatusPaid, true},
		{LeaseStatusPaid, LeaseStatusActive, true},

		// forward skips
		{LeaseStatusDraft, LeaseStatusSigned, false},
		{LeaseStatusDraft, LeaseStatusActive, false},
		{LeaseStatusAwaitingSignature, LeaseStatusActive, false},

		// regressions
		{LeaseStatusSigned, LeaseStatusDraft, false},
		{LeaseStatusAwaitingSignature, LeaseStatusDraft, false},

		// cancellation
		{LeaseStatusDraft, LeaseStatusCancelled, true},
		{LeaseStatusAwaitingSignature, LeaseStatusCancelled, true},
		{LeaseStatusSigned, LeaseStatusCancelled, true},
		{LeaseStatusPaid, LeaseStatusCancelled, true},

		// terminal states
		{LeaseStatusActive, LeaseStatusCancelled, false},
		{LeaseStatusCancelled, LeaseStatusSigned, false},
		{LeaseStatusCancelled, LeaseStatusCancelled, false},

		{LeaseStatusDraft, LeaseStatus("archived"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestLeaseStatusCanBeSetManually(t *testing.T) {
	tests := []struct {
		from LeaseStatus
		to   LeaseStatus
		want bool
	}{
		{LeaseStatusDraft, LeaseStatusCancelled, true},
		{LeaseStatusAwaitingSignature, LeaseStatusCancelled, true},
		{LeaseStatusSigned, LeaseStatusPaid, true},
		{LeaseStatusPaid, LeaseStatusCancelled, true},

		// owned by the signature and payment flows
		{LeaseStatusDraft, LeaseStatusAwaitingSignature, false},
		{LeaseStatusAwaitingSignature, LeaseStatusSigned, false},
		{LeaseStatusSigned, LeaseStatusActive, false},
		{LeaseStatusPaid, LeaseStatusActive, false},

		{LeaseStatusDraft, LeaseStatusPaid, false},
		{LeaseStatusCancelled, LeaseStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanBeSetManually(tt.to))
		})
	}
}

func TestFinalStates(t *testing.T) {
	assert.True(t, SignatureCompleted.IsFinal())
	assert.True(t, SignatureFailed.IsFinal())
	assert.False(t, SignaturePending.IsFinal())
	assert.False(t, SignatureProcessing.IsFinal())

	assert.True(t, PaymentPaid.IsFinal())
	assert.True(t, PaymentFailed.IsFinal())
	assert.False(t, PaymentPending.IsFinal())
	assert.False(t, PaymentUnpaid.IsFinal())
}
