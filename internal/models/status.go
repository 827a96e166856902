package models

// LeaseStatus is the lifecycle state of a lease
type LeaseStatus string

const (
	LeaseStatusDraft             LeaseStatus = "draft"
	LeaseStatusAwaitingSignature LeaseStatus = "awaiting_signature"
	LeaseStatusSigned            LeaseStatus = "signed"
	LeaseStatusPaid              LeaseStatus = "paid"
	LeaseStatusActive            LeaseStatus = "active"
	LeaseStatusCancelled         LeaseStatus = "cancelled"
)

// leaseTransitions lists the forward edges of the lease state machine.
// Cancellation is handled separately since it is reachable from every
// non-terminal state.
var leaseTransitions = map[LeaseStatus][]LeaseStatus{
	LeaseStatusDraft:             {LeaseStatusAwaitingSignature},
	LeaseStatusAwaitingSignature: {LeaseStatusSigned},
	LeaseStatusSigned:            {LeaseStatusPaid, LeaseStatusActive},
	LeaseStatusPaid:              {LeaseStatusActive},
}

// manualTransitions are the forward edges a party may take with a plain
// status update. awaiting_signature, signed and active are only reached
// through the signature and payment flows.
var manualTransitions = map[LeaseStatus][]LeaseStatus{
	LeaseStatusSigned: {LeaseStatusPaid},
}

// IsValid reports whether s is a known status
func (s LeaseStatus) IsValid() bool {
	switch s {
	case LeaseStatusDraft, LeaseStatusAwaitingSignature, LeaseStatusSigned,
		LeaseStatusPaid, LeaseStatusActive, LeaseStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s LeaseStatus) IsTerminal() bool {
	return s == LeaseStatusActive || s == LeaseStatusCancelled
}

// CanTransitionTo reports whether the state machine allows s -> next.
// Staying in the same state is not a transition.
func (s LeaseStatus) CanTransitionTo(next LeaseStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == LeaseStatusCancelled {
		return true
	}
	for _, allowed := range leaseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanBeSetManually reports whether a party may move s to next directly:
// cancellation, or marking a signed lease as paid
func (s LeaseStatus) CanBeSetManually(next LeaseStatus) bool {
	if !s.CanTransitionTo(next) {
		return false
	}
	if next == LeaseStatusCancelled {
		return true
	}
	for _, allowed := range manualTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SignatureState is the provider-side state of a signing operation
type SignatureState string

const (
	SignaturePending    SignatureState = "pending"
	SignatureProcessing SignatureState = "processing"
	SignatureCompleted  SignatureState = "completed"
	SignatureFailed     SignatureState = "failed"
)

// IsFinal reports whether the provider will not change the state again
func (s SignatureState) IsFinal() bool {
	return s == SignatureCompleted || s == SignatureFailed
}

// SignerRole identifies which lease party a signing operation is for
type SignerRole string

const (
	SignerLandlord SignerRole = "landlord"
	SignerTenant   SignerRole = "tenant"
)

// PaymentStatus is the settlement state of the lease's initial payment
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// IsFinal reports whether the provider will not change the state again
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

// PaymentProvider is a supported mobile-money operator
type PaymentProvider string

const (
	ProviderOrangeMoney PaymentProvider = "orange_money"
	ProviderMTNMoney    PaymentProvider = "mtn_money"
	ProviderMoovMoney   PaymentProvider = "moov_money"
	ProviderWave        PaymentProvider = "wave"
)
