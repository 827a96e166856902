package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaseUpdate is a partial write to a lease row. Nil fields are left
// untouched; updated_at is always stamped by the repository.
type LeaseUpdate struct {
	MonthlyRent              *decimal.Decimal
	DepositAmount            *decimal.Decimal
	Currency                 *string
	StartDate                *time.Time
	EndDate                  *time.Time
	Status                   *LeaseStatus
	DocumentURL              *string
	SignedDocumentURL        *string
	CryptoneoOperationID     *string
	CryptoneoSignatureStatus *SignatureState
	SignatureSignerID        *string
	SignatureSignerRole      *SignerRole
	SignatureInitiatedAt     *time.Time
	LandlordSignedAt         *time.Time
	TenantSignedAt           *time.Time
	PaymentStatus            *PaymentStatus
	PaymentTransactionID     *string
	PaymentProvider          *string
	PaymentInitiatedAt       *time.Time
	VerifiedAt               *time.Time
	ReviewFlaggedAt          *time.Time
	// ClearReviewFlag writes NULL to review_flagged_at and wins over ReviewFlaggedAt
	ClearReviewFlag          bool
}

// Columns returns the column/value pairs set on u, in a stable order
func (u LeaseUpdate) Columns() ([]string, []interface{}) {
	var cols []string
	var vals []interface{}
	add := func(col string, set bool, v interface{}) {
		if set {
			cols = append(cols, col)
			vals = append(vals, v)
		}
	}

	add("monthly_rent", u.MonthlyRent != nil, u.MonthlyRent)
	add("deposit_amount", u.DepositAmount != nil, u.DepositAmount)
	add("currency", u.Currency != nil, u.Currency)
	add("start_date", u.StartDate != nil, u.StartDate)
	add("end_date", u.EndDate != nil, u.EndDate)
	add("status", u.Status != nil, u.Status)
	add("document_url", u.DocumentURL != nil, u.DocumentURL)
	add("signed_document_url", u.SignedDocumentURL != nil, u.SignedDocumentURL)
	add("cryptoneo_operation_id", u.CryptoneoOperationID != nil, u.CryptoneoOperationID)
	add("cryptoneo_signature_status", u.CryptoneoSignatureStatus != nil, u.CryptoneoSignatureStatus)
	add("signature_signer_id", u.SignatureSignerID != nil, u.SignatureSignerID)
	add("signature_signer_role", u.SignatureSignerRole != nil, u.SignatureSignerRole)
	add("signature_initiated_at", u.SignatureInitiatedAt != nil, u.SignatureInitiatedAt)
	add("landlord_signed_at", u.LandlordSignedAt != nil, u.LandlordSignedAt)
	add("tenant_signed_at", u.TenantSignedAt != nil, u.TenantSignedAt)
	add("payment_status", u.PaymentStatus != nil, u.PaymentStatus)
	add("payment_transaction_id", u.PaymentTransactionID != nil, u.PaymentTransactionID)
	add("payment_provider", u.PaymentProvider != nil, u.PaymentProvider)
	add("payment_initiated_at", u.PaymentInitiatedAt != nil, u.PaymentInitiatedAt)
	add("verified_at", u.VerifiedAt != nil, u.VerifiedAt)
	if u.ClearReviewFlag {
		add("review_flagged_at", true, nil)
	} else {
		add("review_flagged_at", u.ReviewFlaggedAt != nil, u.ReviewFlaggedAt)
	}

	return cols, vals
}

// Apply merges u into lease; used by in-memory stores and to keep the
// caller's copy in sync after an update
func (u LeaseUpdate) Apply(lease *Lease) {
	if u.MonthlyRent != nil {
		lease.MonthlyRent = *u.MonthlyRent
	}
	if u.DepositAmount != nil {
		lease.DepositAmount = *u.DepositAmount
	}
	if u.Currency != nil {
		lease.Currency = *u.Currency
	}
	if u.StartDate != nil {
		lease.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		lease.EndDate = *u.EndDate
	}
	if u.Status != nil {
		lease.Status = *u.Status
	}
	if u.DocumentURL != nil {
		lease.DocumentURL = u.DocumentURL
	}
	if u.SignedDocumentURL != nil {
		lease.SignedDocumentURL = u.SignedDocumentURL
	}
	if u.CryptoneoOperationID != nil {
		lease.CryptoneoOperationID = u.CryptoneoOperationID
	}
	if u.CryptoneoSignatureStatus != nil {
		lease.CryptoneoSignatureStatus = u.CryptoneoSignatureStatus
	}
	if u.SignatureSignerID != nil {
		lease.SignatureSignerID = u.SignatureSignerID
	}
	if u.SignatureSignerRole != nil {
		lease.SignatureSignerRole = u.SignatureSignerRole
	}
	if u.SignatureInitiatedAt != nil {
		lease.SignatureInitiatedAt = u.SignatureInitiatedAt
	}
	if u.LandlordSignedAt != nil {
		lease.LandlordSignedAt = u.LandlordSignedAt
	}
	if u.TenantSignedAt != nil {
		lease.TenantSignedAt = u.TenantSignedAt
	}
	if u.PaymentStatus != nil {
		lease.PaymentStatus = *u.PaymentStatus
	}
	if u.PaymentTransactionID != nil {
		lease.PaymentTransactionID = u.PaymentTransactionID
	}
	if u.PaymentProvider != nil {
		lease.PaymentProvider = u.PaymentProvider
	}
	if u.PaymentInitiatedAt != nil {
		lease.PaymentInitiatedAt = u.PaymentInitiatedAt
	}
	if u.VerifiedAt != nil {
		lease.VerifiedAt = u.VerifiedAt
	}
	if u.ReviewFlaggedAt != nil {
		lease.ReviewFlaggedAt = u.ReviewFlaggedAt
	}
	if u.ClearReviewFlag {
		lease.ReviewFlaggedAt = nil
	}
}
