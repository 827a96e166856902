package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// UserRole is the marketplace role of a user
type UserRole string

const (
	RoleLandlord UserRole = "landlord"
	RoleTenant   UserRole = "tenant"
	RoleAdmin    UserRole = "admin"
)

// User represents a user in the system
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"fullName"`
	Phone     string    `db:"phone" json:"phone"`
	Role      UserRole  `db:"role" json:"role"`
	Password  string    `db:"password" json:"-"` // Password hash, not returned in JSON
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Property is the rented unit a lease refers to
type Property struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	Title     string    `db:"title" json:"title"`
	Address   string    `db:"address" json:"address"`
	City      string    `db:"city" json:"city"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Lease is a rental contract between a landlord and a tenant for a property.
// Field order is the column order of the leases table; the audit hash is
// computed over the JSON form of this struct.
type Lease struct {
	ID                       string          `db:"id" json:"id"`
	PropertyID               string          `db:"property_id" json:"property_id"`
	LandlordID               string          `db:"landlord_id" json:"landlord_id"`
	TenantID                 string          `db:"tenant_id" json:"tenant_id"`
	MonthlyRent              decimal.Decimal `db:"monthly_rent" json:"monthly_rent"`
	DepositAmount            decimal.Decimal `db:"deposit_amount" json:"deposit_amount"`
	Currency                 string          `db:"currency" json:"currency"`
	StartDate                time.Time       `db:"start_date" json:"start_date"`
	EndDate                  time.Time       `db:"end_date" json:"end_date"`
	Status                   LeaseStatus     `db:"status" json:"status"`
	DocumentURL              *string         `db:"document_url" json:"document_url"`
	SignedDocumentURL        *string         `db:"signed_document_url" json:"signed_document_url"`
	CryptoneoOperationID     *string         `db:"cryptoneo_operation_id" json:"cryptoneo_operation_id"`
	CryptoneoSignatureStatus *SignatureState `db:"cryptoneo_signature_status" json:"cryptoneo_signature_status"`
	SignatureSignerID        *string         `db:"signature_signer_id" json:"signature_signer_id"`
	SignatureSignerRole      *SignerRole     `db:"signature_signer_role" json:"signature_signer_role"`
	SignatureInitiatedAt     *time.Time      `db:"signature_initiated_at" json:"signature_initiated_at"`
	LandlordSignedAt         *time.Time      `db:"landlord_signed_at" json:"landlord_signed_at"`
	TenantSignedAt           *time.Time      `db:"tenant_signed_at" json:"tenant_signed_at"`
	PaymentStatus            PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentTransactionID     *string         `db:"payment_transaction_id" json:"payment_transaction_id"`
	PaymentProvider          *string         `db:"payment_provider" json:"payment_provider"`
	PaymentInitiatedAt       *time.Time      `db:"payment_initiated_at" json:"payment_initiated_at"`
	VerifiedAt               *time.Time      `db:"verified_at" json:"verified_at"`
	ReviewFlaggedAt          *time.Time      `db:"review_flagged_at" json:"review_flagged_at"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at" json:"updated_at"`
}

// PartySummary is the public profile of a lease party
type PartySummary struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"fullName"`
	Email    string `db:"email" json:"email"`
	Phone    string `db:"phone" json:"phone"`
}

// PropertySummary is the subset of a property shown next to a lease
type PropertySummary struct {
	ID      string `db:"id" json:"id"`
	Title   string `db:"title" json:"title"`
	Address string `db:"address" json:"address"`
	City    string `db:"city" json:"city"`
}

// LeaseDetails is a lease with its joined property and party summaries
type LeaseDetails struct {
	Lease
	Property PropertySummary `db:"property" json:"property"`
	Landlord PartySummary    `db:"landlord" json:"landlord"`
	Tenant   PartySummary    `db:"tenant" json:"tenant"`
}

// AuditEventKind names a recorded lease transition
type AuditEventKind string

const (
	AuditCreated   AuditEventKind = "created"
	AuditSigned    AuditEventKind = "signed"
	AuditPaid      AuditEventKind = "paid"
	AuditVerified  AuditEventKind = "verified"
	AuditCancelled AuditEventKind = "cancelled"
)

// AuditEvent is an immutable fingerprint of a lease at one transition
type AuditEvent struct {
	ID        string         `db:"id" json:"id"`
	LeaseID   string         `db:"lease_id" json:"leaseId"`
	Event     AuditEventKind `db:"event" json:"event"`
	ActorID   string         `db:"actor_id" json:"actorId"`
	Hash      string         `db:"hash" json:"hash"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// VerificationOutcome is the result of comparing a lease with its latest
// audit event
type VerificationOutcome string

const (
	// VerificationMatched means the lease is exactly as last fingerprinted
	VerificationMatched VerificationOutcome = "matched"
	// VerificationChanged means the lease moved through a step that records
	// no event, such as opening a signature or payment, after the last one
	VerificationChanged VerificationOutcome = "changed_since_event"
	// VerificationMismatch means the row differs from its fingerprint without
	// a newer update stamp
	VerificationMismatch   VerificationOutcome = "mismatch"
	VerificationUnrecorded VerificationOutcome = "unrecorded"
)

// NotificationType tags the event a notification announces
type NotificationType string

const (
	NotificationLeaseSigned     NotificationType = "lease_signed"
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationLeaseCancelled  NotificationType = "lease_cancelled"
	NotificationReviewRequired  NotificationType = "lease_review_required"
)

// NotificationData is the structured payload of a notification
type NotificationData struct {
	LeaseID    string `json:"lease_id"`
	ReceiptURL string `json:"receipt_url,omitempty"`
}

// Notification is an in-app message for one recipient
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"userId"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Type      NotificationType `db:"type" json:"type"`
	Data      json.RawMessage  `db:"data" json:"data"`
	DeepLink  string           `db:"deep_link" json:"deepLink"`
	ReadAt    *time.Time       `db:"read_at" json:"readAt"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// WebhookProvider identifies the origin of an inbound callback
type WebhookProvider string

const (
	WebhookProviderSignature WebhookProvider = "signature"
	WebhookProviderPayment   WebhookProvider = "payment"
)

// WebhookEvent is the durable idempotency record of an inbound callback
type WebhookEvent struct {
	ID          string          `db:"id" json:"id"`
	Provider    WebhookProvider `db:"provider" json:"provider"`
	EventKey    string          `db:"event_key" json:"eventKey"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processedAt"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}
