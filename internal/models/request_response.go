package models

import (
	"github.com/shopspring/decimal"
)

// Request models
type SignUpRequest struct {
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required,min=8"`
	FullName string   `json:"fullName" binding:"required"`
	Phone    string   `json:"phone"`
	Role     UserRole `json:"role" binding:"required,oneof=landlord tenant"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type CreatePropertyRequest struct {
	Title   string `json:"title" binding:"required"`
	Address string `json:"address" binding:"required"`
	City    string `json:"city" binding:"required"`
}

type CreateLeaseRequest struct {
	PropertyID    string          `json:"property_id" binding:"required"`
	TenantID      string          `json:"tenant_id" binding:"required"`
	MonthlyRent   decimal.Decimal `json:"monthly_rent"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	Currency      string          `json:"currency" binding:"required,len=3"`
	StartDate     string          `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate       string          `json:"end_date" binding:"required,datetime=2006-01-02"`
	DocumentURL   string          `json:"document_url" binding:"omitempty,url"`
}

// UpdateLeaseRequest carries the fields a party may change; nil means unchanged
type UpdateLeaseRequest struct {
	MonthlyRent   *decimal.Decimal `json:"monthly_rent"`
	DepositAmount *decimal.Decimal `json:"deposit_amount"`
	Currency      *string          `json:"currency" binding:"omitempty,len=3"`
	StartDate     *string          `json:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate       *string          `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
	DocumentURL   *string          `json:"document_url" binding:"omitempty,url"`
	Status        *LeaseStatus     `json:"status"`
}

type UpdateLeaseStatusRequest struct {
	Status LeaseStatus `json:"status" binding:"required"`
}

type InitiateSignatureRequest struct {
	SignerID    string     `json:"signer_id" binding:"required"`
	SignerRole  SignerRole `json:"signer_role" binding:"required,oneof=landlord tenant"`
	DocumentURL string     `json:"document_url" binding:"required,url"`
}

type InitiatePaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Provider    PaymentProvider `json:"provider" binding:"required,oneof=orange_money mtn_money moov_money wave"`
	PhoneNumber string          `json:"phone_number" binding:"required,e164"`
}

type ConfirmPaymentRequest struct {
	OTP string `json:"otp" binding:"required,numeric,min=4,max=8"`
}

// SignatureWebhookPayload is the signing provider's completion callback
type SignatureWebhookPayload struct {
	OperationID       string         `json:"operation_id" binding:"required"`
	Status            SignatureState `json:"status" binding:"required,oneof=processing completed failed"`
	SignedDocumentURL string         `json:"signed_document_url" binding:"omitempty,url"`
}

// PaymentWebhookPayload is the mobile-money provider's settlement callback
type PaymentWebhookPayload struct {
	TransactionID string        `json:"transaction_id" binding:"required"`
	Status        PaymentStatus `json:"status" binding:"required,oneof=paid failed"`
	LeaseID       string        `json:"lease_id"`
	ReceiptURL    string        `json:"receipt_url" binding:"omitempty,url"`
}

// Response models
type AuthResponse struct {
	Status    string   `json:"status"`
	UserID    string   `json:"userId,omitempty"`
	Email     string   `json:"email,omitempty"`
	FullName  string   `json:"fullName,omitempty"`
	Role      UserRole `json:"role,omitempty"`
	Token     string   `json:"token,omitempty"`
	ExpiresIn int      `json:"expiresIn,omitempty"`
}

type PropertyResponse struct {
	Status   string    `json:"status"`
	Property *Property `json:"property"`
}

type PropertiesResponse struct {
	Status     string     `json:"status"`
	Properties []Property `json:"properties"`
}

type LeaseResponse struct {
	Status string `json:"status"`
	Lease  *Lease `json:"lease"`
}

type LeaseDetailsResponse struct {
	Status string        `json:"status"`
	Lease  *LeaseDetails `json:"lease"`
}

type LeasesResponse struct {
	Status string  `json:"status"`
	Leases []Lease `json:"leases"`
}

type AuditTrailResponse struct {
	Status  string       `json:"status"`
	LeaseID string       `json:"leaseId"`
	Events  []AuditEvent `json:"events"`
}

type VerifyLeaseResponse struct {
	Status       string              `json:"status"`
	LeaseID      string              `json:"leaseId"`
	Verified     bool                `json:"verified"`
	Outcome      VerificationOutcome `json:"outcome"`
	CurrentHash  string              `json:"currentHash"`
	RecordedHash string              `json:"recordedHash"`
	Lease        *Lease              `json:"lease"`
}

type SignatureResponse struct {
	Status          string         `json:"status"`
	LeaseID         string         `json:"leaseId,omitempty"`
	OperationID     string         `json:"operationId"`
	SignatureStatus SignatureState `json:"signatureStatus"`
	SigningURL      string         `json:"signingUrl,omitempty"`
}

type PaymentResponse struct {
	Status        string        `json:"status"`
	LeaseID       string        `json:"leaseId,omitempty"`
	TransactionID string        `json:"transactionId"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Message       string        `json:"message,omitempty"`
}

type NotificationsResponse struct {
	Status        string         `json:"status"`
	Notifications []Notification `json:"notifications"`
}

type WebhookResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
