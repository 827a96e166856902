package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rongwang/leasehub-server/internal/config"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentRequest asks the mobile-money provider to collect a payment
type PaymentRequest struct {
	LeaseID     string                 `json:"lease_id"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency"`
	Provider    models.PaymentProvider `json:"provider"`
	PhoneNumber string                 `json:"phone_number"`
}

// PaymentTransaction is the provider's view of a payment
type PaymentTransaction struct {
	TransactionID string               `json:"transaction_id"`
	Status        models.PaymentStatus `json:"status"`
	RequiresOTP   bool                 `json:"requires_otp"`
	ReceiptURL    string               `json:"receipt_url"`
	Message       string               `json:"message"`
}

// PaymentClient wraps the mobile-money provider
type PaymentClient interface {
	Initiate(ctx context.Context, req PaymentRequest) (*PaymentTransaction, error)
	Confirm(ctx context.Context, transactionID, otp string) (*PaymentTransaction, error)
	Status(ctx context.Context, transactionID string) (*PaymentTransaction, error)
}

// HTTPPaymentClient implements PaymentClient over the provider proxy function
type HTTPPaymentClient struct {
	c *client
}

// NewPaymentClient creates a new mobile-money provider client
func NewPaymentClient(cfg config.ProviderConfig, logger *zap.Logger) *HTTPPaymentClient {
	return &HTTPPaymentClient{c: newClient(cfg, logger.Named("payment_gateway"))}
}

func (p *HTTPPaymentClient) Initiate(ctx context.Context, req PaymentRequest) (*PaymentTransaction, error) {
	headers := map[string]string{
		"Idempotency-Key": idempotencyKey("payment", map[string]string{
			"lease_id": req.LeaseID,
			"amount":   req.Amount.String(),
			"provider": string(req.Provider),
			"phone":    req.PhoneNumber,
		}),
	}

	var txn PaymentTransaction
	if err := p.c.do(ctx, http.MethodPost, "/initiate", headers, req, &txn); err != nil {
		return nil, err
	}
	if txn.Status == "" {
		txn.Status = models.PaymentPending
	}

	return &txn, nil
}

func (p *HTTPPaymentClient) Confirm(ctx context.Context, transactionID, otp string) (*PaymentTransaction, error) {
	body := map[string]string{
		"transaction_id": transactionID,
		"otp":            otp,
	}

	var txn PaymentTransaction
	if err := p.c.do(ctx, http.MethodPost, "/confirm", nil, body, &txn); err != nil {
		return nil, err
	}
	if txn.TransactionID == "" {
		txn.TransactionID = transactionID
	}

	return &txn, nil
}

func (p *HTTPPaymentClient) Status(ctx context.Context, transactionID string) (*PaymentTransaction, error) {
	var txn PaymentTransaction
	path := "/status?transaction_id=" + url.QueryEscape(transactionID)
	if err := p.c.do(ctx, http.MethodGet, path, nil, nil, &txn); err != nil {
		return nil, err
	}
	if txn.TransactionID == "" {
		txn.TransactionID = transactionID
	}

	return &txn, nil
}
