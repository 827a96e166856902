package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rongwang/leasehub-server/internal/config"
	"github.com/rongwang/leasehub-server/internal/models"
	"go.uber.org/zap"
)

// SignatureRequest asks the provider to collect one party's signature on a document
type SignatureRequest struct {
	LeaseID     string            `json:"lease_id"`
	SignerID    string            `json:"signer_id"`
	SignerRole  models.SignerRole `json:"signer_role"`
	DocumentURL string            `json:"document_url"`
}

// SignatureOperation is the provider's view of a signing operation
type SignatureOperation struct {
	OperationID       string                `json:"operation_id"`
	Status            models.SignatureState `json:"status"`
	SigningURL        string                `json:"signing_url"`
	SignedDocumentURL string                `json:"signed_document_url"`
}

// SignatureClient wraps the electronic-signature provider
type SignatureClient interface {
	Initiate(ctx context.Context, req SignatureRequest) (*SignatureOperation, error)
	Status(ctx context.Context, operationID string) (*SignatureOperation, error)
}

// HTTPSignatureClient implements SignatureClient over the provider proxy function
type HTTPSignatureClient struct {
	c *client
}

// NewSignatureClient creates a new signature provider client
func NewSignatureClient(cfg config.ProviderConfig, logger *zap.Logger) *HTTPSignatureClient {
	return &HTTPSignatureClient{c: newClient(cfg, logger.Named("signature_gateway"))}
}

func (s *HTTPSignatureClient) Initiate(ctx context.Context, req SignatureRequest) (*SignatureOperation, error) {
	headers := map[string]string{
		"Idempotency-Key": idempotencyKey("signature", map[string]string{
			"lease_id":     req.LeaseID,
			"signer_id":    req.SignerID,
			"document_url": req.DocumentURL,
		}),
	}

	var op SignatureOperation
	if err := s.c.do(ctx, http.MethodPost, "/initiate", headers, req, &op); err != nil {
		return nil, err
	}
	if op.Status == "" {
		op.Status = models.SignaturePending
	}

	return &op, nil
}

func (s *HTTPSignatureClient) Status(ctx context.Context, operationID string) (*SignatureOperation, error) {
	var op SignatureOperation
	path := "/status?operation_id=" + url.QueryEscape(operationID)
	if err := s.c.do(ctx, http.MethodGet, path, nil, nil, &op); err != nil {
		return nil, err
	}
	if op.OperationID == "" {
		op.OperationID = operationID
	}

	return &op, nil
}
