package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/leasehub-server/internal/audit"
	"github.com/rongwang/leasehub-server/internal/auth"
	"github.com/rongwang/leasehub-server/internal/config"
	"github.com/rongwang/leasehub-server/internal/metrics"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/notify"
	"github.com/rongwang/leasehub-server/internal/service"
	"github.com/rongwang/leasehub-server/internal/webhook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// JWTSecret signs the tokens of test users
const JWTSecret = "test-secret-key"

// Harness is a DefaultService wired to in-memory collaborators
type Harness struct {
	Repo       *InMemoryRepository
	Signatures *FakeSignatureClient
	Payments   *FakePaymentClient
	Mailer     *RecordingMailer
	Notifier   *notify.Dispatcher
	Dedupe     *webhook.MemoryStore
	Metrics    *metrics.Metrics
	Service    service.Service
	Logger     *zap.Logger
}

// NewHarness creates a new Harness
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	logger := zap.NewNop()
	h := &Harness{
		Repo:       NewInMemoryRepository(),
		Signatures: NewFakeSignatureClient(),
		Payments:   NewFakePaymentClient(),
		Mailer:     &RecordingMailer{},
		Dedupe:     webhook.NewMemoryStore(time.Hour),
		Metrics:    metrics.New(),
		Logger:     logger,
	}
	h.Notifier = notify.NewDispatcher(h.Mailer, "https://app.example.com", logger)

	h.Service = service.NewDefaultService(service.Params{
		Repo:       h.Repo,
		Auth:       auth.NewLocalAuth(config.AuthConfig{JWTSecret: JWTSecret}),
		Signatures: h.Signatures,
		Payments:   h.Payments,
		Recorder:   audit.NewRecorder(logger),
		Notifier:   h.Notifier,
		Dedupe:     h.Dedupe,
		Metrics:    h.Metrics,
		Logger:     logger,
	})

	t.Cleanup(h.Notifier.Wait)
	return h
}

// Parties are a landlord, a tenant and a property owned by the landlord
type Parties struct {
	Landlord *models.User
	Tenant   *models.User
	Outsider *models.User
	Property *models.Property
}

// SeedParties stores the users and property most lease tests need
func (h *Harness) SeedParties(t *testing.T) *Parties {
	t.Helper()
	ctx := context.Background()

	p := &Parties{
		Landlord: &models.User{Email: "landlord@example.com", FullName: "Awa Landlord", Role: models.RoleLandlord},
		Tenant:   &models.User{Email: "tenant@example.com", FullName: "Koffi Tenant", Role: models.RoleTenant},
		Outsider: &models.User{Email: "outsider@example.com", FullName: "Other Person", Role: models.RoleTenant},
	}
	require.NoError(t, h.Repo.CreateUser(ctx, p.Landlord))
	require.NoError(t, h.Repo.CreateUser(ctx, p.Tenant))
	require.NoError(t, h.Repo.CreateUser(ctx, p.Outsider))

	p.Property = &models.Property{
		OwnerID: p.Landlord.ID,
		Title:   "Two-bedroom flat",
		Address: "12 Rue des Jardins",
		City:    "Abidjan",
	}
	require.NoError(t, h.Repo.CreateProperty(ctx, p.Property))

	return p
}

// LeaseRequest is a valid draft lease for p
func (p *Parties) LeaseRequest() models.CreateLeaseRequest {
	return models.CreateLeaseRequest{
		PropertyID:    p.Property.ID,
		TenantID:      p.Tenant.ID,
		MonthlyRent:   decimal.NewFromInt(250000),
		DepositAmount: decimal.NewFromInt(500000),
		Currency:      "XOF",
		StartDate:     "2025-01-01",
		EndDate:       "2025-12-31",
		DocumentURL:   "https://docs.example.com/lease.pdf",
	}
}

// CreateDraft creates a draft lease through the service
func (h *Harness) CreateDraft(t *testing.T, p *Parties) *models.Lease {
	t.Helper()

	resp, err := h.Service.CreateLease(context.Background(), p.Landlord.ID, p.LeaseRequest())
	require.NoError(t, err)
	return resp.Lease
}

// SendForSignature creates a lease and opens a signing operation for signer
func (h *Harness) SendForSignature(t *testing.T, p *Parties, signer *models.User, role models.SignerRole) (*models.Lease, string) {
	t.Helper()

	lease := h.CreateDraft(t, p)
	resp, err := h.Service.InitiateSignature(context.Background(), p.Landlord.ID, lease.ID, models.InitiateSignatureRequest{
		SignerID:    signer.ID,
		SignerRole:  role,
		DocumentURL: "https://docs.example.com/lease.pdf",
	})
	require.NoError(t, err)
	return lease, resp.OperationID
}

// SignedLease drives a lease to signed through the signature callback
func (h *Harness) SignedLease(t *testing.T, p *Parties) *models.Lease {
	t.Helper()
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)
	_, err := h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID:       operationID,
		Status:            models.SignatureCompleted,
		SignedDocumentURL: "https://docs.example.com/signed.pdf",
	}, []byte(`{}`))
	require.NoError(t, err)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	return stored
}

// Token returns a bearer token for userID
func Token(t *testing.T, userID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(JWTSecret))
	require.NoError(t, err)
	return signed
}
