package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rongwang/leasehub-server/internal/audit"
	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/testutil"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditKinds(events []models.AuditEvent) []models.AuditEventKind {
	return lo.Map(events, func(e models.AuditEvent, _ int) models.AuditEventKind { return e.Event })
}

func TestSignUpAndLogin(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	resp, err := h.Service.SignUp(ctx, models.SignUpRequest{
		Email:    "  New.Tenant@Example.com ",
		Password: "password123",
		FullName: "New Tenant",
		Role:     models.RoleTenant,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.tenant@example.com", resp.Email)
	assert.NotEmpty(t, resp.Token)

	userID, err := h.Service.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, userID)

	login, err := h.Service.Login(ctx, models.LoginRequest{Email: "new.tenant@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, login.UserID)

	_, err = h.Service.Login(ctx, models.LoginRequest{Email: "new.tenant@example.com", Password: "wrong-password"})
	assert.True(t, ierr.Is(err, ierr.ErrUnauthorized))

	_, err = h.Service.SignUp(ctx, models.SignUpRequest{
		Email:    "new.tenant@example.com",
		Password: "password123",
		FullName: "Again",
		Role:     models.RoleTenant,
	})
	assert.True(t, ierr.Is(err, ierr.ErrAlreadyExists))
}

func TestCreatePropertyRequiresLandlord(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	req := models.CreatePropertyRequest{Title: "Studio", Address: "3 Avenue Nogues", City: "Abidjan"}

	_, err := h.Service.CreateProperty(ctx, p.Tenant.ID, req)
	assert.True(t, ierr.Is(err, ierr.ErrPermissionDenied))

	resp, err := h.Service.CreateProperty(ctx, p.Landlord.ID, req)
	require.NoError(t, err)
	assert.Equal(t, p.Landlord.ID, resp.Property.OwnerID)

	list, err := h.Service.ListProperties(ctx, p.Landlord.ID)
	require.NoError(t, err)
	assert.Len(t, list.Properties, 2)
}

func TestCreateLeaseStartsAsDraft(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.CreateDraft(t, p)
	assert.Equal(t, models.LeaseStatusDraft, lease.Status)
	assert.Equal(t, models.PaymentUnpaid, lease.PaymentStatus)
	assert.Equal(t, p.Landlord.ID, lease.LandlordID)
	assert.Equal(t, p.Tenant.ID, lease.TenantID)

	trail, err := h.Service.GetAuditTrail(ctx, p.Tenant.ID, lease.ID)
	require.NoError(t, err)
	require.Len(t, trail.Events, 1)
	assert.Equal(t, models.AuditCreated, trail.Events[0].Event)
	assert.Equal(t, p.Landlord.ID, trail.Events[0].ActorID)

	hash, err := audit.Hash(lease)
	require.NoError(t, err)
	assert.Equal(t, hash, trail.Events[0].Hash)
}

func TestCreateLeaseValidation(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		modify func(req *models.CreateLeaseRequest)
		target error
	}{
		{
			name:   "unknown property",
			userID: p.Landlord.ID,
			modify: func(req *models.CreateLeaseRequest) { req.PropertyID = "missing" },
			target: ierr.ErrNotFound,
		},
		{
			name:   "property of someone else",
			userID: p.Outsider.ID,
			modify: func(req *models.CreateLeaseRequest) {},
			target: ierr.ErrPermissionDenied,
		},
		{
			name:   "landlord as tenant",
			userID: p.Landlord.ID,
			modify: func(req *models.CreateLeaseRequest) { req.TenantID = p.Landlord.ID },
			target: ierr.ErrValidation,
		},
		{
			name:   "zero rent",
			userID: p.Landlord.ID,
			modify: func(req *models.CreateLeaseRequest) { req.MonthlyRent = decimal.Zero },
			target: ierr.ErrValidation,
		},
		{
			name:   "end before start",
			userID: p.Landlord.ID,
			modify: func(req *models.CreateLeaseRequest) { req.EndDate = "2024-06-01" },
			target: ierr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := p.LeaseRequest()
			tt.modify(&req)

			_, err := h.Service.CreateLease(ctx, tt.userID, req)
			require.Error(t, err)
			assert.True(t, ierr.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestGetLeaseRequiresParty(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.CreateDraft(t, p)

	details, err := h.Service.GetLease(ctx, p.Tenant.ID, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Property.Title, details.Lease.Property.Title)
	assert.Equal(t, p.Landlord.FullName, details.Lease.Landlord.FullName)

	_, err = h.Service.GetLease(ctx, p.Outsider.ID, lease.ID)
	assert.True(t, ierr.Is(err, ierr.ErrPermissionDenied))

	_, err = h.Service.GetAuditTrail(ctx, p.Outsider.ID, lease.ID)
	assert.True(t, ierr.Is(err, ierr.ErrPermissionDenied))

	_, err = h.Service.GetLease(ctx, p.Tenant.ID, "missing")
	assert.True(t, ierr.Is(err, ierr.ErrNotFound))

	leases, err := h.Service.ListLeases(ctx, p.Outsider.ID)
	require.NoError(t, err)
	assert.Empty(t, leases.Leases)
}

func TestSignatureCallbackSignsLease(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusAwaitingSignature, stored.Status)
	assert.Equal(t, operationID, *stored.CryptoneoOperationID)
	assert.Equal(t, models.SignaturePending, *stored.CryptoneoSignatureStatus)

	resp, err := h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID:       operationID,
		Status:            models.SignatureCompleted,
		SignedDocumentURL: "https://docs.example.com/signed.pdf",
	}, []byte(`{"status":"completed"}`))
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
	assert.False(t, resp.Ignored)

	stored, err = h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusSigned, stored.Status)
	assert.Equal(t, "https://docs.example.com/signed.pdf", *stored.SignedDocumentURL)
	assert.NotNil(t, stored.TenantSignedAt)
	assert.Nil(t, stored.LandlordSignedAt)

	trail, err := h.Service.GetAuditTrail(ctx, p.Landlord.ID, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.AuditEventKind{models.AuditCreated, models.AuditSigned}, auditKinds(trail.Events))
	assert.Equal(t, p.Tenant.ID, trail.Events[1].ActorID)

	notifications := h.Repo.AllNotifications()
	require.Len(t, notifications, 2)
	recipients := lo.Map(notifications, func(n models.Notification, _ int) string { return n.UserID })
	assert.ElementsMatch(t, []string{p.Landlord.ID, p.Tenant.ID}, recipients)
	for _, n := range notifications {
		assert.Equal(t, models.NotificationLeaseSigned, n.Type)
	}

	h.Notifier.Wait()
	assert.Len(t, h.Mailer.Sent(), 2)
}

func TestLandlordSignatureActor(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Landlord, models.SignerLandlord)

	_, err := h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID: operationID,
		Status:      models.SignatureCompleted,
	}, []byte(`{}`))
	require.NoError(t, err)

	trail, err := h.Service.GetAuditTrail(ctx, p.Landlord.ID, lease.ID)
	require.NoError(t, err)
	require.Len(t, trail.Events, 2)
	assert.Equal(t, p.Landlord.ID, trail.Events[1].ActorID)
}

func TestInitiateSignatureRules(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.CreateDraft(t, p)

	_, err := h.Service.InitiateSignature(ctx, p.Landlord.ID, lease.ID, models.InitiateSignatureRequest{
		SignerID:    p.Outsider.ID,
		SignerRole:  models.SignerTenant,
		DocumentURL: "https://docs.example.com/lease.pdf",
	})
	assert.True(t, ierr.Is(err, ierr.ErrValidation))

	_, err = h.Service.InitiateSignature(ctx, p.Outsider.ID, lease.ID, models.InitiateSignatureRequest{
		SignerID:    p.Tenant.ID,
		SignerRole:  models.SignerTenant,
		DocumentURL: "https://docs.example.com/lease.pdf",
	})
	assert.True(t, ierr.Is(err, ierr.ErrPermissionDenied))

	req := models.InitiateSignatureRequest{
		SignerID:    p.Tenant.ID,
		SignerRole:  models.SignerTenant,
		DocumentURL: "https://docs.example.com/lease.pdf",
	}
	resp, err := h.Service.InitiateSignature(ctx, p.Landlord.ID, lease.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "https://sign.example.com/"+resp.OperationID, resp.SigningURL)

	_, err = h.Service.InitiateSignature(ctx, p.Landlord.ID, lease.ID, req)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))
	assert.Len(t, h.Signatures.Requests, 1)
}

func TestOpenSignatureBlocksOtherParty(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Landlord, models.SignerLandlord)

	_, err := h.Service.InitiateSignature(ctx, p.Landlord.ID, lease.ID, models.InitiateSignatureRequest{
		SignerID:    p.Tenant.ID,
		SignerRole:  models.SignerTenant,
		DocumentURL: "https://docs.example.com/lease.pdf",
	})
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))
	assert.Len(t, h.Signatures.Requests, 1)

	// the landlord's operation still resolves
	_, err = h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID: operationID,
		Status:      models.SignatureCompleted,
	}, []byte(`{}`))
	require.NoError(t, err)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusSigned, stored.Status)
	assert.NotNil(t, stored.LandlordSignedAt)
}

func TestFailedSignatureCanBeReinitiated(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Landlord, models.SignerLandlord)
	_, err := h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID: operationID,
		Status:      models.SignatureFailed,
	}, []byte(`{}`))
	require.NoError(t, err)

	resp, err := h.Service.InitiateSignature(ctx, p.Landlord.ID, lease.ID, models.InitiateSignatureRequest{
		SignerID:    p.Tenant.ID,
		SignerRole:  models.SignerTenant,
		DocumentURL: "https://docs.example.com/lease.pdf",
	})
	require.NoError(t, err)
	assert.NotEqual(t, operationID, resp.OperationID)
	assert.Equal(t, models.SignaturePending, resp.SignatureStatus)
}

func TestInitiateSignatureProviderFailureLeavesDraft(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.CreateDraft(t, p)
	h.Signatures.InitiateErr = ierr.NewError("provider down").Mark(ierr.ErrHTTPClient)

	_, err := h.Service.InitiateSignature(ctx, p.Landlord.ID, lease.ID, models.InitiateSignatureRequest{
		SignerID:    p.Tenant.ID,
		SignerRole:  models.SignerTenant,
		DocumentURL: "https://docs.example.com/lease.pdf",
	})
	assert.True(t, ierr.Is(err, ierr.ErrHTTPClient))

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusDraft, stored.Status)
	assert.Nil(t, stored.CryptoneoOperationID)
}

func TestPaymentCallbackActivatesLease(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.SignedLease(t, p)
	require.Equal(t, models.LeaseStatusSigned, lease.Status)

	payment, err := h.Service.InitiatePayment(ctx, p.Tenant.ID, lease.ID, models.InitiatePaymentRequest{
		Amount:      lease.MonthlyRent,
		Provider:    models.ProviderOrangeMoney,
		PhoneNumber: "+2250700000000",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.PaymentStatus)
	require.Len(t, h.Payments.Requests, 1)
	assert.Equal(t, "XOF", h.Payments.Requests[0].Currency)

	confirm, err := h.Service.ConfirmPayment(ctx, p.Tenant.ID, payment.TransactionID, models.ConfirmPaymentRequest{OTP: "1234"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, confirm.PaymentStatus)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusSigned, stored.Status, "confirmation alone does not settle")

	before := len(h.Repo.AllNotifications())
	_, err = h.Service.HandlePaymentWebhook(ctx, models.PaymentWebhookPayload{
		TransactionID: payment.TransactionID,
		Status:        models.PaymentPaid,
		LeaseID:       lease.ID,
		ReceiptURL:    "https://pay.example.com/receipts/" + payment.TransactionID,
	}, []byte(`{"status":"paid"}`))
	require.NoError(t, err)

	stored, err = h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusActive, stored.Status)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)

	trail, err := h.Service.GetAuditTrail(ctx, p.Tenant.ID, lease.ID)
	require.NoError(t, err)
	assert.Equal(t,
		[]models.AuditEventKind{models.AuditCreated, models.AuditSigned, models.AuditPaid},
		auditKinds(trail.Events))
	assert.Equal(t, p.Tenant.ID, trail.Events[2].ActorID)

	paid := h.Repo.AllNotifications()[before:]
	require.Len(t, paid, 2)
	for _, n := range paid {
		assert.Equal(t, models.NotificationPaymentReceived, n.Type)

		var data models.NotificationData
		require.NoError(t, json.Unmarshal(n.Data, &data))
		assert.Equal(t, lease.ID, data.LeaseID)
		assert.Equal(t, "https://pay.example.com/receipts/"+payment.TransactionID, data.ReceiptURL)
	}
}

func TestInitiatePaymentRules(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	draft := h.CreateDraft(t, p)
	req := models.InitiatePaymentRequest{
		Amount:      decimal.NewFromInt(250000),
		Provider:    models.ProviderWave,
		PhoneNumber: "+2250700000000",
	}

	_, err := h.Service.InitiatePayment(ctx, p.Tenant.ID, draft.ID, req)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation), "draft lease cannot be paid")

	signed := h.SignedLease(t, p)

	_, err = h.Service.InitiatePayment(ctx, p.Landlord.ID, signed.ID, req)
	assert.True(t, ierr.Is(err, ierr.ErrPermissionDenied))

	_, err = h.Service.InitiatePayment(ctx, p.Tenant.ID, signed.ID, models.InitiatePaymentRequest{
		Amount:      decimal.Zero,
		Provider:    models.ProviderWave,
		PhoneNumber: "+2250700000000",
	})
	assert.True(t, ierr.Is(err, ierr.ErrValidation))

	_, err = h.Service.InitiatePayment(ctx, p.Tenant.ID, signed.ID, req)
	require.NoError(t, err)

	_, err = h.Service.InitiatePayment(ctx, p.Tenant.ID, signed.ID, req)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation), "second payment while one is pending")
}

func TestFailedPaymentCanBeRetried(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.SignedLease(t, p)
	req := models.InitiatePaymentRequest{
		Amount:      lease.MonthlyRent,
		Provider:    models.ProviderMTNMoney,
		PhoneNumber: "+2250500000000",
	}

	first, err := h.Service.InitiatePayment(ctx, p.Tenant.ID, lease.ID, req)
	require.NoError(t, err)

	_, err = h.Service.HandlePaymentWebhook(ctx, models.PaymentWebhookPayload{
		TransactionID: first.TransactionID,
		Status:        models.PaymentFailed,
	}, []byte(`{}`))
	require.NoError(t, err)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, stored.PaymentStatus)
	assert.Equal(t, models.LeaseStatusSigned, stored.Status)

	second, err := h.Service.InitiatePayment(ctx, p.Tenant.ID, lease.ID, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)

	stored, err = h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, second.TransactionID, *stored.PaymentTransactionID)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
}

func TestCancelledLeaseIgnoresLateSignature(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)

	cancelled, err := h.Service.CancelLease(ctx, p.Landlord.ID, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusCancelled, cancelled.Lease.Status)

	notifications := h.Repo.AllNotifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, p.Tenant.ID, notifications[0].UserID)
	assert.Equal(t, models.NotificationLeaseCancelled, notifications[0].Type)

	resp, err := h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID: operationID,
		Status:      models.SignatureCompleted,
	}, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, resp.Ignored)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusCancelled, stored.Status)
	assert.Nil(t, stored.TenantSignedAt)

	trail, err := h.Service.GetAuditTrail(ctx, p.Landlord.ID, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.AuditEventKind{models.AuditCreated, models.AuditCancelled}, auditKinds(trail.Events))

	assert.Len(t, h.Repo.WebhookEvents(models.WebhookProviderSignature), 1)

	_, err = h.Service.CancelLease(ctx, p.Tenant.ID, lease.ID)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation), "cancelled is terminal")
}

func TestDuplicateWebhookIsNoop(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)
	payload := models.SignatureWebhookPayload{OperationID: operationID, Status: models.SignatureCompleted}

	_, err := h.Service.HandleSignatureWebhook(ctx, payload, []byte(`{}`))
	require.NoError(t, err)

	resp, err := h.Service.HandleSignatureWebhook(ctx, payload, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)

	// a restart loses the fast-path store; the durable record still applies
	h.Dedupe.Flush()
	resp, err = h.Service.HandleSignatureWebhook(ctx, payload, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)

	events, err := h.Repo.GetAuditEvents(ctx, lease.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Len(t, h.Repo.AllNotifications(), 2)
	assert.Len(t, h.Repo.WebhookEvents(models.WebhookProviderSignature), 1)
}

func TestConcurrentDuplicateWebhooksApplyOnce(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)
	payload := models.SignatureWebhookPayload{OperationID: operationID, Status: models.SignatureCompleted}

	const deliveries = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := h.Service.HandleSignatureWebhook(ctx, payload, []byte(`{}`))
			if !assert.NoError(t, err) {
				return
			}
			if !resp.Duplicate {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)

	events, err := h.Repo.GetAuditEvents(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.AuditEventKind{models.AuditCreated, models.AuditSigned}, auditKinds(events))
	assert.Len(t, h.Repo.AllNotifications(), 2)
}

func TestWebhookForUnknownOperation(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	_, err := h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID: "op-unknown",
		Status:      models.SignatureCompleted,
	}, []byte(`{}`))
	assert.True(t, ierr.Is(err, ierr.ErrNotFound))
	assert.Empty(t, h.Repo.WebhookEvents(models.WebhookProviderSignature), "unknown callbacks stay retryable")

	_, err = h.Service.HandlePaymentWebhook(ctx, models.PaymentWebhookPayload{
		TransactionID: "tx-unknown",
		Status:        models.PaymentPaid,
	}, []byte(`{}`))
	assert.True(t, ierr.Is(err, ierr.ErrNotFound))
}

func TestPaymentWebhookLeaseMismatch(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.SignedLease(t, p)
	payment, err := h.Service.InitiatePayment(ctx, p.Tenant.ID, lease.ID, models.InitiatePaymentRequest{
		Amount:      lease.MonthlyRent,
		Provider:    models.ProviderOrangeMoney,
		PhoneNumber: "+2250700000000",
	})
	require.NoError(t, err)

	_, err = h.Service.HandlePaymentWebhook(ctx, models.PaymentWebhookPayload{
		TransactionID: payment.TransactionID,
		Status:        models.PaymentPaid,
		LeaseID:       "another-lease",
	}, []byte(`{}`))
	assert.True(t, ierr.Is(err, ierr.ErrValidation))

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
}

func TestTransitionRollsBackWhenAuditFails(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)
	h.Repo.FailOn("InsertAuditEvent", errors.New("disk full"))

	_, err := h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID: operationID,
		Status:      models.SignatureCompleted,
	}, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrDatabase))

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusAwaitingSignature, stored.Status)
	assert.Nil(t, stored.TenantSignedAt)
	assert.Empty(t, h.Repo.AllNotifications())
	assert.Empty(t, h.Repo.WebhookEvents(models.WebhookProviderSignature))

	h.Notifier.Wait()
	assert.Empty(t, h.Mailer.Sent())

	// the provider retries once the store recovers
	h.Repo.FailOn("InsertAuditEvent", nil)
	resp, err := h.Service.HandleSignatureWebhook(ctx, models.SignatureWebhookPayload{
		OperationID: operationID,
		Status:      models.SignatureCompleted,
	}, []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)

	stored, err = h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusSigned, stored.Status)
}

func TestTransitionRollsBackWhenNotificationFails(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, _ := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)
	h.Repo.FailOn("InsertNotification", errors.New("connection reset"))

	_, err := h.Service.CancelLease(ctx, p.Landlord.ID, lease.ID)
	require.Error(t, err)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusAwaitingSignature, stored.Status)

	events, err := h.Repo.GetAuditEvents(ctx, lease.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "only the created event survives")
}

func TestStatusChecksAreReadOnly(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, operationID := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)
	h.Signatures.SetStatus(operationID, models.SignatureCompleted, "https://docs.example.com/signed.pdf")

	before, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)

	resp, err := h.Service.CheckSignatureStatus(ctx, p.Tenant.ID, operationID)
	require.NoError(t, err)
	assert.Equal(t, models.SignatureCompleted, resp.SignatureStatus)

	_, err = h.Service.CheckSignatureStatus(ctx, p.Outsider.ID, operationID)
	assert.True(t, ierr.Is(err, ierr.ErrPermissionDenied))

	after, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = h.Service.CheckSignatureStatus(ctx, p.Tenant.ID, "op-unknown")
	assert.True(t, ierr.Is(err, ierr.ErrNotFound))
}

func TestPaymentStatusCheckIsReadOnly(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.SignedLease(t, p)
	payment, err := h.Service.InitiatePayment(ctx, p.Tenant.ID, lease.ID, models.InitiatePaymentRequest{
		Amount:      lease.MonthlyRent,
		Provider:    models.ProviderMoovMoney,
		PhoneNumber: "+2250100000000",
	})
	require.NoError(t, err)
	h.Payments.SetStatus(payment.TransactionID, models.PaymentPaid, "")

	resp, err := h.Service.CheckPaymentStatus(ctx, p.Landlord.ID, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, resp.PaymentStatus)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
	assert.Equal(t, models.LeaseStatusSigned, stored.Status)
}

func TestVerifyLease(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.SignedLease(t, p)

	resp, err := h.Service.VerifyLease(ctx, p.Tenant.ID, lease.ID)
	require.NoError(t, err)
	assert.True(t, resp.Verified)
	assert.Equal(t, models.VerificationMatched, resp.Outcome)
	assert.Equal(t, resp.RecordedHash, resp.CurrentHash)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.VerifiedAt)

	events, err := h.Repo.GetAuditEvents(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t,
		[]models.AuditEventKind{models.AuditCreated, models.AuditSigned, models.AuditVerified},
		auditKinds(events))

	// verifying again matches the fingerprint of the verified event
	again, err := h.Service.VerifyLease(ctx, p.Landlord.ID, lease.ID)
	require.NoError(t, err)
	assert.True(t, again.Verified)
}

func TestVerifyLeaseDetectsTampering(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.SignedLease(t, p)

	// a write straight to the table leaves no audit event and no update stamp
	h.Repo.OverwriteLease(lease.ID, func(l *models.Lease) {
		l.MonthlyRent = decimal.NewFromInt(1)
	})

	resp, err := h.Service.VerifyLease(ctx, p.Tenant.ID, lease.ID)
	require.NoError(t, err)
	assert.False(t, resp.Verified)
	assert.Equal(t, models.VerificationMismatch, resp.Outcome)
	assert.NotEqual(t, resp.RecordedHash, resp.CurrentHash)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VerifiedAt)

	events, err := h.Repo.GetAuditEvents(ctx, lease.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestVerifyLeaseAfterUnauditedStep(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	// opening a signature changes the row but records no event
	lease, _ := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)

	resp, err := h.Service.VerifyLease(ctx, p.Landlord.ID, lease.ID)
	require.NoError(t, err)
	assert.False(t, resp.Verified)
	assert.Equal(t, models.VerificationChanged, resp.Outcome)
	assert.Equal(t, models.LeaseStatusAwaitingSignature, resp.Lease.Status)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VerifiedAt)

	events, err := h.Repo.GetAuditEvents(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.AuditEventKind{models.AuditCreated}, auditKinds(events))
}

func TestAuditTrailIsAppendOnly(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.SignedLease(t, p)
	first, err := h.Repo.GetAuditEvents(ctx, lease.ID)
	require.NoError(t, err)

	_, err = h.Service.CancelLease(ctx, p.Tenant.ID, lease.ID)
	require.NoError(t, err)

	second, err := h.Repo.GetAuditEvents(ctx, lease.ID)
	require.NoError(t, err)
	require.Len(t, second, len(first)+1)
	assert.Equal(t, first, second[:len(first)])
	assert.Equal(t, models.AuditCancelled, second[len(first)].Event)
	assert.Equal(t, p.Tenant.ID, second[len(first)].ActorID)
}

func TestUpdateLeaseStatusFollowsStateMachine(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.CreateDraft(t, p)

	_, err := h.Service.UpdateLeaseStatus(ctx, p.Landlord.ID, lease.ID, models.LeaseStatusActive)
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))
	assert.Equal(t, 409, ierr.HTTPStatusFromErr(err))

	_, err = h.Service.UpdateLeaseStatus(ctx, p.Landlord.ID, lease.ID, models.LeaseStatusDraft)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))

	_, err = h.Service.UpdateLeaseStatus(ctx, p.Landlord.ID, lease.ID, "archived")
	assert.True(t, ierr.Is(err, ierr.ErrValidation))

	_, err = h.Service.UpdateLeaseStatus(ctx, p.Outsider.ID, lease.ID, models.LeaseStatusCancelled)
	assert.True(t, ierr.Is(err, ierr.ErrPermissionDenied))

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusDraft, stored.Status)
}

func TestStatusUpdateCannotSkipSignatureOrPayment(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	draft := h.CreateDraft(t, p)
	_, err := h.Service.UpdateLeaseStatus(ctx, p.Tenant.ID, draft.ID, models.LeaseStatusAwaitingSignature)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))

	awaiting, _ := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)
	_, err = h.Service.UpdateLeaseStatus(ctx, p.Tenant.ID, awaiting.ID, models.LeaseStatusSigned)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))

	signedStatus := models.LeaseStatusSigned
	_, err = h.Service.UpdateLease(ctx, p.Landlord.ID, awaiting.ID, models.UpdateLeaseRequest{Status: &signedStatus})
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))

	stored, err := h.Repo.GetLease(ctx, awaiting.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusAwaitingSignature, stored.Status)
	assert.Nil(t, stored.TenantSignedAt)

	signed := h.SignedLease(t, p)
	_, err = h.Service.UpdateLeaseStatus(ctx, p.Tenant.ID, signed.ID, models.LeaseStatusActive)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))

	_, err = h.Service.UpdateLeaseStatus(ctx, p.Tenant.ID, signed.ID, models.LeaseStatusPaid)
	assert.True(t, ierr.Is(err, ierr.ErrPermissionDenied))

	resp, err := h.Service.UpdateLeaseStatus(ctx, p.Landlord.ID, signed.ID, models.LeaseStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusPaid, resp.Lease.Status)
	assert.Equal(t, models.PaymentUnpaid, resp.Lease.PaymentStatus)

	_, err = h.Service.UpdateLeaseStatus(ctx, p.Landlord.ID, signed.ID, models.LeaseStatusActive)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation), "active needs a settled payment")

	events, err := h.Repo.GetAuditEvents(ctx, signed.ID)
	require.NoError(t, err)
	assert.Equal(t,
		[]models.AuditEventKind{models.AuditCreated, models.AuditSigned, models.AuditPaid},
		auditKinds(events))
	assert.Equal(t, p.Landlord.ID, events[2].ActorID)
}

func TestUpdateLeaseTerms(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease := h.CreateDraft(t, p)
	rent := decimal.NewFromInt(300000)

	resp, err := h.Service.UpdateLease(ctx, p.Landlord.ID, lease.ID, models.UpdateLeaseRequest{MonthlyRent: &rent})
	require.NoError(t, err)
	assert.True(t, rent.Equal(resp.Lease.MonthlyRent))
	assert.Equal(t, models.LeaseStatusDraft, resp.Lease.Status)

	_, err = h.Service.UpdateLease(ctx, p.Landlord.ID, lease.ID, models.UpdateLeaseRequest{})
	assert.True(t, ierr.Is(err, ierr.ErrValidation))

	signed := h.SignedLease(t, p)
	_, err = h.Service.UpdateLease(ctx, p.Landlord.ID, signed.ID, models.UpdateLeaseRequest{MonthlyRent: &rent})
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation), "terms are frozen once sent for signature")
}

func TestNotificationsForUser(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	h.SignedLease(t, p)

	list, err := h.Service.ListNotifications(ctx, p.Tenant.ID, 0)
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	n := list.Notifications[0]
	assert.Nil(t, n.ReadAt)
	assert.Contains(t, n.DeepLink, "https://app.example.com/leases/")

	err = h.Service.MarkNotificationRead(ctx, p.Landlord.ID, n.ID)
	assert.True(t, ierr.Is(err, ierr.ErrNotFound), "cannot read someone else's notification")

	require.NoError(t, h.Service.MarkNotificationRead(ctx, p.Tenant.ID, n.ID))

	list, err = h.Service.ListNotifications(ctx, p.Tenant.ID, 10)
	require.NoError(t, err)
	assert.NotNil(t, list.Notifications[0].ReadAt)
}

func TestFlagForReview(t *testing.T) {
	h := testutil.NewHarness(t)
	p := h.SeedParties(t)
	ctx := context.Background()

	lease, _ := h.SendForSignature(t, p, p.Tenant, models.SignerTenant)

	flagged, err := h.Service.FlagForReview(ctx, lease.ID)
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = h.Service.FlagForReview(ctx, lease.ID)
	require.NoError(t, err)
	assert.False(t, flagged, "already flagged")

	notifications := h.Repo.AllNotifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, p.Landlord.ID, notifications[0].UserID)
	assert.Equal(t, models.NotificationReviewRequired, notifications[0].Type)

	stored, err := h.Repo.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ReviewFlaggedAt)
	assert.Equal(t, models.LeaseStatusAwaitingSignature, stored.Status)
}
