package service

import (
	"context"
	"time"

	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/gateway"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/notify"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// InitiatePayment starts a mobile-money payment by the tenant of a signed lease
func (s *DefaultService) InitiatePayment(
	ctx context.Context,
	userID, leaseID string,
	req models.InitiatePaymentRequest,
) (*models.PaymentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, ierr.NewError("payment amount must be positive").
			WithHint("Amount must be greater than zero").
			Mark(ierr.ErrValidation)
	}

	lease, err := s.loadLease(ctx, s.repo, userID, leaseID, false)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(lease, userID); err != nil {
		return nil, err
	}

	start := time.Now()
	tx, err := s.payments.Initiate(ctx, gateway.PaymentRequest{
		LeaseID:     lease.ID,
		Amount:      req.Amount,
		Currency:    lease.Currency,
		Provider:    req.Provider,
		PhoneNumber: req.PhoneNumber,
	})
	s.metrics.GatewayCall("payment", "initiate", start, err)
	if err != nil {
		return nil, err
	}

	status := tx.Status
	if status == "" || status == models.PaymentPaid {
		// settlement is only trusted from the callback or the sweep
		status = models.PaymentPending
	}

	err = s.inTx(ctx, func(t *txScope) error {
		lease, err = s.loadLease(ctx, t.repo, userID, leaseID, true)
		if err != nil {
			return err
		}
		if err := checkPayable(lease, userID); err != nil {
			return err
		}

		return s.apply(ctx, t, lease, transition{
			update: models.LeaseUpdate{
				PaymentStatus:        lo.ToPtr(status),
				PaymentTransactionID: lo.ToPtr(tx.TransactionID),
				PaymentProvider:      lo.ToPtr(string(req.Provider)),
				PaymentInitiatedAt:   lo.ToPtr(time.Now().UTC()),
				ClearReviewFlag:      true,
			},
			actor: userID,
		})
	})
	if err != nil {
		s.logger.Error("payment initiated but not stored",
			zap.String("lease_id", leaseID),
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err),
		)
		return nil, err
	}

	return &models.PaymentResponse{
		Status:        "success",
		LeaseID:       lease.ID,
		TransactionID: tx.TransactionID,
		PaymentStatus: status,
		Message:       tx.Message,
	}, nil
}

// checkPayable rejects a payment the lease cannot take
func checkPayable(lease *models.Lease, userID string) error {
	if lease.TenantID != userID {
		return ierr.NewError("only the tenant can pay").
			WithHint("Only the tenant can pay for this lease").
			Mark(ierr.ErrPermissionDenied)
	}
	if lease.Status != models.LeaseStatusSigned && lease.Status != models.LeaseStatusPaid {
		return ierr.NewErrorf("lease %s is %s", lease.ID, lease.Status).
			WithHint("The lease must be signed before it can be paid").
			Mark(ierr.ErrInvalidOperation)
	}

	switch lease.PaymentStatus {
	case models.PaymentPending:
		return ierr.NewError("payment already in progress").
			WithHint("A payment for this lease is already in progress").
			Mark(ierr.ErrInvalidOperation)
	case models.PaymentPaid:
		return ierr.NewError("lease already paid").
			WithHint("This lease has already been paid").
			Mark(ierr.ErrInvalidOperation)
	}

	return nil
}

// ConfirmPayment submits the one-time code of a pending payment. Settlement
// arrives later through the callback.
func (s *DefaultService) ConfirmPayment(
	ctx context.Context,
	userID, transactionID string,
	req models.ConfirmPaymentRequest,
) (*models.PaymentResponse, error) {
	lease, err := s.leaseForTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if lease.TenantID != userID {
		return nil, ierr.NewError("only the tenant can confirm").
			WithHint("Only the tenant can confirm this payment").
			Mark(ierr.ErrPermissionDenied)
	}
	if lease.PaymentStatus != models.PaymentPending {
		return nil, ierr.NewErrorf("payment %s is %s", transactionID, lease.PaymentStatus).
			WithHint("This payment is not awaiting confirmation").
			Mark(ierr.ErrInvalidOperation)
	}

	start := time.Now()
	tx, err := s.payments.Confirm(ctx, transactionID, req.OTP)
	s.metrics.GatewayCall("payment", "confirm", start, err)
	if err != nil {
		return nil, err
	}

	return &models.PaymentResponse{
		Status:        "success",
		LeaseID:       lease.ID,
		TransactionID: transactionID,
		PaymentStatus: tx.Status,
		Message:       tx.Message,
	}, nil
}

// CheckPaymentStatus asks the provider for the state of a transaction.
// The lease is not touched.
func (s *DefaultService) CheckPaymentStatus(ctx context.Context, userID, transactionID string) (*models.PaymentResponse, error) {
	lease, err := s.leaseForTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tx, err := s.payments.Status(ctx, transactionID)
	s.metrics.GatewayCall("payment", "status", start, err)
	if err != nil {
		return nil, err
	}

	return &models.PaymentResponse{
		Status:        "success",
		LeaseID:       lease.ID,
		TransactionID: transactionID,
		PaymentStatus: tx.Status,
		Message:       tx.Message,
	}, nil
}

func (s *DefaultService) leaseForTransaction(ctx context.Context, userID, transactionID string) (*models.Lease, error) {
	lease, err := s.repo.GetLeaseByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if lease == nil {
		return nil, ierr.NewErrorf("payment %s not found", transactionID).
			WithHint("Payment not found").
			Mark(ierr.ErrNotFound)
	}
	if !isParty(lease, userID) {
		return nil, notAParty(lease.ID)
	}

	return lease, nil
}

// HandlePaymentWebhook applies a verified provider callback once
func (s *DefaultService) HandlePaymentWebhook(
	ctx context.Context,
	payload models.PaymentWebhookPayload,
	raw []byte,
) (*models.WebhookResponse, error) {
	key := payload.TransactionID + ":" + string(payload.Status)

	return s.handleWebhook(ctx, models.WebhookProviderPayment, key, raw, func(t *txScope) (bool, error) {
		lease, err := t.repo.LockLeaseByTransactionID(ctx, payload.TransactionID)
		if err != nil {
			return false, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		if lease == nil {
			return false, ierr.NewErrorf("payment %s not found", payload.TransactionID).
				WithHint("Unknown payment transaction").
				Mark(ierr.ErrNotFound)
		}
		if payload.LeaseID != "" && payload.LeaseID != lease.ID {
			return false, ierr.NewErrorf("transaction %s belongs to lease %s, not %s",
				payload.TransactionID, lease.ID, payload.LeaseID).
				WithHint("Transaction does not match lease").
				Mark(ierr.ErrValidation)
		}

		return s.applyPayment(ctx, t, lease, payload.Status, payload.ReceiptURL)
	})
}

// ApplyPaymentState applies a provider state found by polling
func (s *DefaultService) ApplyPaymentState(
	ctx context.Context,
	transactionID string,
	status models.PaymentStatus,
	receiptURL string,
) (bool, error) {
	var applied bool
	err := s.inTx(ctx, func(t *txScope) error {
		lease, err := t.repo.LockLeaseByTransactionID(ctx, transactionID)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		if lease == nil {
			return ierr.NewErrorf("payment %s not found", transactionID).
				Mark(ierr.ErrNotFound)
		}

		applied, err = s.applyPayment(ctx, t, lease, status, receiptURL)
		return err
	})

	return applied, err
}

// applyPayment settles or fails the payment of a locked lease. It reports
// false when the status does not apply to the lease any more.
func (s *DefaultService) applyPayment(
	ctx context.Context,
	t *txScope,
	lease *models.Lease,
	status models.PaymentStatus,
	receiptURL string,
) (bool, error) {
	if lease.Status.IsTerminal() || lease.PaymentStatus != models.PaymentPending {
		s.logger.Info("payment update ignored",
			zap.String("lease_id", lease.ID),
			zap.String("lease_status", string(lease.Status)),
			zap.String("payment_status", string(lease.PaymentStatus)),
			zap.String("reported_status", string(status)),
		)
		return false, nil
	}

	switch status {
	case models.PaymentFailed:
		return true, s.apply(ctx, t, lease, transition{
			update: models.LeaseUpdate{
				PaymentStatus:   lo.ToPtr(models.PaymentFailed),
				ClearReviewFlag: true,
			},
		})
	case models.PaymentPaid:
	case models.PaymentPending, models.PaymentUnpaid:
		return false, nil
	default:
		return false, ierr.NewErrorf("unknown payment status %q", status).
			Mark(ierr.ErrValidation)
	}

	return true, s.apply(ctx, t, lease, transition{
		update: models.LeaseUpdate{
			PaymentStatus:   lo.ToPtr(models.PaymentPaid),
			Status:          lo.ToPtr(models.LeaseStatusActive),
			ClearReviewFlag: true,
		},
		event: models.AuditPaid,
		actor: lease.TenantID,
		notify: func(lease *models.Lease, landlord, tenant *models.User) []notify.Message {
			return s.notifier.PaymentReceived(lease, landlord, tenant, receiptURL)
		},
	})
}

// FlagForReview marks a lease whose provider operation stayed unresolved and
// tells the landlord. It reports false when the lease was already flagged.
// The flag is cleared when the operation settles or a new one starts.
func (s *DefaultService) FlagForReview(ctx context.Context, leaseID string) (bool, error) {
	var flagged bool
	err := s.inTx(ctx, func(t *txScope) error {
		lease, err := s.loadLease(ctx, t.repo, "", leaseID, true)
		if err != nil {
			return err
		}
		if lease.ReviewFlaggedAt != nil || lease.Status.IsTerminal() {
			return nil
		}

		flagged = true
		return s.apply(ctx, t, lease, transition{
			update: models.LeaseUpdate{ReviewFlaggedAt: lo.ToPtr(time.Now().UTC())},
			notify: func(lease *models.Lease, landlord, _ *models.User) []notify.Message {
				return s.notifier.ReviewRequired(lease, landlord)
			},
		})
	})
	if err != nil {
		return false, err
	}

	return flagged, nil
}
