package service

import (
	"context"
	"time"

	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/gateway"
	"github.com/rongwang/leasehub-server/internal/metrics"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// InitiateSignature opens a signing operation with the provider for one
// party and moves a draft lease to awaiting_signature
func (s *DefaultService) InitiateSignature(
	ctx context.Context,
	userID, leaseID string,
	req models.InitiateSignatureRequest,
) (*models.SignatureResponse, error) {
	lease, err := s.loadLease(ctx, s.repo, userID, leaseID, false)
	if err != nil {
		return nil, err
	}
	if err := checkSignable(lease, req); err != nil {
		return nil, err
	}

	start := time.Now()
	op, err := s.signatures.Initiate(ctx, gateway.SignatureRequest{
		LeaseID:     lease.ID,
		SignerID:    req.SignerID,
		SignerRole:  req.SignerRole,
		DocumentURL: req.DocumentURL,
	})
	s.metrics.GatewayCall("signature", "initiate", start, err)
	if err != nil {
		return nil, err
	}

	state := op.Status
	if state == "" {
		state = models.SignaturePending
	}

	err = s.inTx(ctx, func(t *txScope) error {
		lease, err = s.loadLease(ctx, t.repo, userID, leaseID, true)
		if err != nil {
			return err
		}
		// the lease may have moved while the provider was called
		if err := checkSignable(lease, req); err != nil {
			return err
		}

		return s.apply(ctx, t, lease, transition{
			update: models.LeaseUpdate{
				Status:                   lo.ToPtr(models.LeaseStatusAwaitingSignature),
				DocumentURL:              lo.ToPtr(req.DocumentURL),
				CryptoneoOperationID:     lo.ToPtr(op.OperationID),
				CryptoneoSignatureStatus: lo.ToPtr(state),
				SignatureSignerID:        lo.ToPtr(req.SignerID),
				SignatureSignerRole:      lo.ToPtr(req.SignerRole),
				SignatureInitiatedAt:     lo.ToPtr(time.Now().UTC()),
				ClearReviewFlag:          true,
			},
			actor: userID,
		})
	})
	if err != nil {
		s.logger.Error("signature initiated but not stored",
			zap.String("lease_id", leaseID),
			zap.String("operation_id", op.OperationID),
			zap.Error(err),
		)
		return nil, err
	}

	return &models.SignatureResponse{
		Status:          "success",
		LeaseID:         lease.ID,
		OperationID:     op.OperationID,
		SignatureStatus: state,
		SigningURL:      op.SigningURL,
	}, nil
}

// checkSignable rejects a signing request the lease cannot take
func checkSignable(lease *models.Lease, req models.InitiateSignatureRequest) error {
	if lease.Status != models.LeaseStatusDraft && lease.Status != models.LeaseStatusAwaitingSignature {
		return ierr.NewErrorf("lease %s is %s", lease.ID, lease.Status).
			WithHint("Only draft leases can be sent for signature").
			Mark(ierr.ErrInvalidOperation)
	}

	signedAt := lease.LandlordSignedAt
	partyID := lease.LandlordID
	if req.SignerRole == models.SignerTenant {
		signedAt = lease.TenantSignedAt
		partyID = lease.TenantID
	}
	if req.SignerID != partyID {
		return ierr.NewError("signer does not match role").
			WithHintf("The signer must be the lease's %s", req.SignerRole).
			Mark(ierr.ErrValidation)
	}
	if signedAt != nil {
		return ierr.NewErrorf("%s already signed lease %s", req.SignerRole, lease.ID).
			WithHint("This party has already signed the lease").
			Mark(ierr.ErrInvalidOperation)
	}

	// one operation id is stored per lease, so an open operation must
	// resolve before another replaces it
	if lease.Status == models.LeaseStatusAwaitingSignature &&
		lease.CryptoneoSignatureStatus != nil && !lease.CryptoneoSignatureStatus.IsFinal() {
		return ierr.NewErrorf("signature operation already open on lease %s", lease.ID).
			WithHint("A signature request for this lease is already in progress").
			Mark(ierr.ErrInvalidOperation)
	}

	return nil
}

// CheckSignatureStatus asks the provider for the state of an operation.
// The lease is not touched.
func (s *DefaultService) CheckSignatureStatus(ctx context.Context, userID, operationID string) (*models.SignatureResponse, error) {
	lease, err := s.repo.GetLeaseByOperationID(ctx, operationID)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if lease == nil {
		return nil, ierr.NewErrorf("signature operation %s not found", operationID).
			WithHint("Signature operation not found").
			Mark(ierr.ErrNotFound)
	}
	if !isParty(lease, userID) {
		return nil, notAParty(lease.ID)
	}

	start := time.Now()
	op, err := s.signatures.Status(ctx, operationID)
	s.metrics.GatewayCall("signature", "status", start, err)
	if err != nil {
		return nil, err
	}

	return &models.SignatureResponse{
		Status:          "success",
		LeaseID:         lease.ID,
		OperationID:     operationID,
		SignatureStatus: op.Status,
		SigningURL:      op.SigningURL,
	}, nil
}

// HandleSignatureWebhook applies a verified provider callback once
func (s *DefaultService) HandleSignatureWebhook(
	ctx context.Context,
	payload models.SignatureWebhookPayload,
	raw []byte,
) (*models.WebhookResponse, error) {
	key := payload.OperationID + ":" + string(payload.Status)

	return s.handleWebhook(ctx, models.WebhookProviderSignature, key, raw, func(t *txScope) (bool, error) {
		lease, err := t.repo.LockLeaseByOperationID(ctx, payload.OperationID)
		if err != nil {
			return false, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		if lease == nil {
			return false, ierr.NewErrorf("signature operation %s not found", payload.OperationID).
				WithHint("Unknown signature operation").
				Mark(ierr.ErrNotFound)
		}

		return s.applySignature(ctx, t, lease, payload.Status, payload.SignedDocumentURL)
	})
}

// ApplySignatureState applies a provider state found by polling
func (s *DefaultService) ApplySignatureState(
	ctx context.Context,
	operationID string,
	state models.SignatureState,
	signedDocumentURL string,
) (bool, error) {
	var applied bool
	err := s.inTx(ctx, func(t *txScope) error {
		lease, err := t.repo.LockLeaseByOperationID(ctx, operationID)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		if lease == nil {
			return ierr.NewErrorf("signature operation %s not found", operationID).
				Mark(ierr.ErrNotFound)
		}

		applied, err = s.applySignature(ctx, t, lease, state, signedDocumentURL)
		return err
	})

	return applied, err
}

// applySignature moves a locked lease according to the provider state of its
// signing operation. It reports false when the state does not apply to the
// lease any more, such as a callback for a cancelled lease.
func (s *DefaultService) applySignature(
	ctx context.Context,
	t *txScope,
	lease *models.Lease,
	state models.SignatureState,
	signedDocumentURL string,
) (bool, error) {
	if lease.Status != models.LeaseStatusAwaitingSignature {
		s.logger.Info("signature update ignored",
			zap.String("lease_id", lease.ID),
			zap.String("lease_status", string(lease.Status)),
			zap.String("signature_status", string(state)),
		)
		return false, nil
	}
	if lease.CryptoneoSignatureStatus != nil && *lease.CryptoneoSignatureStatus == state {
		return false, nil
	}

	switch state {
	case models.SignaturePending:
		return false, nil
	case models.SignatureProcessing:
		return true, s.apply(ctx, t, lease, transition{
			update: models.LeaseUpdate{CryptoneoSignatureStatus: lo.ToPtr(state)},
		})
	case models.SignatureFailed:
		return true, s.apply(ctx, t, lease, transition{
			update: models.LeaseUpdate{
				CryptoneoSignatureStatus: lo.ToPtr(state),
				ClearReviewFlag:          true,
			},
		})
	case models.SignatureCompleted:
	default:
		return false, ierr.NewErrorf("unknown signature status %q", state).
			Mark(ierr.ErrValidation)
	}

	now := time.Now().UTC()
	update := models.LeaseUpdate{
		Status:                   lo.ToPtr(models.LeaseStatusSigned),
		CryptoneoSignatureStatus: lo.ToPtr(models.SignatureCompleted),
		ClearReviewFlag:          true,
	}
	if signedDocumentURL != "" {
		update.SignedDocumentURL = lo.ToPtr(signedDocumentURL)
	}

	switch signerRole(lease) {
	case models.SignerTenant:
		if lease.TenantSignedAt == nil {
			update.TenantSignedAt = &now
		}
	default:
		if lease.LandlordSignedAt == nil {
			update.LandlordSignedAt = &now
		}
	}

	return true, s.apply(ctx, t, lease, transition{
		update: update,
		event:  models.AuditSigned,
		actor:  signingActor(lease, update),
		notify: s.notifier.LeaseSigned,
	})
}

// signerRole is the role recorded at initiation, falling back to matching
// the signer id against the parties
func signerRole(lease *models.Lease) models.SignerRole {
	if lease.SignatureSignerRole != nil {
		return *lease.SignatureSignerRole
	}
	if lease.SignatureSignerID != nil && *lease.SignatureSignerID == lease.TenantID {
		return models.SignerTenant
	}
	return models.SignerLandlord
}

// signingActor is the party whose signature timestamp goes from null to set
// with update. When neither does, it falls back to the recorded signer.
func signingActor(lease *models.Lease, update models.LeaseUpdate) string {
	switch {
	case lease.TenantSignedAt == nil && update.TenantSignedAt != nil:
		return lease.TenantID
	case lease.LandlordSignedAt == nil && update.LandlordSignedAt != nil:
		return lease.LandlordID
	case lease.SignatureSignerID != nil:
		return *lease.SignatureSignerID
	default:
		return lease.LandlordID
	}
}

// handleWebhook records the callback under key and runs fn once per key.
// Duplicates are answered without touching the lease.
func (s *DefaultService) handleWebhook(
	ctx context.Context,
	provider models.WebhookProvider,
	key string,
	raw []byte,
	fn func(t *txScope) (bool, error),
) (*models.WebhookResponse, error) {
	dedupeKey := string(provider) + ":" + key

	seen, err := s.dedupe.Seen(ctx, dedupeKey)
	if err != nil {
		s.logger.Warn("webhook dedupe lookup failed", zap.String("key", dedupeKey), zap.Error(err))
	}
	if seen {
		s.metrics.Webhook(string(provider), metrics.WebhookDuplicate)
		return &models.WebhookResponse{Status: "success", Duplicate: true}, nil
	}

	var duplicate, applied bool
	err = s.inTx(ctx, func(t *txScope) error {
		event := &models.WebhookEvent{
			Provider: provider,
			EventKey: key,
			Payload:  raw,
		}
		inserted, err := t.repo.InsertWebhookEvent(ctx, event)
		if err != nil {
			return ierr.WithError(err).
				WithMessage("record webhook event").
				Mark(ierr.ErrDatabase)
		}
		if !inserted {
			duplicate = true
			return nil
		}

		applied, err = fn(t)
		if err != nil {
			return err
		}

		if err := t.repo.MarkWebhookEventProcessed(ctx, event.ID); err != nil {
			return ierr.WithError(err).
				WithMessage("mark webhook event processed").
				Mark(ierr.ErrDatabase)
		}
		return nil
	})
	if err != nil {
		s.metrics.Webhook(string(provider), metrics.WebhookFailed)
		return nil, err
	}

	if err := s.dedupe.Remember(ctx, dedupeKey); err != nil {
		s.logger.Warn("webhook dedupe store failed", zap.String("key", dedupeKey), zap.Error(err))
	}

	switch {
	case duplicate:
		s.metrics.Webhook(string(provider), metrics.WebhookDuplicate)
	case !applied:
		s.metrics.Webhook(string(provider), metrics.WebhookIgnored)
	default:
		s.metrics.Webhook(string(provider), metrics.WebhookApplied)
	}

	return &models.WebhookResponse{Status: "success", Duplicate: duplicate, Ignored: !duplicate && !applied}, nil
}
