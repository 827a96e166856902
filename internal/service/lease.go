package service

import (
	"context"
	"time"

	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/notify"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func (s *DefaultService) CreateLease(
	ctx context.Context,
	userID string,
	req models.CreateLeaseRequest,
) (*models.LeaseResponse, error) {
	property, err := s.repo.GetProperty(ctx, req.PropertyID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("read property").
			Mark(ierr.ErrDatabase)
	}
	if property == nil {
		return nil, ierr.NewErrorf("property %s not found", req.PropertyID).
			WithHint("Property not found").
			Mark(ierr.ErrNotFound)
	}
	if property.OwnerID != userID {
		return nil, ierr.NewError("only the owner can lease a property").
			WithHint("You can only create leases on your own properties").
			Mark(ierr.ErrPermissionDenied)
	}

	if req.TenantID == userID {
		return nil, ierr.NewError("landlord and tenant must differ").
			WithHint("You cannot lease a property to yourself").
			Mark(ierr.ErrValidation)
	}
	tenant, err := s.repo.GetUserByID(ctx, req.TenantID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("read tenant").
			Mark(ierr.ErrDatabase)
	}
	if tenant == nil {
		return nil, ierr.NewErrorf("tenant %s not found", req.TenantID).
			WithHint("Tenant not found").
			Mark(ierr.ErrValidation)
	}

	if !req.MonthlyRent.IsPositive() {
		return nil, ierr.NewError("monthly rent must be positive").
			WithHint("Monthly rent must be greater than zero").
			Mark(ierr.ErrValidation)
	}
	if req.DepositAmount.IsNegative() {
		return nil, ierr.NewError("deposit must not be negative").
			WithHint("Deposit cannot be negative").
			Mark(ierr.ErrValidation)
	}

	start, end, err := parseTerm(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	lease := &models.Lease{
		PropertyID:    property.ID,
		LandlordID:    userID,
		TenantID:      tenant.ID,
		MonthlyRent:   req.MonthlyRent,
		DepositAmount: req.DepositAmount,
		Currency:      req.Currency,
		StartDate:     start,
		EndDate:       end,
		Status:        models.LeaseStatusDraft,
		PaymentStatus: models.PaymentUnpaid,
	}
	if req.DocumentURL != "" {
		lease.DocumentURL = lo.ToPtr(req.DocumentURL)
	}

	err = s.inTx(ctx, func(t *txScope) error {
		if err := t.repo.CreateLease(ctx, lease); err != nil {
			return ierr.WithError(err).
				WithMessage("create lease").
				Mark(ierr.ErrDatabase)
		}

		if _, err := s.recorder.Record(ctx, t.repo, lease.ID, models.AuditCreated, userID); err != nil {
			return err
		}

		stored, err := t.repo.GetLease(ctx, lease.ID)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		lease = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("lease created",
		zap.String("lease_id", lease.ID),
		zap.String("landlord_id", lease.LandlordID),
		zap.String("tenant_id", lease.TenantID),
	)

	return &models.LeaseResponse{Status: "success", Lease: lease}, nil
}

func (s *DefaultService) GetLease(ctx context.Context, userID, leaseID string) (*models.LeaseDetailsResponse, error) {
	details, err := s.repo.GetLeaseDetails(ctx, leaseID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("read lease details").
			Mark(ierr.ErrDatabase)
	}
	if details == nil {
		return nil, leaseNotFound(leaseID)
	}
	if !isParty(&details.Lease, userID) {
		return nil, notAParty(leaseID)
	}

	return &models.LeaseDetailsResponse{Status: "success", Lease: details}, nil
}

func (s *DefaultService) ListLeases(ctx context.Context, userID string) (*models.LeasesResponse, error) {
	leases, err := s.repo.GetUserLeases(ctx, userID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("list leases").
			Mark(ierr.ErrDatabase)
	}
	if leases == nil {
		leases = []models.Lease{}
	}

	return &models.LeasesResponse{Status: "success", Leases: leases}, nil
}

// UpdateLease merges the fields set on req. Terms can only change while the
// lease is a draft; a status, when present, goes through the state machine.
func (s *DefaultService) UpdateLease(
	ctx context.Context,
	userID, leaseID string,
	req models.UpdateLeaseRequest,
) (*models.LeaseResponse, error) {
	var lease *models.Lease
	err := s.inTx(ctx, func(t *txScope) error {
		var err error
		lease, err = s.loadLease(ctx, t.repo, userID, leaseID, true)
		if err != nil {
			return err
		}

		update, err := termsUpdate(lease, req)
		if err != nil {
			return err
		}

		tr := transition{update: update, actor: userID}
		if req.Status != nil && *req.Status != lease.Status {
			if err := checkManualStatus(lease, *req.Status, userID); err != nil {
				return err
			}
			tr = s.statusTransition(*req.Status, userID)
			tr.update = mergeTerms(tr.update, update)
		}

		if _, vals := tr.update.Columns(); len(vals) == 0 {
			return ierr.NewError("no fields to update").
				WithHint("Nothing to update").
				Mark(ierr.ErrValidation)
		}

		return s.apply(ctx, t, lease, tr)
	})
	if err != nil {
		return nil, err
	}

	return &models.LeaseResponse{Status: "success", Lease: lease}, nil
}

func (s *DefaultService) UpdateLeaseStatus(
	ctx context.Context,
	userID, leaseID string,
	status models.LeaseStatus,
) (*models.LeaseResponse, error) {
	if !status.IsValid() {
		return nil, ierr.NewErrorf("unknown lease status %q", status).
			WithHint("Unknown lease status").
			Mark(ierr.ErrValidation)
	}

	var lease *models.Lease
	err := s.inTx(ctx, func(t *txScope) error {
		var err error
		lease, err = s.loadLease(ctx, t.repo, userID, leaseID, true)
		if err != nil {
			return err
		}
		if err := checkManualStatus(lease, status, userID); err != nil {
			return err
		}

		return s.apply(ctx, t, lease, s.statusTransition(status, userID))
	})
	if err != nil {
		return nil, err
	}

	return &models.LeaseResponse{Status: "success", Lease: lease}, nil
}

func (s *DefaultService) CancelLease(ctx context.Context, userID, leaseID string) (*models.LeaseResponse, error) {
	return s.UpdateLeaseStatus(ctx, userID, leaseID, models.LeaseStatusCancelled)
}

// checkManualStatus rejects a status a party cannot set directly. Only the
// landlord records a payment by hand.
func checkManualStatus(lease *models.Lease, status models.LeaseStatus, userID string) error {
	if !status.IsValid() {
		return ierr.NewErrorf("unknown lease status %q", status).
			WithHint("Unknown lease status").
			Mark(ierr.ErrValidation)
	}
	if !lease.Status.CanTransitionTo(status) {
		return invalidTransition(lease.Status, status)
	}
	if !lease.Status.CanBeSetManually(status) {
		return ierr.NewErrorf("lease %s cannot be set to %s directly", lease.ID, status).
			WithHintf("A lease becomes %s through the signature or payment flow", status).
			Mark(ierr.ErrInvalidOperation)
	}
	if status == models.LeaseStatusPaid && userID != lease.LandlordID {
		return ierr.NewError("only the landlord can record a payment").
			WithHint("Only the landlord can mark this lease as paid").
			Mark(ierr.ErrPermissionDenied)
	}

	return nil
}

// statusTransition builds the audit event and notifications that go with a
// status set by one of the parties
func (s *DefaultService) statusTransition(status models.LeaseStatus, actorID string) transition {
	tr := transition{
		update: models.LeaseUpdate{Status: lo.ToPtr(status)},
		actor:  actorID,
	}

	switch status {
	case models.LeaseStatusPaid:
		tr.event = models.AuditPaid
	case models.LeaseStatusCancelled:
		tr.event = models.AuditCancelled
		tr.notify = func(lease *models.Lease, landlord, tenant *models.User) []notify.Message {
			if actorID == landlord.ID {
				return s.notifier.LeaseCancelled(lease, tenant)
			}
			return s.notifier.LeaseCancelled(lease, landlord)
		}
	}

	return tr
}

func (s *DefaultService) GetAuditTrail(ctx context.Context, userID, leaseID string) (*models.AuditTrailResponse, error) {
	if _, err := s.loadLease(ctx, s.repo, userID, leaseID, false); err != nil {
		return nil, err
	}

	events, err := s.repo.GetAuditEvents(ctx, leaseID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("list audit events").
			Mark(ierr.ErrDatabase)
	}
	if events == nil {
		events = []models.AuditEvent{}
	}

	return &models.AuditTrailResponse{Status: "success", LeaseID: leaseID, Events: events}, nil
}

// VerifyLease compares the lease with its latest audit fingerprint. On a
// match it stamps verified_at and records a verified event. Otherwise the
// outcome tells an unaudited step apart from a changed row, and the lease is
// left untouched.
func (s *DefaultService) VerifyLease(ctx context.Context, userID, leaseID string) (*models.VerifyLeaseResponse, error) {
	resp := &models.VerifyLeaseResponse{Status: "success", LeaseID: leaseID}

	err := s.inTx(ctx, func(t *txScope) error {
		lease, err := s.loadLease(ctx, t.repo, userID, leaseID, true)
		if err != nil {
			return err
		}

		result, err := s.recorder.Verify(ctx, t.repo, lease)
		if err != nil {
			return err
		}
		resp.CurrentHash = result.CurrentHash
		resp.RecordedHash = result.RecordedHash
		resp.Verified = result.Matches
		resp.Outcome = result.Outcome
		resp.Lease = lease

		switch result.Outcome {
		case models.VerificationMatched:
		case models.VerificationMismatch:
			s.logger.Warn("lease fingerprint mismatch",
				zap.String("lease_id", leaseID),
				zap.String("current_hash", result.CurrentHash),
				zap.String("recorded_hash", result.RecordedHash),
			)
			return nil
		default:
			s.logger.Info("lease changed since its last audit event",
				zap.String("lease_id", leaseID),
				zap.String("outcome", string(result.Outcome)),
			)
			return nil
		}

		return s.apply(ctx, t, lease, transition{
			update: models.LeaseUpdate{VerifiedAt: lo.ToPtr(time.Now().UTC())},
			event:  models.AuditVerified,
			actor:  userID,
		})
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// termsUpdate turns the term fields of req into an update
func termsUpdate(lease *models.Lease, req models.UpdateLeaseRequest) (models.LeaseUpdate, error) {
	update := models.LeaseUpdate{
		MonthlyRent:   req.MonthlyRent,
		DepositAmount: req.DepositAmount,
		Currency:      req.Currency,
		DocumentURL:   req.DocumentURL,
	}

	startDate, endDate := lease.StartDate, lease.EndDate
	if req.StartDate != nil {
		t, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return update, invalidDate("start_date")
		}
		startDate = t
		update.StartDate = &t
	}
	if req.EndDate != nil {
		t, err := time.Parse(dateLayout, *req.EndDate)
		if err != nil {
			return update, invalidDate("end_date")
		}
		endDate = t
		update.EndDate = &t
	}

	if _, vals := update.Columns(); len(vals) == 0 {
		return update, nil
	}

	if lease.Status != models.LeaseStatusDraft {
		return update, ierr.NewErrorf("lease %s is %s", lease.ID, lease.Status).
			WithHint("Lease terms can only be changed while the lease is a draft").
			Mark(ierr.ErrInvalidOperation)
	}
	if update.MonthlyRent != nil && !update.MonthlyRent.IsPositive() {
		return update, ierr.NewError("monthly rent must be positive").
			WithHint("Monthly rent must be greater than zero").
			Mark(ierr.ErrValidation)
	}
	if update.DepositAmount != nil && update.DepositAmount.IsNegative() {
		return update, ierr.NewError("deposit must not be negative").
			WithHint("Deposit cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if !endDate.After(startDate) {
		return update, ierr.NewError("end date must follow start date").
			WithHint("End date must be after start date").
			Mark(ierr.ErrValidation)
	}

	return update, nil
}

func mergeTerms(status, terms models.LeaseUpdate) models.LeaseUpdate {
	terms.Status = status.Status
	return terms
}

func parseTerm(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, invalidDate("start_date")
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, invalidDate("end_date")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, ierr.NewError("end date must follow start date").
			WithHint("End date must be after start date").
			Mark(ierr.ErrValidation)
	}

	return start, end, nil
}

func invalidDate(field string) error {
	return ierr.NewErrorf("invalid %s", field).
		WithHintf("%s must be a date in YYYY-MM-DD format", field).
		Mark(ierr.ErrValidation)
}
