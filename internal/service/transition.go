package service

import (
	"context"

	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/notify"
	"github.com/rongwang/leasehub-server/internal/repository"
	"go.uber.org/zap"
)

// txScope carries one transaction and the work to run once it has committed
type txScope struct {
	repo  repository.Repository
	after []func()
}

func (t *txScope) onCommit(fn func()) {
	t.after = append(t.after, fn)
}

// inTx runs fn in a transaction. Hooks registered with onCommit run only
// after a successful commit.
func (s *DefaultService) inTx(ctx context.Context, fn func(t *txScope) error) error {
	var scope *txScope
	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		scope = &txScope{repo: tx}
		return fn(scope)
	})
	if err != nil {
		return err
	}

	for _, hook := range scope.after {
		hook()
	}
	return nil
}

// transition describes one change to a locked lease
type transition struct {
	update models.LeaseUpdate
	event  models.AuditEventKind
	actor  string
	// notify builds the messages to store once the lease has been updated
	notify func(lease *models.Lease, landlord, tenant *models.User) []notify.Message
}

// apply writes tr to lease inside t. The lease update, the audit event and
// the notification rows share the transaction; emails go out after commit.
// lease is replaced with the stored row.
func (s *DefaultService) apply(ctx context.Context, t *txScope, lease *models.Lease, tr transition) error {
	from := lease.Status
	if tr.update.Status != nil && *tr.update.Status != from {
		if !from.CanTransitionTo(*tr.update.Status) {
			return invalidTransition(from, *tr.update.Status)
		}
	}

	if err := t.repo.UpdateLease(ctx, lease.ID, tr.update); err != nil {
		if ierr.Is(err, repository.ErrLeaseNotFound) {
			return leaseNotFound(lease.ID)
		}
		return ierr.WithError(err).
			WithMessage("update lease").
			Mark(ierr.ErrDatabase)
	}

	fresh, err := t.repo.GetLease(ctx, lease.ID)
	if err != nil {
		return ierr.WithError(err).
			WithMessage("re-read lease").
			Mark(ierr.ErrDatabase)
	}
	if fresh == nil {
		return leaseNotFound(lease.ID)
	}
	*lease = *fresh

	if tr.event != "" {
		if _, err := s.recorder.Record(ctx, t.repo, lease.ID, tr.event, tr.actor); err != nil {
			return err
		}
	}

	if tr.notify != nil {
		landlord, tenant, err := s.parties(ctx, t.repo, lease)
		if err != nil {
			return err
		}

		msgs := tr.notify(lease, landlord, tenant)
		stored, err := s.notifier.Dispatch(ctx, t.repo, msgs)
		if err != nil {
			return err
		}

		t.onCommit(func() {
			for _, n := range stored {
				s.metrics.NotificationStored(string(n.Type))
			}
			s.notifier.Deliver(msgs)
		})
	}

	if to := lease.Status; to != from {
		leaseID := lease.ID
		t.onCommit(func() {
			s.metrics.LeaseTransition(string(from), string(to))
			s.logger.Info("lease transitioned",
				zap.String("lease_id", leaseID),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
				zap.String("actor_id", tr.actor),
			)
		})
	}

	return nil
}

func (s *DefaultService) parties(
	ctx context.Context,
	repo repository.Repository,
	lease *models.Lease,
) (*models.User, *models.User, error) {
	landlord, err := repo.GetUserByID(ctx, lease.LandlordID)
	if err != nil {
		return nil, nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	tenant, err := repo.GetUserByID(ctx, lease.TenantID)
	if err != nil {
		return nil, nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if landlord == nil || tenant == nil {
		return nil, nil, ierr.NewErrorf("lease %s references a missing user", lease.ID).
			Mark(ierr.ErrNotFound)
	}

	return landlord, tenant, nil
}

func leaseNotFound(leaseID string) error {
	return ierr.NewErrorf("lease %s not found", leaseID).
		WithHint("Lease not found").
		Mark(ierr.ErrNotFound)
}

func invalidTransition(from, to models.LeaseStatus) error {
	return ierr.NewErrorf("lease cannot move from %s to %s", from, to).
		WithHintf("A %s lease cannot become %s", from, to).
		Mark(ierr.ErrInvalidOperation)
}

func notAParty(leaseID string) error {
	return ierr.NewErrorf("user is not a party to lease %s", leaseID).
		WithHint("You do not have access to this lease").
		Mark(ierr.ErrPermissionDenied)
}

func isParty(lease *models.Lease, userID string) bool {
	return lease.LandlordID == userID || lease.TenantID == userID
}

// loadLease reads a lease the caller is a party to
func (s *DefaultService) loadLease(ctx context.Context, repo repository.Repository, userID, leaseID string, lock bool) (*models.Lease, error) {
	read := repo.GetLease
	if lock {
		read = repo.LockLease
	}

	lease, err := read(ctx, leaseID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("read lease").
			Mark(ierr.ErrDatabase)
	}
	if lease == nil {
		return nil, leaseNotFound(leaseID)
	}
	if userID != "" && !isParty(lease, userID) {
		return nil, notAParty(leaseID)
	}

	return lease, nil
}
