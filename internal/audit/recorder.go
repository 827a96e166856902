// Package audit fingerprints leases into an append-only trail of lifecycle events.
//
// Each event stores the SHA-256 of the lease row as it was read right before
// the insert. Hashes are point-in-time fingerprints; they are not chained, so
// the trail shows what a lease looked like at each transition but does not by
// itself prove that earlier events were left untouched.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/repository"
	"go.uber.org/zap"
)

// Hash returns the hex SHA-256 of the JSON serialization of lease
func Hash(lease *models.Lease) (string, error) {
	payload, err := json.Marshal(lease)
	if err != nil {
		return "", fmt.Errorf("serialize lease: %w", err)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Recorder appends audit events for lease transitions
type Recorder struct {
	logger *zap.Logger
}

// NewRecorder creates a new Recorder
func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{logger: logger.Named("audit")}
}

// Record re-reads the lease through repo, fingerprints it and appends an event.
// repo is normally bound to the transaction that just mutated the lease so
// the event and the mutation commit or roll back together.
func (r *Recorder) Record(
	ctx context.Context,
	repo repository.Repository,
	leaseID string,
	kind models.AuditEventKind,
	actorID string,
) (*models.AuditEvent, error) {
	lease, err := repo.GetLease(ctx, leaseID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("read lease for audit").
			Mark(ierr.ErrDatabase)
	}
	if lease == nil {
		return nil, ierr.NewErrorf("lease %s not found", leaseID).
			WithHint("Lease not found").
			Mark(ierr.ErrNotFound)
	}

	hash, err := Hash(lease)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	event := &models.AuditEvent{
		LeaseID: leaseID,
		Event:   kind,
		ActorID: actorID,
		Hash:    hash,
	}
	if err := repo.InsertAuditEvent(ctx, event); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("insert audit event").
			Mark(ierr.ErrDatabase)
	}

	r.logger.Debug("audit event recorded",
		zap.String("lease_id", leaseID),
		zap.String("event", string(kind)),
		zap.String("actor_id", actorID),
		zap.String("hash", hash),
	)

	return event, nil
}

// Verification is the outcome of comparing a lease with its latest audit event
type Verification struct {
	Matches      bool
	Outcome      models.VerificationOutcome
	CurrentHash  string
	RecordedHash string
}

// Verify recomputes the fingerprint of lease and compares it with the most
// recent event. A lease without events never matches. A differing lease whose
// updated_at is later than the event went through an unaudited update; one
// that differs without a newer stamp was changed outside the repository.
func (r *Recorder) Verify(ctx context.Context, repo repository.Repository, lease *models.Lease) (*Verification, error) {
	current, err := Hash(lease)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	latest, err := repo.GetLatestAuditEvent(ctx, lease.ID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("read latest audit event").
			Mark(ierr.ErrDatabase)
	}

	result := &Verification{CurrentHash: current, Outcome: models.VerificationUnrecorded}
	if latest == nil {
		return result, nil
	}

	result.RecordedHash = latest.Hash
	result.Matches = latest.Hash == current
	switch {
	case result.Matches:
		result.Outcome = models.VerificationMatched
	case lease.UpdatedAt.After(latest.CreatedAt):
		result.Outcome = models.VerificationChanged
	default:
		result.Outcome = models.VerificationMismatch
	}

	return result, nil
}
