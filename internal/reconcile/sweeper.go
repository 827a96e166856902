// Package reconcile re-polls providers for signatures and payments whose
// callback never arrived, and flags the ones that stay unresolved.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rongwang/leasehub-server/internal/config"
	"github.com/rongwang/leasehub-server/internal/gateway"
	"github.com/rongwang/leasehub-server/internal/metrics"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/repository"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Results of one lease check
const (
	ResultApplied = "applied"
	ResultFlagged = "flagged"
	ResultPending = "pending"
	ResultError   = "error"
)

// Applier moves leases the same way the provider callbacks do
type Applier interface {
	ApplySignatureState(ctx context.Context, operationID string, state models.SignatureState, signedDocumentURL string) (bool, error)
	ApplyPaymentState(ctx context.Context, transactionID string, status models.PaymentStatus, receiptURL string) (bool, error)
	FlagForReview(ctx context.Context, leaseID string) (bool, error)
}

// Report counts the outcomes of one sweep
type Report struct {
	Checked int
	Applied int
	Flagged int
	Pending int
	Failed  int
}

func (r *Report) add(result string) {
	r.Checked++
	switch result {
	case ResultApplied:
		r.Applied++
	case ResultFlagged:
		r.Flagged++
	case ResultPending:
		r.Pending++
	default:
		r.Failed++
	}
}

// Sweeper runs the reconciliation sweep on a ticker
type Sweeper struct {
	repo       repository.Repository
	signatures gateway.SignatureClient
	payments   gateway.PaymentClient
	applier    Applier
	cfg        config.ReconcileConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a new Sweeper
func NewSweeper(
	repo repository.Repository,
	signatures gateway.SignatureClient,
	payments gateway.PaymentClient,
	applier Applier,
	cfg config.ReconcileConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	return &Sweeper{
		repo:       repo,
		signatures: signatures,
		payments:   payments,
		applier:    applier,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.Named("reconcile"),
		now:        time.Now,
	}
}

// Start runs a sweep every cfg.Interval until Stop is called
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("reconciliation sweep started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("stale_after", s.cfg.StaleAfter),
		zap.Duration("review_after", s.cfg.ReviewAfter),
	)

	return nil
}

// Stop waits for the running sweep, if any, to finish
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reconciliation sweep stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce checks one batch of leases that have waited on a provider for
// longer than cfg.StaleAfter
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	now := s.now()

	leases, err := s.repo.FindStalePendingLeases(ctx, now.Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report Report
	)
	p := pool.New().WithMaxGoroutines(s.cfg.Concurrency)
	for _, lease := range leases {
		p.Go(func() {
			result := s.check(ctx, &lease, now)

			mu.Lock()
			report.add(result)
			mu.Unlock()
		})
	}
	p.Wait()

	if report.Checked > 0 {
		s.logger.Info("reconciliation sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("applied", report.Applied),
			zap.Int("flagged", report.Flagged),
			zap.Int("pending", report.Pending),
			zap.Int("failed", report.Failed),
		)
	}

	return report, nil
}

func (s *Sweeper) check(ctx context.Context, lease *models.Lease, now time.Time) string {
	switch {
	case lease.PaymentStatus == models.PaymentPending && lease.PaymentTransactionID != nil:
		result := s.checkPayment(ctx, lease, now)
		s.metrics.ReconcileResult("payment", result)
		return result
	case lease.CryptoneoOperationID != nil:
		result := s.checkSignature(ctx, lease, now)
		s.metrics.ReconcileResult("signature", result)
		return result
	default:
		return ResultPending
	}
}

func (s *Sweeper) checkSignature(ctx context.Context, lease *models.Lease, now time.Time) string {
	operationID := *lease.CryptoneoOperationID
	log := s.logger.With(zap.String("lease_id", lease.ID), zap.String("operation_id", operationID))

	op, err := s.signatures.Status(ctx, operationID)
	if err != nil {
		log.Warn("signature status poll failed", zap.Error(err))
		return ResultError
	}

	if op.Status == models.SignatureCompleted || op.Status == models.SignatureFailed ||
		op.Status == models.SignatureProcessing {
		applied, err := s.applier.ApplySignatureState(ctx, operationID, op.Status, op.SignedDocumentURL)
		if err != nil {
			log.Error("applying polled signature status failed", zap.Error(err))
			return ResultError
		}
		if applied && op.Status.IsFinal() {
			log.Info("signature reconciled", zap.String("status", string(op.Status)))
			return ResultApplied
		}
	}

	return s.flagIfOverdue(ctx, lease, lease.SignatureInitiatedAt, now, log)
}

func (s *Sweeper) checkPayment(ctx context.Context, lease *models.Lease, now time.Time) string {
	transactionID := *lease.PaymentTransactionID
	log := s.logger.With(zap.String("lease_id", lease.ID), zap.String("transaction_id", transactionID))

	tx, err := s.payments.Status(ctx, transactionID)
	if err != nil {
		log.Warn("payment status poll failed", zap.Error(err))
		return ResultError
	}

	if tx.Status.IsFinal() {
		applied, err := s.applier.ApplyPaymentState(ctx, transactionID, tx.Status, tx.ReceiptURL)
		if err != nil {
			log.Error("applying polled payment status failed", zap.Error(err))
			return ResultError
		}
		if applied {
			log.Info("payment reconciled", zap.String("status", string(tx.Status)))
			return ResultApplied
		}
	}

	return s.flagIfOverdue(ctx, lease, lease.PaymentInitiatedAt, now, log)
}

func (s *Sweeper) flagIfOverdue(
	ctx context.Context,
	lease *models.Lease,
	initiatedAt *time.Time,
	now time.Time,
	log *zap.Logger,
) string {
	if initiatedAt == nil || s.cfg.ReviewAfter <= 0 || initiatedAt.After(now.Add(-s.cfg.ReviewAfter)) {
		return ResultPending
	}
	if lease.ReviewFlaggedAt != nil {
		return ResultPending
	}

	flagged, err := s.applier.FlagForReview(ctx, lease.ID)
	if err != nil {
		log.Error("flagging lease for review failed", zap.Error(err))
		return ResultError
	}
	if !flagged {
		return ResultPending
	}

	log.Warn("lease flagged for manual review")
	return ResultFlagged
}
