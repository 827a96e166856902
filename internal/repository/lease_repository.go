package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/leasehub-server/internal/models"
)

func (r *PostgresRepository) CreateLease(ctx context.Context, lease *models.Lease) error {
	query := `
		INSERT INTO leases (
			id, property_id, landlord_id, tenant_id, monthly_rent, deposit_amount, currency,
			start_date, end_date, status, document_url, payment_status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	if lease.ID == "" {
		lease.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	lease.CreatedAt = now
	lease.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx, query,
		lease.ID, lease.PropertyID, lease.LandlordID, lease.TenantID,
		lease.MonthlyRent, lease.DepositAmount, lease.Currency,
		lease.StartDate, lease.EndDate, lease.Status, lease.DocumentURL, lease.PaymentStatus,
		lease.CreatedAt, lease.UpdatedAt)

	return err
}

func (r *PostgresRepository) GetLease(ctx context.Context, id string) (*models.Lease, error) {
	return getOne[models.Lease](ctx, r.conn, `SELECT * FROM leases WHERE id = $1`, id)
}

// LockLease reads a lease and holds its row lock until the surrounding transaction ends
func (r *PostgresRepository) LockLease(ctx context.Context, id string) (*models.Lease, error) {
	return getOne[models.Lease](ctx, r.conn, `SELECT * FROM leases WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) GetLeaseByOperationID(ctx context.Context, operationID string) (*models.Lease, error) {
	return getOne[models.Lease](ctx, r.conn,
		`SELECT * FROM leases WHERE cryptoneo_operation_id = $1`, operationID)
}

func (r *PostgresRepository) GetLeaseByTransactionID(ctx context.Context, transactionID string) (*models.Lease, error) {
	return getOne[models.Lease](ctx, r.conn,
		`SELECT * FROM leases WHERE payment_transaction_id = $1`, transactionID)
}

func (r *PostgresRepository) LockLeaseByOperationID(ctx context.Context, operationID string) (*models.Lease, error) {
	return getOne[models.Lease](ctx, r.conn,
		`SELECT * FROM leases WHERE cryptoneo_operation_id = $1 FOR UPDATE`, operationID)
}

func (r *PostgresRepository) LockLeaseByTransactionID(ctx context.Context, transactionID string) (*models.Lease, error) {
	return getOne[models.Lease](ctx, r.conn,
		`SELECT * FROM leases WHERE payment_transaction_id = $1 FOR UPDATE`, transactionID)
}

func (r *PostgresRepository) GetLeaseDetails(ctx context.Context, id string) (*models.LeaseDetails, error) {
	query := `
		SELECT l.*,
			p.id AS "property.id", p.title AS "property.title",
			p.address AS "property.address", p.city AS "property.city",
			ll.id AS "landlord.id", ll.full_name AS "landlord.full_name",
			ll.email AS "landlord.email", ll.phone AS "landlord.phone",
			tn.id AS "tenant.id", tn.full_name AS "tenant.full_name",
			tn.email AS "tenant.email", tn.phone AS "tenant.phone"
		FROM leases l
		JOIN properties p ON p.id = l.property_id
		JOIN users ll ON ll.id = l.landlord_id
		JOIN users tn ON tn.id = l.tenant_id
		WHERE l.id = $1
	`

	return getOne[models.LeaseDetails](ctx, r.conn, query, id)
}

func (r *PostgresRepository) GetUserLeases(ctx context.Context, userID string) ([]models.Lease, error) {
	query := `
		SELECT * FROM leases
		WHERE landlord_id = $1 OR tenant_id = $1
		ORDER BY created_at DESC
	`

	var leases []models.Lease
	if err := sqlx.SelectContext(ctx, r.conn, &leases, query, userID); err != nil {
		return nil, fmt.Errorf("select leases: %w", err)
	}

	return leases, nil
}

// UpdateLease writes the fields set on update and stamps updated_at.
// There is no version check: the last writer wins.
func (r *PostgresRepository) UpdateLease(ctx context.Context, id string, update models.LeaseUpdate) error {
	cols, args := update.Columns()

	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE leases SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLeaseNotFound
	}

	return nil
}

func (r *PostgresRepository) UpdateLeaseStatus(ctx context.Context, id string, status models.LeaseStatus) error {
	return r.UpdateLease(ctx, id, models.LeaseUpdate{Status: &status})
}

// FindStalePendingLeases returns leases whose signature or payment has been
// waiting on its provider since before initiatedBefore
func (r *PostgresRepository) FindStalePendingLeases(
	ctx context.Context,
	initiatedBefore time.Time,
	limit int,
) ([]models.Lease, error) {
	query := `
		SELECT * FROM leases
		WHERE status <> 'cancelled' AND (
			(status = 'awaiting_signature'
				AND cryptoneo_signature_status IN ('pending', 'processing')
				AND signature_initiated_at < $1)
			OR (payment_status = 'pending' AND payment_initiated_at < $1)
		)
		ORDER BY updated_at ASC
		LIMIT $2
	`

	var leases []models.Lease
	if err := sqlx.SelectContext(ctx, r.conn, &leases, query, initiatedBefore, limit); err != nil {
		return nil, fmt.Errorf("select stale leases: %w", err)
	}

	return leases, nil
}
