package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/leasehub-server/internal/models"
)

// InsertAuditEvent appends an event; audit rows are never updated or deleted
func (r *PostgresRepository) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO lease_audit_trail (id, lease_id, event, actor_id, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := r.conn.ExecContext(ctx, query,
		event.ID, event.LeaseID, event.Event, event.ActorID, event.Hash, event.CreatedAt)

	return err
}

func (r *PostgresRepository) GetAuditEvents(ctx context.Context, leaseID string) ([]models.AuditEvent, error) {
	query := `SELECT * FROM lease_audit_trail WHERE lease_id = $1 ORDER BY created_at ASC, id ASC`

	var events []models.AuditEvent
	if err := sqlx.SelectContext(ctx, r.conn, &events, query, leaseID); err != nil {
		return nil, fmt.Errorf("select audit events: %w", err)
	}

	return events, nil
}

func (r *PostgresRepository) GetLatestAuditEvent(ctx context.Context, leaseID string) (*models.AuditEvent, error) {
	query := `SELECT * FROM lease_audit_trail WHERE lease_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	return getOne[models.AuditEvent](ctx, r.conn, query, leaseID)
}
