package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/leasehub-server/internal/models"
)

// InsertWebhookEvent records an inbound callback. It returns false when the
// same provider event key was already recorded.
func (r *PostgresRepository) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (id, provider, event_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, event_key) DO NOTHING
	`

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	result, err := r.conn.ExecContext(ctx, query,
		event.ID, event.Provider, event.EventKey, []byte(event.Payload), event.CreatedAt)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *PostgresRepository) MarkWebhookEventProcessed(ctx context.Context, id string) error {
	_, err := r.conn.ExecContext(ctx,
		`UPDATE webhook_events SET processed_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	return err
}
