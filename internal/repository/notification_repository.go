package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/leasehub-server/internal/models"
)

func (r *PostgresRepository) InsertNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, title, message, type, data, deep_link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if len(n.Data) == 0 {
		n.Data = []byte("{}")
	}

	_, err := r.conn.ExecContext(ctx, query,
		n.ID, n.UserID, n.Title, n.Message, n.Type, []byte(n.Data), n.DeepLink, n.CreatedAt)

	return err
}

func (r *PostgresRepository) GetUserNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	query := `SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	var notifications []models.Notification
	if err := sqlx.SelectContext(ctx, r.conn, &notifications, query, userID, limit); err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}

	return notifications, nil
}

// MarkNotificationRead reports false when the notification does not belong to userID
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error) {
	query := `UPDATE notifications SET read_at = COALESCE(read_at, $1) WHERE id = $2 AND user_id = $3`

	result, err := r.conn.ExecContext(ctx, query, time.Now().UTC(), notificationID, userID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}
