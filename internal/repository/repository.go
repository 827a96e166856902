package repository

import (
	"context"
	"time"

	"github.com/rongwang/leasehub-server/internal/models"
)

// Repository interface defines the methods that any repository implementation must satisfy.
// Lookups return nil, nil when the row does not exist.
type Repository interface {
	// RunInTx runs fn against a repository bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(tx Repository) error) error

	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Property operations
	CreateProperty(ctx context.Context, property *models.Property) error
	GetProperty(ctx context.Context, id string) (*models.Property, error)
	GetOwnerProperties(ctx context.Context, ownerID string) ([]models.Property, error)

	// Lease operations
	CreateLease(ctx context.Context, lease *models.Lease) error
	GetLease(ctx context.Context, id string) (*models.Lease, error)
	LockLease(ctx context.Context, id string) (*models.Lease, error)
	GetLeaseByOperationID(ctx context.Context, operationID string) (*models.Lease, error)
	GetLeaseByTransactionID(ctx context.Context, transactionID string) (*models.Lease, error)
	LockLeaseByOperationID(ctx context.Context, operationID string) (*models.Lease, error)
	LockLeaseByTransactionID(ctx context.Context, transactionID string) (*models.Lease, error)
	GetLeaseDetails(ctx context.Context, id string) (*models.LeaseDetails, error)
	GetUserLeases(ctx context.Context, userID string) ([]models.Lease, error)
	UpdateLease(ctx context.Context, id string, update models.LeaseUpdate) error
	UpdateLeaseStatus(ctx context.Context, id string, status models.LeaseStatus) error
	FindStalePendingLeases(ctx context.Context, initiatedBefore time.Time, limit int) ([]models.Lease, error)

	// Audit trail operations
	InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
	GetAuditEvents(ctx context.Context, leaseID string) ([]models.AuditEvent, error)
	GetLatestAuditEvent(ctx context.Context, leaseID string) (*models.AuditEvent, error)

	// Notification operations
	InsertNotification(ctx context.Context, notification *models.Notification) error
	GetUserNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error)

	// Webhook idempotency operations
	InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) (bool, error)
	MarkWebhookEventProcessed(ctx context.Context, id string) error
}
