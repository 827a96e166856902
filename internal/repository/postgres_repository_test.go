package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestGetUserByEmail(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		now := time.Now().UTC()
		rows := sqlmock.NewRows([]string{"id", "email", "full_name", "phone", "role", "password", "created_at", "updated_at"}).
			AddRow("user-1", "awa@example.com", "Awa", "+2250700000000", "landlord", "hash", now, now)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM users WHERE email = $1`)).
			WithArgs("awa@example.com").
			WillReturnRows(rows)

		user, err := repo.GetUserByEmail(ctx, "awa@example.com")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "user-1", user.ID)
		assert.Equal(t, models.RoleLandlord, user.Role)
	})

	t.Run("missing row is nil without error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM users WHERE email = $1`)).
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		user, err := repo.GetUserByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("driver error is returned", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM users WHERE email = $1`)).
			WillReturnError(errors.New("connection reset"))

		user, err := repo.GetUserByEmail(ctx, "awa@example.com")
		assert.Error(t, err)
		assert.Nil(t, user)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLease(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	status := models.LeaseStatusSigned
	signedAt := time.Now().UTC()
	update := models.LeaseUpdate{Status: &status, TenantSignedAt: &signedAt}

	query := regexp.QuoteMeta(`UPDATE leases SET status = $1, tenant_signed_at = $2, updated_at = $3 WHERE id = $4`)

	t.Run("writes only the set columns", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs("signed", sqlmock.AnyArg(), sqlmock.AnyArg(), "lease-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateLease(ctx, "lease-1", update))
	})

	t.Run("no matching row", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs("signed", sqlmock.AnyArg(), sqlmock.AnyArg(), "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateLease(ctx, "missing", update)
		assert.ErrorIs(t, err, ErrLeaseNotFound)
	})

	t.Run("clearing the review flag writes NULL", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE leases SET review_flagged_at = $1, updated_at = $2 WHERE id = $3`)).
			WithArgs(nil, sqlmock.AnyArg(), "lease-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateLease(ctx, "lease-1", models.LeaseUpdate{ClearReviewFlag: true}))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits when fn succeeds", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO lease_audit_trail`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.RunInTx(ctx, func(tx Repository) error {
			return tx.InsertAuditEvent(ctx, &models.AuditEvent{
				LeaseID: "lease-1",
				Event:   models.AuditCreated,
				ActorID: "user-1",
				Hash:    "abc",
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notifications`)).
			WillReturnError(errors.New("check constraint"))
		mock.ExpectRollback()

		err := repo.RunInTx(ctx, func(tx Repository) error {
			return tx.InsertNotification(ctx, &models.Notification{
				UserID:  "user-1",
				Title:   "Lease signed",
				Message: "The lease has been signed",
				Type:    models.NotificationLeaseSigned,
			})
		})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested call joins the open transaction", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := repo.RunInTx(ctx, func(tx Repository) error {
			return tx.RunInTx(ctx, func(Repository) error { return nil })
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInsertWebhookEvent(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	query := regexp.QuoteMeta(`ON CONFLICT (provider, event_key) DO NOTHING`)

	mock.ExpectExec(query).
		WithArgs(sqlmock.AnyArg(), "signature", "op-1:completed", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs(sqlmock.AnyArg(), "signature", "op-1:completed", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first := &models.WebhookEvent{Provider: models.WebhookProviderSignature, EventKey: "op-1:completed", Payload: []byte(`{}`)}
	inserted, err := repo.InsertWebhookEvent(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, first.ID)

	again := &models.WebhookEvent{Provider: models.WebhookProviderSignature, EventKey: "op-1:completed", Payload: []byte(`{}`)}
	inserted, err = repo.InsertWebhookEvent(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotificationRead(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	query := regexp.QuoteMeta(`UPDATE notifications SET read_at = COALESCE(read_at, $1) WHERE id = $2 AND user_id = $3`)

	mock.ExpectExec(query).
		WithArgs(sqlmock.AnyArg(), "note-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs(sqlmock.AnyArg(), "note-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := repo.MarkNotificationRead(ctx, "user-1", "note-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.MarkNotificationRead(ctx, "user-2", "note-1")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}
