package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/leasehub-server/internal/models"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db   *sqlx.DB
	conn sqlx.ExtContext // db, or the open transaction inside RunInTx
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db:   db,
		conn: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *PostgresRepository) RunInTx(ctx context.Context, fn func(tx Repository) error) (err error) {
	if _, nested := r.conn.(*sqlx.Tx); nested {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&PostgresRepository{db: r.db, conn: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, full_name, phone, role, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx, query,
		user.ID, user.Email, user.FullName, user.Phone, user.Role, user.Password, user.CreatedAt, user.UpdatedAt)

	return err
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return getOne[models.User](ctx, r.conn, `SELECT * FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return getOne[models.User](ctx, r.conn, `SELECT * FROM users WHERE id = $1`, id)
}

// Property repository methods
func (r *PostgresRepository) CreateProperty(ctx context.Context, property *models.Property) error {
	query := `
		INSERT INTO properties (id, owner_id, title, address, city, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if property.ID == "" {
		property.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	property.CreatedAt = now
	property.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx, query,
		property.ID, property.OwnerID, property.Title, property.Address, property.City,
		property.CreatedAt, property.UpdatedAt)

	return err
}

func (r *PostgresRepository) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	return getOne[models.Property](ctx, r.conn, `SELECT * FROM properties WHERE id = $1`, id)
}

func (r *PostgresRepository) GetOwnerProperties(ctx context.Context, ownerID string) ([]models.Property, error) {
	var properties []models.Property
	err := sqlx.SelectContext(ctx, r.conn, &properties,
		`SELECT * FROM properties WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select properties: %w", err)
	}

	return properties, nil
}

// getOne runs a single-row query, returning nil, nil when nothing matches
func getOne[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*T, error) {
	var dest T
	err := sqlx.GetContext(ctx, q, &dest, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &dest, nil
}
