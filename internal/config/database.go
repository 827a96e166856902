package config

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db, logger); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		full_name VARCHAR(255) NOT NULL,
		phone VARCHAR(32) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL CHECK (role IN ('landlord', 'tenant', 'admin')),
		password VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id VARCHAR(36) PRIMARY KEY,
		owner_id VARCHAR(36) NOT NULL REFERENCES users(id),
		title VARCHAR(255) NOT NULL,
		address TEXT NOT NULL,
		city VARCHAR(128) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS leases (
		id VARCHAR(36) PRIMARY KEY,
		property_id VARCHAR(36) NOT NULL REFERENCES properties(id),
		landlord_id VARCHAR(36) NOT NULL REFERENCES users(id),
		tenant_id VARCHAR(36) NOT NULL REFERENCES users(id),
		monthly_rent NUMERIC(14, 2) NOT NULL,
		deposit_amount NUMERIC(14, 2) NOT NULL,
		currency VARCHAR(3) NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status VARCHAR(32) NOT NULL,
		document_url TEXT,
		signed_document_url TEXT,
		cryptoneo_operation_id VARCHAR(128) UNIQUE,
		cryptoneo_signature_status VARCHAR(16),
		signature_signer_id VARCHAR(36),
		signature_signer_role VARCHAR(16),
		signature_initiated_at TIMESTAMP,
		landlord_signed_at TIMESTAMP,
		tenant_signed_at TIMESTAMP,
		payment_status VARCHAR(16) NOT NULL,
		payment_transaction_id VARCHAR(128) UNIQUE,
		payment_provider VARCHAR(32),
		payment_initiated_at TIMESTAMP,
		verified_at TIMESTAMP,
		review_flagged_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lease_audit_trail (
		id VARCHAR(36) PRIMARY KEY,
		lease_id VARCHAR(36) NOT NULL REFERENCES leases(id),
		event VARCHAR(16) NOT NULL,
		actor_id VARCHAR(36) NOT NULL,
		hash CHAR(64) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id),
		title VARCHAR(255) NOT NULL,
		message TEXT NOT NULL,
		type VARCHAR(64) NOT NULL,
		data JSONB NOT NULL DEFAULT '{}',
		deep_link TEXT NOT NULL DEFAULT '',
		read_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id VARCHAR(36) PRIMARY KEY,
		provider VARCHAR(16) NOT NULL,
		event_key VARCHAR(255) NOT NULL,
		payload JSONB NOT NULL,
		processed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (provider, event_key)
	)`,
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_leases_landlord_id ON leases(landlord_id)",
	"CREATE INDEX IF NOT EXISTS idx_leases_tenant_id ON leases(tenant_id)",
	"CREATE INDEX IF NOT EXISTS idx_lease_audit_trail_lease_id ON lease_audit_trail(lease_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id, created_at DESC)",
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB, logger *zap.Logger) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			// Indexes are not critical
			logger.Warn("failed to create index", zap.String("statement", idx), zap.Error(err))
		}
	}

	return nil
}
