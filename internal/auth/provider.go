// Package auth issues and validates the bearer tokens of API users.
package auth

import (
	"context"

	"github.com/rongwang/leasehub-server/internal/config"
	"github.com/rongwang/leasehub-server/internal/models"
)

// Credentials is an email and password pair
type Credentials struct {
	Email    string
	Password string
}

// Identity is what a provider returns after a successful sign-up or login.
// PasswordHash is empty when the provider keeps passwords itself.
type Identity struct {
	UserID       string
	PasswordHash string
	Token        string
	ExpiresIn    int
}

// Provider authenticates users
type Provider interface {
	Name() string
	SignUp(ctx context.Context, creds Credentials) (*Identity, error)
	// Login checks creds for user, which is nil when no local profile matches the email
	Login(ctx context.Context, creds Credentials, user *models.User) (*Identity, error)
	ValidateToken(ctx context.Context, token string) (string, error)
}

// NewProvider returns the provider named by cfg.Provider
func NewProvider(cfg config.AuthConfig) Provider {
	switch cfg.Provider {
	case "supabase":
		return NewSupabaseAuth(cfg)
	default:
		return NewLocalAuth(cfg)
	}
}
