package auth

import (
	"context"

	"github.com/nedpals/supabase-go"
	"github.com/rongwang/leasehub-server/internal/config"
	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/models"
)

// SupabaseAuth delegates passwords to Supabase Auth. Tokens are Supabase
// access tokens, checked locally against the project's JWT secret.
type SupabaseAuth struct {
	client    *supabase.Client
	jwtSecret []byte
}

func NewSupabaseAuth(cfg config.AuthConfig) *SupabaseAuth {
	return &SupabaseAuth{
		client:    supabase.CreateClient(cfg.SupabaseURL, cfg.SupabaseAPIKey),
		jwtSecret: []byte(cfg.JWTSecret),
	}
}

func (a *SupabaseAuth) Name() string {
	return "supabase"
}

func (a *SupabaseAuth) SignUp(ctx context.Context, creds Credentials) (*Identity, error) {
	_, err := a.client.Auth.SignUp(ctx, supabase.UserCredentials{
		Email:    creds.Email,
		Password: creds.Password,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Sign-up was rejected by the identity provider").
			Mark(ierr.ErrHTTPClient)
	}

	return a.signIn(ctx, creds)
}

func (a *SupabaseAuth) Login(ctx context.Context, creds Credentials, user *models.User) (*Identity, error) {
	if user == nil {
		return nil, errInvalidCredentials
	}

	identity, err := a.signIn(ctx, creds)
	if err != nil {
		return nil, err
	}
	if identity.UserID != user.ID {
		return nil, errInvalidCredentials
	}

	return identity, nil
}

func (a *SupabaseAuth) ValidateToken(ctx context.Context, token string) (string, error) {
	return parseHS256(token, a.jwtSecret)
}

func (a *SupabaseAuth) signIn(ctx context.Context, creds Credentials) (*Identity, error) {
	details, err := a.client.Auth.SignIn(ctx, supabase.UserCredentials{
		Email:    creds.Email,
		Password: creds.Password,
	})
	if err != nil {
		return nil, errInvalidCredentials
	}

	return &Identity{
		UserID:    details.User.ID,
		Token:     details.AccessToken,
		ExpiresIn: details.ExpiresIn,
	}, nil
}
