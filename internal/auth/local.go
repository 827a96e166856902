package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rongwang/leasehub-server/internal/config"
	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var errInvalidCredentials = ierr.NewError("invalid email or password").
	WithHint("Invalid email or password").
	Mark(ierr.ErrUnauthorized)

// LocalAuth stores bcrypt hashes in the users table and signs its own HS256 tokens
type LocalAuth struct {
	jwtSecret     []byte
	tokenDuration time.Duration
}

func NewLocalAuth(cfg config.AuthConfig) *LocalAuth {
	return &LocalAuth{
		jwtSecret:     []byte(cfg.JWTSecret),
		tokenDuration: cfg.TokenDuration(),
	}
}

func (a *LocalAuth) Name() string {
	return "local"
}

func (a *LocalAuth) SignUp(ctx context.Context, creds Credentials) (*Identity, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	userID := uuid.New().String()
	token, err := a.generateJWT(userID)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &Identity{
		UserID:       userID,
		PasswordHash: string(hashedPassword),
		Token:        token,
		ExpiresIn:    int(a.tokenDuration.Seconds()),
	}, nil
}

func (a *LocalAuth) Login(ctx context.Context, creds Credentials, user *models.User) (*Identity, error) {
	if user == nil {
		return nil, errInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		return nil, errInvalidCredentials
	}

	token, err := a.generateJWT(user.ID)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &Identity{
		UserID:    user.ID,
		Token:     token,
		ExpiresIn: int(a.tokenDuration.Seconds()),
	}, nil
}

func (a *LocalAuth) ValidateToken(ctx context.Context, token string) (string, error) {
	return parseHS256(token, a.jwtSecret)
}

func (a *LocalAuth) generateJWT(userID string) (string, error) {
	expirationTime := time.Now().Add(a.tokenDuration)

	claims := jwt.MapClaims{
		"sub": userID, // subject
		"exp": expirationTime.Unix(),
		"iat": time.Now().Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// parseHS256 validates token against secret and returns its subject
func parseHS256(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", ierr.NewError("invalid token").
			WithHint("Invalid token").
			Mark(ierr.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ierr.NewError("invalid token claims").
			WithHint("Invalid token claims").
			Mark(ierr.ErrUnauthorized)
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", ierr.NewError("token missing subject").
			WithHint("Invalid user ID in token").
			Mark(ierr.ErrUnauthorized)
	}

	return userID, nil
}
