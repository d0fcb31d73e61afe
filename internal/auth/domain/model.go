// Package domain holds the types for bearer token verification and password
// reset requests.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Identity is the verified subject of an access token issued by the hosted
// auth provider.
type Identity struct {
	UserID    uuid.UUID
	Email     string
	ExpiresAt time.Time
}

// ResetClaims is the verified content of a password reset token.
type ResetClaims struct {
	UserID    uuid.UUID
	Email     string
	ExpiresAt time.Time
}

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Identity, error)
}

type ResetTokenIssuer interface {
	Issue(userID uuid.UUID, email string) (string, time.Time, error)
	Parse(raw string) (*ResetClaims, error)
}

type Service interface {
	// ForgotPassword never reports whether the address is registered.
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, token string) (*ResetClaims, error)
}

var (
	ErrMissingToken    = errors.New("missing_token")
	ErrInvalidToken    = errors.New("invalid_token")
	ErrExpiredToken    = errors.New("expired_token")
	ErrNotConfigured   = errors.New("auth_not_configured")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidSubject  = errors.New("invalid_subject")
	ErrWrongTokenUsage = errors.New("wrong_token_usage")
)
