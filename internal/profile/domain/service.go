package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Service interface {
	// Ensure returns the caller's profile, creating it on first sight of a
	// verified token.
	Ensure(ctx context.Context, userID uuid.UUID, email string) (*Profile, error)
	Get(ctx context.Context, userID uuid.UUID) (*Profile, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, req UpdateSettingsRequest) (*Profile, error)
	// NormalizeLegacyRoles rewrites every profile to canonical role names and
	// clears the legacy role column. Safe to re-run.
	NormalizeLegacyRoles(ctx context.Context, dryRun bool) (NormalizeReport, error)
}

type UpdateSettingsRequest struct {
	DisplayName *string
}

type NormalizeReport struct {
	Scanned   int      `json:"scanned"`
	Rewritten int      `json:"rewritten"`
	Dropped   []string `json:"dropped,omitempty"`
	DryRun    bool     `json:"dry_run"`
}

var (
	ErrProfileNotFound    = errors.New("profile_not_found")
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidDisplayName = errors.New("invalid_display_name")
)
