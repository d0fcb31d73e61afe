package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, profile *Profile) error
	FindByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	// FindByIDForUpdate locks the row on dialects that support it.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Profile, error)
	FindByEmail(ctx context.Context, email string) (*Profile, error)
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error
	SetMembership(ctx context.Context, id uuid.UUID, organizationID *uuid.UUID, active bool) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SetRoles(ctx context.Context, id uuid.UUID, roles []string) error
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]Profile, error)
	CountActiveByOrganization(ctx context.Context, organizationID uuid.UUID) (int64, error)
	// ListAfter pages through every profile ordered by id.
	ListAfter(ctx context.Context, after *uuid.UUID, limit int) ([]Profile, error)
}
