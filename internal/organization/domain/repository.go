package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org *Organization) error
	FindByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	// LockByID is FindByID holding a row lock for the rest of the transaction.
	LockByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	FindBySlug(ctx context.Context, slug string) (*Organization, error)
	// SlugsWithPrefix lists slugs equal to base or starting with base + "-".
	SlugsWithPrefix(ctx context.Context, base string) ([]string, error)
	// IncrementActive adds one seat unless the organization is full. It
	// reports false when no seat was taken.
	IncrementActive(ctx context.Context, id uuid.UUID) (bool, error)
	// DecrementActive releases one seat, never going below zero.
	DecrementActive(ctx context.Context, id uuid.UUID) (bool, error)
	SetActiveCount(ctx context.Context, id uuid.UUID, count int) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}
