package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, rel *Relationship) error
	FindByID(ctx context.Context, id uuid.UUID) (*Relationship, error)
	FindOpen(ctx context.Context, practitionerID, sponsorID uuid.UUID) (*Relationship, error)
	// Transition moves the row to `to` only while its status is one of from.
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, at time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	ListConnections(ctx context.Context, userID uuid.UUID) ([]Connection, error)
	CountActive(ctx context.Context, sponsorID, practitionerID uuid.UUID) (int64, error)
}
