package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, assignment *Assignment) error
	FindByID(ctx context.Context, organizationID, id uuid.UUID) (*Assignment, error)
	// CloseActive stamps removed_at on the active assignment for the pair, if any.
	CloseActive(ctx context.Context, practitionerID uuid.UUID, supervisorRole string, removedBy *uuid.UUID, at time.Time) (int64, error)
	Remove(ctx context.Context, id uuid.UUID, removedBy *uuid.UUID, at time.Time) (int64, error)
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Assignment, error)
	// CloseForMember stamps removed_at on every active assignment in the
	// organization where userID is the practitioner or the supervisor.
	CloseForMember(ctx context.Context, organizationID, userID uuid.UUID, removedBy *uuid.UUID, at time.Time) (int64, error)
	CountActive(ctx context.Context, organizationID, supervisorID, practitionerID uuid.UUID, supervisorRoles []string) (int64, error)
}
