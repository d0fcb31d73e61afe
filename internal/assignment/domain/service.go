package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Service interface {
	// Assign replaces any active assignment of the same supervisor_role for
	// the practitioner.
	Assign(ctx context.Context, req AssignRequest) (*Assignment, error)
	Remove(ctx context.Context, req RemoveRequest) error
	History(ctx context.Context, practitionerID uuid.UUID) ([]Assignment, error)
	// HasActiveSupervision only counts assignments made inside organizationID.
	HasActiveSupervision(ctx context.Context, organizationID, supervisorID, practitionerID uuid.UUID, supervisorRoles []string) (bool, error)
}

type AssignRequest struct {
	OrganizationID uuid.UUID
	ActorID        uuid.UUID
	PractitionerID uuid.UUID
	SupervisorID   uuid.UUID
	SupervisorRole string
	Reason         string
}

type RemoveRequest struct {
	OrganizationID uuid.UUID
	ActorID        uuid.UUID
	AssignmentID   uuid.UUID
}

const (
	EventAssignmentCreated = "assignment.created"
	EventAssignmentRemoved = "assignment.removed"
)

var (
	ErrAssignmentNotFound       = errors.New("assignment_not_found")
	ErrAssignmentAlreadyRemoved = errors.New("assignment_already_removed")
	ErrInvalidSupervisorRole    = errors.New("invalid_supervisor_role")
	ErrInvalidPractitioner      = errors.New("invalid_practitioner")
	ErrInvalidSupervisor        = errors.New("invalid_supervisor")
	ErrSelfAssignment           = errors.New("self_assignment")
)
