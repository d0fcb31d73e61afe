package domain

import (
	"time"

	"github.com/google/uuid"
)

// Assignment links a coach or therapist to a practitioner. Rows are never
// deleted; removal stamps RemovedAt.
type Assignment struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	PractitionerID uuid.UUID  `gorm:"type:uuid;not null;index:idx_assignment_practitioner" json:"practitioner_id"`
	SupervisorID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_assignment_supervisor" json:"supervisor_id"`
	SupervisorRole string     `gorm:"type:text;not null" json:"supervisor_role"`
	Reason         string     `gorm:"type:text;not null;default:''" json:"reason"`
	AssignedBy     *uuid.UUID `gorm:"type:uuid" json:"assigned_by,omitempty"`
	AssignedAt     time.Time  `gorm:"not null" json:"assigned_at"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"`
	RemovedBy      *uuid.UUID `gorm:"type:uuid" json:"removed_by,omitempty"`
}

func (Assignment) TableName() string { return "supervisor_assignments" }

func (a Assignment) Active() bool { return a.RemovedAt == nil }
