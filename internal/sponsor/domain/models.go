package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusEmailSent Status = "email_sent"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
)

// Open reports whether the relationship still blocks a new invitation for the
// same pair.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusEmailSent || s == StatusActive
}

// Acceptable reports whether the sponsor may still accept.
func (s Status) Acceptable() bool {
	return s == StatusPending || s == StatusEmailSent
}

func OpenStatuses() []string {
	return []string{string(StatusPending), string(StatusEmailSent), string(StatusActive)}
}

// Relationship links a practitioner to an individual sponsor.
type Relationship struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PractitionerID uuid.UUID  `gorm:"type:uuid;not null;index" json:"practitioner_id"`
	SponsorID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"sponsor_id"`
	Status         Status     `gorm:"type:text;not null" json:"status"`
	EmailSentAt    *time.Time `json:"email_sent_at,omitempty"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (Relationship) TableName() string { return "sponsor_relationships" }

// Connection is a relationship with both parties' contact details, as listed
// to either party.
type Connection struct {
	Relationship
	PractitionerEmail string `json:"practitioner_email"`
	PractitionerName  string `json:"practitioner_name"`
	SponsorEmail      string `json:"sponsor_email"`
	SponsorName       string `json:"sponsor_name"`
}
