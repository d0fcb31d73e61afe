package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a practitioner-owned journal entry. Postgres row level security
// restricts rows to their owner unless the transaction was granted read access.
type Entry struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PractitionerID uuid.UUID `gorm:"type:uuid;not null;index:idx_journal_entries_practitioner_created,priority:1" json:"practitioner_id"`
	VirtueID       *int64    `json:"virtue_id,omitempty"`
	Title          string    `gorm:"type:text;not null" json:"title"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"not null;index:idx_journal_entries_practitioner_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (Entry) TableName() string { return "journal_entries" }
