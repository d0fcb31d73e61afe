package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditLog is an append-only record of a privileged action or access denial.
type AuditLog struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizationID *uuid.UUID        `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	ActorType      string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID        *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action         string            `gorm:"type:text;not null;index" json:"action"`
	TargetType     string            `gorm:"type:text;not null" json:"target_type"`
	TargetID       *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	RequestID      *string           `gorm:"type:text" json:"request_id,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
