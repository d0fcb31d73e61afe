// Package domain contains persistence models for the org service.
package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DefaultMaxUsers         = 40
	DefaultSubscriptionTier = "free"
	SubscriptionActive      = "active"
)

// Organization represents a tenant. ActiveUserCount only changes through the
// repository's conditional increment and decrement.
type Organization struct {
	ID                 uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name               string            `gorm:"type:text;not null" json:"name"`
	Slug               string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	MaxUsers           int               `gorm:"not null" json:"max_users"`
	ActiveUserCount    int               `gorm:"not null" json:"active_user_count"`
	SubscriptionTier   string            `gorm:"type:text;not null" json:"subscription_tier"`
	SubscriptionStatus string            `gorm:"type:text;not null" json:"subscription_status"`
	Settings           datatypes.JSONMap `gorm:"type:jsonb" json:"settings"`
	CreatedBy          *uuid.UUID        `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt          time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Member is a profile as listed to organization staff.
type Member struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Roles       []string  `json:"roles"`
	IsActive    bool      `json:"is_active"`
	UpdatedAt   time.Time `json:"updated_at"`
}
