// Package domain contains the profile model: one row per authenticated user
// carrying role and organization membership.
package domain

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/smallbiznis/virtuepath/internal/role"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// RoleList is the roles column: text[] on Postgres, array literal text elsewhere.
type RoleList []string

func (l RoleList) Value() (driver.Value, error) {
	if l == nil {
		l = RoleList{}
	}
	return pq.StringArray(l).Value()
}

func (l *RoleList) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*l = RoleList(arr)
	return nil
}

func (RoleList) GormDataType() string { return "text[]" }

func (RoleList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

type Profile struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email            string     `gorm:"type:text;not null;uniqueIndex" json:"email"`
	DisplayName      string     `gorm:"type:text;not null;default:''" json:"display_name"`
	Role             *string    `gorm:"column:role;type:text" json:"-"`
	Roles            RoleList   `gorm:"column:roles;not null" json:"roles"`
	OrganizationID   *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	IsActive         bool       `gorm:"not null" json:"is_active"`
	StripeCustomerID *string    `gorm:"type:text" json:"-"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// RoleInfo parses the stored role columns.
func (p Profile) RoleInfo() role.RoleInfo {
	return role.ParseUserRoles(role.ProfileRoles{Role: p.Role, Roles: p.Roles})
}

// InOrganization reports whether the profile belongs to orgID.
func (p Profile) InOrganization(orgID uuid.UUID) bool {
	return p.OrganizationID != nil && *p.OrganizationID == orgID
}
