// Package rls scopes a transaction to the acting user so Postgres row level
// security policies (see migrations) can match on it.
package rls

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	userSetting  = "app.current_user_id"
	grantSetting = "app.read_granted"
)

// WithUser sets the acting user for the remainder of tx. Dialects without
// SET LOCAL support are left untouched.
func WithUser(tx *gorm.DB, userID uuid.UUID) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT set_config(?, ?, true)", userSetting, userID.String()).Error
}

// Transaction runs fn in a transaction scoped to userID.
func Transaction(ctx context.Context, db *gorm.DB, userID uuid.UUID, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := WithUser(tx, userID); err != nil {
			return err
		}
		return fn(tx)
	})
}

// GrantRead lets tx read rows owned by other users. Callers must have already
// authorized the read (supervisor or sponsor access).
func GrantRead(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT set_config(?, 'on', true)", grantSetting).Error
}
