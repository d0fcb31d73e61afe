package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/profile/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, profile *domain.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	stmt := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector.Name() == "postgres" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(stmt)
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	return r.first(r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))))
}

func (r *repository) first(stmt *gorm.DB) (*domain.Profile, error) {
	var profile domain.Profile
	if err := stmt.First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	return r.exec(ctx,
		`UPDATE profiles SET display_name = ?, updated_at = ? WHERE id = ?`,
		displayName, now(), id,
	)
}

func (r *repository) SetMembership(ctx context.Context, id uuid.UUID, organizationID *uuid.UUID, active bool) error {
	return r.exec(ctx,
		`UPDATE profiles SET organization_id = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		organizationID, active, now(), id,
	)
}

func (r *repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.exec(ctx,
		`UPDATE profiles SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, now(), id,
	)
}

func (r *repository) SetRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	return r.exec(ctx,
		`UPDATE profiles SET roles = ?, role = NULL, updated_at = ? WHERE id = ?`,
		domain.RoleList(roles), now(), id,
	)
}

func (r *repository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.exec(ctx,
		`UPDATE profiles SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID, now(), id,
	)
}

func (r *repository) exec(ctx context.Context, sql string, args ...interface{}) error {
	res := r.db.WithContext(ctx).Exec(sql, args...)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (r *repository) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at ASC").
		Find(&profiles).Error
	return profiles, err
}

func (r *repository) CountActiveByOrganization(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Profile{}).
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		Count(&count).Error
	return count, err
}

func (r *repository) ListAfter(ctx context.Context, after *uuid.UUID, limit int) ([]domain.Profile, error) {
	var profiles []domain.Profile
	stmt := r.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if after != nil {
		stmt = stmt.Where("id > ?", *after)
	}
	err := stmt.Find(&profiles).Error
	return profiles, err
}

func now() time.Time {
	return time.Now().UTC()
}
