package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/organization/domain"
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

func (r *repository) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	return first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	stmt := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector.Name() == "postgres" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first(stmt)
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return first(r.db.WithContext(ctx).Where("slug = ?", slug))
}

func first(stmt *gorm.DB) (*domain.Organization, error) {
	var org domain.Organization
	if err := stmt.First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) SlugsWithPrefix(ctx context.Context, base string) ([]string, error) {
	var slugs []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT slug FROM organizations WHERE slug = ? OR slug LIKE ?`,
		base, base+"-%",
	).Scan(&slugs).Error
	return slugs, err
}

func (r *repository) IncrementActive(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organizations
		SET active_user_count = active_user_count + 1, updated_at = ?
		WHERE id = ? AND active_user_count < max_users`,
		time.Now().UTC(), id,
	)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) DecrementActive(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organizations
		SET active_user_count = active_user_count - 1, updated_at = ?
		WHERE id = ? AND active_user_count > 0`,
		time.Now().UTC(), id,
	)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) SetActiveCount(ctx context.Context, id uuid.UUID, count int) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organizations SET active_user_count = ?, updated_at = ? WHERE id = ?`,
		count, time.Now().UTC(), id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrganizationNotFound
	}
	return nil
}

func (r *repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&domain.Organization{}).Order("created_at ASC").Pluck("id", &ids).Error
	return ids, err
}
