package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/sponsor/domain"
	"gorm.io/gorm"
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

func (r *repository) Insert(ctx context.Context, rel *domain.Relationship) error {
	return r.db.WithContext(ctx).Create(rel).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Relationship, error) {
	var rel domain.Relationship
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRelationshipNotFound
		}
		return nil, err
	}
	return &rel, nil
}

func (r *repository) FindOpen(ctx context.Context, practitionerID, sponsorID uuid.UUID) (*domain.Relationship, error) {
	var rel domain.Relationship
	err := r.db.WithContext(ctx).
		Where("practitioner_id = ? AND sponsor_id = ? AND status IN ?", practitionerID, sponsorID, domain.OpenStatuses()).
		First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case domain.StatusEmailSent:
		updates["email_sent_at"] = at
	case domain.StatusActive:
		updates["accepted_at"] = at
	case domain.StatusInactive:
		updates["deactivated_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&domain.Relationship{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`DELETE FROM sponsor_relationships WHERE id = ?`, id)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ListConnections(ctx context.Context, userID uuid.UUID) ([]domain.Connection, error) {
	var rows []domain.Connection
	err := r.db.WithContext(ctx).Raw(
		`SELECT sr.*,
			p.email AS practitioner_email, p.display_name AS practitioner_name,
			s.email AS sponsor_email, s.display_name AS sponsor_name
		FROM sponsor_relationships sr
		JOIN profiles p ON p.id = sr.practitioner_id
		JOIN profiles s ON s.id = sr.sponsor_id
		WHERE sr.practitioner_id = ? OR sr.sponsor_id = ?
		ORDER BY sr.created_at DESC`,
		userID, userID,
	).Scan(&rows).Error
	return rows, err
}

func (r *repository) CountActive(ctx context.Context, sponsorID, practitionerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Relationship{}).
		Where("sponsor_id = ? AND practitioner_id = ? AND status = ?", sponsorID, practitionerID, domain.StatusActive).
		Count(&count).Error
	return count, err
}
