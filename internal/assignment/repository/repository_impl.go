package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/assignment/domain"
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

func (r *repository) Insert(ctx context.Context, assignment *domain.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) FindByID(ctx context.Context, organizationID, id uuid.UUID) (*domain.Assignment, error) {
	var assignment domain.Assignment
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAssignmentNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) CloseActive(ctx context.Context, practitionerID uuid.UUID, supervisorRole string, removedBy *uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE supervisor_assignments
		SET removed_at = ?, removed_by = ?
		WHERE practitioner_id = ? AND supervisor_role = ? AND removed_at IS NULL`,
		at, removedBy, practitionerID, supervisorRole,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) Remove(ctx context.Context, id uuid.UUID, removedBy *uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE supervisor_assignments SET removed_at = ?, removed_by = ? WHERE id = ? AND removed_at IS NULL`,
		at, removedBy, id,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]domain.Assignment, error) {
	var rows []domain.Assignment
	err := r.db.WithContext(ctx).
		Where("practitioner_id = ?", practitionerID).
		Order("assigned_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CloseForMember(ctx context.Context, organizationID, userID uuid.UUID, removedBy *uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE supervisor_assignments
		SET removed_at = ?, removed_by = ?
		WHERE organization_id = ? AND (practitioner_id = ? OR supervisor_id = ?) AND removed_at IS NULL`,
		at, removedBy, organizationID, userID, userID,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) CountActive(ctx context.Context, organizationID, supervisorID, practitionerID uuid.UUID, supervisorRoles []string) (int64, error) {
	if organizationID == uuid.Nil || len(supervisorRoles) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Assignment{}).
		Where("organization_id = ? AND supervisor_id = ? AND practitioner_id = ? AND removed_at IS NULL",
			organizationID, supervisorID, practitionerID).
		Where("supervisor_role IN ?", supervisorRoles).
		Count(&count).Error
	return count, err
}
