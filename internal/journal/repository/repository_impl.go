package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/journal/domain"
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

func (r *repository) Insert(ctx context.Context, entry *domain.Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindOwned(ctx context.Context, practitionerID, id uuid.UUID) (*domain.Entry, error) {
	var entry domain.Entry
	err := r.db.WithContext(ctx).
		Where("id = ? AND practitioner_id = ?", id, practitionerID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) Update(ctx context.Context, entry *domain.Entry) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE journal_entries
		SET title = ?, content = ?, virtue_id = ?, updated_at = ?
		WHERE id = ? AND practitioner_id = ?`,
		entry.Title, entry.Content, entry.VirtueID, entry.UpdatedAt,
		entry.ID, entry.PractitionerID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, practitionerID, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM journal_entries WHERE id = ? AND practitioner_id = ?`,
		id, practitionerID,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Entry, error) {
	var entries []domain.Entry
	stmt := r.db.WithContext(ctx).Model(&domain.Entry{}).
		Where("practitioner_id = ?", filter.PractitionerID)

	if filter.VirtueID != nil {
		stmt = stmt.Where("virtue_id = ?", *filter.VirtueID)
	}
	if filter.After != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.After.CreatedAt,
			filter.After.CreatedAt,
			filter.After.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
