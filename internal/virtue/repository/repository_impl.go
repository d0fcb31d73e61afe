package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/virtuepath/internal/virtue/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) ListVirtues(ctx context.Context) ([]domain.Virtue, error) {
	var virtues []domain.Virtue
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, description, position, created_at
		FROM virtues
		ORDER BY position ASC, id ASC`,
	).Scan(&virtues).Error
	return virtues, err
}

func (r *repository) FindVirtue(ctx context.Context, id int64) (*domain.Virtue, error) {
	var virtue domain.Virtue
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&virtue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrVirtueNotFound
		}
		return nil, err
	}
	return &virtue, nil
}

type defectRow struct {
	VirtueID int64
	domain.Defect
}

func (r *repository) DefectsByVirtue(ctx context.Context, virtueIDs []int64) (map[int64][]domain.Defect, error) {
	out := make(map[int64][]domain.Defect, len(virtueIDs))
	if len(virtueIDs) == 0 {
		return out, nil
	}

	var rows []defectRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT vd.virtue_id, d.id, d.name, d.description, d.created_at
		FROM virtue_defects vd
		JOIN defects d ON d.id = vd.defect_id
		WHERE vd.virtue_id IN ?
		ORDER BY vd.virtue_id ASC, d.name ASC`,
		virtueIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.VirtueID] = append(out[row.VirtueID], row.Defect)
	}
	return out, nil
}
