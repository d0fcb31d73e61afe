package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/virtuepath/internal/virtue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type service struct {
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &service{
		log:  p.Log.Named("virtue.service"),
		repo: p.Repo,
	}
}

func (s *service) Catalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	virtues, err := s.repo.ListVirtues(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(virtues))
	for _, v := range virtues {
		ids = append(ids, v.ID)
	}
	defects, err := s.repo.DefectsByVirtue(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.CatalogEntry, 0, len(virtues))
	for _, v := range virtues {
		linked := defects[v.ID]
		if linked == nil {
			linked = []domain.Defect{}
		}
		entries = append(entries, domain.CatalogEntry{Virtue: v, Defects: linked})
	}
	return entries, nil
}

func (s *service) Exists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	if _, err := s.repo.FindVirtue(ctx, id); err != nil {
		if errors.Is(err, domain.ErrVirtueNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
