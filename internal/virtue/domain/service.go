package domain

import (
	"context"
	"errors"
)

type Repository interface {
	ListVirtues(ctx context.Context) ([]Virtue, error)
	FindVirtue(ctx context.Context, id int64) (*Virtue, error)
	// DefectsByVirtue returns the defects linked to each of virtueIDs.
	DefectsByVirtue(ctx context.Context, virtueIDs []int64) (map[int64][]Defect, error)
}

type Service interface {
	Catalog(ctx context.Context) ([]CatalogEntry, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

var ErrVirtueNotFound = errors.New("virtue_not_found")
