package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/journal/domain"
	virtuedomain "github.com/smallbiznis/virtuepath/internal/virtue/domain"
	"github.com/smallbiznis/virtuepath/pkg/db/pagination"
	"github.com/smallbiznis/virtuepath/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxTitleLength   = 200
	maxContentLength = 20000
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    domain.Repository
	Virtues virtuedomain.Service
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    domain.Repository
	virtues virtuedomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("journal.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		virtues: p.Virtues,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Entry, error) {
	if req.PractitionerID == uuid.Nil {
		return nil, domain.ErrInvalidOwner
	}
	title, err := normalizeTitle(req.Title)
	if err != nil {
		return nil, err
	}
	content, err := normalizeContent(req.Content)
	if err != nil {
		return nil, err
	}
	if err := s.checkVirtue(ctx, req.VirtueID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entry := &domain.Entry{
		ID:             uuid.New(),
		PractitionerID: req.PractitionerID,
		VirtueID:       req.VirtueID,
		Title:          title,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = rls.Transaction(ctx, s.db, req.PractitionerID, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Entry, error) {
	if req.PractitionerID == uuid.Nil {
		return nil, domain.ErrInvalidOwner
	}
	if req.EntryID == uuid.Nil {
		return nil, domain.ErrEntryNotFound
	}
	if err := s.checkVirtue(ctx, req.VirtueID); err != nil {
		return nil, err
	}

	var entry *domain.Entry
	err := rls.Transaction(ctx, s.db, req.PractitionerID, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindOwned(ctx, req.PractitionerID, req.EntryID)
		if err != nil {
			return err
		}
		if req.Title != nil {
			if current.Title, err = normalizeTitle(*req.Title); err != nil {
				return err
			}
		}
		if req.Content != nil {
			if current.Content, err = normalizeContent(*req.Content); err != nil {
				return err
			}
		}
		if req.VirtueID != nil {
			current.VirtueID = req.VirtueID
		}
		current.UpdatedAt = s.clock.Now()
		if err := repo.Update(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Delete(ctx context.Context, practitionerID, entryID uuid.UUID) error {
	return rls.Transaction(ctx, s.db, practitionerID, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).Delete(ctx, practitionerID, entryID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrEntryNotFound
		}
		return nil
	})
}

func (s *service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	return s.list(ctx, req.PractitionerID, req, false)
}

func (s *service) ListForPractitioner(ctx context.Context, viewerID uuid.UUID, req domain.ListRequest) (domain.ListResponse, error) {
	granted := viewerID != req.PractitionerID
	if granted {
		s.log.Debug("journal read on behalf of another user",
			zap.String("viewer_id", viewerID.String()),
			zap.String("practitioner_id", req.PractitionerID.String()),
		)
	}
	return s.list(ctx, viewerID, req, granted)
}

func (s *service) list(ctx context.Context, actorID uuid.UUID, req domain.ListRequest, granted bool) (domain.ListResponse, error) {
	if req.PractitionerID == uuid.Nil {
		return domain.ListResponse{}, domain.ErrInvalidOwner
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, domain.ErrInvalidPageToken
	}
	filter := domain.ListFilter{
		PractitionerID: req.PractitionerID,
		VirtueID:       req.VirtueID,
		After:          cursor,
		Limit:          req.Limit(),
	}

	var rows []domain.Entry
	err = rls.Transaction(ctx, s.db, actorID, func(tx *gorm.DB) error {
		if granted {
			if err := rls.GrantRead(tx); err != nil {
				return err
			}
		}
		rows, err = s.repo.WithTx(tx).List(ctx, filter)
		return err
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	page, info, err := pagination.Trim(rows, filter.Limit, func(e domain.Entry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID.String(), CreatedAt: e.CreatedAt}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	if page == nil {
		page = []domain.Entry{}
	}
	return domain.ListResponse{PageInfo: info, Entries: page}, nil
}

func (s *service) checkVirtue(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := s.virtues.Exists(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidVirtue
	}
	return nil
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" || len(title) > maxTitleLength {
		return "", domain.ErrInvalidTitle
	}
	return title, nil
}

func normalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" || len(content) > maxContentLength {
		return "", domain.ErrInvalidContent
	}
	return content, nil
}
