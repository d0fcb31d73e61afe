package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/audit/masking"
	"github.com/smallbiznis/virtuepath/internal/clock"
	obscontext "github.com/smallbiznis/virtuepath/internal/observability/context"
	"github.com/smallbiznis/virtuepath/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	return s.RecordTx(ctx, s.db, entry)
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	actorType, actorID := strings.TrimSpace(entry.ActorType), strings.TrimSpace(entry.ActorID)
	if actorID == "" {
		actorType, actorID = obscontext.ActorFromContext(ctx)
	}
	if actorType == "" {
		actorType = auditdomain.ActorSystem
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	record := auditdomain.AuditLog{
		ID:             s.genID.Generate(),
		OrganizationID: entry.OrganizationID,
		ActorType:      actorType,
		ActorID:        optional(actorID),
		Action:         action,
		TargetType:     targetType,
		TargetID:       optional(entry.TargetID),
		RequestID:      optional(obscontext.RequestIDFromContext(ctx)),
		CreatedAt:      s.clock.Now(),
	}
	if masked := masking.MaskMetadata(entry.Metadata); masked != nil {
		record.Metadata = datatypes.JSONMap(masked)
	}

	if err := s.repo.Insert(ctx, tx, &record); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
	}
	filter := auditdomain.ListFilter{
		OrganizationID: req.OrganizationID,
		Action:         req.Action,
		Limit:          req.Limit(),
	}
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		filter.After = &auditdomain.Position{ID: id, CreatedAt: cursor.CreatedAt}
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	page, info, err := pagination.Trim(rows, filter.Limit, func(row auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: row.ID.String(), CreatedAt: row.CreatedAt}
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}
	if page == nil {
		page = []auditdomain.AuditLog{}
	}
	return auditdomain.ListResponse{PageInfo: info, AuditLogs: page}, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
