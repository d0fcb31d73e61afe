package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/internal/role"
	"github.com/smallbiznis/virtuepath/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxDisplayNameLength = 120
	normalizeBatchSize   = 200
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
	audit auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("profile.service"),
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Ensure(ctx context.Context, userID uuid.UUID, email string) (*domain.Profile, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrInvalidUser
	}

	existing, err := s.repo.FindByID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	profile := &domain.Profile{
		ID:        userID,
		Email:     email,
		Roles:     domain.RoleList{string(role.IndividualPractitioner)},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		// Lost a race with a concurrent first request.
		if db.IsDuplicateKeyErr(err) {
			return s.repo.FindByID(ctx, userID)
		}
		return nil, err
	}
	s.log.Info("profile created", zap.String("user_id", userID.String()))
	return profile, nil
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.FindByID(ctx, userID)
}

func (s *Service) UpdateSettings(ctx context.Context, userID uuid.UUID, req domain.UpdateSettingsRequest) (*domain.Profile, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrInvalidUser
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if len(name) > maxDisplayNameLength {
			return nil, domain.ErrInvalidDisplayName
		}
		if err := s.repo.UpdateDisplayName(ctx, userID, name); err != nil {
			return nil, err
		}
	}
	return s.repo.FindByID(ctx, userID)
}

func (s *Service) NormalizeLegacyRoles(ctx context.Context, dryRun bool) (domain.NormalizeReport, error) {
	report := domain.NormalizeReport{DryRun: dryRun}
	dropped := map[string]struct{}{}

	var after *uuid.UUID
	for {
		batch, err := s.repo.ListAfter(ctx, after, normalizeBatchSize)
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			profile := batch[i]
			report.Scanned++

			canonical, unknown, changed := role.Normalize(role.ProfileRoles{Role: profile.Role, Roles: profile.Roles})
			for _, name := range unknown {
				dropped[name] = struct{}{}
			}
			if !changed {
				continue
			}
			report.Rewritten++
			if dryRun {
				continue
			}

			if err := s.rewriteRoles(ctx, profile, canonical, unknown); err != nil {
				return report, err
			}
		}

		last := batch[len(batch)-1].ID
		after = &last
	}

	for name := range dropped {
		report.Dropped = append(report.Dropped, name)
	}
	s.log.Info("legacy roles normalized",
		zap.Int("scanned", report.Scanned),
		zap.Int("rewritten", report.Rewritten),
		zap.Bool("dry_run", dryRun),
	)
	return report, nil
}

func (s *Service) rewriteRoles(ctx context.Context, profile domain.Profile, canonical []string, unknown []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetRoles(ctx, profile.ID, canonical); err != nil {
			return err
		}

		before := append([]string{}, profile.Roles...)
		if profile.Role != nil {
			before = append(before, "role:"+*profile.Role)
		}
		metadata := map[string]any{
			"before": before,
			"after":  canonical,
		}
		if len(unknown) > 0 {
			metadata["dropped"] = unknown
		}
		return s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			OrganizationID: profile.OrganizationID,
			ActorType:      auditdomain.ActorSystem,
			ActorID:        "roles-normalize",
			Action:         auditdomain.ActionRolesNormalized,
			TargetType:     "profile",
			TargetID:       profile.ID.String(),
			Metadata:       metadata,
		})
	})
}
