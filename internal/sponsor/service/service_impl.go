package service

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/config"
	outboxdomain "github.com/smallbiznis/virtuepath/internal/outbox/domain"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/internal/providers/email"
	"github.com/smallbiznis/virtuepath/internal/role"
	"github.com/smallbiznis/virtuepath/internal/sponsor/domain"
	"github.com/smallbiznis/virtuepath/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	Repo     domain.Repository
	Profiles profiledomain.Repository
	Audit    auditdomain.Service
	Outbox   outboxdomain.Writer
	Email    email.Provider
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	siteURL  string
	clock    clock.Clock
	repo     domain.Repository
	profiles profiledomain.Repository
	audit    auditdomain.Service
	outbox   outboxdomain.Writer
	email    email.Provider
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("sponsor.service"),
		siteURL:  strings.TrimRight(p.Config.SiteURL, "/"),
		clock:    p.Clock,
		repo:     p.Repo,
		profiles: p.Profiles,
		audit:    p.Audit,
		outbox:   p.Outbox,
		email:    p.Email,
	}
}

func (s *Service) Invite(ctx context.Context, req domain.InviteRequest) (*domain.InviteResult, error) {
	address := strings.ToLower(strings.TrimSpace(req.SponsorEmail))
	if _, err := mail.ParseAddress(address); err != nil {
		return nil, domain.ErrInvalidEmail
	}

	practitioner, err := s.profiles.FindByID(ctx, req.PractitionerID)
	if err != nil {
		return nil, err
	}
	sponsor, err := s.profiles.FindByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileNotFound) {
			return nil, domain.ErrSponsorNotFound
		}
		return nil, err
	}
	if sponsor.ID == practitioner.ID {
		return nil, domain.ErrSelfInvite
	}

	existing, err := s.repo.FindOpen(ctx, practitioner.ID, sponsor.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrRelationshipExists
	}

	now := s.clock.Now()
	rel := &domain.Relationship{
		ID:             uuid.New(),
		PractitionerID: practitioner.ID,
		SponsorID:      sponsor.ID,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, rel); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrRelationshipExists
			}
			return err
		}
		if err := s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			OrganizationID: practitioner.OrganizationID,
			Action:         auditdomain.ActionSponsorInvited,
			TargetType:     "sponsor_relationship",
			TargetID:       rel.ID.String(),
			Metadata:       map[string]any{"sponsor_email": sponsor.Email},
		}); err != nil {
			return err
		}
		return s.outbox.Write(ctx, tx, outboxdomain.Message{
			AggregateType: "sponsor_relationship",
			AggregateID:   rel.ID.String(),
			EventType:     domain.EventSponsorInvited,
			Payload:       rel,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.sendInvite(ctx, rel, practitioner, sponsor)
}

func (s *Service) ResendEmail(ctx context.Context, practitionerID, relationshipID uuid.UUID) (*domain.InviteResult, error) {
	rel, err := s.repo.FindByID(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel.PractitionerID != practitionerID {
		return nil, domain.ErrRelationshipNotFound
	}
	if !rel.Status.Acceptable() {
		return nil, domain.ErrInvalidTransition
	}

	practitioner, err := s.profiles.FindByID(ctx, rel.PractitionerID)
	if err != nil {
		return nil, err
	}
	sponsor, err := s.profiles.FindByID(ctx, rel.SponsorID)
	if err != nil {
		return nil, err
	}
	return s.sendInvite(ctx, rel, practitioner, sponsor)
}

func (s *Service) sendInvite(ctx context.Context, rel *domain.Relationship, practitioner, sponsor *profiledomain.Profile) (*domain.InviteResult, error) {
	name := practitioner.DisplayName
	if name == "" {
		name = practitioner.Email
	}
	err := s.email.SendTemplate(ctx, []string{sponsor.Email}, email.TemplateSponsorInvite, map[string]any{
		"practitioner_name": name,
		"accept_url":        s.siteURL + "/sponsors/accept?relationship=" + url.QueryEscape(rel.ID.String()),
	})
	if err != nil {
		s.log.Warn("failed to send sponsor invite email",
			zap.String("relationship_id", rel.ID.String()),
			zap.Error(err),
		)
		return &domain.InviteResult{Relationship: rel, EmailSent: false}, nil
	}

	now := s.clock.Now()
	moved, err := s.repo.Transition(ctx, rel.ID, []domain.Status{domain.StatusPending}, domain.StatusEmailSent, now)
	if err != nil {
		return nil, err
	}
	if moved {
		rel.Status = domain.StatusEmailSent
		rel.EmailSentAt = &now
		rel.UpdatedAt = now
	}
	return &domain.InviteResult{Relationship: rel, EmailSent: true}, nil
}

func (s *Service) Accept(ctx context.Context, sponsorID, relationshipID uuid.UUID) (*domain.Relationship, error) {
	rel, err := s.repo.FindByID(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel.SponsorID != sponsorID {
		return nil, domain.ErrNotRelationshipMember
	}
	if !rel.Status.Acceptable() {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).Transition(ctx, rel.ID,
			[]domain.Status{domain.StatusPending, domain.StatusEmailSent}, domain.StatusActive, now)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition
		}

		if err := s.grantSponsorRole(ctx, tx, sponsorID); err != nil {
			return err
		}
		if err := s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionSponsorAccepted,
			TargetType: "sponsor_relationship",
			TargetID:   rel.ID.String(),
		}); err != nil {
			return err
		}
		return s.outbox.Write(ctx, tx, outboxdomain.Message{
			AggregateType: "sponsor_relationship",
			AggregateID:   rel.ID.String(),
			EventType:     domain.EventSponsorAccepted,
			Payload: map[string]any{
				"id":              rel.ID,
				"practitioner_id": rel.PractitionerID,
				"sponsor_id":      rel.SponsorID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	rel.Status = domain.StatusActive
	rel.AcceptedAt = &now
	rel.UpdatedAt = now
	return rel, nil
}

// grantSponsorRole adds ind-sponsor to the sponsor's canonical roles.
func (s *Service) grantSponsorRole(ctx context.Context, tx *gorm.DB, sponsorID uuid.UUID) error {
	profiles := s.profiles.WithTx(tx)
	sponsor, err := profiles.FindByIDForUpdate(ctx, sponsorID)
	if err != nil {
		return err
	}
	info := sponsor.RoleInfo()
	if info.IsIndividualSponsor && sponsor.Role == nil {
		return nil
	}
	roles := role.Strings(info.Canonical())
	if !slices.Contains(roles, string(role.IndividualSponsor)) {
		roles = append(roles, string(role.IndividualSponsor))
	}
	return profiles.SetRoles(ctx, sponsorID, roles)
}

func (s *Service) Deactivate(ctx context.Context, actorID, relationshipID uuid.UUID) (*domain.Relationship, error) {
	rel, err := s.repo.FindByID(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel.PractitionerID != actorID && rel.SponsorID != actorID {
		return nil, domain.ErrNotRelationshipMember
	}
	if rel.Status == domain.StatusInactive {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).Transition(ctx, rel.ID,
			[]domain.Status{domain.StatusPending, domain.StatusEmailSent, domain.StatusActive}, domain.StatusInactive, now)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition
		}
		if err := s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionSponsorDeactivated,
			TargetType: "sponsor_relationship",
			TargetID:   rel.ID.String(),
			Metadata:   map[string]any{"previous_status": string(rel.Status)},
		}); err != nil {
			return err
		}
		return s.outbox.Write(ctx, tx, outboxdomain.Message{
			AggregateType: "sponsor_relationship",
			AggregateID:   rel.ID.String(),
			EventType:     domain.EventSponsorDeactivated,
			Payload:       map[string]any{"id": rel.ID, "deactivated_by": actorID},
		})
	})
	if err != nil {
		return nil, err
	}

	rel.Status = domain.StatusInactive
	rel.DeactivatedAt = &now
	rel.UpdatedAt = now
	return rel, nil
}

func (s *Service) HardDelete(ctx context.Context, relationshipID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.WithTx(tx).Delete(ctx, relationshipID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrRelationshipNotFound
		}
		return s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionSponsorHardDeleted,
			TargetType: "sponsor_relationship",
			TargetID:   relationshipID.String(),
		})
	})
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.Connection, error) {
	rows, err := s.repo.ListConnections(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Connection{}
	}
	return rows, nil
}

func (s *Service) HasActiveSponsorship(ctx context.Context, sponsorID, practitionerID uuid.UUID) (bool, error) {
	count, err := s.repo.CountActive(ctx, sponsorID, practitionerID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
