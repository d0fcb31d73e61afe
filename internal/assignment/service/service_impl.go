package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/clock"
	outboxdomain "github.com/smallbiznis/virtuepath/internal/outbox/domain"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxReasonLength = 500

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Profiles profiledomain.Repository
	Audit    auditdomain.Service
	Outbox   outboxdomain.Writer
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	profiles profiledomain.Repository
	audit    auditdomain.Service
	outbox   outboxdomain.Writer
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("assignment.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		profiles: p.Profiles,
		audit:    p.Audit,
		outbox:   p.Outbox,
	}
}

func (s *Service) Assign(ctx context.Context, req domain.AssignRequest) (*domain.Assignment, error) {
	supervisorRole := strings.ToLower(strings.TrimSpace(req.SupervisorRole))
	required, ok := role.ForSupervisor(supervisorRole)
	if !ok {
		return nil, domain.ErrInvalidSupervisorRole
	}
	if req.PractitionerID == uuid.Nil {
		return nil, domain.ErrInvalidPractitioner
	}
	if req.SupervisorID == uuid.Nil {
		return nil, domain.ErrInvalidSupervisor
	}
	if req.PractitionerID == req.SupervisorID {
		return nil, domain.ErrSelfAssignment
	}
	reason := strings.TrimSpace(req.Reason)
	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength]
	}

	practitioner, err := s.memberOf(ctx, req.OrganizationID, req.PractitionerID)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileNotFound) {
			return nil, domain.ErrInvalidPractitioner
		}
		return nil, err
	}
	if practitioner == nil {
		return nil, domain.ErrInvalidPractitioner
	}
	supervisor, err := s.memberOf(ctx, req.OrganizationID, req.SupervisorID)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileNotFound) {
			return nil, domain.ErrInvalidSupervisor
		}
		return nil, err
	}
	if supervisor == nil || !supervisor.RoleInfo().Has(required) {
		return nil, domain.ErrInvalidSupervisor
	}

	now := s.clock.Now()
	actor := optionalID(req.ActorID)
	assignment := &domain.Assignment{
		ID:             uuid.New(),
		OrganizationID: req.OrganizationID,
		PractitionerID: req.PractitionerID,
		SupervisorID:   req.SupervisorID,
		SupervisorRole: supervisorRole,
		Reason:         reason,
		AssignedBy:     actor,
		AssignedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		replaced, err := repo.CloseActive(ctx, req.PractitionerID, supervisorRole, actor, now)
		if err != nil {
			return err
		}
		if err := repo.Insert(ctx, assignment); err != nil {
			return err
		}
		if err := s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			OrganizationID: &req.OrganizationID,
			Action:         auditdomain.ActionAssignmentCreated,
			TargetType:     "supervisor_assignment",
			TargetID:       assignment.ID.String(),
			Metadata: map[string]any{
				"practitioner_id": req.PractitionerID.String(),
				"supervisor_id":   req.SupervisorID.String(),
				"supervisor_role": supervisorRole,
				"replaced":        replaced,
			},
		}); err != nil {
			return err
		}
		return s.outbox.Write(ctx, tx, outboxdomain.Message{
			AggregateType: "supervisor_assignment",
			AggregateID:   assignment.ID.String(),
			EventType:     domain.EventAssignmentCreated,
			Payload:       assignment,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("supervisor assigned",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("assignment_id", assignment.ID.String()),
		zap.String("supervisor_role", supervisorRole),
	)
	return assignment, nil
}

func (s *Service) Remove(ctx context.Context, req domain.RemoveRequest) error {
	existing, err := s.repo.FindByID(ctx, req.OrganizationID, req.AssignmentID)
	if err != nil {
		return err
	}
	if !existing.Active() {
		return domain.ErrAssignmentAlreadyRemoved
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).Remove(ctx, existing.ID, optionalID(req.ActorID), now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrAssignmentAlreadyRemoved
		}
		if err := s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			OrganizationID: &req.OrganizationID,
			Action:         auditdomain.ActionAssignmentRemoved,
			TargetType:     "supervisor_assignment",
			TargetID:       existing.ID.String(),
		}); err != nil {
			return err
		}
		return s.outbox.Write(ctx, tx, outboxdomain.Message{
			AggregateType: "supervisor_assignment",
			AggregateID:   existing.ID.String(),
			EventType:     domain.EventAssignmentRemoved,
			Payload: map[string]any{
				"id":              existing.ID,
				"practitioner_id": existing.PractitionerID,
				"removed_at":      now,
			},
		})
	})
}

func (s *Service) History(ctx context.Context, practitionerID uuid.UUID) ([]domain.Assignment, error) {
	if practitionerID == uuid.Nil {
		return nil, domain.ErrInvalidPractitioner
	}
	rows, err := s.repo.ListByPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Assignment{}
	}
	return rows, nil
}

func (s *Service) HasActiveSupervision(ctx context.Context, organizationID, supervisorID, practitionerID uuid.UUID, supervisorRoles []string) (bool, error) {
	count, err := s.repo.CountActive(ctx, organizationID, supervisorID, practitionerID, supervisorRoles)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// memberOf returns nil when the profile exists outside the organization or
// is archived.
func (s *Service) memberOf(ctx context.Context, organizationID, userID uuid.UUID) (*profiledomain.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !profile.InOrganization(organizationID) || !profile.IsActive {
		return nil, nil
	}
	return profile, nil
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
