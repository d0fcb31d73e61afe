package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	assignmentdomain "github.com/smallbiznis/virtuepath/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/observability/metrics"
	"github.com/smallbiznis/virtuepath/internal/organization/domain"
	outboxdomain "github.com/smallbiznis/virtuepath/internal/outbox/domain"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/internal/role"
	"github.com/smallbiznis/virtuepath/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxNameLength     = 120
	maxUsersCeiling   = 10000
	slugRetryAttempts = 3
	fallbackSlug      = "organization"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        domain.Repository
	Profiles    profiledomain.Repository
	Assignments assignmentdomain.Repository
	Audit       auditdomain.Service
	Outbox      outboxdomain.Writer
	Metrics     *metrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	profiles    profiledomain.Repository
	assignments assignmentdomain.Repository
	audit       auditdomain.Service
	outbox      outboxdomain.Writer
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("organization.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		profiles:    p.Profiles,
		assignments: p.Assignments,
		audit:       p.Audit,
		outbox:      p.Outbox,
		metrics:     p.Metrics,
	}
}

func (s *service) Create(ctx context.Context, creatorID uuid.UUID, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	if creatorID == uuid.Nil {
		return nil, domain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, domain.ErrInvalidName
	}
	maxUsers := req.MaxUsers
	if maxUsers == 0 {
		maxUsers = domain.DefaultMaxUsers
	}
	if maxUsers < 1 || maxUsers > maxUsersCeiling {
		return nil, domain.ErrInvalidMaxUsers
	}

	for attempt := 0; attempt < slugRetryAttempts; attempt++ {
		orgSlug, err := s.uniqueSlug(ctx, name)
		if err != nil {
			return nil, err
		}

		now := s.clock.Now()
		org := &domain.Organization{
			ID:                 uuid.New(),
			Name:               name,
			Slug:               orgSlug,
			MaxUsers:           maxUsers,
			SubscriptionTier:   domain.DefaultSubscriptionTier,
			SubscriptionStatus: domain.SubscriptionActive,
			Settings:           datatypes.JSONMap{},
			CreatedBy:          &creatorID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.provision(ctx, tx, org, creatorID)
		})
		if err == nil {
			org.ActiveUserCount = 1
			s.metrics.RecordMembershipEvent(ctx, "organization_created")
			s.log.Info("organization created",
				zap.String("organization_id", org.ID.String()),
				zap.String("slug", org.Slug),
			)
			return org, nil
		}
		// Another request took the slug between the lookup and the insert.
		if db.IsDuplicateKeyErr(err) {
			continue
		}
		return nil, err
	}
	return nil, domain.ErrSlugUnavailable
}

func (s *service) provision(ctx context.Context, tx *gorm.DB, org *domain.Organization, creatorID uuid.UUID) error {
	orgs := s.repo.WithTx(tx)
	profiles := s.profiles.WithTx(tx)

	creator, err := profiles.FindByIDForUpdate(ctx, creatorID)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileNotFound) {
			return domain.ErrInvalidUser
		}
		return err
	}
	if creator.OrganizationID != nil {
		return domain.ErrAlreadyMember
	}

	if err := orgs.CreateOrganization(ctx, org); err != nil {
		return err
	}
	if ok, err := orgs.IncrementActive(ctx, org.ID); err != nil {
		return err
	} else if !ok {
		return domain.ErrCapacityReached
	}
	if err := profiles.SetMembership(ctx, creatorID, &org.ID, true); err != nil {
		return err
	}
	if err := profiles.SetRoles(ctx, creatorID, withOrganizationRoles(creator, []role.Role{role.OrgAdmin})); err != nil {
		return err
	}

	if err := s.audit.RecordTx(ctx, tx, auditdomain.Entry{
		OrganizationID: &org.ID,
		ActorType:      auditdomain.ActorUser,
		ActorID:        creatorID.String(),
		Action:         auditdomain.ActionOrganizationCreated,
		TargetType:     "organization",
		TargetID:       org.ID.String(),
		Metadata:       map[string]any{"name": org.Name, "slug": org.Slug, "max_users": org.MaxUsers},
	}); err != nil {
		return err
	}
	return s.outbox.Write(ctx, tx, outboxdomain.Message{
		AggregateType: "organization",
		AggregateID:   org.ID.String(),
		EventType:     domain.EventOrganizationCreated,
		Payload: map[string]any{
			"organization_id": org.ID,
			"slug":            org.Slug,
			"created_by":      creatorID,
			"max_users":       org.MaxUsers,
		},
	})
}

// uniqueSlug derives the slug from name and appends the smallest free numeric
// suffix when the base is taken.
func (s *service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := Slugify(name)
	taken, err := s.repo.SlugsWithPrefix(ctx, base)
	if err != nil {
		return "", err
	}
	return NextSlug(base, taken), nil
}

// Slugify turns an organization name into its base slug. Apostrophes are
// dropped rather than turned into separators.
func Slugify(name string) string {
	cleaned := slug.Substitute(name, map[string]string{"'": "", "’": "", "`": ""})
	base := slug.Make(cleaned)
	if base == "" {
		return fallbackSlug
	}
	return base
}

// NextSlug returns base, or base-N for the smallest N >= 1 not in taken.
func NextSlug(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		used[t] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base
	}
	for n := 1; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	if id == uuid.Nil {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.FindByID(ctx, id)
}

func (s *service) JoinBySlug(ctx context.Context, userID uuid.UUID, orgSlug string) (*domain.Organization, error) {
	orgSlug = strings.ToLower(strings.TrimSpace(orgSlug))
	if orgSlug == "" {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindBySlug(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	return s.Join(ctx, domain.JoinRequest{OrganizationID: org.ID, UserID: userID})
}

func (s *service) Join(ctx context.Context, req domain.JoinRequest) (*domain.Organization, error) {
	if req.UserID == uuid.Nil {
		return nil, domain.ErrInvalidUser
	}
	if req.OrganizationID == uuid.Nil {
		return nil, domain.ErrInvalidOrganization
	}
	roles, err := parseOrganizationRoles(req.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []role.Role{role.OrgPractitioner}
	}

	var org *domain.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orgs := s.repo.WithTx(tx)
		profiles := s.profiles.WithTx(tx)

		profile, err := profiles.FindByIDForUpdate(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, profiledomain.ErrProfileNotFound) {
				return domain.ErrInvalidUser
			}
			return err
		}
		if profile.OrganizationID != nil {
			return domain.ErrAlreadyMember
		}

		ok, err := orgs.IncrementActive(ctx, req.OrganizationID)
		if err != nil {
			return err
		}
		if !ok {
			// Either the organization is full or it does not exist.
			if _, err := orgs.FindByID(ctx, req.OrganizationID); err != nil {
				return err
			}
			return domain.ErrCapacityReached
		}

		if err := profiles.SetMembership(ctx, req.UserID, &req.OrganizationID, true); err != nil {
			return err
		}
		if err := profiles.SetRoles(ctx, req.UserID, withOrganizationRoles(profile, roles)); err != nil {
			return err
		}
		if err := s.recordMembership(ctx, tx, req.OrganizationID, req.UserID,
			auditdomain.ActionMemberJoined, domain.EventMemberJoined,
			map[string]any{"roles": role.Strings(roles)},
		); err != nil {
			return err
		}

		org, err = orgs.FindByID(ctx, req.OrganizationID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrCapacityReached) {
			s.metrics.RecordMembershipEvent(ctx, "join_rejected_capacity")
		}
		return nil, err
	}

	s.metrics.RecordMembershipEvent(ctx, "joined")
	s.log.Info("member joined organization",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.Int("active_user_count", org.ActiveUserCount),
	)
	return org, nil
}

func (s *service) Leave(ctx context.Context, req domain.LeaveRequest) error {
	if req.UserID == uuid.Nil {
		return domain.ErrInvalidUser
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orgs := s.repo.WithTx(tx)
		profiles := s.profiles.WithTx(tx)

		profile, err := profiles.FindByIDForUpdate(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, profiledomain.ErrProfileNotFound) {
				return domain.ErrInvalidUser
			}
			return err
		}
		if profile.OrganizationID == nil {
			return domain.ErrNotMember
		}
		orgID := *profile.OrganizationID
		if req.OrganizationID != uuid.Nil && req.OrganizationID != orgID {
			return domain.ErrNotMember
		}

		if profile.IsActive {
			if _, err := orgs.DecrementActive(ctx, orgID); err != nil {
				return err
			}
		}
		closed, err := s.assignments.WithTx(tx).CloseForMember(ctx, orgID, req.UserID, nil, s.clock.Now())
		if err != nil {
			return err
		}
		if err := profiles.SetMembership(ctx, req.UserID, nil, true); err != nil {
			return err
		}
		if err := profiles.SetRoles(ctx, req.UserID, withOrganizationRoles(profile, nil)); err != nil {
			return err
		}
		return s.recordMembership(ctx, tx, orgID, req.UserID,
			auditdomain.ActionMemberLeft, domain.EventMemberLeft,
			map[string]any{"was_active": profile.IsActive, "assignments_closed": closed},
		)
	})
	if err != nil {
		return err
	}
	s.metrics.RecordMembershipEvent(ctx, "left")
	return nil
}

func (s *service) Archive(ctx context.Context, req domain.MemberRequest) error {
	if req.ActorID == req.UserID {
		return domain.ErrSelfAction
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := s.profiles.WithTx(tx)
		profile, err := s.loadMember(ctx, profiles, req.OrganizationID, req.UserID)
		if err != nil {
			return err
		}
		if !profile.IsActive {
			return domain.ErrMemberInactive
		}
		if profile.RoleInfo().IsOrgAdmin {
			if err := s.ensureAnotherAdmin(ctx, profiles, req.OrganizationID, req.UserID); err != nil {
				return err
			}
		}

		if _, err := s.repo.WithTx(tx).DecrementActive(ctx, req.OrganizationID); err != nil {
			return err
		}
		closed, err := s.assignments.WithTx(tx).CloseForMember(ctx, req.OrganizationID, req.UserID, optionalID(req.ActorID), s.clock.Now())
		if err != nil {
			return err
		}
		if err := profiles.SetActive(ctx, req.UserID, false); err != nil {
			return err
		}
		return s.recordMembership(ctx, tx, req.OrganizationID, req.UserID,
			auditdomain.ActionMemberArchived, domain.EventMemberArchived,
			map[string]any{"assignments_closed": closed})
	})
	if err != nil {
		return err
	}
	s.metrics.RecordMembershipEvent(ctx, "archived")
	return nil
}

func (s *service) Reactivate(ctx context.Context, req domain.MemberRequest) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := s.profiles.WithTx(tx)
		profile, err := s.loadMember(ctx, profiles, req.OrganizationID, req.UserID)
		if err != nil {
			return err
		}
		if profile.IsActive {
			return domain.ErrMemberAlreadyActive
		}

		ok, err := s.repo.WithTx(tx).IncrementActive(ctx, req.OrganizationID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCapacityReached
		}
		if err := profiles.SetActive(ctx, req.UserID, true); err != nil {
			return err
		}
		return s.recordMembership(ctx, tx, req.OrganizationID, req.UserID,
			auditdomain.ActionMemberReactivated, domain.EventMemberReactivated, nil)
	})
	if err != nil {
		return err
	}
	s.metrics.RecordMembershipEvent(ctx, "reactivated")
	return nil
}

func (s *service) SetMemberRoles(ctx context.Context, req domain.SetRolesRequest) ([]string, error) {
	roles, err := parseOrganizationRoles(req.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, domain.ErrInvalidRole
	}

	var stored []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := s.profiles.WithTx(tx)
		profile, err := s.loadMember(ctx, profiles, req.OrganizationID, req.UserID)
		if err != nil {
			return err
		}

		keepsAdmin := false
		for _, r := range roles {
			if r == role.OrgAdmin {
				keepsAdmin = true
			}
		}
		if profile.RoleInfo().IsOrgAdmin && !keepsAdmin && profile.IsActive {
			if err := s.ensureAnotherAdmin(ctx, profiles, req.OrganizationID, req.UserID); err != nil {
				return err
			}
		}

		before := profile.RoleInfo().Roles
		stored = withOrganizationRoles(profile, roles)
		if err := profiles.SetRoles(ctx, req.UserID, stored); err != nil {
			return err
		}
		return s.recordMembership(ctx, tx, req.OrganizationID, req.UserID,
			auditdomain.ActionMemberRolesChanged, domain.EventMemberRolesChanged,
			map[string]any{"before": before, "after": stored},
		)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *service) ListMembers(ctx context.Context, organizationID uuid.UUID) ([]domain.Member, error) {
	if organizationID == uuid.Nil {
		return nil, domain.ErrInvalidOrganization
	}
	rows, err := s.profiles.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	members := make([]domain.Member, 0, len(rows))
	for _, p := range rows {
		members = append(members, domain.Member{
			UserID:      p.ID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			Roles:       p.RoleInfo().Roles,
			IsActive:    p.IsActive,
			UpdatedAt:   p.UpdatedAt,
		})
	}
	return members, nil
}

func (s *service) Recount(ctx context.Context, organizationID uuid.UUID) (domain.RecountResult, error) {
	result := domain.RecountResult{OrganizationID: organizationID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orgs := s.repo.WithTx(tx)
		org, err := orgs.LockByID(ctx, organizationID)
		if err != nil {
			return err
		}
		count, err := s.profiles.WithTx(tx).CountActiveByOrganization(ctx, organizationID)
		if err != nil {
			return err
		}

		result.Previous = org.ActiveUserCount
		result.Current = int(count)
		if result.Previous == result.Current {
			return nil
		}
		if err := orgs.SetActiveCount(ctx, organizationID, result.Current); err != nil {
			return err
		}
		return s.audit.RecordTx(ctx, tx, auditdomain.Entry{
			OrganizationID: &organizationID,
			Action:         auditdomain.ActionCounterReconciled,
			TargetType:     "organization",
			TargetID:       organizationID.String(),
			Metadata:       map[string]any{"previous": result.Previous, "current": result.Current},
		})
	})
	if err != nil {
		return result, err
	}
	if result.Previous != result.Current {
		s.log.Warn("active_user_count drift corrected",
			zap.String("organization_id", organizationID.String()),
			zap.Int("previous", result.Previous),
			zap.Int("current", result.Current),
		)
	}
	return result, nil
}

func (s *service) RecountAll(ctx context.Context) ([]domain.RecountResult, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]domain.RecountResult, 0, len(ids))
	for _, id := range ids {
		res, err := s.Recount(ctx, id)
		if err != nil {
			return results, fmt.Errorf("recount %s: %w", id, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *service) loadMember(ctx context.Context, profiles profiledomain.Repository, organizationID, userID uuid.UUID) (*profiledomain.Profile, error) {
	profile, err := profiles.FindByIDForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileNotFound) {
			return nil, domain.ErrNotMember
		}
		return nil, err
	}
	if !profile.InOrganization(organizationID) {
		return nil, domain.ErrNotMember
	}
	return profile, nil
}

// ensureAnotherAdmin fails when userID is the organization's only active admin.
func (s *service) ensureAnotherAdmin(ctx context.Context, profiles profiledomain.Repository, organizationID, userID uuid.UUID) error {
	members, err := profiles.ListByOrganization(ctx, organizationID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.ID != userID && m.IsActive && m.RoleInfo().IsOrgAdmin {
			return nil
		}
	}
	return domain.ErrLastAdmin
}

func (s *service) recordMembership(ctx context.Context, tx *gorm.DB, organizationID, userID uuid.UUID, action, eventType string, metadata map[string]any) error {
	if err := s.audit.RecordTx(ctx, tx, auditdomain.Entry{
		OrganizationID: &organizationID,
		Action:         action,
		TargetType:     "profile",
		TargetID:       userID.String(),
		Metadata:       metadata,
	}); err != nil {
		return err
	}
	return s.outbox.Write(ctx, tx, outboxdomain.Message{
		AggregateType: "organization",
		AggregateID:   organizationID.String(),
		EventType:     eventType,
		Payload: map[string]any{
			"organization_id": organizationID,
			"user_id":         userID,
		},
	})
}

// parseOrganizationRoles accepts canonical or legacy names but only from the
// organization namespace.
func parseOrganizationRoles(raw []string) ([]role.Role, error) {
	out := make([]role.Role, 0, len(raw))
	seen := map[role.Role]struct{}{}
	for _, name := range raw {
		r, _, err := role.Parse(name)
		if err != nil || r.Namespace() != role.NamespaceOrganization {
			return nil, domain.ErrInvalidRole
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// withOrganizationRoles keeps the profile's system and individual roles,
// replaces its organization roles with orgRoles and returns canonical names.
// A profile left with no role at all falls back to ind-practitioner.
func withOrganizationRoles(profile *profiledomain.Profile, orgRoles []role.Role) []string {
	var out []role.Role
	for _, r := range profile.RoleInfo().Canonical() {
		if r.Namespace() != role.NamespaceOrganization {
			out = append(out, r)
		}
	}
	out = append(out, orgRoles...)
	if len(out) == 0 {
		out = []role.Role{role.IndividualPractitioner}
	}
	return role.Strings(out)
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
