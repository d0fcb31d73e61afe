package authorization

import (
	"context"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/observability/metrics"
	"github.com/smallbiznis/virtuepath/internal/orgcontext"
	"github.com/smallbiznis/virtuepath/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Enforcer    *casbin.SyncedEnforcer
	Context     orgcontext.Loader
	Supervision SupervisionChecker
	Sponsorship SponsorshipChecker
	AuditSvc    auditdomain.Service `optional:"true"`
	Metrics     *metrics.Metrics    `optional:"true"`
}

type ServiceImpl struct {
	log         *zap.Logger
	enforcer    *casbin.SyncedEnforcer
	context     orgcontext.Loader
	supervision SupervisionChecker
	sponsorship SponsorshipChecker
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) *ServiceImpl {
	return &ServiceImpl{
		log:         p.Log.Named("authorization.service"),
		enforcer:    p.Enforcer,
		context:     p.Context,
		supervision: p.Supervision,
		sponsorship: p.Sponsorship,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (s *ServiceImpl) HasPermission(ctx context.Context, userID uuid.UUID, resource, action string, resourceID *string) bool {
	return s.HasPermissions(ctx, userID, []Check{{Resource: resource, Action: action, ResourceID: resourceID}})[0]
}

func (s *ServiceImpl) HasPermissions(ctx context.Context, userID uuid.UUID, checks []Check) []bool {
	results := make([]bool, len(checks))
	if len(checks) == 0 {
		return results
	}

	principal, err := s.context.LoadPrincipal(ctx, userID)
	if err != nil {
		s.log.Warn("permission context lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		for _, check := range checks {
			s.deny(ctx, userID, nil, check, "context_unavailable")
		}
		return results
	}

	for i, check := range checks {
		results[i] = s.Evaluate(ctx, userID, principal, check)
	}
	return results
}

// Evaluate resolves one check against an already loaded principal. A nil
// principal (no profile) still gets self access.
func (s *ServiceImpl) Evaluate(ctx context.Context, userID uuid.UUID, principal *orgcontext.Principal, check Check) bool {
	check.Resource = strings.TrimSpace(check.Resource)
	check.Action = strings.TrimSpace(check.Action)
	if userID == uuid.Nil || check.Resource == "" || check.Action == "" {
		s.deny(ctx, userID, principal, check, "invalid_check")
		return false
	}

	target, hasTarget := resourceTarget(check.ResourceID)

	if hasTarget && practitionerScoped(check.Resource) && target == userID {
		s.grant(ctx, check)
		return true
	}
	if principal == nil {
		s.deny(ctx, userID, principal, check, "no_profile")
		return false
	}

	ok, err := s.staticGrant(ctx, principal, check, target, hasTarget)
	if err != nil {
		s.log.Warn("static permission check failed", zap.String("resource", check.Resource), zap.Error(err))
		s.deny(ctx, userID, principal, check, "lookup_failed")
		return false
	}
	if ok {
		s.grant(ctx, check)
		return true
	}

	if hasTarget && check.Resource == ResourcePractitionerData && check.Action == ActionRead {
		ok, err := s.relationshipGrant(ctx, principal, target)
		if err != nil {
			s.log.Warn("relationship check failed", zap.Error(err))
			s.deny(ctx, userID, principal, check, "lookup_failed")
			return false
		}
		if ok {
			s.grant(ctx, check)
			return true
		}
	}

	s.deny(ctx, userID, principal, check, "no_matching_grant")
	return false
}

// staticGrant consults the role table for each canonical role the principal
// holds. Organization roles only count for an active member and only inside
// their own organization.
func (s *ServiceImpl) staticGrant(ctx context.Context, principal *orgcontext.Principal, check Check, target uuid.UUID, hasTarget bool) (bool, error) {
	var targetOrg *uuid.UUID
	targetLoaded := false

	for _, r := range principal.Roles.Canonical() {
		allowed, err := s.enforcer.Enforce(subject(r), check.Resource, check.Action)
		if err != nil {
			return false, err
		}
		if !allowed {
			continue
		}
		if r.Namespace() != role.NamespaceOrganization {
			if r.Namespace() == role.NamespaceIndividual && hasTarget && practitionerScoped(check.Resource) {
				// Individual roles only ever act on their own records.
				continue
			}
			return true, nil
		}

		if principal.OrganizationID == nil || !principal.IsActive {
			continue
		}
		if !hasTarget {
			return true, nil
		}
		if organizationScoped(check.Resource) {
			if target == *principal.OrganizationID {
				return true, nil
			}
			continue
		}
		if practitionerScoped(check.Resource) {
			// Only organization admins act on other members' records.
			if r != role.OrgAdmin {
				continue
			}
			if !targetLoaded {
				targetPrincipal, err := s.context.LoadPrincipal(ctx, target)
				if err != nil {
					return false, err
				}
				if targetPrincipal != nil {
					targetOrg = targetPrincipal.OrganizationID
				}
				targetLoaded = true
			}
			if targetOrg != nil && *targetOrg == *principal.OrganizationID {
				return true, nil
			}
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *ServiceImpl) relationshipGrant(ctx context.Context, principal *orgcontext.Principal, practitionerID uuid.UUID) (bool, error) {
	if principal.OrganizationID != nil && principal.IsActive {
		var supervisorRoles []string
		for _, r := range principal.Roles.Canonical() {
			if sr, ok := r.SupervisorRole(); ok {
				supervisorRoles = append(supervisorRoles, sr)
			}
		}
		if len(supervisorRoles) > 0 {
			ok, err := s.supervises(ctx, *principal.OrganizationID, principal.UserID, practitionerID, supervisorRoles)
			if err != nil || ok {
				return ok, err
			}
		}
	}

	if principal.Roles.IsIndividualSponsor {
		return s.sponsorship.HasActiveSponsorship(ctx, principal.UserID, practitionerID)
	}
	return false, nil
}

// supervises only honours an assignment made in the supervisor's current
// organization for a practitioner who is still a member of it.
func (s *ServiceImpl) supervises(ctx context.Context, organizationID, supervisorID, practitionerID uuid.UUID, supervisorRoles []string) (bool, error) {
	target, err := s.context.LoadPrincipal(ctx, practitionerID)
	if err != nil {
		return false, err
	}
	if target == nil || target.OrganizationID == nil || *target.OrganizationID != organizationID {
		return false, nil
	}
	return s.supervision.HasActiveSupervision(ctx, organizationID, supervisorID, practitionerID, supervisorRoles)
}

func (s *ServiceImpl) grant(ctx context.Context, check Check) {
	s.metrics.RecordAccessDecision(ctx, check.Resource, check.Action, true)
}

func (s *ServiceImpl) deny(ctx context.Context, userID uuid.UUID, principal *orgcontext.Principal, check Check, reason string) {
	s.metrics.RecordAccessDecision(ctx, check.Resource, check.Action, false)
	if s.auditSvc == nil {
		return
	}

	metadata := map[string]any{
		"resource": check.Resource,
		"action":   check.Action,
		"reason":   reason,
	}
	if check.ResourceID != nil {
		metadata["resource_id"] = *check.ResourceID
	}
	var orgID *uuid.UUID
	if principal != nil {
		orgID = principal.OrganizationID
	}
	actorID := ""
	if userID != uuid.Nil {
		actorID = userID.String()
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		OrganizationID: orgID,
		ActorType:      auditdomain.ActorUser,
		ActorID:        actorID,
		Action:         auditdomain.ActionAccessDenied,
		TargetType:     check.Resource,
		TargetID:       stringValue(check.ResourceID),
		Metadata:       metadata,
	})
}

func resourceTarget(resourceID *string) (uuid.UUID, bool) {
	if resourceID == nil {
		return uuid.Nil, false
	}
	raw := strings.TrimSpace(*resourceID)
	if raw == "" {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		// Still a target, but one that matches nothing.
		return uuid.Nil, true
	}
	return parsed, true
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

var _ Service = (*ServiceImpl)(nil)
