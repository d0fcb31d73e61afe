package orgcontext

import (
	"context"
	"errors"

	"github.com/google/uuid"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Principal is the access-relevant slice of a profile row.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	Roles          role.RoleInfo
	IsActive       bool
}

// OrganizationContext is a Principal known to belong to an organization.
type OrganizationContext struct {
	UserID         uuid.UUID     `json:"user_id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	Roles          role.RoleInfo `json:"roles"`
	IsActive       bool          `json:"is_active"`
}

// Loader is what the permission resolver and the HTTP guard depend on.
type Loader interface {
	LoadPrincipal(ctx context.Context, userID uuid.UUID) (*Principal, error)
	GetOrganizationContext(ctx context.Context, userID uuid.UUID) (*OrganizationContext, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Profiles profiledomain.Repository
}

// Provider re-reads the profile row on every call. Nothing is cached.
type Provider struct {
	log      *zap.Logger
	profiles profiledomain.Repository
}

func NewProvider(p Params) *Provider {
	return &Provider{
		log:      p.Log.Named("orgcontext.provider"),
		profiles: p.Profiles,
	}
}

// LoadPrincipal returns nil without error when the user has no profile.
func (p *Provider) LoadPrincipal(ctx context.Context, userID uuid.UUID) (*Principal, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	profile, err := p.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileNotFound) {
			return nil, nil
		}
		p.log.Warn("failed to load principal", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}
	return &Principal{
		UserID:         profile.ID,
		OrganizationID: profile.OrganizationID,
		Roles:          profile.RoleInfo(),
		IsActive:       profile.IsActive,
	}, nil
}

// GetOrganizationContext returns nil without error when the user has no
// profile or no organization.
func (p *Provider) GetOrganizationContext(ctx context.Context, userID uuid.UUID) (*OrganizationContext, error) {
	principal, err := p.LoadPrincipal(ctx, userID)
	if err != nil || principal == nil {
		return nil, err
	}
	return principal.OrganizationContext(), nil
}

// OrganizationContext narrows the principal, or returns nil without an org.
func (pr *Principal) OrganizationContext() *OrganizationContext {
	if pr == nil || pr.OrganizationID == nil {
		return nil
	}
	return &OrganizationContext{
		UserID:         pr.UserID,
		OrganizationID: *pr.OrganizationID,
		Roles:          pr.Roles,
		IsActive:       pr.IsActive,
	}
}

var _ Loader = (*Provider)(nil)

var Module = fx.Module("orgcontext",
	fx.Provide(NewProvider),
	fx.Provide(func(p *Provider) Loader { return p }),
)
