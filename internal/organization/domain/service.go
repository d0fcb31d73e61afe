package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Service interface {
	// Create provisions an organization with the caller as its first admin.
	Create(ctx context.Context, creatorID uuid.UUID, req CreateOrganizationRequest) (*Organization, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	JoinBySlug(ctx context.Context, userID uuid.UUID, slug string) (*Organization, error)
	Join(ctx context.Context, req JoinRequest) (*Organization, error)
	Leave(ctx context.Context, req LeaveRequest) error
	Archive(ctx context.Context, req MemberRequest) error
	Reactivate(ctx context.Context, req MemberRequest) error
	SetMemberRoles(ctx context.Context, req SetRolesRequest) ([]string, error)
	ListMembers(ctx context.Context, organizationID uuid.UUID) ([]Member, error)
	// Recount rewrites active_user_count from the active member profiles.
	Recount(ctx context.Context, organizationID uuid.UUID) (RecountResult, error)
	RecountAll(ctx context.Context) ([]RecountResult, error)
}

type CreateOrganizationRequest struct {
	Name     string
	MaxUsers int
}

type JoinRequest struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	// Roles defaults to org-practitioner.
	Roles []string
}

type LeaveRequest struct {
	// OrganizationID may be Nil to leave whatever organization the user is in.
	OrganizationID uuid.UUID
	UserID         uuid.UUID
}

type MemberRequest struct {
	OrganizationID uuid.UUID
	ActorID        uuid.UUID
	UserID         uuid.UUID
}

type SetRolesRequest struct {
	OrganizationID uuid.UUID
	ActorID        uuid.UUID
	UserID         uuid.UUID
	Roles          []string
}

type RecountResult struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Previous       int       `json:"previous"`
	Current        int       `json:"current"`
}

const (
	EventOrganizationCreated = "organization.created"
	EventMemberJoined        = "organization.member_joined"
	EventMemberLeft          = "organization.member_left"
	EventMemberArchived      = "organization.member_archived"
	EventMemberReactivated   = "organization.member_reactivated"
	EventMemberRolesChanged  = "organization.member_roles_changed"
)

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidMaxUsers      = errors.New("invalid_max_users")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrCapacityReached      = errors.New("organization_capacity_reached")
	ErrAlreadyMember        = errors.New("already_member")
	ErrNotMember            = errors.New("not_member")
	ErrMemberInactive       = errors.New("member_inactive")
	ErrMemberAlreadyActive  = errors.New("member_already_active")
	ErrSelfAction           = errors.New("self_action")
	ErrLastAdmin            = errors.New("last_admin")
	ErrSlugUnavailable      = errors.New("slug_unavailable")
)
