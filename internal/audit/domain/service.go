package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	ActorUser   = "user"
	ActorSystem = "system"
)

const (
	ActionAccessDenied           = "access.denied"
	ActionOrganizationCreated    = "organization.created"
	ActionMemberJoined           = "organization.member_joined"
	ActionMemberLeft             = "organization.member_left"
	ActionMemberArchived         = "organization.member_archived"
	ActionMemberReactivated      = "organization.member_reactivated"
	ActionMemberRolesChanged     = "organization.member_roles_changed"
	ActionCounterReconciled      = "organization.counter_reconciled"
	ActionAssignmentCreated      = "assignment.created"
	ActionAssignmentRemoved      = "assignment.removed"
	ActionSponsorInvited         = "sponsor.invited"
	ActionSponsorAccepted        = "sponsor.accepted"
	ActionSponsorDeactivated     = "sponsor.deactivated"
	ActionSponsorHardDeleted     = "sponsor.hard_deleted"
	ActionRolesNormalized        = "profile.roles_normalized"
	ActionPasswordResetRequested = "auth.password_reset_requested"
)

// Entry is what callers hand to Record. Empty actor fields are filled from
// the request context.
type Entry struct {
	OrganizationID *uuid.UUID
	ActorType      string
	ActorID        string
	Action         string
	TargetType     string
	TargetID       string
	Metadata       map[string]any
}

type ListRequest struct {
	pagination.Pagination
	OrganizationID *uuid.UUID
	Action         string
}

type ListResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	// RecordTx writes the entry inside the caller's transaction.
	RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

// Position is the (created_at, id) of the last row already returned.
type Position struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrganizationID *uuid.UUID
	Action         string
	After          *Position
	Limit          int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
