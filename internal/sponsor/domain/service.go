package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Service interface {
	// Invite creates a pending relationship and emails the sponsor. A failed
	// email leaves the relationship pending; Resend retries it.
	Invite(ctx context.Context, req InviteRequest) (*InviteResult, error)
	ResendEmail(ctx context.Context, practitionerID, relationshipID uuid.UUID) (*InviteResult, error)
	Accept(ctx context.Context, sponsorID, relationshipID uuid.UUID) (*Relationship, error)
	Deactivate(ctx context.Context, actorID, relationshipID uuid.UUID) (*Relationship, error)
	HardDelete(ctx context.Context, relationshipID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID) ([]Connection, error)
	HasActiveSponsorship(ctx context.Context, sponsorID, practitionerID uuid.UUID) (bool, error)
}

type InviteRequest struct {
	PractitionerID uuid.UUID
	SponsorEmail   string
}

type InviteResult struct {
	Relationship *Relationship `json:"relationship"`
	EmailSent    bool          `json:"email_sent"`
}

const (
	EventSponsorInvited     = "sponsor.invited"
	EventSponsorAccepted    = "sponsor.accepted"
	EventSponsorDeactivated = "sponsor.deactivated"
)

var (
	ErrSponsorNotFound       = errors.New("sponsor_not_found")
	ErrSelfInvite            = errors.New("self_invite")
	ErrRelationshipExists    = errors.New("relationship_exists")
	ErrRelationshipNotFound  = errors.New("relationship_not_found")
	ErrInvalidTransition     = errors.New("invalid_relationship_transition")
	ErrInvalidEmail          = errors.New("invalid_email")
	ErrNotRelationshipMember = errors.New("not_relationship_member")
)
