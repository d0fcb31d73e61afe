package authorization

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const (
	ResourceOrganization        = "organization"
	ResourceOrganizationMembers = "organization_members"
	ResourceAssignment          = "assignment"
	ResourcePractitionerData    = "practitioner_data"
	ResourceJournal             = "journal"
	ResourceProfile             = "profile"
	ResourceSponsorRelationship = "sponsor_relationship"
	ResourcePayment             = "payment"
	ResourceAudit               = "audit"
	ResourceAdmin               = "admin"
)

const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionManage = "manage"
)

// Check is one (resource, action, resourceID) question.
type Check struct {
	Resource   string  `json:"resource"`
	Action     string  `json:"action"`
	ResourceID *string `json:"resource_id,omitempty"`
}

// Service answers permission questions. It never returns an error: any
// failure while resolving is a denial.
type Service interface {
	HasPermission(ctx context.Context, userID uuid.UUID, resource, action string, resourceID *string) bool
	// HasPermissions loads the caller once; if that fails every entry is false.
	HasPermissions(ctx context.Context, userID uuid.UUID, checks []Check) []bool
}

// SupervisionChecker reports active coach/therapist assignments.
type SupervisionChecker interface {
	HasActiveSupervision(ctx context.Context, organizationID, supervisorID, practitionerID uuid.UUID, supervisorRoles []string) (bool, error)
}

// SponsorshipChecker reports active sponsor relationships.
type SponsorshipChecker interface {
	HasActiveSponsorship(ctx context.Context, sponsorID, practitionerID uuid.UUID) (bool, error)
}

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidCheck = errors.New("invalid_permission_check")
)

// practitionerScoped resources are owned by a single practitioner; the owner
// always has access to their own.
func practitionerScoped(resource string) bool {
	switch resource {
	case ResourcePractitionerData, ResourceJournal, ResourceProfile:
		return true
	}
	return false
}

// organizationScoped resources are identified by an organization id.
func organizationScoped(resource string) bool {
	switch resource {
	case ResourceOrganization, ResourceOrganizationMembers, ResourceAssignment, ResourceAudit:
		return true
	}
	return false
}
