// Package role defines the canonical role enum and maps stored profile roles
// (legacy bare names and namespaced names) onto it.
package role

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// Namespace groups roles by the scope they apply to.
type Namespace string

const (
	NamespaceSystem       Namespace = "sys"
	NamespaceOrganization Namespace = "org"
	NamespaceIndividual   Namespace = "ind"
)

// Role is a canonical, namespaced role name.
type Role string

const (
	SystemAdmin            Role = "sys-admin"
	OrgAdmin               Role = "org-admin"
	OrgCoach               Role = "org-coach"
	OrgTherapist           Role = "org-therapist"
	OrgPractitioner        Role = "org-practitioner"
	IndividualSponsor      Role = "ind-sponsor"
	IndividualPractitioner Role = "ind-practitioner"
)

var ErrUnknownRole = errors.New("unknown_role")

var canonical = map[Role]Namespace{
	SystemAdmin:            NamespaceSystem,
	OrgAdmin:               NamespaceOrganization,
	OrgCoach:               NamespaceOrganization,
	OrgTherapist:           NamespaceOrganization,
	OrgPractitioner:        NamespaceOrganization,
	IndividualSponsor:      NamespaceIndividual,
	IndividualPractitioner: NamespaceIndividual,
}

// legacyAliases maps pre-namespace names. "practitioner" only ever meant the
// organization variant; there is no legacy spelling of ind-practitioner.
var legacyAliases = map[string]Role{
	"admin":        OrgAdmin,
	"coach":        OrgCoach,
	"therapist":    OrgTherapist,
	"practitioner": OrgPractitioner,
	"sponsor":      IndividualSponsor,
}

// All lists every canonical role in a stable order.
func All() []Role {
	return []Role{
		SystemAdmin,
		OrgAdmin,
		OrgCoach,
		OrgTherapist,
		OrgPractitioner,
		IndividualSponsor,
		IndividualPractitioner,
	}
}

// Parse resolves a stored role name, canonical or legacy. The second result
// reports whether raw was a legacy alias.
func Parse(raw string) (Role, bool, error) {
	name := normalizeName(raw)
	if _, ok := canonical[Role(name)]; ok {
		return Role(name), false, nil
	}
	if r, ok := legacyAliases[name]; ok {
		return r, true, nil
	}
	return "", false, fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

// MustParse is Parse for compile-time constants in tests and seeds.
func MustParse(raw string) Role {
	r, _, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Role) String() string { return string(r) }

func (r Role) Valid() bool {
	_, ok := canonical[r]
	return ok
}

func (r Role) Namespace() Namespace {
	return canonical[r]
}

// SupervisorRole is the assignment supervisor_role a role may act as, if any.
func (r Role) SupervisorRole() (string, bool) {
	switch r {
	case OrgCoach:
		return SupervisorCoach, true
	case OrgTherapist:
		return SupervisorTherapist, true
	default:
		return "", false
	}
}

// Value stores the canonical name.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, string(r))
	}
	return string(r), nil
}

// Scan accepts canonical and legacy names.
func (r *Role) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("role: unsupported scan type %T", src)
	}
	parsed, _, err := Parse(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, _, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

const (
	SupervisorCoach     = "coach"
	SupervisorTherapist = "therapist"
)

// ValidSupervisorRole reports whether s is an assignment supervisor_role.
func ValidSupervisorRole(s string) bool {
	return s == SupervisorCoach || s == SupervisorTherapist
}

// ForSupervisor returns the organization role required to supervise as s.
func ForSupervisor(s string) (Role, bool) {
	switch s {
	case SupervisorCoach:
		return OrgCoach, true
	case SupervisorTherapist:
		return OrgTherapist, true
	default:
		return "", false
	}
}

// normalizeName only trims. Stored names are matched case-sensitively so
// "Admin" or "ORG-ADMIN" never resolve to a role.
func normalizeName(raw string) string {
	return strings.TrimSpace(raw)
}
