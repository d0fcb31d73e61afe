package role

import "strings"

// ProfileRoles is the raw role data stored on a profile row.
type ProfileRoles struct {
	Role  *string
	Roles []string
}

// RoleInfo is the capability summary derived from a profile's roles.
type RoleInfo struct {
	// Roles is the de-duplicated union of Roles and Role, in input order.
	Roles []string `json:"roles"`

	IsSystemAdmin            bool `json:"is_system_admin"`
	IsOrgAdmin               bool `json:"is_org_admin"`
	IsOrgCoach               bool `json:"is_org_coach"`
	IsOrgTherapist           bool `json:"is_org_therapist"`
	IsOrgPractitioner        bool `json:"is_org_practitioner"`
	IsIndividualSponsor      bool `json:"is_individual_sponsor"`
	IsIndividualPractitioner bool `json:"is_individual_practitioner"`

	HasOrganizationalRole bool `json:"has_organizational_role"`
	HasIndividualRole     bool `json:"has_individual_role"`
}

// ParseUserRoles never fails: unknown names stay in Roles but set no flag.
func ParseUserRoles(p ProfileRoles) RoleInfo {
	info := RoleInfo{Roles: []string{}}

	seen := make(map[string]struct{}, len(p.Roles)+1)
	add := func(raw string) {
		name := strings.TrimSpace(raw)
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		info.Roles = append(info.Roles, name)
	}
	for _, r := range p.Roles {
		add(r)
	}
	if p.Role != nil {
		add(*p.Role)
	}

	for _, r := range info.Canonical() {
		switch r {
		case SystemAdmin:
			info.IsSystemAdmin = true
		case OrgAdmin:
			info.IsOrgAdmin = true
		case OrgCoach:
			info.IsOrgCoach = true
		case OrgTherapist:
			info.IsOrgTherapist = true
		case OrgPractitioner:
			info.IsOrgPractitioner = true
		case IndividualSponsor:
			info.IsIndividualSponsor = true
		case IndividualPractitioner:
			info.IsIndividualPractitioner = true
		}
	}
	info.HasOrganizationalRole = info.IsOrgAdmin || info.IsOrgCoach || info.IsOrgTherapist || info.IsOrgPractitioner
	info.HasIndividualRole = info.IsIndividualSponsor || info.IsIndividualPractitioner

	return info
}

// Canonical returns the recognised roles in Roles mapped onto the enum,
// de-duplicated (legacy "admin" and "org-admin" collapse to one entry).
func (i RoleInfo) Canonical() []Role {
	out := make([]Role, 0, len(i.Roles))
	seen := make(map[Role]struct{}, len(i.Roles))
	for _, raw := range i.Roles {
		r, _, err := Parse(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Has reports whether r is among the canonical roles.
func (i RoleInfo) Has(r Role) bool {
	for _, held := range i.Canonical() {
		if held == r {
			return true
		}
	}
	return false
}

// Normalize rewrites raw profile roles into canonical names only and reports
// names it could not map. changed is false when the stored value is already
// canonical, so the legacy role migration can skip no-op writes.
func Normalize(p ProfileRoles) (roles []string, dropped []string, changed bool) {
	info := ParseUserRoles(p)
	for _, raw := range info.Roles {
		if _, _, err := Parse(raw); err != nil {
			dropped = append(dropped, raw)
		}
	}
	roles = Strings(info.Canonical())

	changed = p.Role != nil || len(roles) != len(p.Roles)
	for idx := 0; !changed && idx < len(roles); idx++ {
		changed = roles[idx] != p.Roles[idx]
	}
	return roles, dropped, changed
}

// Strings converts roles into their stored names.
func Strings(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.String())
	}
	return out
}
