package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseUserRolesEmpty(t *testing.T) {
	info := ParseUserRoles(ProfileRoles{})

	assert.Equal(t, RoleInfo{Roles: []string{}}, info)
	assert.NotNil(t, info.Roles)
	assert.Empty(t, info.Canonical())
}

func TestParseUserRolesLegacyAliases(t *testing.T) {
	cases := []struct {
		name  string
		input ProfileRoles
		check func(t *testing.T, info RoleInfo)
	}{
		{
			name:  "legacy admin in role column",
			input: ProfileRoles{Role: strPtr("admin")},
			check: func(t *testing.T, info RoleInfo) {
				assert.True(t, info.IsOrgAdmin)
				assert.True(t, info.HasOrganizationalRole)
				assert.False(t, info.IsSystemAdmin)
			},
		},
		{
			name:  "namespaced org-admin",
			input: ProfileRoles{Roles: []string{"org-admin"}},
			check: func(t *testing.T, info RoleInfo) { assert.True(t, info.IsOrgAdmin) },
		},
		{
			name:  "legacy sponsor",
			input: ProfileRoles{Roles: []string{"sponsor"}},
			check: func(t *testing.T, info RoleInfo) {
				assert.True(t, info.IsIndividualSponsor)
				assert.True(t, info.HasIndividualRole)
				assert.False(t, info.HasOrganizationalRole)
			},
		},
		{
			name:  "namespaced ind-sponsor",
			input: ProfileRoles{Roles: []string{"ind-sponsor"}},
			check: func(t *testing.T, info RoleInfo) { assert.True(t, info.IsIndividualSponsor) },
		},
		{
			name:  "legacy practitioner is organizational only",
			input: ProfileRoles{Role: strPtr("practitioner")},
			check: func(t *testing.T, info RoleInfo) {
				assert.True(t, info.IsOrgPractitioner)
				assert.False(t, info.IsIndividualPractitioner)
			},
		},
		{
			name:  "coach and therapist aliases",
			input: ProfileRoles{Roles: []string{"coach", "therapist"}},
			check: func(t *testing.T, info RoleInfo) {
				assert.True(t, info.IsOrgCoach)
				assert.True(t, info.IsOrgTherapist)
			},
		},
		{
			name:  "system admin has no alias",
			input: ProfileRoles{Roles: []string{"sys-admin"}},
			check: func(t *testing.T, info RoleInfo) {
				assert.True(t, info.IsSystemAdmin)
				assert.False(t, info.HasOrganizationalRole)
				assert.False(t, info.HasIndividualRole)
			},
		},
		{
			name:  "names are case sensitive",
			input: ProfileRoles{Role: strPtr("Admin"), Roles: []string{"ORG-ADMIN", "Sys-Admin", "Coach"}},
			check: func(t *testing.T, info RoleInfo) {
				assert.Equal(t, []string{"ORG-ADMIN", "Sys-Admin", "Coach", "Admin"}, info.Roles)
				assert.Empty(t, info.Canonical())
				assert.False(t, info.IsOrgAdmin)
				assert.False(t, info.IsSystemAdmin)
				assert.False(t, info.HasOrganizationalRole)
			},
		},
		{
			name:  "unknown names set no flag",
			input: ProfileRoles{Roles: []string{"superuser"}},
			check: func(t *testing.T, info RoleInfo) {
				assert.Equal(t, []string{"superuser"}, info.Roles)
				assert.Empty(t, info.Canonical())
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, ParseUserRoles(tc.input))
		})
	}
}

func TestParseUserRolesDeduplicates(t *testing.T) {
	info := ParseUserRoles(ProfileRoles{
		Role:  strPtr("coach"),
		Roles: []string{"org-admin", "coach", " org-admin "},
	})

	assert.Equal(t, []string{"org-admin", "coach"}, info.Roles)
	assert.Equal(t, []Role{OrgAdmin, OrgCoach}, info.Canonical())
}

func TestParseUserRolesIdempotent(t *testing.T) {
	inputs := []ProfileRoles{
		{},
		{Role: strPtr("admin")},
		{Role: strPtr("sponsor"), Roles: []string{"ind-practitioner"}},
		{Roles: []string{"coach", "org-coach", "therapist", "sys-admin"}},
		{Role: strPtr("practitioner"), Roles: []string{"unknown", "ind-sponsor"}},
	}

	for _, input := range inputs {
		first := ParseUserRoles(input)
		second := ParseUserRoles(ProfileRoles{Roles: first.Roles})
		assert.Equal(t, first, second)

		canonicalOnly := ParseUserRoles(ProfileRoles{Roles: Strings(first.Canonical())})
		first.Roles, canonicalOnly.Roles = nil, nil
		assert.Equal(t, first, canonicalOnly)
	}
}

func TestNormalize(t *testing.T) {
	roles, dropped, changed := Normalize(ProfileRoles{Role: strPtr("admin"), Roles: []string{"coach", "legacy-thing"}})
	assert.Equal(t, []string{"org-coach", "org-admin"}, roles)
	assert.Equal(t, []string{"legacy-thing"}, dropped)
	assert.True(t, changed)

	roles, dropped, changed = Normalize(ProfileRoles{Roles: []string{"org-coach", "org-admin"}})
	assert.Equal(t, []string{"org-coach", "org-admin"}, roles)
	assert.Empty(t, dropped)
	assert.False(t, changed)
}

func TestParse(t *testing.T) {
	r, legacy, err := Parse(" therapist ")
	require.NoError(t, err)
	assert.Equal(t, OrgTherapist, r)
	assert.True(t, legacy)
	assert.Equal(t, NamespaceOrganization, r.Namespace())

	_, _, err = Parse("root")
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, _, err = Parse("ORG-ADMIN")
	assert.ErrorIs(t, err, ErrUnknownRole)

	supervisor, ok := OrgCoach.SupervisorRole()
	assert.True(t, ok)
	assert.Equal(t, SupervisorCoach, supervisor)

	_, ok = IndividualSponsor.SupervisorRole()
	assert.False(t, ok)
}
