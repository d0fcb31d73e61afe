package authorization

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/orgcontext"
	"github.com/smallbiznis/virtuepath/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSupervision struct{ mock.Mock }

func (m *mockSupervision) HasActiveSupervision(ctx context.Context, organizationID, supervisorID, practitionerID uuid.UUID, roles []string) (bool, error) {
	args := m.Called(organizationID, supervisorID, practitionerID, roles)
	return args.Bool(0), args.Error(1)
}

type mockSponsorship struct{ mock.Mock }

func (m *mockSponsorship) HasActiveSponsorship(ctx context.Context, sponsorID, practitionerID uuid.UUID) (bool, error) {
	args := m.Called(sponsorID, practitionerID)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	env         *testutil.Env
	svc         *ServiceImpl
	supervision *mockSupervision
	sponsorship *mockSponsorship
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)

	supervision := &mockSupervision{}
	sponsorship := &mockSponsorship{}
	svc := NewService(Params{
		Log:         env.Log,
		Enforcer:    enforcer,
		Context:     orgcontext.NewProvider(orgcontext.Params{Log: env.Log, Profiles: env.Profiles}),
		Supervision: supervision,
		Sponsorship: sponsorship,
		AuditSvc:    env.Audit,
	})
	return fixture{env: env, svc: svc, supervision: supervision, sponsorship: sponsorship}
}

func ref(id uuid.UUID) *string {
	s := id.String()
	return &s
}

func TestSelfAccessAlwaysGranted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noRoles := f.env.CreateProfile(t, testutil.ProfileSpec{})
	assert.True(t, f.svc.HasPermission(ctx, noRoles.ID, ResourcePractitionerData, ActionRead, ref(noRoles.ID)))
	assert.True(t, f.svc.HasPermission(ctx, noRoles.ID, ResourceJournal, ActionWrite, ref(noRoles.ID)))

	// No profile row at all.
	ghost := uuid.New()
	assert.True(t, f.svc.HasPermission(ctx, ghost, ResourcePractitionerData, ActionRead, ref(ghost)))
	assert.False(t, f.svc.HasPermission(ctx, ghost, ResourceJournal, ActionRead, nil))
}

type failingLoader struct{}

func (failingLoader) LoadPrincipal(context.Context, uuid.UUID) (*orgcontext.Principal, error) {
	return nil, errors.New("db unavailable")
}

func (failingLoader) GetOrganizationContext(context.Context, uuid.UUID) (*orgcontext.OrganizationContext, error) {
	return nil, errors.New("db unavailable")
}

func TestContextFailureDeniesEverything(t *testing.T) {
	f := newFixture(t)
	f.svc.context = failingLoader{}
	userID := uuid.New()

	assert.False(t, f.svc.HasPermission(context.Background(), userID, ResourcePractitionerData, ActionRead, ref(userID)))

	results := f.svc.HasPermissions(context.Background(), userID, []Check{
		{Resource: ResourceJournal, Action: ActionRead},
		{Resource: ResourceOrganization, Action: ActionRead},
	})
	assert.Equal(t, []bool{false, false}, results)
	assert.Equal(t, int64(3), f.env.CountAudit(t, auditdomain.ActionAccessDenied))
}

func TestOrganizationAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID, otherOrg := uuid.New(), uuid.New()

	admin := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"admin"}, OrganizationID: &orgID})
	member := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &orgID})
	outsider := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &otherOrg})

	assert.True(t, f.svc.HasPermission(ctx, admin.ID, ResourceOrganizationMembers, ActionManage, nil))
	assert.True(t, f.svc.HasPermission(ctx, admin.ID, ResourceOrganization, ActionRead, ref(orgID)))
	assert.False(t, f.svc.HasPermission(ctx, admin.ID, ResourceOrganization, ActionRead, ref(otherOrg)))
	assert.True(t, f.svc.HasPermission(ctx, admin.ID, ResourcePractitionerData, ActionRead, ref(member.ID)))
	assert.False(t, f.svc.HasPermission(ctx, admin.ID, ResourcePractitionerData, ActionRead, ref(outsider.ID)))
	assert.False(t, f.svc.HasPermission(ctx, admin.ID, ResourceAdmin, ActionManage, nil))
}

func TestOrganizationRolesNeedActiveMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := uuid.New()

	archived := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-admin"}, OrganizationID: &orgID, Inactive: true})
	detached := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-admin"}})

	assert.False(t, f.svc.HasPermission(ctx, archived.ID, ResourceOrganization, ActionRead, nil))
	assert.False(t, f.svc.HasPermission(ctx, detached.ID, ResourceOrganization, ActionRead, nil))
}

func TestPractitionerCannotReadPeers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := uuid.New()

	a := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &orgID})
	b := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &orgID})

	assert.True(t, f.svc.HasPermission(ctx, a.ID, ResourceJournal, ActionWrite, nil))
	assert.False(t, f.svc.HasPermission(ctx, a.ID, ResourceJournal, ActionRead, ref(b.ID)))
	assert.False(t, f.svc.HasPermission(ctx, a.ID, ResourcePractitionerData, ActionRead, ref(b.ID)))
}

func TestSupervisorAssignmentGrantsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := uuid.New()

	coach := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-coach"}, OrganizationID: &orgID})
	assigned := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &orgID}).ID
	unassigned := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &orgID}).ID

	f.supervision.On("HasActiveSupervision", orgID, coach.ID, assigned, []string{"coach"}).Return(true, nil)
	f.supervision.On("HasActiveSupervision", orgID, coach.ID, unassigned, []string{"coach"}).Return(false, nil)

	assert.True(t, f.svc.HasPermission(ctx, coach.ID, ResourcePractitionerData, ActionRead, ref(assigned)))
	assert.False(t, f.svc.HasPermission(ctx, coach.ID, ResourcePractitionerData, ActionRead, ref(unassigned)))
	assert.False(t, f.svc.HasPermission(ctx, coach.ID, ResourcePractitionerData, "write", ref(assigned)))
	f.supervision.AssertExpectations(t)
}

func TestSupervisionLookupErrorDenies(t *testing.T) {
	f := newFixture(t)
	orgID := uuid.New()
	therapist := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"therapist"}, OrganizationID: &orgID})
	target := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &orgID}).ID
	f.supervision.On("HasActiveSupervision", orgID, therapist.ID, target, []string{"therapist"}).Return(false, errors.New("timeout"))

	assert.False(t, f.svc.HasPermission(context.Background(), therapist.ID, ResourcePractitionerData, ActionRead, ref(target)))
}

func TestSupervisionIgnoredOutsideSupervisorOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID, otherOrg := uuid.New(), uuid.New()

	coach := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-coach"}, OrganizationID: &orgID})
	departed := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"ind-practitioner"}})
	elsewhere := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &otherOrg})

	// No expectations: the assignment table is never consulted for these.
	assert.False(t, f.svc.HasPermission(ctx, coach.ID, ResourcePractitionerData, ActionRead, ref(departed.ID)))
	assert.False(t, f.svc.HasPermission(ctx, coach.ID, ResourcePractitionerData, ActionRead, ref(elsewhere.ID)))
	assert.False(t, f.svc.HasPermission(ctx, coach.ID, ResourcePractitionerData, ActionRead, ref(uuid.New())))
	f.supervision.AssertNotCalled(t, "HasActiveSupervision", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSponsorRelationshipGrantsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sponsor := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"sponsor"}})
	practitioner := uuid.New()

	f.sponsorship.On("HasActiveSponsorship", sponsor.ID, practitioner).Return(true, nil)

	assert.True(t, f.svc.HasPermission(ctx, sponsor.ID, ResourcePractitionerData, ActionRead, ref(practitioner)))
	assert.False(t, f.svc.HasPermission(ctx, sponsor.ID, ResourceJournal, ActionWrite, nil))
	assert.True(t, f.svc.HasPermission(ctx, sponsor.ID, ResourceSponsorRelationship, ActionWrite, nil))
}

func TestSystemAdminAndBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"sys-admin"}})
	practitioner := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"ind-practitioner"}})

	results := f.svc.HasPermissions(ctx, root.ID, []Check{
		{Resource: ResourceAdmin, Action: ActionManage},
		{Resource: ResourcePractitionerData, Action: ActionRead, ResourceID: ref(practitioner.ID)},
		{Resource: ResourceAudit, Action: ActionRead},
	})
	assert.Equal(t, []bool{true, true, true}, results)

	results = f.svc.HasPermissions(ctx, practitioner.ID, []Check{
		{Resource: ResourceJournal, Action: ActionRead},
		{Resource: ResourceAdmin, Action: ActionManage},
		{Resource: "", Action: ActionRead},
	})
	assert.Equal(t, []bool{true, false, false}, results)
	assert.Equal(t, int64(2), f.env.CountAudit(t, auditdomain.ActionAccessDenied))
}

func TestSeedPoliciesRemovesStaleRules(t *testing.T) {
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	_, err = enforcer.AddPolicy("role:org-coach", ResourceAdmin, ActionManage)
	require.NoError(t, err)

	require.NoError(t, seedPolicies(enforcer))
	ok, err := enforcer.Enforce("role:org-coach", ResourceAdmin, ActionManage)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = enforcer.Enforce("role:org-coach", ResourceOrganization, ActionRead)
	require.NoError(t, err)
	assert.True(t, ok)
}
