package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	assignmentdomain "github.com/smallbiznis/virtuepath/internal/assignment/domain"
	assignmentrepo "github.com/smallbiznis/virtuepath/internal/assignment/repository"
	assignmentservice "github.com/smallbiznis/virtuepath/internal/assignment/service"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/authorization"
	"github.com/smallbiznis/virtuepath/internal/organization/domain"
	"github.com/smallbiznis/virtuepath/internal/organization/repository"
	"github.com/smallbiznis/virtuepath/internal/orgcontext"
	"github.com/smallbiznis/virtuepath/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestService(t *testing.T) (*testutil.Env, domain.Service) {
	t.Helper()
	env := testutil.NewEnv(t, &domain.Organization{}, &assignmentdomain.Assignment{})
	svc := NewService(Params{
		DB:          env.DB,
		Log:         env.Log,
		Clock:       env.Clock,
		Repo:        repository.NewRepository(env.DB),
		Profiles:    env.Profiles,
		Assignments: assignmentrepo.NewRepository(env.DB),
		Audit:       env.Audit,
		Outbox:      env.Outbox,
	})
	return env, svc
}

func seedOrganization(t *testing.T, env *testutil.Env, slug string, maxUsers, active int) *domain.Organization {
	t.Helper()
	now := env.Clock.Now()
	org := &domain.Organization{
		ID:                 uuid.New(),
		Name:               slug,
		Slug:               slug,
		MaxUsers:           maxUsers,
		ActiveUserCount:    active,
		SubscriptionTier:   domain.DefaultSubscriptionTier,
		SubscriptionStatus: domain.SubscriptionActive,
		Settings:           datatypes.JSONMap{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, env.DB.Create(org).Error)
	return org
}

func activeCount(t *testing.T, env *testutil.Env, id uuid.UUID) int {
	t.Helper()
	var org domain.Organization
	require.NoError(t, env.DB.First(&org, "id = ?", id).Error)
	return org.ActiveUserCount
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "saint-johns-center", Slugify("Saint John's Center!!"))
	assert.Equal(t, "organization", Slugify("!!!"))
	assert.Equal(t, "base", NextSlug("base", nil))
	assert.Equal(t, "base-1", NextSlug("base", []string{"base"}))
	assert.Equal(t, "base-3", NextSlug("base", []string{"base", "base-1", "base-2"}))
}

func TestCreateDeduplicatesSlug(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()

	first := env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"ind-practitioner"}})
	org, err := svc.Create(ctx, first.ID, domain.CreateOrganizationRequest{Name: "Saint John's Center!!"})
	require.NoError(t, err)
	assert.Equal(t, "saint-johns-center", org.Slug)
	assert.Equal(t, domain.DefaultMaxUsers, org.MaxUsers)
	assert.Equal(t, 1, activeCount(t, env, org.ID))

	creator, err := env.Profiles.FindByID(ctx, first.ID)
	require.NoError(t, err)
	info := creator.RoleInfo()
	assert.True(t, info.IsOrgAdmin)
	assert.True(t, info.IsIndividualPractitioner)
	assert.True(t, creator.InOrganization(org.ID))

	second := env.CreateProfile(t, testutil.ProfileSpec{})
	dup, err := svc.Create(ctx, second.ID, domain.CreateOrganizationRequest{Name: "Saint John's Center!!"})
	require.NoError(t, err)
	assert.Equal(t, "saint-johns-center-1", dup.Slug)

	assert.EqualValues(t, 2, env.CountOutbox(t, domain.EventOrganizationCreated))
	assert.EqualValues(t, 2, env.CountAudit(t, auditdomain.ActionOrganizationCreated))
}

func TestCreateValidation(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()
	user := env.CreateProfile(t, testutil.ProfileSpec{})

	_, err := svc.Create(ctx, user.ID, domain.CreateOrganizationRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, user.ID, domain.CreateOrganizationRequest{Name: "Ok", MaxUsers: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidMaxUsers)

	existing := seedOrganization(t, env, "existing", 40, 1)
	member := env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &existing.ID, Roles: []string{"org-practitioner"}})
	_, err = svc.Create(ctx, member.ID, domain.CreateOrganizationRequest{Name: "Second"})
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)
}

func TestJoinRejectedAtCapacity(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()
	org := seedOrganization(t, env, "full-house", 40, 40)
	user := env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"ind-practitioner"}})

	_, err := svc.Join(ctx, domain.JoinRequest{OrganizationID: org.ID, UserID: user.ID})
	require.ErrorIs(t, err, domain.ErrCapacityReached)
	assert.Equal(t, 40, activeCount(t, env, org.ID))

	stored, err := env.Profiles.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.OrganizationID)
	assert.EqualValues(t, 0, env.CountOutbox(t, domain.EventMemberJoined))
}

func TestJoinBySlug(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()
	org := seedOrganization(t, env, "harbor", 40, 3)
	user := env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"ind-sponsor"}})

	joined, err := svc.JoinBySlug(ctx, user.ID, " Harbor ")
	require.NoError(t, err)
	assert.Equal(t, org.ID, joined.ID)
	assert.Equal(t, 4, joined.ActiveUserCount)

	stored, err := env.Profiles.FindByID(ctx, user.ID)
	require.NoError(t, err)
	info := stored.RoleInfo()
	assert.True(t, info.IsOrgPractitioner)
	assert.True(t, info.IsIndividualSponsor)

	_, err = svc.JoinBySlug(ctx, user.ID, "harbor")
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	_, err = svc.JoinBySlug(ctx, user.ID, "nowhere")
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	assert.EqualValues(t, 1, env.CountOutbox(t, domain.EventMemberJoined))
	assert.EqualValues(t, 1, env.CountAudit(t, auditdomain.ActionMemberJoined))
}

func TestJoinUnknownOrganization(t *testing.T) {
	env, svc := newTestService(t)
	user := env.CreateProfile(t, testutil.ProfileSpec{})

	_, err := svc.Join(context.Background(), domain.JoinRequest{OrganizationID: uuid.New(), UserID: user.ID})
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()
	org := seedOrganization(t, env, "rush", 20, 10)

	const joiners = 15
	users := make([]uuid.UUID, joiners)
	for i := range users {
		users[i] = env.CreateProfile(t, testutil.ProfileSpec{}).ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for _, id := range users {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			_, err := svc.Join(ctx, domain.JoinRequest{OrganizationID: org.ID, UserID: userID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrCapacityReached):
				rejected++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 10, successes)
	assert.Equal(t, joiners-10, rejected)
	assert.Equal(t, 10+successes, activeCount(t, env, org.ID))
}

func TestLeaveDropsOrganizationRoles(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()
	org := seedOrganization(t, env, "leavers", 40, 1)
	user := env.CreateProfile(t, testutil.ProfileSpec{
		OrganizationID: &org.ID,
		Roles:          []string{"org-coach", "ind-sponsor"},
	})

	require.NoError(t, svc.Leave(ctx, domain.LeaveRequest{UserID: user.ID}))
	assert.Equal(t, 0, activeCount(t, env, org.ID))

	stored, err := env.Profiles.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.OrganizationID)
	assert.Equal(t, []string{"ind-sponsor"}, stored.RoleInfo().Roles)

	assert.ErrorIs(t, svc.Leave(ctx, domain.LeaveRequest{UserID: user.ID}), domain.ErrNotMember)
}

func TestArchiveAndReactivate(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()
	org := seedOrganization(t, env, "archive", 2, 2)
	admin := env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &org.ID, Roles: []string{"org-admin"}})
	member := env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &org.ID, Roles: []string{"org-practitioner"}})

	req := domain.MemberRequest{OrganizationID: org.ID, ActorID: admin.ID, UserID: member.ID}
	require.NoError(t, svc.Archive(ctx, req))
	assert.Equal(t, 1, activeCount(t, env, org.ID))
	assert.ErrorIs(t, svc.Archive(ctx, req), domain.ErrMemberInactive)

	// Fill the freed seat so reactivation hits the limit.
	newcomer := env.CreateProfile(t, testutil.ProfileSpec{})
	_, err := svc.Join(ctx, domain.JoinRequest{OrganizationID: org.ID, UserID: newcomer.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Reactivate(ctx, req), domain.ErrCapacityReached)

	require.NoError(t, svc.Leave(ctx, domain.LeaveRequest{OrganizationID: org.ID, UserID: newcomer.ID}))
	require.NoError(t, svc.Reactivate(ctx, req))
	assert.Equal(t, 2, activeCount(t, env, org.ID))
	assert.ErrorIs(t, svc.Reactivate(ctx, req), domain.ErrMemberAlreadyActive)

	assert.ErrorIs(t, svc.Archive(ctx, domain.MemberRequest{OrganizationID: org.ID, ActorID: admin.ID, UserID: admin.ID}), domain.ErrSelfAction)
}

func TestSetMemberRoles(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()
	org := seedOrganization(t, env, "roles", 40, 2)
	admin := env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &org.ID, Roles: []string{"org-admin"}})
	member := env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &org.ID, Roles: []string{"practitioner", "ind-sponsor"}})

	roles, err := svc.SetMemberRoles(ctx, domain.SetRolesRequest{
		OrganizationID: org.ID, ActorID: admin.ID, UserID: member.ID, Roles: []string{"coach", "org-coach"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ind-sponsor", "org-coach"}, roles)

	_, err = svc.SetMemberRoles(ctx, domain.SetRolesRequest{
		OrganizationID: org.ID, ActorID: admin.ID, UserID: member.ID, Roles: []string{"sys-admin"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = svc.SetMemberRoles(ctx, domain.SetRolesRequest{
		OrganizationID: org.ID, ActorID: admin.ID, UserID: admin.ID, Roles: []string{"org-practitioner"},
	})
	assert.ErrorIs(t, err, domain.ErrLastAdmin)

	assert.EqualValues(t, 1, env.CountAudit(t, auditdomain.ActionMemberRolesChanged))
}

func TestRecountCorrectsDrift(t *testing.T) {
	env, svc := newTestService(t)
	ctx := context.Background()
	org := seedOrganization(t, env, "drift", 40, 7)
	for i := 0; i < 3; i++ {
		env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &org.ID, Roles: []string{"org-practitioner"}})
	}
	env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &org.ID, Roles: []string{"org-practitioner"}, Inactive: true})

	res, err := svc.Recount(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Previous)
	assert.Equal(t, 3, res.Current)
	assert.Equal(t, 3, activeCount(t, env, org.ID))

	all, err := svc.RecountAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, all[0].Previous, all[0].Current)
	assert.EqualValues(t, 1, env.CountAudit(t, auditdomain.ActionCounterReconciled))
}

func TestListMembers(t *testing.T) {
	env, svc := newTestService(t)
	org := seedOrganization(t, env, "listing", 40, 2)
	env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &org.ID, Roles: []string{"org-admin"}})
	env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &org.ID, Roles: []string{"org-therapist"}, Inactive: true})
	env.CreateProfile(t, testutil.ProfileSpec{})

	members, err := svc.ListMembers(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

type noSponsorships struct{}

func (noSponsorships) HasActiveSponsorship(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

// supervisionHarness wires the real assignment and authorization services to
// the organization service under test.
type supervisionHarness struct {
	env         *testutil.Env
	orgs        domain.Service
	assignments assignmentdomain.Service
	authz       authorization.Service
	org         *domain.Organization
}

func newSupervisionHarness(t *testing.T) supervisionHarness {
	t.Helper()
	env, orgs := newTestService(t)
	assignments := assignmentservice.NewService(assignmentservice.Params{
		DB:       env.DB,
		Log:      env.Log,
		Clock:    env.Clock,
		Repo:     assignmentrepo.NewRepository(env.DB),
		Profiles: env.Profiles,
		Audit:    env.Audit,
		Outbox:   env.Outbox,
	})
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		Log:         env.Log,
		Enforcer:    enforcer,
		Context:     orgcontext.NewProvider(orgcontext.Params{Log: env.Log, Profiles: env.Profiles}),
		Supervision: assignments,
		Sponsorship: noSponsorships{},
	})
	return supervisionHarness{
		env:         env,
		orgs:        orgs,
		assignments: assignments,
		authz:       authz,
		org:         seedOrganization(t, env, "supervised", 40, 3),
	}
}

func (h supervisionHarness) member(t *testing.T, roles ...string) uuid.UUID {
	t.Helper()
	orgID := h.org.ID
	return h.env.CreateProfile(t, testutil.ProfileSpec{OrganizationID: &orgID, Roles: roles}).ID
}

func (h supervisionHarness) canRead(coach, practitioner uuid.UUID) bool {
	target := practitioner.String()
	return h.authz.HasPermission(context.Background(), coach, authorization.ResourcePractitionerData, authorization.ActionRead, &target)
}

func TestLeaveEndsSupervisorAccess(t *testing.T) {
	h := newSupervisionHarness(t)
	ctx := context.Background()
	admin := h.member(t, "org-admin")
	coach := h.member(t, "org-coach")
	practitioner := h.member(t, "org-practitioner")

	_, err := h.assignments.Assign(ctx, assignmentdomain.AssignRequest{
		OrganizationID: h.org.ID, ActorID: admin, PractitionerID: practitioner, SupervisorID: coach, SupervisorRole: "coach",
	})
	require.NoError(t, err)
	require.True(t, h.canRead(coach, practitioner))

	require.NoError(t, h.orgs.Leave(ctx, domain.LeaveRequest{UserID: practitioner}))
	assert.False(t, h.canRead(coach, practitioner))

	history, err := h.assignments.History(ctx, practitioner)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active())

	// Rejoining does not revive the old assignment.
	_, err = h.orgs.Join(ctx, domain.JoinRequest{OrganizationID: h.org.ID, UserID: practitioner})
	require.NoError(t, err)
	assert.False(t, h.canRead(coach, practitioner))
}

func TestSupervisorMovingOrganizationsLosesAccess(t *testing.T) {
	h := newSupervisionHarness(t)
	ctx := context.Background()
	coach := h.member(t, "org-coach")
	practitioner := h.member(t, "org-practitioner")
	other := seedOrganization(t, h.env, "elsewhere", 40, 0)

	_, err := h.assignments.Assign(ctx, assignmentdomain.AssignRequest{
		OrganizationID: h.org.ID, PractitionerID: practitioner, SupervisorID: coach, SupervisorRole: "coach",
	})
	require.NoError(t, err)

	require.NoError(t, h.orgs.Leave(ctx, domain.LeaveRequest{UserID: coach}))
	_, err = h.orgs.Join(ctx, domain.JoinRequest{OrganizationID: other.ID, UserID: coach, Roles: []string{"org-coach"}})
	require.NoError(t, err)

	assert.False(t, h.canRead(coach, practitioner))
}

func TestArchiveEndsSupervisorAccess(t *testing.T) {
	h := newSupervisionHarness(t)
	ctx := context.Background()
	admin := h.member(t, "org-admin")
	therapist := h.member(t, "org-therapist")
	practitioner := h.member(t, "org-practitioner")

	_, err := h.assignments.Assign(ctx, assignmentdomain.AssignRequest{
		OrganizationID: h.org.ID, ActorID: admin, PractitionerID: practitioner, SupervisorID: therapist, SupervisorRole: "therapist",
	})
	require.NoError(t, err)
	require.True(t, h.canRead(therapist, practitioner))

	require.NoError(t, h.orgs.Archive(ctx, domain.MemberRequest{OrganizationID: h.org.ID, ActorID: admin, UserID: practitioner}))
	require.NoError(t, h.orgs.Reactivate(ctx, domain.MemberRequest{OrganizationID: h.org.ID, ActorID: admin, UserID: practitioner}))
	assert.False(t, h.canRead(therapist, practitioner))

	history, err := h.assignments.History(ctx, practitioner)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].RemovedBy)
	assert.Equal(t, admin, *history[0].RemovedBy)
}
