package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/assignment/domain"
	"github.com/smallbiznis/virtuepath/internal/assignment/repository"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	env          *testutil.Env
	svc          domain.Service
	orgID        uuid.UUID
	practitioner uuid.UUID
	coach        uuid.UUID
	therapist    uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	env := testutil.NewEnv(t, &domain.Assignment{})
	orgID := uuid.New()

	svc := NewService(Params{
		DB:       env.DB,
		Log:      env.Log,
		Clock:    env.Clock,
		Repo:     repository.NewRepository(env.DB),
		Profiles: env.Profiles,
		Audit:    env.Audit,
		Outbox:   env.Outbox,
	})

	return fixture{
		env:          env,
		svc:          svc,
		orgID:        orgID,
		practitioner: env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &orgID}).ID,
		coach:        env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"coach"}, OrganizationID: &orgID}).ID,
		therapist:    env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-therapist"}, OrganizationID: &orgID}).ID,
	}
}

func TestAssignReplacesActiveAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := f.orgID
	secondCoach := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-coach"}, OrganizationID: &orgID}).ID

	first, err := f.svc.Assign(ctx, domain.AssignRequest{
		OrganizationID: f.orgID, PractitionerID: f.practitioner, SupervisorID: f.coach, SupervisorRole: "coach", Reason: "intake",
	})
	require.NoError(t, err)
	assert.True(t, first.Active())

	f.env.Clock.Advance(time.Hour)
	_, err = f.svc.Assign(ctx, domain.AssignRequest{
		OrganizationID: f.orgID, PractitionerID: f.practitioner, SupervisorID: secondCoach, SupervisorRole: "coach",
	})
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, domain.AssignRequest{
		OrganizationID: f.orgID, PractitionerID: f.practitioner, SupervisorID: f.therapist, SupervisorRole: "therapist",
	})
	require.NoError(t, err)

	history, err := f.svc.History(ctx, f.practitioner)
	require.NoError(t, err)
	require.Len(t, history, 3)

	active := 0
	for _, a := range history {
		if a.Active() {
			active++
		}
	}
	assert.Equal(t, 2, active, "one coach and one therapist stay active")

	ok, err := f.svc.HasActiveSupervision(ctx, f.orgID, f.coach, f.practitioner, []string{"coach"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.HasActiveSupervision(ctx, f.orgID, secondCoach, f.practitioner, []string{"coach"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.HasActiveSupervision(ctx, f.orgID, secondCoach, f.practitioner, []string{"therapist"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int64(3), f.env.CountOutbox(t, domain.EventAssignmentCreated))
	assert.Equal(t, int64(3), f.env.CountAudit(t, auditdomain.ActionAssignmentCreated))
}

func TestAssignValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-coach"}}).ID

	cases := []struct {
		name string
		req  domain.AssignRequest
		want error
	}{
		{"unknown role", domain.AssignRequest{PractitionerID: f.practitioner, SupervisorID: f.coach, SupervisorRole: "mentor"}, domain.ErrInvalidSupervisorRole},
		{"self", domain.AssignRequest{PractitionerID: f.coach, SupervisorID: f.coach, SupervisorRole: "coach"}, domain.ErrSelfAssignment},
		{"role mismatch", domain.AssignRequest{PractitionerID: f.practitioner, SupervisorID: f.coach, SupervisorRole: "therapist"}, domain.ErrInvalidSupervisor},
		{"supervisor outside org", domain.AssignRequest{PractitionerID: f.practitioner, SupervisorID: outsider, SupervisorRole: "coach"}, domain.ErrInvalidSupervisor},
		{"unknown practitioner", domain.AssignRequest{PractitionerID: uuid.New(), SupervisorID: f.coach, SupervisorRole: "coach"}, domain.ErrInvalidPractitioner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.OrganizationID = f.orgID
			_, err := f.svc.Assign(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Assign(ctx, domain.AssignRequest{
		OrganizationID: f.orgID, PractitionerID: f.practitioner, SupervisorID: f.therapist, SupervisorRole: "therapist",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, domain.RemoveRequest{OrganizationID: f.orgID, AssignmentID: a.ID, ActorID: f.coach}))
	assert.ErrorIs(t, f.svc.Remove(ctx, domain.RemoveRequest{OrganizationID: f.orgID, AssignmentID: a.ID}), domain.ErrAssignmentAlreadyRemoved)
	assert.ErrorIs(t, f.svc.Remove(ctx, domain.RemoveRequest{OrganizationID: uuid.New(), AssignmentID: a.ID}), domain.ErrAssignmentNotFound)

	history, err := f.svc.History(ctx, f.practitioner)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].RemovedAt)
	assert.Equal(t, f.coach, *history[0].RemovedBy)
}

func TestSupervisionIsScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Assign(ctx, domain.AssignRequest{
		OrganizationID: f.orgID, PractitionerID: f.practitioner, SupervisorID: f.coach, SupervisorRole: "coach",
	})
	require.NoError(t, err)

	ok, err := f.svc.HasActiveSupervision(ctx, f.orgID, f.coach, f.practitioner, []string{"coach"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.HasActiveSupervision(ctx, uuid.New(), f.coach, f.practitioner, []string{"coach"})
	require.NoError(t, err)
	assert.False(t, ok, "an assignment made in another organization never counts")

	ok, err = f.svc.HasActiveSupervision(ctx, uuid.Nil, f.coach, f.practitioner, []string{"coach"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseForMemberEndsBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := repository.NewRepository(f.env.DB)
	orgID := f.orgID
	other := f.env.CreateProfile(t, testutil.ProfileSpec{Roles: []string{"org-practitioner"}, OrganizationID: &orgID}).ID

	_, err := f.svc.Assign(ctx, domain.AssignRequest{
		OrganizationID: f.orgID, PractitionerID: f.practitioner, SupervisorID: f.coach, SupervisorRole: "coach",
	})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, domain.AssignRequest{
		OrganizationID: f.orgID, PractitionerID: other, SupervisorID: f.coach, SupervisorRole: "coach",
	})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, domain.AssignRequest{
		OrganizationID: f.orgID, PractitionerID: other, SupervisorID: f.therapist, SupervisorRole: "therapist",
	})
	require.NoError(t, err)

	closed, err := repo.CloseForMember(ctx, f.orgID, f.coach, nil, f.env.Clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, closed)

	for _, practitioner := range []uuid.UUID{f.practitioner, other} {
		ok, err := f.svc.HasActiveSupervision(ctx, f.orgID, f.coach, practitioner, []string{"coach"})
		require.NoError(t, err)
		assert.False(t, ok)
	}
	ok, err := f.svc.HasActiveSupervision(ctx, f.orgID, f.therapist, other, []string{"therapist"})
	require.NoError(t, err)
	assert.True(t, ok, "assignments of other members stay open")
}
