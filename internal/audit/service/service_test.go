package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/audit/repository"
	"github.com/smallbiznis/virtuepath/internal/clock"
	obscontext "github.com/smallbiznis/virtuepath/internal/observability/context"
	dbpkg "github.com/smallbiznis/virtuepath/pkg/db"
	"github.com/smallbiznis/virtuepath/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	db := dbpkg.NewTest(t, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	return NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}), clk
}

func TestRecord(t *testing.T) {
	svc, _ := newTestService(t)
	orgID := uuid.New()

	ctx := obscontext.WithActor(context.Background(), auditdomain.ActorUser, "user-1")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	err := svc.Record(ctx, auditdomain.Entry{
		OrganizationID: &orgID,
		Action:         auditdomain.ActionSponsorInvited,
		TargetType:     "sponsor_relationship",
		TargetID:       "rel-1",
		Metadata:       map[string]any{"sponsor_email": "sam@example.org"},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListRequest{OrganizationID: &orgID})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, auditdomain.ActorUser, entry.ActorType)
	assert.Equal(t, "user-1", *entry.ActorID)
	assert.Equal(t, "req-1", *entry.RequestID)
	assert.Equal(t, "s****@example.org", entry.Metadata["sponsor_email"])
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Record(context.Background(), auditdomain.Entry{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginates(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: auditdomain.ActionMemberJoined}))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListRequest{Pagination: pagination.Pagination{PageSize: 3}})
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 3)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, auditdomain.ListRequest{Pagination: pagination.Pagination{PageSize: 3, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 2)
	assert.False(t, second.HasMore)
	assert.True(t, second.AuditLogs[0].CreatedAt.Before(first.AuditLogs[2].CreatedAt))

	_, err = svc.List(ctx, auditdomain.ListRequest{Pagination: pagination.Pagination{PageToken: "garbage!"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
