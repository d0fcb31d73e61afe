// Package testutil wires the shared persistence collaborators (profiles,
// audit, outbox) over an in-memory database for service tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	auditrepo "github.com/smallbiznis/virtuepath/internal/audit/repository"
	auditservice "github.com/smallbiznis/virtuepath/internal/audit/service"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/outbox"
	outboxdomain "github.com/smallbiznis/virtuepath/internal/outbox/domain"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	profilerepo "github.com/smallbiznis/virtuepath/internal/profile/repository"
	dbpkg "github.com/smallbiznis/virtuepath/pkg/db"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type Env struct {
	DB       *gorm.DB
	Log      *zap.Logger
	Clock    *clock.FakeClock
	Node     *snowflake.Node
	Audit    auditdomain.Service
	Outbox   outboxdomain.Writer
	Profiles profiledomain.Repository
}

// NewEnv migrates profiles, audit logs and outbox events plus models.
func NewEnv(t testing.TB, models ...interface{}) *Env {
	t.Helper()

	all := append([]interface{}{
		&profiledomain.Profile{},
		&auditdomain.AuditLog{},
		&outboxdomain.Event{},
	}, models...)
	db := dbpkg.NewTest(t, all...)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	return &Env{
		DB:    db,
		Log:   log,
		Clock: clk,
		Node:  node,
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
		}),
		Outbox:   outbox.NewWriter(node, clk),
		Profiles: profilerepo.NewRepository(db),
	}
}

// ProfileSpec describes a profile to seed.
type ProfileSpec struct {
	Email          string
	Role           *string
	Roles          []string
	OrganizationID *uuid.UUID
	Inactive       bool
}

func (e *Env) CreateProfile(t testing.TB, seed ProfileSpec) *profiledomain.Profile {
	t.Helper()
	id := uuid.New()
	email := seed.Email
	if email == "" {
		email = id.String() + "@example.com"
	}
	roles := seed.Roles
	if roles == nil {
		roles = []string{}
	}
	now := e.Clock.Now()
	profile := &profiledomain.Profile{
		ID:             id,
		Email:          email,
		Role:           seed.Role,
		Roles:          profiledomain.RoleList(roles),
		OrganizationID: seed.OrganizationID,
		IsActive:       !seed.Inactive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Profiles.Create(context.Background(), profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return profile
}

// CountOutbox returns how many outbox events of eventType were written.
func (e *Env) CountOutbox(t testing.TB, eventType string) int64 {
	t.Helper()
	var count int64
	if err := e.DB.Model(&outboxdomain.Event{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return count
}

// CountAudit returns how many audit rows carry action.
func (e *Env) CountAudit(t testing.TB, action string) int64 {
	t.Helper()
	var count int64
	if err := e.DB.Model(&auditdomain.AuditLog{}).Where("action = ?", action).Count(&count).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	return count
}
