package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	authdomain "github.com/smallbiznis/virtuepath/internal/auth/domain"
	"github.com/smallbiznis/virtuepath/internal/authorization"
	"github.com/smallbiznis/virtuepath/internal/config"
	"github.com/smallbiznis/virtuepath/internal/observability"
	obsmetrics "github.com/smallbiznis/virtuepath/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/virtuepath/internal/organization/domain"
	"github.com/smallbiznis/virtuepath/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/virtuepath/internal/payment/domain"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/internal/ratelimit"
	"github.com/smallbiznis/virtuepath/internal/role"
	sponsordomain "github.com/smallbiznis/virtuepath/internal/sponsor/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTokens struct {
	identities map[string]uuid.UUID
}

func (f *fakeTokens) Verify(_ context.Context, raw string) (*authdomain.Identity, error) {
	id, ok := f.identities[raw]
	if !ok {
		return nil, authdomain.ErrInvalidToken
	}
	return &authdomain.Identity{UserID: id, Email: id.String()[:8] + "@example.com"}, nil
}

type fakeLoader struct {
	principals map[uuid.UUID]*orgcontext.Principal
	err        error
}

func (f *fakeLoader) LoadPrincipal(_ context.Context, userID uuid.UUID) (*orgcontext.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.principals[userID], nil
}

func (f *fakeLoader) GetOrganizationContext(ctx context.Context, userID uuid.UUID) (*orgcontext.OrganizationContext, error) {
	principal, err := f.LoadPrincipal(ctx, userID)
	if err != nil || principal == nil {
		return nil, err
	}
	return principal.OrganizationContext(), nil
}

type fakeProfiles struct {
	profiledomain.Service
	ensured []uuid.UUID
}

func (f *fakeProfiles) Ensure(_ context.Context, userID uuid.UUID, email string) (*profiledomain.Profile, error) {
	f.ensured = append(f.ensured, userID)
	return &profiledomain.Profile{
		ID:       userID,
		Email:    email,
		Roles:    profiledomain.RoleList{string(role.IndividualPractitioner)},
		IsActive: true,
	}, nil
}

func (f *fakeProfiles) Get(_ context.Context, userID uuid.UUID) (*profiledomain.Profile, error) {
	return &profiledomain.Profile{ID: userID, IsActive: true}, nil
}

type recordedCheck struct {
	userID     uuid.UUID
	resource   string
	action     string
	resourceID *string
}

type fakeAuthz struct {
	allow  bool
	checks []recordedCheck
}

func (f *fakeAuthz) HasPermission(_ context.Context, userID uuid.UUID, resource, action string, resourceID *string) bool {
	f.checks = append(f.checks, recordedCheck{userID: userID, resource: resource, action: action, resourceID: resourceID})
	return f.allow
}

func (f *fakeAuthz) HasPermissions(ctx context.Context, userID uuid.UUID, checks []authorization.Check) []bool {
	out := make([]bool, len(checks))
	for i, check := range checks {
		out[i] = f.HasPermission(ctx, userID, check.Resource, check.Action, check.ResourceID)
	}
	return out
}

type fakeOrganizations struct {
	organizationdomain.Service
	joinErr error
	org     *organizationdomain.Organization
}

func (f *fakeOrganizations) JoinBySlug(context.Context, uuid.UUID, string) (*organizationdomain.Organization, error) {
	return f.org, f.joinErr
}

func (f *fakeOrganizations) GetByID(_ context.Context, id uuid.UUID) (*organizationdomain.Organization, error) {
	return &organizationdomain.Organization{ID: id, Name: "Saint John's Center", Slug: "saint-johns-center"}, nil
}

func (f *fakeOrganizations) ListMembers(context.Context, uuid.UUID) ([]organizationdomain.Member, error) {
	return nil, nil
}

type fakeSponsors struct {
	sponsordomain.Service
	inviteErr error
}

func (f *fakeSponsors) Invite(_ context.Context, req sponsordomain.InviteRequest) (*sponsordomain.InviteResult, error) {
	if f.inviteErr != nil {
		return nil, f.inviteErr
	}
	return &sponsordomain.InviteResult{
		Relationship: &sponsordomain.Relationship{ID: uuid.New(), PractitionerID: req.PractitionerID, Status: sponsordomain.StatusEmailSent},
		EmailSent:    true,
	}, nil
}

type fakeAuthService struct {
	forgotErr   error
	forgotCalls int
}

func (f *fakeAuthService) ForgotPassword(context.Context, string) error {
	f.forgotCalls++
	return f.forgotErr
}

func (f *fakeAuthService) VerifyResetToken(context.Context, string) (*authdomain.ResetClaims, error) {
	return nil, authdomain.ErrExpiredToken
}

type fakePayments struct {
	paymentdomain.Service
	webhookErr error
}

func (f *fakePayments) HandleWebhook(context.Context, []byte, http.Header) error {
	return f.webhookErr
}

type harness struct {
	server   *Server
	loader   *fakeLoader
	profiles *fakeProfiles
	authz    *fakeAuthz
	orgs     *fakeOrganizations
	sponsors *fakeSponsors
	authSvc  *fakeAuthService
	payments *fakePayments
	tokens   *fakeTokens
}

func newHarness(t *testing.T, limiter *ratelimit.Limiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		loader:   &fakeLoader{principals: map[uuid.UUID]*orgcontext.Principal{}},
		profiles: &fakeProfiles{},
		authz:    &fakeAuthz{allow: true},
		orgs:     &fakeOrganizations{},
		sponsors: &fakeSponsors{},
		authSvc:  &fakeAuthService{},
		payments: &fakePayments{},
		tokens:   &fakeTokens{identities: map[string]uuid.UUID{}},
	}
	h.server = NewServer(ServerParams{
		Gin:           NewEngine(observability.Config{Environment: "test"}, obsmetrics.NewHTTPMetrics()),
		Cfg:           config.Config{Environment: "test"},
		Log:           zaptest.NewLogger(t),
		Tokens:        h.tokens,
		AuthSvc:       h.authSvc,
		Profiles:      h.profiles,
		OrgContext:    h.loader,
		Authz:         h.authz,
		Organizations: h.orgs,
		Sponsors:      h.sponsors,
		Payments:      h.payments,
		Limiter:       limiter,
	})
	return h
}

// member registers a bearer token for a principal and returns the token.
func (h *harness) member(p *orgcontext.Principal) string {
	token := "token-" + p.UserID.String()
	h.tokens.identities[token] = p.UserID
	h.loader.principals[p.UserID] = p
	return token
}

func orgPrincipal(roles ...string) *orgcontext.Principal {
	orgID := uuid.New()
	return &orgcontext.Principal{
		UserID:         uuid.New(),
		OrganizationID: &orgID,
		Roles:          role.ParseUserRoles(role.ProfileRoles{Roles: roles}),
		IsActive:       true,
	}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGuardRejectsMissingAndInvalidTokens(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing bearer token", decode(t, rec)["error"])

	rec = h.do(t, http.MethodGet, "/api/me", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["type"])
	assert.Empty(t, h.authz.checks)
}

func TestGuardRequiresOrganization(t *testing.T) {
	h := newHarness(t, nil)
	loner := &orgcontext.Principal{
		UserID:   uuid.New(),
		Roles:    role.ParseUserRoles(role.ProfileRoles{Roles: []string{"ind-practitioner"}}),
		IsActive: true,
	}
	token := h.member(loner)

	rec := h.do(t, http.MethodGet, "/api/organizations/current", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "organization membership required", decode(t, rec)["error"])
	assert.Empty(t, h.authz.checks)
}

func TestGuardRejectsInactiveAccount(t *testing.T) {
	h := newHarness(t, nil)
	archived := orgPrincipal("org-practitioner")
	archived.IsActive = false
	token := h.member(archived)

	rec := h.do(t, http.MethodGet, "/api/organizations/current", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account inactive", decode(t, rec)["error"])
}

func TestGuardEchoesRequiredPermission(t *testing.T) {
	h := newHarness(t, nil)
	h.authz.allow = false
	token := h.member(orgPrincipal("org-practitioner"))

	rec := h.do(t, http.MethodGet, "/api/organizations/current/members", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "forbidden", body["type"])
	assert.Equal(t, map[string]any{
		"resource": authorization.ResourceOrganizationMembers,
		"action":   authorization.ActionRead,
	}, body["required_permission"])
}

func TestGuardContextFailureIsServerError(t *testing.T) {
	h := newHarness(t, nil)
	token := h.member(orgPrincipal("org-admin"))
	h.loader.err = errors.New("connection refused")

	rec := h.do(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}

func TestGuardPassesPathParameterAsResourceID(t *testing.T) {
	h := newHarness(t, nil)
	h.authz.allow = false
	coach := orgPrincipal("org-coach")
	token := h.member(coach)

	rec := h.do(t, http.MethodGet, "/api/practitioners/not-a-uuid/journal", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.Len(t, h.authz.checks, 1)
	check := h.authz.checks[0]
	assert.Equal(t, coach.UserID, check.userID)
	assert.Equal(t, authorization.ResourcePractitionerData, check.resource)
	require.NotNil(t, check.resourceID)
	assert.Equal(t, "not-a-uuid", *check.resourceID)
}

func TestGuardCreatesProfileOnFirstRequest(t *testing.T) {
	h := newHarness(t, nil)
	newcomer := uuid.New()
	h.tokens.identities["fresh"] = newcomer

	rec := h.do(t, http.MethodGet, "/api/me", "fresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{newcomer}, h.profiles.ensured)

	body := decode(t, rec)
	roleInfo := body["role_info"].(map[string]any)
	assert.Equal(t, true, roleInfo["is_individual_practitioner"])
	assert.Nil(t, body["organization"])
}

func TestSelfPermissionUsesCallerID(t *testing.T) {
	h := newHarness(t, nil)
	h.authz.allow = false
	caller := orgPrincipal("org-practitioner")
	token := h.member(caller)

	rec := h.do(t, http.MethodPatch, "/api/me", token, map[string]any{"display_name": "Ada"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, h.authz.checks, 1)
	require.NotNil(t, h.authz.checks[0].resourceID)
	assert.Equal(t, caller.UserID.String(), *h.authz.checks[0].resourceID)
}

func TestOrganizationSignupAtCapacity(t *testing.T) {
	h := newHarness(t, nil)
	h.orgs.joinErr = organizationdomain.ErrCapacityReached
	token := h.member(&orgcontext.Principal{UserID: uuid.New(), IsActive: true})

	rec := h.do(t, http.MethodPost, "/api/organizations/signup", token, map[string]any{"slug": "saint-johns-center"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "maximum user capacity")
}

func TestOrganizationSignupRequiresSlug(t *testing.T) {
	h := newHarness(t, nil)
	token := h.member(&orgcontext.Principal{UserID: uuid.New(), IsActive: true})

	rec := h.do(t, http.MethodPost, "/api/organizations/signup", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode(t, rec)["type"])
}

func TestSponsorInviteErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unknown sponsor", sponsordomain.ErrSponsorNotFound, http.StatusNotFound, "a user with that email does not exist"},
		{"self invite", sponsordomain.ErrSelfInvite, http.StatusBadRequest, "you cannot invite yourself as a sponsor"},
		{"duplicate", sponsordomain.ErrRelationshipExists, http.StatusConflict, "a sponsor relationship with this user already exists"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.sponsors.inviteErr = tc.err
			token := h.member(orgPrincipal("org-practitioner"))

			rec := h.do(t, http.MethodPost, "/api/sponsors/invite", token, map[string]any{"sponsor_email": "grace@example.com"})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, decode(t, rec)["error"])
		})
	}
}

func TestSponsorInviteCreated(t *testing.T) {
	h := newHarness(t, nil)
	token := h.member(orgPrincipal("org-practitioner"))

	rec := h.do(t, http.MethodPost, "/api/sponsors/invite", token, map[string]any{"sponsor_email": "grace@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["email_sent"])
}

func TestForgotPasswordAlwaysSucceeds(t *testing.T) {
	h := newHarness(t, nil)
	h.authSvc.forgotErr = authdomain.ErrInvalidEmail

	rec := h.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "nobody"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, forgotPasswordMessage, decode(t, rec)["message"])
	assert.Equal(t, 1, h.authSvc.forgotCalls)
}

func TestVerifyResetTokenExpired(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/auth/reset-password/verify", "", map[string]any{"token": "stale"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", decode(t, rec)["error"])
}

func TestRateLimitedRouteReturns429(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.SetTime(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	policy := config.NewStaticRateLimitPolicyHolder(config.RateLimitPolicy{Rules: map[string]config.RateLimitRule{
		config.RateLimitClassDefault:       {Rate: 10, Burst: 10},
		config.RateLimitClassPasswordReset: {Rate: 0.5, Burst: 1},
	}})
	limiter := ratelimit.NewLimiter(ratelimit.NewTokenBucket(client), policy, zaptest.NewLogger(t))
	h := newHarness(t, limiter)

	first := h.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "ada@example.com"})
	assert.Equal(t, http.StatusOK, first.Code)

	second := h.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "ada@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))
	assert.Equal(t, "too many requests", decode(t, second)["error"])
	assert.Equal(t, 1, h.authSvc.forgotCalls)
}

func TestMigrateUserRejectsUnknownAction(t *testing.T) {
	h := newHarness(t, nil)
	token := h.member(&orgcontext.Principal{
		UserID:   uuid.New(),
		Roles:    role.ParseUserRoles(role.ProfileRoles{Roles: []string{"sys-admin"}}),
		IsActive: true,
	})

	rec := h.do(t, http.MethodPost, "/api/admin/migrate-user", token, map[string]any{
		"userId": uuid.NewString(),
		"action": "teleport",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, h.authz.checks, 1)
	assert.Equal(t, authorization.ResourceAdmin, h.authz.checks[0].resource)
	assert.Equal(t, authorization.ActionManage, h.authz.checks[0].action)
}

func TestPaymentWebhookSignatureFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.payments.webhookErr = paymentdomain.ErrInvalidSignature

	rec := h.do(t, http.MethodPost, "/api/payments/webhook", "", map[string]any{"id": "evt_1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "webhook signature verification failed", decode(t, rec)["error"])
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["type"])
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
