package service

import (
	"context"
	"errors"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/auth/domain"
	"github.com/smallbiznis/virtuepath/internal/auth/token"
	"github.com/smallbiznis/virtuepath/internal/config"
	"github.com/smallbiznis/virtuepath/internal/providers/email"
	"github.com/smallbiznis/virtuepath/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*testutil.Env, domain.Service, *email.RecordingProvider) {
	t.Helper()
	env := testutil.NewEnv(t)
	mailer := &email.RecordingProvider{}
	tokens := token.NewVerifier(token.Config{Secret: "s3cret", ResetTTL: 30 * time.Minute}, env.Clock)

	svc := NewService(Params{
		Log:      env.Log,
		Clock:    env.Clock,
		Config:   config.Config{SiteURL: "https://app.example"},
		Profiles: env.Profiles,
		Tokens:   tokens,
		Email:    mailer,
		Audit:    env.Audit,
	})
	return env, svc, mailer
}

func TestForgotPasswordSendsLink(t *testing.T) {
	env, svc, mailer := newTestService(t)
	ctx := context.Background()
	env.CreateProfile(t, testutil.ProfileSpec{Email: "ada@example.com"})

	require.NoError(t, svc.ForgotPassword(ctx, "  ADA@example.com "))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"ada@example.com"}, sent[0].To)
	assert.Contains(t, sent[0].Body, "https://app.example/reset-password?token=")
	assert.Contains(t, sent[0].Body, "30 minutes")
	assert.EqualValues(t, 1, env.CountAudit(t, auditdomain.ActionPasswordResetRequested))
}

func TestForgotPasswordUnknownEmailLooksTheSame(t *testing.T) {
	env, svc, mailer := newTestService(t)

	require.NoError(t, svc.ForgotPassword(context.Background(), "nobody@example.com"))
	assert.Empty(t, mailer.Sent())
	assert.EqualValues(t, 1, env.CountAudit(t, auditdomain.ActionPasswordResetRequested))
}

func TestForgotPasswordSwallowsDeliveryFailure(t *testing.T) {
	env, svc, mailer := newTestService(t)
	env.CreateProfile(t, testutil.ProfileSpec{Email: "ada@example.com"})
	mailer.Err = errors.New("smtp down")

	assert.NoError(t, svc.ForgotPassword(context.Background(), "ada@example.com"))
}

func TestForgotPasswordRejectsMalformedEmail(t *testing.T) {
	_, svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.ForgotPassword(context.Background(), "not an email"), domain.ErrInvalidEmail)
}

func TestVerifyResetToken(t *testing.T) {
	env, svc, _ := newTestService(t)
	tokens := token.NewVerifier(token.Config{Secret: "s3cret"}, env.Clock)
	user := env.CreateProfile(t, testutil.ProfileSpec{Email: "ada@example.com"})

	raw, _, err := tokens.Issue(user.ID, user.Email)
	require.NoError(t, err)

	claims, err := svc.VerifyResetToken(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	_, err = svc.VerifyResetToken(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingToken)
}
