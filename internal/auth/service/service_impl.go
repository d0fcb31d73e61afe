package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/virtuepath/internal/audit/domain"
	"github.com/smallbiznis/virtuepath/internal/auth/domain"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/config"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Profiles profiledomain.Repository
	Tokens   domain.ResetTokenIssuer
	Email    email.Provider
	Audit    auditdomain.Service
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	siteURL  string
	profiles profiledomain.Repository
	tokens   domain.ResetTokenIssuer
	email    email.Provider
	audit    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("auth.service"),
		clock:    p.Clock,
		siteURL:  strings.TrimRight(p.Config.SiteURL, "/"),
		profiles: p.Profiles,
		tokens:   p.Tokens,
		email:    p.Email,
		audit:    p.Audit,
	}
}

// ForgotPassword e-mails a reset link when the address belongs to a profile.
// Lookup, signing and delivery failures are logged and swallowed so callers
// always see the same outcome.
func (s *Service) ForgotPassword(ctx context.Context, address string) error {
	address = strings.ToLower(strings.TrimSpace(address))
	if _, err := mail.ParseAddress(address); err != nil || address == "" {
		return domain.ErrInvalidEmail
	}

	found, sent := false, false
	defer func() {
		if err := s.audit.Record(ctx, auditdomain.Entry{
			Action:     auditdomain.ActionPasswordResetRequested,
			TargetType: "email",
			Metadata:   map[string]any{"email": address, "matched": found, "sent": sent},
		}); err != nil {
			s.log.Warn("failed to audit password reset request", zap.Error(err))
		}
	}()

	profile, err := s.profiles.FindByEmail(ctx, address)
	if err != nil {
		if !errors.Is(err, profiledomain.ErrProfileNotFound) {
			s.log.Error("password reset lookup failed", zap.Error(err))
		}
		return nil
	}
	found = true

	token, expires, err := s.tokens.Issue(profile.ID, profile.Email)
	if err != nil {
		s.log.Error("failed to sign reset token", zap.String("user_id", profile.ID.String()), zap.Error(err))
		return nil
	}

	resetURL := s.siteURL + "/reset-password?token=" + url.QueryEscape(token)
	err = s.email.SendTemplate(ctx, []string{profile.Email}, email.TemplatePasswordReset, map[string]any{
		"reset_url":  resetURL,
		"expires_in": humanMinutes(expires.Sub(s.clock.Now())),
	})
	if err != nil {
		s.log.Error("failed to send reset email", zap.String("user_id", profile.ID.String()), zap.Error(err))
		return nil
	}
	sent = true
	return nil
}

func (s *Service) VerifyResetToken(_ context.Context, token string) (*domain.ResetClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrMissingToken
	}
	return s.tokens.Parse(token)
}

func humanMinutes(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
