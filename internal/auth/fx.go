package auth

import (
	"github.com/smallbiznis/virtuepath/internal/auth/domain"
	"github.com/smallbiznis/virtuepath/internal/auth/service"
	"github.com/smallbiznis/virtuepath/internal/auth/token"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/config"
	"go.uber.org/fx"
)

func newVerifier(cfg config.Config, clk clock.Clock) *token.Verifier {
	return token.NewVerifier(token.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		ResetTTL: cfg.Auth.ResetTokenTTL,
	}, clk)
}

var Module = fx.Module("auth",
	fx.Provide(newVerifier),
	fx.Provide(func(v *token.Verifier) domain.TokenVerifier { return v }),
	fx.Provide(func(v *token.Verifier) domain.ResetTokenIssuer { return v }),
	fx.Provide(service.NewService),
)
