package token

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/auth/domain"
	"github.com/smallbiznis/virtuepath/internal/clock"
)

const (
	resetAudience = "virtuepath:password-reset"
	resetPurpose  = "password_reset"
	defaultLeeway = 30 * time.Second
)

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type resetClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	ResetTTL time.Duration
}

// Verifier checks HS256 access tokens from the hosted auth provider and issues
// the short lived tokens embedded in password reset links.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	resetTTL time.Duration
	clock    clock.Clock
}

func NewVerifier(cfg Config, clk clock.Clock) *Verifier {
	ttl := cfg.ResetTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Verifier{
		secret:   []byte(strings.TrimSpace(cfg.Secret)),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		resetTTL: ttl,
		clock:    clk,
	}
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, domain.ErrInvalidToken
	}
	return v.secret, nil
}

func (v *Verifier) options(audience, issuer string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return opts
}

func (v *Verifier) Verify(_ context.Context, raw string) (*domain.Identity, error) {
	if len(v.secret) == 0 {
		return nil, domain.ErrNotConfigured
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrMissingToken
	}

	claims := &accessClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, v.options(v.audience, v.issuer)...); err != nil {
		return nil, mapError(err)
	}
	for _, aud := range claims.Audience {
		if aud == resetAudience {
			return nil, domain.ErrWrongTokenUsage
		}
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidSubject
	}

	identity := &domain.Identity{UserID: userID, Email: strings.ToLower(strings.TrimSpace(claims.Email))}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

func (v *Verifier) Issue(userID uuid.UUID, email string) (string, time.Time, error) {
	if len(v.secret) == 0 {
		return "", time.Time{}, domain.ErrNotConfigured
	}
	now := v.clock.Now()
	expires := now.Add(v.resetTTL)
	claims := resetClaims{
		Email:   email,
		Purpose: resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{resetAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (v *Verifier) Parse(raw string) (*domain.ResetClaims, error) {
	if len(v.secret) == 0 {
		return nil, domain.ErrNotConfigured
	}
	claims := &resetClaims{}
	if _, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, v.keyFunc, v.options(resetAudience, v.issuer)...); err != nil {
		return nil, mapError(err)
	}
	if claims.Purpose != resetPurpose {
		return nil, domain.ErrWrongTokenUsage
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidSubject
	}
	return &domain.ResetClaims{UserID: userID, Email: claims.Email, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return domain.ErrWrongTokenUsage
	default:
		return domain.ErrInvalidToken
	}
}
