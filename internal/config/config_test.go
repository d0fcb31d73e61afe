package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_SERVICE", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("SITE_URL", "https://virtuepath.example/")

	cfg := Load()

	assert.Equal(t, "virtuepath", cfg.AppName)
	assert.Equal(t, "https://virtuepath.example", cfg.SiteURL)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Outbox.Enabled())
	assert.Equal(t, "authenticated", cfg.Auth.JWTAudience)
}

func TestGetenvHelpers(t *testing.T) {
	t.Setenv("VP_BOOL", "yes")
	t.Setenv("VP_INT", "not-a-number")

	assert.True(t, getenvBool("VP_BOOL", false))
	assert.Equal(t, 7, getenvInt("VP_INT", 7))
	assert.Equal(t, int64(3), getenvInt64("VP_MISSING", 3))
}

func TestRateLimitPolicyHolder(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg := Config{RateLimit: RateLimitConfig{PolicyFile: filepath.Join(t.TempDir(), "absent.yml")}}

		holder, err := NewRateLimitPolicyHolder(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, DefaultRateLimitPolicy(), holder.Get())
	})

	t.Run("file overrides single class", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ratelimit.yml")
		body := "ratelimit:\n  rules:\n    sponsor_invite:\n      rate: 1\n      burst: 2\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		holder, err := NewRateLimitPolicyHolder(Config{RateLimit: RateLimitConfig{PolicyFile: path}}, zap.NewNop())
		require.NoError(t, err)

		policy := holder.Get()
		assert.Equal(t, RateLimitRule{Rate: 1, Burst: 2}, policy.Rule(RateLimitClassSponsorInvite))
		assert.Equal(t, DefaultRateLimitPolicy().Rules[RateLimitClassDefault], policy.Rule("unknown"))
	})

	t.Run("invalid rule is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ratelimit.yml")
		body := "ratelimit:\n  rules:\n    default:\n      rate: 0\n      burst: 2\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		_, err := NewRateLimitPolicyHolder(Config{RateLimit: RateLimitConfig{PolicyFile: path}}, zap.NewNop())
		assert.Error(t, err)
	})
}
