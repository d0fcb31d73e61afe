package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	RateLimitClassDefault       = "default"
	RateLimitClassSponsorInvite = "sponsor_invite"
	RateLimitClassPasswordReset = "password_reset"
	RateLimitClassPaymentIntent = "payment_intent"
)

// RateLimitRule is a token bucket definition: Rate tokens refill per second up
// to Burst.
type RateLimitRule struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// RateLimitPolicy maps a route class to its bucket.
type RateLimitPolicy struct {
	Rules map[string]RateLimitRule `mapstructure:"rules"`
}

// Rule returns the rule for class, falling back to the default class.
func (p RateLimitPolicy) Rule(class string) RateLimitRule {
	if rule, ok := p.Rules[strings.TrimSpace(class)]; ok {
		return rule
	}
	return p.Rules[RateLimitClassDefault]
}

func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		Rules: map[string]RateLimitRule{
			RateLimitClassDefault:       {Rate: 5, Burst: 20},
			RateLimitClassSponsorInvite: {Rate: 0.05, Burst: 5},
			RateLimitClassPasswordReset: {Rate: 0.02, Burst: 3},
			RateLimitClassPaymentIntent: {Rate: 0.2, Burst: 5},
		},
	}
}

type RateLimitPolicyHolder struct {
	current atomic.Value // holds RateLimitPolicy
}

// NewRateLimitPolicyHolder loads ratelimit.yml (or cfg.RateLimit.PolicyFile)
// and keeps it reloaded on change. A missing file yields the defaults.
func NewRateLimitPolicyHolder(cfg Config, log *zap.Logger) (*RateLimitPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.ratelimit")

	v := viper.New()
	if cfg.RateLimit.PolicyFile != "" {
		v.SetConfigFile(cfg.RateLimit.PolicyFile)
	} else {
		v.SetConfigName("ratelimit")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/virtuepath")
		v.AddConfigPath(".")
	}

	holder := &RateLimitPolicyHolder{}
	defaults := DefaultRateLimitPolicy()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			holder.current.Store(defaults)
			return holder, nil
		}
		return nil, fmt.Errorf("read rate limit policy: %w", err)
	}

	policy, err := decodeRateLimitPolicy(v, defaults)
	if err != nil {
		return nil, err
	}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRateLimitPolicy(v, defaults)
		if err != nil {
			log.Warn("rate limit policy reload ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("rate limit policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticRateLimitPolicyHolder wraps a fixed policy.
func NewStaticRateLimitPolicyHolder(policy RateLimitPolicy) *RateLimitPolicyHolder {
	holder := &RateLimitPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *RateLimitPolicyHolder) Get() RateLimitPolicy {
	return h.current.Load().(RateLimitPolicy)
}

func decodeRateLimitPolicy(v *viper.Viper, defaults RateLimitPolicy) (RateLimitPolicy, error) {
	var policy RateLimitPolicy
	if err := v.UnmarshalKey("ratelimit", &policy); err != nil {
		return RateLimitPolicy{}, err
	}
	if policy.Rules == nil {
		policy.Rules = map[string]RateLimitRule{}
	}
	for class, rule := range defaults.Rules {
		if _, ok := policy.Rules[class]; !ok {
			policy.Rules[class] = rule
		}
	}
	if err := validateRateLimitPolicy(policy); err != nil {
		return RateLimitPolicy{}, err
	}
	return policy, nil
}

func validateRateLimitPolicy(policy RateLimitPolicy) error {
	for class, rule := range policy.Rules {
		if rule.Rate <= 0 {
			return fmt.Errorf("ratelimit.rules.%s.rate must be positive", class)
		}
		if rule.Burst <= 0 {
			return fmt.Errorf("ratelimit.rules.%s.burst must be positive", class)
		}
	}
	return nil
}
