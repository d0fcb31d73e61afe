package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/virtuepath/internal/config"
	"go.uber.org/zap"
)

const keyPattern = "virtuepath:ratelimit:%s:%s"

// Limiter applies the per-class token bucket policy. Buckets live in Redis so
// every instance shares them. A nil *Limiter allows everything.
type Limiter struct {
	bucket *TokenBucket
	policy *config.RateLimitPolicyHolder
	log    *zap.Logger
}

func NewLimiter(bucket *TokenBucket, policy *config.RateLimitPolicyHolder, log *zap.Logger) *Limiter {
	if bucket == nil || policy == nil {
		return nil
	}
	return &Limiter{bucket: bucket, policy: policy, log: log.Named("ratelimit")}
}

// Allow takes one token from the bucket identified by class and subject
// (a user id or client ip).
func (l *Limiter) Allow(ctx context.Context, class, subject string) (*RateLimitResult, error) {
	if l == nil {
		return &RateLimitResult{Allowed: true}, nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	rule := l.policy.Get().Rule(class)
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPattern, class, subject), rule.Rate, rule.Burst)
}

// NewRedisClient returns nil when Redis is not configured.
func NewRedisClient(cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
