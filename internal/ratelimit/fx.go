package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/virtuepath/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(config.NewRateLimitPolicyHolder),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewLocker),
	fx.Provide(provideLimiter),
	fx.Invoke(closeRedis),
)

func provideLimiter(cfg config.Config, bucket *TokenBucket, policy *config.RateLimitPolicyHolder, log *zap.Logger) *Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if bucket == nil {
		log.Warn("rate limiting enabled but REDIS_ADDR is empty; requests are not limited")
		return nil
	}
	return NewLimiter(bucket, policy, log)
}

func closeRedis(lc fx.Lifecycle, client *redis.Client) {
	if client == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
}
