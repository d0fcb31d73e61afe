package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrBucketUnavailable = errors.New("rate_limit_store_unavailable")
	ErrBucketKeyEmpty    = errors.New("rate_limit_key_empty")
	ErrBucketPolicy      = errors.New("rate_limit_policy_invalid")
	errBucketReply       = errors.New("rate_limit_script_reply_invalid")
)

// Refill and take run atomically inside Redis using the server clock, so
// instances with skewed clocks still share one bucket. Tokens are returned in
// thousandths to keep fractional refill visible to the caller.
var takeToken = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - last)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens * 1000), now}
`)

// TokenBucket is a Redis backed token bucket keyed by caller supplied keys.
type TokenBucket struct {
	client *redis.Client
}

// RateLimitResult describes one take from a bucket. Limit is the bucket size.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Allow takes one token from key, refilling at rate tokens per second up to
// burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: burst}
	switch {
	case t == nil || t.client == nil:
		return denied, ErrBucketUnavailable
	case key == "":
		return denied, ErrBucketKeyEmpty
	case rate <= 0 || burst <= 0:
		return denied, ErrBucketPolicy
	}

	reply, err := takeToken.Run(ctx, t.client, []string{key},
		rate,
		burst,
		bucketTTL(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return denied, err
	}
	if len(reply) != 3 {
		return denied, errBucketReply
	}

	allowed := reply[0] == 1
	tokens := float64(reply[1]) / 1000
	now := time.UnixMilli(reply[2])

	result := &RateLimitResult{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(math.Floor(tokens)),
		ResetTime: now.Add(untilTokens(float64(burst)-tokens, rate)),
	}
	if !allowed {
		result.RetryAfter = untilTokens(1-tokens, rate)
	}
	return result, nil
}

// untilTokens is how long the bucket needs to refill missing tokens.
func untilTokens(missing, rate float64) time.Duration {
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / rate * float64(time.Second))
}

// bucketTTL keeps idle buckets around for two full refills.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	return time.Duration(math.Max(1, seconds)) * time.Second
}
