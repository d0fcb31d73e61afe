package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "virtuepath:lease:"

var (
	ErrLeaseUnavailable = errors.New("lease_store_unavailable")
	ErrLeaseKeyEmpty    = errors.New("lease_key_empty")
	ErrLeaseTTLInvalid  = errors.New("lease_ttl_invalid")
)

// compare-and-delete so an expired holder cannot drop a lease taken over by
// another instance
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short Redis leases shared by every instance. The outbox
// relay uses one so only a single instance polls at a time.
type Locker struct {
	client *redis.Client
}

// NewLocker returns nil without a client; callers treat a nil Locker as
// "no coordination".
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// TryLock takes the lease for key if it is free. The returned token must be
// passed to Release.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLeaseUnavailable
	}
	if key == "" {
		return "", false, ErrLeaseKeyEmpty
	}
	if ttl <= 0 {
		return "", false, ErrLeaseTTLInvalid
	}

	token := ulid.Make().String()
	acquired, err := l.client.SetNX(ctx, leaseKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lease when token still owns it. Releasing a lease held by
// someone else is a no-op.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return releaseLease.Run(ctx, l.client, []string{leaseKeyPrefix + key}, token).Err()
}
