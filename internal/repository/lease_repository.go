package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another holder owns the lease.
var ErrLeaseHeld = errors.New("lease held by another owner")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseRepository implements short-lived exclusive leases on top of Redis.
// Without a client every acquisition succeeds and locking stays process-local.
type LeaseRepository struct {
	client *redis.Client
	prefix string
}

// NewLeaseRepository constructs a lease repository. A nil client disables distributed locking.
func NewLeaseRepository(client *redis.Client, prefix string) *LeaseRepository {
	return &LeaseRepository{client: client, prefix: prefix}
}

// Acquire tries once to take the lease and returns the owner token on success.
func (r *LeaseRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	if r.client == nil {
		return token, nil
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return "", ErrLeaseHeld
	}
	return token, nil
}

// Release drops the lease only when token still owns it.
func (r *LeaseRepository) Release(ctx context.Context, key, token string) error {
	if r.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}
