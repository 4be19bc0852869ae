package detect

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaseKey = "detect:cycle-lease"

// RedisLease excludes overlapping detection cycles across all instances with a
// single expiring key. The TTL caps how long a crashed cycle can block the
// next one.
type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLease creates a lease using the provided Redis client and TTL.
func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, ttl: ttl}
}

// Acquire takes the lease if nobody holds it. It returns false when another
// cycle is already running.
func (r *RedisLease) Acquire(ctx context.Context) (bool, error) {
	return r.client.SetNX(ctx, leaseKey, 1, r.ttl).Result()
}

// Release frees the lease so the next cycle can start immediately instead of
// waiting for the TTL.
func (r *RedisLease) Release(ctx context.Context) error {
	return r.client.Del(ctx, leaseKey).Err()
}
