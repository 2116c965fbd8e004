package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	schedulerLockKey = "scheduler:pass-lock"
	defaultLockTTL   = 5 * time.Minute
)

// releaseScript releases the lock only if the caller still owns it, so a
// pass that outlives its TTL cannot free another instance's lock.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// PassLock serializes scheduler passes across engine instances: at most one
// batch may be in flight at a time.
type PassLock struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPassLock(client *goredis.Client, ttl time.Duration) (*PassLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &PassLock{client: client, ttl: ttl}, nil
}

// Acquire attempts to take the pass lock. It returns false without error when
// another pass already holds it.
func (l *PassLock) Acquire(ctx context.Context, owner string) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("pass lock is not initialized")
	}
	if strings.TrimSpace(owner) == "" {
		return false, fmt.Errorf("lock owner is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ok, err := l.client.SetNX(ctx, schedulerLockKey, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire scheduler pass lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock if owner still holds it.
func (l *PassLock) Release(ctx context.Context, owner string) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("pass lock is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := releaseScript.Run(ctx, l.client, []string{schedulerLockKey}, owner).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("failed to release scheduler pass lock: %w", err)
	}
	return nil
}
