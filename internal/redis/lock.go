package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func lockKey(name string) string { return "taskagent:lock:" + name }

// Locker hands out short-lived per-name leases so that two agent instances
// never poll or reconcile the same task concurrently.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

type locker struct {
	client *redis.Client
	owner  string
}

// NewLocker creates a Locker whose leases are tagged with owner.
func NewLocker(client *redis.Client, owner string) Locker {
	return &locker{client: client, owner: owner}
}

func (l *locker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(name), l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire lock %s: %w", name, err)
	}
	return ok, nil
}

func (l *locker) Release(ctx context.Context, name string) error {
	err := releaseScript.Run(ctx, l.client, []string{lockKey(name)}, l.owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release lock %s: %w", name, err)
	}
	return nil
}
