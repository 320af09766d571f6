package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	leaderKey = "taskagent:leader"
	leaderTTL = 30 * time.Second
)

// Elector decides which agent instance runs cycles.
type Elector interface {
	// AcquireOrRenew returns true if this instance holds leadership after the call.
	AcquireOrRenew(ctx context.Context) (bool, error)
	Resign(ctx context.Context) error
}

type elector struct {
	client     *redis.Client
	instanceID string
	ttl        time.Duration
}

// NewElector creates a Redis-backed Elector for instanceID.
func NewElector(client *redis.Client, instanceID string) Elector {
	return &elector{client: client, instanceID: instanceID, ttl: leaderTTL}
}

func (e *elector) AcquireOrRenew(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, leaderKey, e.instanceID, e.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leader election SetNX: %w", err)
	}
	if ok {
		return true, nil
	}

	// Already set; renew only if we own it.
	result, err := renewScript.Run(ctx, e.client, []string{leaderKey}, e.instanceID, e.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("leader renewal: %w", err)
	}
	return result == 1, nil
}

func (e *elector) Resign(ctx context.Context) error {
	err := releaseScript.Run(ctx, e.client, []string{leaderKey}, e.instanceID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("leader resign: %w", err)
	}
	return nil
}
