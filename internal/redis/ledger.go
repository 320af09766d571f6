package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const ledgerTTL = 30 * 24 * time.Hour

func ledgerKey(requestName string) string { return "request:ledger:" + requestName }

// Ledger remembers which remote request id was issued for a request name so
// that a resubmission after a crash reuses it instead of creating a duplicate.
type Ledger interface {
	// Lookup returns the recorded request id, or "" with ok=false when absent.
	Lookup(ctx context.Context, requestName string) (requestID string, ok bool, err error)
	// Record stores the request id. An existing entry is never overwritten;
	// the id already on record is returned instead.
	Record(ctx context.Context, requestName, requestID string) (string, error)
}

type ledger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLedger creates a Redis-backed Ledger.
func NewLedger(client *redis.Client) Ledger {
	return &ledger{client: client, ttl: ledgerTTL}
}

func (l *ledger) Lookup(ctx context.Context, requestName string) (string, bool, error) {
	val, err := l.client.Get(ctx, ledgerKey(requestName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis ledger lookup for %s: %w", requestName, err)
	}
	return val, true, nil
}

func (l *ledger) Record(ctx context.Context, requestName, requestID string) (string, error) {
	ok, err := l.client.SetNX(ctx, ledgerKey(requestName), requestID, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis ledger record for %s: %w", requestName, err)
	}
	if ok {
		return requestID, nil
	}
	existing, _, err := l.Lookup(ctx, requestName)
	if err != nil {
		return "", err
	}
	return existing, nil
}
