package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LastUpdateAttr is refreshed on every attribute write made with update=true.
const LastUpdateAttr = "LastUpdateTime"

func jobKey(jobID string) string { return "job:attrs:" + jobID }

// JobStore holds per-job bookkeeping attributes (Status, MinorStatus, ...).
type JobStore interface {
	SetJobAttribute(ctx context.Context, jobID, name, value string, update bool) error
	GetJobAttributes(ctx context.Context, jobID string, names []string) (map[string]string, error)
}

type jobStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewJobStore creates a Redis hash backed JobStore.
func NewJobStore(client *redis.Client) JobStore {
	return &jobStore{client: client, now: time.Now}
}

func (s *jobStore) SetJobAttribute(ctx context.Context, jobID, name, value string, update bool) error {
	fields := []any{name, value}
	if update {
		fields = append(fields, LastUpdateAttr, s.now().UTC().Format(time.RFC3339))
	}
	if err := s.client.HSet(ctx, jobKey(jobID), fields...).Err(); err != nil {
		return fmt.Errorf("redis set job %s attribute %s: %w", jobID, name, err)
	}
	return nil
}

// GetJobAttributes returns only the attributes that exist; missing names are
// absent from the map.
func (s *jobStore) GetJobAttributes(ctx context.Context, jobID string, names []string) (map[string]string, error) {
	attrs := make(map[string]string, len(names))
	if len(names) == 0 {
		return attrs, nil
	}
	vals, err := s.client.HMGet(ctx, jobKey(jobID), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get job %s attributes: %w", jobID, err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			attrs[names[i]] = s
		}
	}
	return attrs, nil
}
