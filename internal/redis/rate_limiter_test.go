package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_NonPositiveLimitIsUnlimited(t *testing.T) {
	limiter := NewRateLimiter(nil, 0, time.Second)

	for i := 0; i < 1000; i++ {
		ok, err := limiter.Allow(context.Background(), "Replication")
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 0, limiter.Limit())
}
