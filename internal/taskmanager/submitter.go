package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/internal/redis"
	"github.com/ramiqadoumi/go-task-agent/internal/rms"
	"github.com/ramiqadoumi/go-task-agent/pkg/telemetry"
)

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	RequestID string
	// Reused is true when no new remote request was created: the id came
	// from the ledger or from the service's duplicate signal.
	Reused bool
}

// Submitter sends requests to the request management service at most once
// per request name.
type Submitter struct {
	client  rms.Client
	ledger  redis.Ledger
	limiter redis.RateLimiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewSubmitter creates a Submitter. timeout bounds each remote call.
func NewSubmitter(client rms.Client, ledger redis.Ledger, limiter redis.RateLimiter, timeout time.Duration, logger *slog.Logger) *Submitter {
	return &Submitter{client: client, ledger: ledger, limiter: limiter, timeout: timeout, logger: logger}
}

// Submit returns the request id for req. The ledger is consulted first, then
// the rate limit, then the remote service.
func (s *Submitter) Submit(ctx context.Context, req *domain.Request) (SubmitResult, error) {
	logger := s.logger.With(slog.String("request", req.Name))

	if id, ok, err := s.ledger.Lookup(ctx, req.Name); err != nil {
		return SubmitResult{}, fmt.Errorf("ledger lookup: %w", err)
	} else if ok {
		logger.Info("request already submitted, reusing id", slog.String("request_id", id))
		return SubmitResult{RequestID: id, Reused: true}, nil
	}

	allowed, err := s.limiter.Allow(ctx, req.Type)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		telemetry.SubmitRateLimitedTotal.WithLabelValues(req.Type).Inc()
		return SubmitResult{}, &domain.RateLimitExceededError{TransformationType: req.Type, Limit: s.limiter.Limit()}
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result := SubmitResult{}
	id, err := s.client.Submit(callCtx, req)
	var dup *rms.DuplicateError
	switch {
	case errors.As(err, &dup):
		logger.Info("remote reports duplicate request, reusing id", slog.String("request_id", dup.RequestID))
		result = SubmitResult{RequestID: dup.RequestID, Reused: true}
	case err != nil:
		return SubmitResult{}, err
	default:
		result.RequestID = id
	}

	// The ledger is a cache of the remote truth; failing to write it only
	// weakens the first idempotency layer.
	recorded, err := s.ledger.Record(ctx, req.Name, result.RequestID)
	if err != nil {
		logger.Warn("ledger record failed", slog.String("error", err.Error()))
		return result, nil
	}
	if recorded != result.RequestID {
		logger.Warn("ledger already held a different request id",
			slog.String("request_id", result.RequestID),
			slog.String("ledger_id", recorded),
		)
		result = SubmitResult{RequestID: recorded, Reused: true}
	}
	return result, nil
}
