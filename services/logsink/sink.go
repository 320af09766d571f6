// Package logsink persists job logging records published by agents.
package logsink

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-task-agent/internal/joblog"
	"github.com/ramiqadoumi/go-task-agent/internal/kafka"
	"github.com/ramiqadoumi/go-task-agent/internal/postgres"
	"github.com/ramiqadoumi/go-task-agent/pkg/telemetry"
)

// GroupID is the Kafka consumer group shared by all sink instances.
const GroupID = "logsink-group"

// Sink consumes logging records and inserts them into Postgres.
type Sink struct {
	consumer kafka.Consumer
	repo     postgres.LoggingRepository
	logger   *slog.Logger
}

func NewSink(consumer kafka.Consumer, repo postgres.LoggingRepository, logger *slog.Logger) *Sink {
	return &Sink{consumer: consumer, repo: repo, logger: logger}
}

// Run starts consuming. Blocks until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) error {
	return s.consumer.Subscribe(ctx, s.store)
}

func (s *Sink) store(ctx context.Context, msg kafka.Message) error {
	ctx, span := telemetry.Tracer("logsink").Start(ctx, "logsink.store")
	defer span.End()

	entry, err := joblog.Decode(msg.Value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed record")
		telemetry.LogSinkRecordsTotal.WithLabelValues("dropped").Inc()
		return fmt.Errorf("%w: %v", kafka.ErrPoison, err)
	}
	span.SetAttributes(
		attribute.String("job.id", entry.JobID),
		attribute.String("job.status", entry.Status),
	)

	// Insert is idempotent on the record id, so a redelivery is harmless.
	if err := s.repo.Insert(ctx, &entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		telemetry.LogSinkRecordsTotal.WithLabelValues("failed").Inc()
		return err
	}

	telemetry.LogSinkRecordsTotal.WithLabelValues("stored").Inc()
	s.logger.Debug("logging record stored",
		slog.String("job_id", entry.JobID),
		slog.String("status", entry.Status),
		slog.String("minor_status", entry.MinorStatus),
	)
	return nil
}
