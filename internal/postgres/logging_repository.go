package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

// LoggingRepository persists job logging records consumed by the log sink.
type LoggingRepository interface {
	Insert(ctx context.Context, entry *domain.LogEntry) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]*domain.LogEntry, error)
}

type loggingRepository struct {
	pool *pgxpool.Pool
}

// NewLoggingRepository wraps a pgxpool with the LoggingRepository interface.
func NewLoggingRepository(pool *pgxpool.Pool) LoggingRepository {
	return &loggingRepository{pool: pool}
}

// Insert is idempotent on the entry id so redelivered Kafka messages are harmless.
func (r *loggingRepository) Insert(ctx context.Context, entry *domain.LogEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO job_logging (id, job_id, status, minor_status, source, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.JobID, entry.Status, entry.MinorStatus, entry.Source, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert logging record for job %s: %w", entry.JobID, err)
	}
	return nil
}

func (r *loggingRepository) ListByJob(ctx context.Context, jobID string, limit int) ([]*domain.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, status, minor_status, source, logged_at
		FROM job_logging
		WHERE job_id = $1
		ORDER BY logged_at ASC
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list logging records for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var entries []*domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.Status, &e.MinorStatus, &e.Source, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan logging record: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
