// Package joblog publishes append-only job audit records.
package joblog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/internal/kafka"
)

// DefaultTopic carries logging records from agents to the log sink.
const DefaultTopic = "jobs.logging"

// LogStore records one audit entry for a job.
type LogStore interface {
	AddLoggingRecord(ctx context.Context, entry domain.LogEntry) error
}

// Publisher is a LogStore backed by a Kafka topic.
type Publisher struct {
	producer kafka.Producer
	topic    string
	now      func() time.Time
}

// NewPublisher creates a Publisher. An empty topic selects DefaultTopic.
func NewPublisher(producer kafka.Producer, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{producer: producer, topic: topic, now: time.Now}
}

// AddLoggingRecord fills in the id and timestamp when absent and publishes the
// entry keyed by job id so one job's history stays on one partition.
func (p *Publisher) AddLoggingRecord(ctx context.Context, entry domain.LogEntry) error {
	if entry.JobID == "" {
		return fmt.Errorf("logging record without job id")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = p.now().UTC()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal logging record: %w", err)
	}
	if err := p.producer.Publish(ctx, p.topic, entry.JobID, body); err != nil {
		return fmt.Errorf("publish logging record for job %s: %w", entry.JobID, err)
	}
	return nil
}

// Decode parses a record produced by Publisher.
func Decode(data []byte) (domain.LogEntry, error) {
	var entry domain.LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, fmt.Errorf("decode logging record: %w", err)
	}
	if entry.ID == "" || entry.JobID == "" {
		return entry, fmt.Errorf("decode logging record: missing id or job_id")
	}
	if _, err := uuid.Parse(entry.ID); err != nil {
		return entry, fmt.Errorf("decode logging record: bad id: %w", err)
	}
	return entry, nil
}
