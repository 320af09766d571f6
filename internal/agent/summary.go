package agent

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

// CycleSummary aggregates per-task outcomes of one cycle. Counters are safe
// to update from concurrent task workers.
type CycleSummary struct {
	mu sync.Mutex

	Started  time.Time
	Duration time.Duration
	Disabled bool

	Recovered   int // Building tasks moved on to Submitted by reserved recovery
	Listed      int
	Built       int // disabled mode only: requests built but not sent
	Submitted   int
	Reused      int // submissions resolved to an existing remote request
	Released    int // transient failures returned to New
	BuildFailed int
	Rejected    int
	Skipped     int
	Polled      int
	Pending     int
	Done        int
	Failed      int
	Reconciled  int
	Partial     int

	Warnings []string
}

func newSummary(started time.Time, disabled bool) *CycleSummary {
	return &CycleSummary{Started: started, Disabled: disabled}
}

func (s *CycleSummary) inc(field *int) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

func (s *CycleSummary) add(field *int, n int) {
	s.mu.Lock()
	*field += n
	s.mu.Unlock()
}

func (s *CycleSummary) warn(key domain.TaskKey, stage string, err error) {
	s.mu.Lock()
	s.Warnings = append(s.Warnings, fmt.Sprintf("%s %s: %v", key, stage, err))
	s.mu.Unlock()
}

func (s *CycleSummary) warnf(format string, args ...any) {
	s.mu.Lock()
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

// LogValue renders the summary as a log group.
func (s *CycleSummary) LogValue() slog.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slog.GroupValue(
		slog.Int64("duration_ms", s.Duration.Milliseconds()),
		slog.Bool("disabled", s.Disabled),
		slog.Int("recovered", s.Recovered),
		slog.Int("listed", s.Listed),
		slog.Int("built", s.Built),
		slog.Int("submitted", s.Submitted),
		slog.Int("reused", s.Reused),
		slog.Int("released", s.Released),
		slog.Int("build_failed", s.BuildFailed),
		slog.Int("rejected", s.Rejected),
		slog.Int("skipped", s.Skipped),
		slog.Int("polled", s.Polled),
		slog.Int("pending", s.Pending),
		slog.Int("done", s.Done),
		slog.Int("failed", s.Failed),
		slog.Int("reconciled", s.Reconciled),
		slog.Int("partial", s.Partial),
		slog.Int("warnings", len(s.Warnings)),
	)
}
