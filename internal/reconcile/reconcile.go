// Package reconcile propagates a task's terminal status into the task store,
// the job store and the job log.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/internal/joblog"
	"github.com/ramiqadoumi/go-task-agent/internal/redis"
	"github.com/ramiqadoumi/go-task-agent/pkg/retry"
	"github.com/ramiqadoumi/go-task-agent/pkg/telemetry"
)

// Minor statuses written for a terminal outcome.
const (
	MinorDone   = "Job Finished Successfully"
	MinorFailed = "Job forced to Failed"
)

// DefaultSource tags log records written by the agent.
const DefaultSource = "RequestTaskAgent"

// Step names, as reported in Report.Steps and metrics.
const (
	StepTaskStatus     = "task_status"
	StepFileStatus     = "file_status"
	StepJobStatus      = "job_status"
	StepMinorStatus    = "minor_status"
	StepLog            = "log"
	StepMarkReconciled = "mark_reconciled"
)

// Outcome summarises one reconciliation.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomePartial Outcome = "partial"
	OutcomeSkipped Outcome = "skipped"
)

// TaskStore is the slice of the task store the reconciler writes.
type TaskStore interface {
	SetTaskStatus(ctx context.Context, transName string, taskID int64, status domain.Status) error
	SetFileStatus(ctx context.Context, transID int64, status domain.FileStatus, lfns []string, force bool) error
	MarkReconciled(ctx context.Context, key domain.TaskKey) error
}

// Config controls a Reconciler. The zero value writes everything, tries each
// step once and applies no per-call timeout.
type Config struct {
	// Disabled turns every reconciliation into a no-op reporting OutcomeSkipped.
	Disabled bool
	// Source is the log record source tag. Empty selects DefaultSource.
	Source string
	Retry  retry.Config
	// Timeout bounds every individual store call.
	Timeout time.Duration
}

// Report describes what one Reconcile call did.
type Report struct {
	Key         domain.TaskKey
	Status      domain.Status
	MinorStatus string
	Outcome     Outcome
	// Steps holds the failed steps. The log step never makes a report partial.
	Steps map[string]error
	// Logged is set when the job log record was written.
	Logged bool
}

// Err returns a *domain.ReconcileError for partial outcomes, nil otherwise.
func (r *Report) Err() error {
	if r.Outcome != OutcomePartial {
		return nil
	}
	return &domain.ReconcileError{Key: r.Key, Steps: r.Steps}
}

// Reconciler applies terminal statuses. It is safe for concurrent use.
type Reconciler struct {
	store  TaskStore
	jobs   redis.JobStore
	logs   joblog.LogStore
	cfg    Config
	logger *slog.Logger
}

// New creates a Reconciler.
func New(store TaskStore, jobs redis.JobStore, logs joblog.LogStore, cfg Config, logger *slog.Logger) *Reconciler {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = func(err error) bool { return domain.KindOf(err).Retryable() }
	}
	return &Reconciler{store: store, jobs: jobs, logs: logs, cfg: cfg, logger: logger}
}

// Disabled reports whether the reconciler is in dry-run mode.
func (r *Reconciler) Disabled() bool { return r.cfg.Disabled }

// Reconcile records status (Done or Failed) for task. minor is the job's
// minor status; an empty minor keeps the one already on the job, or sets the
// default for status when the job has none.
//
// Steps run in order and an earlier step is never rolled back. A failed task
// status write stops the run since the task is then still non-terminal and
// will be seen again. The job log record is appended only by the run that
// completes every store write before it, so re-running a partial
// reconciliation logs the outcome once. Tasks without a request id have no
// job, so only the task store is written.
func (r *Reconciler) Reconcile(ctx context.Context, task *domain.Task, status domain.Status, minor string) (*Report, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("reconcile task %s: %s is not a terminal status", task.Key(), status)
	}
	rep := &Report{Key: task.Key(), Status: status, MinorStatus: minor, Steps: map[string]error{}}
	logger := r.logger.With(
		slog.String("task", task.Key().String()),
		slog.String("status", string(status)),
	)

	if r.cfg.Disabled {
		rep.Outcome = OutcomeSkipped
		logger.Info("disabled mode, skipping reconciliation")
		telemetry.ReconcileTotal.WithLabelValues(string(status), string(rep.Outcome)).Inc()
		return rep, nil
	}

	// 1. Task and input files.
	if err := r.step(ctx, logger, rep, StepTaskStatus, func(ctx context.Context) error {
		return r.store.SetTaskStatus(ctx, task.TransformationName, task.TaskID, status)
	}); err != nil {
		return r.finish(logger, rep), nil
	}
	fileStatus, force := domain.FileProcessed, false
	if status == domain.StatusFailed {
		fileStatus, force = domain.FileUnused, true
	}
	_ = r.step(ctx, logger, rep, StepFileStatus, func(ctx context.Context) error {
		return r.store.SetFileStatus(ctx, task.TransformationID, fileStatus, task.LFNs(), force)
	})

	if task.RequestID != "" {
		r.updateJob(ctx, logger, rep, task.RequestID)
		if len(rep.Steps) == 0 {
			r.appendLog(ctx, logger, rep, task.RequestID)
		}
	}

	if len(rep.Steps) == 0 {
		_ = r.step(ctx, logger, rep, StepMarkReconciled, func(ctx context.Context) error {
			return r.store.MarkReconciled(ctx, rep.Key)
		})
	}
	return r.finish(logger, rep), nil
}

// updateJob runs steps 2 and 3 against the job identified by jobID.
func (r *Reconciler) updateJob(ctx context.Context, logger *slog.Logger, rep *Report, jobID string) {
	// 2. Job status, and minor status when supplied.
	err := r.step(ctx, logger, rep, StepJobStatus, func(ctx context.Context) error {
		if err := r.jobs.SetJobAttribute(ctx, jobID, "Status", string(rep.Status), true); err != nil {
			return err
		}
		if rep.MinorStatus != "" {
			return r.jobs.SetJobAttribute(ctx, jobID, "MinorStatus", rep.MinorStatus, true)
		}
		return nil
	})

	// 3. Sticky minor status: read back what the job already carries.
	if err == nil && rep.MinorStatus == "" {
		_ = r.step(ctx, logger, rep, StepMinorStatus, func(ctx context.Context) error {
			attrs, err := r.jobs.GetJobAttributes(ctx, jobID, []string{"MinorStatus"})
			if err != nil {
				return err
			}
			if prev := attrs["MinorStatus"]; prev != "" {
				rep.MinorStatus = prev
				return nil
			}
			rep.MinorStatus = DefaultMinor(rep.Status)
			return r.jobs.SetJobAttribute(ctx, jobID, "MinorStatus", rep.MinorStatus, true)
		})
	}
}

// appendLog writes the audit record, best effort.
func (r *Reconciler) appendLog(ctx context.Context, logger *slog.Logger, rep *Report, jobID string) {
	logErr := r.call(ctx, func(ctx context.Context) error {
		return r.logs.AddLoggingRecord(ctx, domain.LogEntry{
			JobID:       jobID,
			Status:      string(rep.Status),
			MinorStatus: rep.MinorStatus,
			Source:      r.cfg.Source,
		})
	})
	if logErr != nil {
		telemetry.ReconcileStepFailuresTotal.WithLabelValues(StepLog).Inc()
		logger.Warn("job log record not written", slog.String("job_id", jobID), slog.String("error", logErr.Error()))
		return
	}
	rep.Logged = true
}

// step runs fn with retries and records a failure in rep.
func (r *Reconciler) step(ctx context.Context, logger *slog.Logger, rep *Report, name string, fn func(context.Context) error) error {
	err := r.call(ctx, fn)
	if err != nil {
		rep.Steps[name] = err
		telemetry.ReconcileStepFailuresTotal.WithLabelValues(name).Inc()
		logger.Error("reconcile step failed", slog.String("step", name), slog.String("error", err.Error()))
	}
	return err
}

func (r *Reconciler) call(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
		if r.cfg.Timeout <= 0 {
			return fn(ctx)
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		return fn(callCtx)
	})
}

func (r *Reconciler) finish(logger *slog.Logger, rep *Report) *Report {
	rep.Outcome = OutcomeApplied
	if len(rep.Steps) > 0 {
		rep.Outcome = OutcomePartial
	}
	telemetry.ReconcileTotal.WithLabelValues(string(rep.Status), string(rep.Outcome)).Inc()

	if rep.Outcome == OutcomePartial {
		var terminal *domain.TerminalStatusError
		if errors.As(rep.Steps[StepTaskStatus], &terminal) {
			logger.Warn("task already terminal with another status", slog.String("current", string(terminal.Current)))
		}
		return rep
	}
	logger.Info("task reconciled", slog.String("minor_status", rep.MinorStatus))
	return rep
}

// DefaultMinor returns the minor status recorded for a terminal status.
func DefaultMinor(status domain.Status) string {
	if status == domain.StatusDone {
		return MinorDone
	}
	return MinorFailed
}
