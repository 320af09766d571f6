// Package agent runs the request task lifecycle: it submits new tasks,
// monitors submitted ones and reconciles their terminal statuses.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/internal/postgres"
	"github.com/ramiqadoumi/go-task-agent/internal/reconcile"
	redisstore "github.com/ramiqadoumi/go-task-agent/internal/redis"
	"github.com/ramiqadoumi/go-task-agent/internal/taskmanager"
	"github.com/ramiqadoumi/go-task-agent/pkg/telemetry"
)

// TaskStore is the slice of the task store the agent drives directly.
type TaskStore interface {
	ListEligibleTasks(ctx context.Context, filter postgres.TaskFilter) ([]*domain.Task, error)
	ClaimTask(ctx context.Context, key domain.TaskKey, from, to domain.Status, owner string) (bool, error)
	RecordSubmission(ctx context.Context, key domain.TaskKey, requestID string) error
}

// Reconciler applies terminal statuses.
type Reconciler interface {
	Reconcile(ctx context.Context, task *domain.Task, status domain.Status, minor string) (*reconcile.Report, error)
	Disabled() bool
}

// Stages switches the parts of a cycle on or off.
type Stages struct {
	SubmitTasks   bool
	MonitorTasks  bool
	CheckReserved bool
}

// Agent is the periodic control loop. One cycle holds no state that cannot
// be re-derived from the stores.
type Agent struct {
	instanceID string
	store      TaskStore
	manager    taskmanager.TaskManager
	monitor    taskmanager.StatusMonitor
	reconciler Reconciler
	ledger     redisstore.Ledger
	locker     redisstore.Locker
	elector    redisstore.Elector

	stages          Stages
	submitBatch     int
	monitorBatch    int
	workers         int
	storeTimeout    time.Duration
	reservedTimeout time.Duration
	leaseTTL        time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

func WithStages(s Stages) Option                 { return func(a *Agent) { a.stages = s } }
func WithSubmitBatch(n int) Option               { return func(a *Agent) { a.submitBatch = n } }
func WithMonitorBatch(n int) Option              { return func(a *Agent) { a.monitorBatch = n } }
func WithWorkers(n int) Option                   { return func(a *Agent) { a.workers = n } }
func WithStoreTimeout(d time.Duration) Option    { return func(a *Agent) { a.storeTimeout = d } }
func WithReservedTimeout(d time.Duration) Option { return func(a *Agent) { a.reservedTimeout = d } }
func WithLeaseTTL(d time.Duration) Option        { return func(a *Agent) { a.leaseTTL = d } }
func WithElector(e redisstore.Elector) Option    { return func(a *Agent) { a.elector = e } }
func WithLogger(l *slog.Logger) Option           { return func(a *Agent) { a.logger = l } }
func WithClock(now func() time.Time) Option      { return func(a *Agent) { a.now = now } }

// New constructs an Agent with the given collaborators and options.
func New(
	instanceID string,
	store TaskStore,
	manager taskmanager.TaskManager,
	monitor taskmanager.StatusMonitor,
	reconciler Reconciler,
	ledger redisstore.Ledger,
	locker redisstore.Locker,
	opts ...Option,
) *Agent {
	a := &Agent{
		instanceID:      instanceID,
		store:           store,
		manager:         manager,
		monitor:         monitor,
		reconciler:      reconciler,
		ledger:          ledger,
		locker:          locker,
		stages:          Stages{SubmitTasks: true, MonitorTasks: true, CheckReserved: true},
		submitBatch:     100,
		monitorBatch:    500,
		workers:         8,
		storeTimeout:    10 * time.Second,
		reservedTimeout: 10 * time.Minute,
		leaseTTL:        2 * time.Minute,
		logger:          slog.Default(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers <= 0 {
		a.workers = 1
	}
	return a
}

// RunCycle runs one full cycle. The returned error is non-nil only when the
// task store could not be listed; per-task failures land in the summary.
func (a *Agent) RunCycle(ctx context.Context) (*CycleSummary, error) {
	ctx, span := telemetry.Tracer("agent").Start(ctx, "agent.cycle")
	defer span.End()
	span.SetAttributes(attribute.String("agent.instance_id", a.instanceID))

	disabled := a.reconciler.Disabled()
	sum := newSummary(a.now(), disabled)

	err := a.runStages(ctx, sum, disabled)
	sum.Duration = a.now().Sub(sum.Started)
	telemetry.AgentCycleDurationSeconds.Observe(sum.Duration.Seconds())

	if err != nil {
		telemetry.AgentCyclesTotal.WithLabelValues("aborted").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle aborted")
		a.logger.Error("cycle aborted", slog.String("error", err.Error()), slog.Any("summary", sum))
		return sum, err
	}
	telemetry.AgentCyclesTotal.WithLabelValues("ok").Inc()
	a.logger.Info("cycle finished", slog.Any("summary", sum))
	for _, w := range sum.Warnings {
		a.logger.Warn("cycle warning", slog.String("warning", w))
	}
	return sum, nil
}

func (a *Agent) runStages(ctx context.Context, sum *CycleSummary, disabled bool) error {
	if a.stages.CheckReserved && !disabled {
		if err := a.recoverReserved(ctx, sum); err != nil {
			return err
		}
	}
	if a.stages.SubmitTasks {
		if err := a.submitStage(ctx, sum, disabled); err != nil {
			return err
		}
	}
	if a.stages.MonitorTasks {
		if err := a.monitorStage(ctx, sum); err != nil {
			return err
		}
		if !disabled {
			if err := a.reconcileStage(ctx, sum); err != nil {
				return err
			}
		}
	}
	return nil
}

// recoverReserved resolves tasks left in Building by a crashed or timed-out
// cycle. A ledger entry proves the request reached the remote service.
func (a *Agent) recoverReserved(ctx context.Context, sum *CycleSummary) error {
	cutoff := a.now().Add(-a.reservedTimeout)
	tasks, err := a.list(ctx, postgres.TaskFilter{
		Statuses:            []domain.Status{domain.StatusBuilding},
		TransformationTypes: a.manager.TransformationTypes(),
		ClaimedBefore:       &cutoff,
		Limit:               a.submitBatch,
	})
	if err != nil {
		return fmt.Errorf("list reserved tasks: %w", err)
	}

	for _, task := range tasks {
		key := task.Key()
		requestID, ok, err := a.ledger.Lookup(ctx, key.String())
		if err != nil {
			sum.warn(key, "reserved", err)
			continue
		}
		if ok {
			if err := a.storeCall(ctx, func(ctx context.Context) error {
				return a.store.RecordSubmission(ctx, key, requestID)
			}); err != nil {
				sum.warn(key, "reserved", err)
				continue
			}
			sum.inc(&sum.Recovered)
			a.countTask("reserved", "recovered")
			continue
		}
		a.release(ctx, sum, task, "reserved")
	}
	return nil
}

func (a *Agent) submitStage(ctx context.Context, sum *CycleSummary, disabled bool) error {
	tasks, err := a.list(ctx, postgres.TaskFilter{
		Statuses:            []domain.Status{domain.StatusNew},
		TransformationTypes: a.manager.TransformationTypes(),
		ActiveOnly:          true,
		Limit:               a.submitBatch,
	})
	if err != nil {
		return fmt.Errorf("list new tasks: %w", err)
	}
	sum.add(&sum.Listed, len(tasks))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if disabled {
				a.dryRunBuild(ctx, sum, task)
			} else {
				a.submitTask(ctx, sum, task)
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *Agent) dryRunBuild(ctx context.Context, sum *CycleSummary, task *domain.Task) {
	if _, err := a.manager.BuildRequest(ctx, task); err != nil {
		a.countBuildError(sum, task, err)
		return
	}
	sum.inc(&sum.Built)
	a.countTask("submit", "built")
}

func (a *Agent) submitTask(ctx context.Context, sum *CycleSummary, task *domain.Task) {
	key := task.Key()
	logger := a.taskLogger(task)

	var won bool
	err := a.storeCall(ctx, func(ctx context.Context) error {
		var err error
		won, err = a.store.ClaimTask(ctx, key, domain.StatusNew, domain.StatusBuilding, a.instanceID)
		return err
	})
	if err != nil {
		sum.warn(key, "claim", err)
		return
	}
	if !won {
		logger.Debug("task claimed elsewhere")
		return
	}

	req, err := a.manager.BuildRequest(ctx, task)
	if err != nil {
		a.countBuildError(sum, task, err)
		if domain.KindOf(err) == domain.KindPermanentBuild {
			a.fail(ctx, sum, task, err)
		} else {
			a.release(ctx, sum, task, "build")
		}
		return
	}

	res, err := a.manager.Submit(ctx, req)
	if err != nil {
		if domain.KindOf(err) == domain.KindPermanentRemote {
			logger.Warn("request rejected", slog.String("error", err.Error()))
			sum.inc(&sum.Rejected)
			a.countTask("submit", "rejected")
			a.fail(ctx, sum, task, err)
			return
		}
		logger.Warn("submission deferred", slog.String("kind", string(domain.KindOf(err))), slog.String("error", err.Error()))
		a.release(ctx, sum, task, "submit")
		return
	}

	if err := a.storeCall(ctx, func(ctx context.Context) error {
		return a.store.RecordSubmission(ctx, key, res.RequestID)
	}); err != nil {
		// The ledger holds the id; reserved recovery finishes the job.
		sum.warn(key, "record", err)
		return
	}
	if res.Reused {
		sum.inc(&sum.Reused)
		a.countTask("submit", "reused")
	} else {
		sum.inc(&sum.Submitted)
		a.countTask("submit", "submitted")
	}
	logger.Info("request submitted", slog.String("request_id", res.RequestID), slog.Bool("reused", res.Reused))
}

func (a *Agent) monitorStage(ctx context.Context, sum *CycleSummary) error {
	tasks, err := a.list(ctx, postgres.TaskFilter{
		Statuses:            []domain.Status{domain.StatusSubmitted},
		TransformationTypes: a.manager.TransformationTypes(),
		Limit:               a.monitorBatch,
	})
	if err != nil {
		return fmt.Errorf("list submitted tasks: %w", err)
	}

	held := a.lease(ctx, sum, tasks)
	defer a.unlease(held)

	res := a.monitor.Poll(ctx, held)
	for _, err := range res.Errors {
		sum.warnf("poll: %v", err)
	}

	var g errgroup.Group
	g.SetLimit(a.workers)
	for _, task := range held {
		task := task
		state, ok := res.States[task.Key()]
		if !ok {
			continue
		}
		sum.inc(&sum.Polled)
		status, terminal := state.TaskStatus()
		if !terminal {
			sum.inc(&sum.Pending)
			continue
		}
		if status == domain.StatusDone {
			sum.inc(&sum.Done)
		} else {
			sum.inc(&sum.Failed)
		}
		a.countTask("monitor", string(status))
		a.taskLogger(task).Info("request finished",
			slog.String("request_id", task.RequestID),
			slog.String("remote_status", res.Raw[task.Key()]),
		)
		g.Go(func() error {
			a.reconcile(ctx, sum, task, status, reconcile.DefaultMinor(status))
			return nil
		})
	}
	return g.Wait()
}

// reconcileStage re-runs the reconciler for terminal tasks whose previous
// reconciliation was partial.
func (a *Agent) reconcileStage(ctx context.Context, sum *CycleSummary) error {
	tasks, err := a.list(ctx, postgres.TaskFilter{
		Statuses:            []domain.Status{domain.StatusDone, domain.StatusFailed},
		TransformationTypes: a.manager.TransformationTypes(),
		Unreconciled:        true,
		Limit:               a.monitorBatch,
	})
	if err != nil {
		return fmt.Errorf("list unreconciled tasks: %w", err)
	}

	held := a.lease(ctx, sum, tasks)
	defer a.unlease(held)

	var g errgroup.Group
	g.SetLimit(a.workers)
	for _, task := range held {
		task := task
		g.Go(func() error {
			a.reconcile(ctx, sum, task, task.Status, reconcile.DefaultMinor(task.Status))
			return nil
		})
	}
	return g.Wait()
}

// fail records a task that can never produce a request as Failed. The task
// has no request id, so only the task store is written.
func (a *Agent) fail(ctx context.Context, sum *CycleSummary, task *domain.Task, cause error) {
	failed := *task
	failed.RequestID = ""
	a.reconcile(ctx, sum, &failed, domain.StatusFailed, "")
	a.taskLogger(task).Warn("task failed", slog.String("kind", string(domain.KindOf(cause))), slog.String("error", cause.Error()))
}

func (a *Agent) reconcile(ctx context.Context, sum *CycleSummary, task *domain.Task, status domain.Status, minor string) {
	rep, err := a.reconciler.Reconcile(ctx, task, status, minor)
	if err != nil {
		sum.warn(task.Key(), "reconcile", err)
		return
	}
	switch rep.Outcome {
	case reconcile.OutcomeApplied:
		sum.inc(&sum.Reconciled)
	case reconcile.OutcomePartial:
		sum.inc(&sum.Partial)
		for step, err := range rep.Steps {
			sum.warn(task.Key(), "reconcile "+step, err)
		}
	}
	a.countTask("reconcile", string(rep.Outcome))
}

// release returns a claimed task to New so the next cycle retries it.
func (a *Agent) release(ctx context.Context, sum *CycleSummary, task *domain.Task, stage string) {
	var won bool
	err := a.storeCall(ctx, func(ctx context.Context) error {
		var err error
		won, err = a.store.ClaimTask(ctx, task.Key(), domain.StatusBuilding, domain.StatusNew, a.instanceID)
		return err
	})
	if err != nil {
		sum.warn(task.Key(), stage+" release", err)
		return
	}
	if won {
		sum.inc(&sum.Released)
		a.countTask(stage, "released")
	}
}

func (a *Agent) countBuildError(sum *CycleSummary, task *domain.Task, err error) {
	switch domain.KindOf(err) {
	case domain.KindSkipped:
		sum.inc(&sum.Skipped)
		a.countTask("build", "skipped")
	case domain.KindPermanentBuild:
		sum.inc(&sum.BuildFailed)
		sum.warn(task.Key(), "build", err)
		a.countTask("build", "failed")
	default:
		sum.warn(task.Key(), "build", err)
		a.countTask("build", "deferred")
	}
}

// lease takes a per-task Redis lease so that no two agents poll or reconcile
// the same task at once. Tasks whose lease is held elsewhere are dropped.
func (a *Agent) lease(ctx context.Context, sum *CycleSummary, tasks []*domain.Task) []*domain.Task {
	held := make([]*domain.Task, 0, len(tasks))
	for _, task := range tasks {
		ok, err := a.locker.Acquire(ctx, task.Key().String(), a.leaseTTL)
		if err != nil {
			sum.warn(task.Key(), "lease", err)
			continue
		}
		if ok {
			held = append(held, task)
		}
	}
	return held
}

func (a *Agent) unlease(tasks []*domain.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, task := range tasks {
		if err := a.locker.Release(ctx, task.Key().String()); err != nil {
			a.logger.Warn("lease release failed", slog.String("task", task.Key().String()), slog.String("error", err.Error()))
		}
	}
}

func (a *Agent) list(ctx context.Context, filter postgres.TaskFilter) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := a.storeCall(ctx, func(ctx context.Context) error {
		var err error
		tasks, err = a.store.ListEligibleTasks(ctx, filter)
		return err
	})
	return tasks, err
}

func (a *Agent) storeCall(ctx context.Context, fn func(context.Context) error) error {
	if a.storeTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func (a *Agent) taskLogger(task *domain.Task) *slog.Logger {
	return a.logger.With(
		slog.String("task", task.Key().String()),
		slog.String("transformation", task.TransformationName),
		slog.String("type", task.TransformationType),
	)
}

func (a *Agent) countTask(stage, outcome string) {
	telemetry.AgentTasksTotal.WithLabelValues(stage, outcome).Inc()
}
