package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ramiqadoumi/go-task-agent/pkg/telemetry"
)

// DefaultSchedule runs a cycle every two minutes.
const DefaultSchedule = "@every 2m"

const leaderRenewInterval = 10 * time.Second

// Run executes cycles on the cron schedule until ctx is cancelled. With an
// elector configured, only the leader runs cycles.
func (a *Agent) Run(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	defer a.resign()

	// Run once immediately before waiting for the first tick.
	a.tick(ctx)

	for {
		timer := time.NewTimer(time.Until(schedule.Next(a.now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) tick(ctx context.Context) {
	if !a.lead(ctx) {
		return
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.elector != nil {
		go a.keepLeadership(cycleCtx)
	}
	// Errors are logged and counted by RunCycle; the next tick retries.
	_, _ = a.RunCycle(cycleCtx)
}

func (a *Agent) lead(ctx context.Context) bool {
	if a.elector == nil {
		return true
	}
	leader, err := a.elector.AcquireOrRenew(ctx)
	if err != nil {
		a.logger.Error("leader election", slog.String("error", err.Error()))
		telemetry.AgentLeader.Set(0)
		return false
	}
	if !leader {
		a.logger.Debug("not the leader, skipping cycle", slog.String("instance_id", a.instanceID))
		telemetry.AgentLeader.Set(0)
		return false
	}
	telemetry.AgentLeader.Set(1)
	return true
}

// keepLeadership renews the leader key while a long cycle is running.
func (a *Agent) keepLeadership(ctx context.Context) {
	ticker := time.NewTicker(leaderRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok, err := a.elector.AcquireOrRenew(ctx); err != nil || !ok {
				a.logger.Warn("lost leadership during cycle", slog.Any("error", err))
			}
		}
	}
}

func (a *Agent) resign() {
	if a.elector == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.elector.Resign(ctx); err != nil {
		a.logger.Warn("resign leadership", slog.String("error", err.Error()))
	}
	telemetry.AgentLeader.Set(0)
}
