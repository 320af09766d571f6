package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/go-task-agent/internal/agent"
	"github.com/ramiqadoumi/go-task-agent/internal/joblog"
	"github.com/ramiqadoumi/go-task-agent/internal/kafka"
	"github.com/ramiqadoumi/go-task-agent/internal/postgres"
	"github.com/ramiqadoumi/go-task-agent/internal/reconcile"
	redisstore "github.com/ramiqadoumi/go-task-agent/internal/redis"
	"github.com/ramiqadoumi/go-task-agent/internal/rms"
	"github.com/ramiqadoumi/go-task-agent/internal/taskmanager"
	"github.com/ramiqadoumi/go-task-agent/pkg/retry"
	"github.com/ramiqadoumi/go-task-agent/pkg/telemetry"
	"github.com/ramiqadoumi/go-task-agent/services/agent/config"
)

// app is a wired agent plus what must be closed after it stops.
type app struct {
	instanceID string
	agent      *agent.Agent
	elector    redisstore.Elector
	checks     map[string]telemetry.ReadyCheck
	closers    []func()
}

func (r *app) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	rt := &app{instanceID: cfg.InstanceID}
	if rt.instanceID == "" {
		rt.instanceID = "agent-" + uuid.New().String()[:8]
	}
	logger = logger.With(slog.String("instance_id", rt.instanceID))

	registry, unknown := taskmanager.DefaultRegistry(cfg.TransTypes)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unsupported transformation types: %s", strings.Join(unknown, ", "))
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	rt.closers = append(rt.closers, pool.Close)
	store := postgres.NewTaskStore(pool)

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	rt.closers = append(rt.closers, func() { _ = redisClient.Close() })

	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: strings.Split(cfg.KafkaBrokers, ",")})
	rt.closers = append(rt.closers, func() { _ = producer.Close() })

	ledger := redisstore.NewLedger(redisClient)
	client := rms.NewHTTPClient(cfg.RMSURL, cfg.RemoteTimeout, logger)
	submitter := taskmanager.NewSubmitter(
		client, ledger,
		redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateWindow),
		cfg.RemoteTimeout, logger,
	)
	builder := taskmanager.NewBuilder(registry, taskmanager.NewInfoCache(store))
	manager := taskmanager.NewRequestTasks(registry, builder, submitter)
	monitor := taskmanager.NewMonitor(client, cfg.StatusBatchSize, cfg.RemoteTimeout)

	reconciler := reconcile.New(
		store,
		redisstore.NewJobStore(redisClient),
		joblog.NewPublisher(producer, cfg.LoggingTopic),
		reconcile.Config{
			Disabled: cfg.Disabled,
			Source:   cfg.LogSource,
			Retry: retry.Config{
				MaxAttempts: cfg.ReconcileAttempts,
				BaseDelay:   200 * time.Millisecond,
				MaxDelay:    2 * time.Second,
			},
			Timeout: cfg.StoreTimeout,
		},
		logger,
	)

	rt.elector = redisstore.NewElector(redisClient, rt.instanceID)
	rt.agent = agent.New(
		rt.instanceID, store, manager, monitor, reconciler,
		ledger, redisstore.NewLocker(redisClient, rt.instanceID),
		agent.WithLogger(logger),
		agent.WithStages(agent.Stages{
			SubmitTasks:   cfg.SubmitTasks,
			MonitorTasks:  cfg.MonitorTasks,
			CheckReserved: cfg.CheckReserved,
		}),
		agent.WithSubmitBatch(cfg.SubmitBatch),
		agent.WithMonitorBatch(cfg.MonitorBatch),
		agent.WithWorkers(cfg.Workers),
		agent.WithStoreTimeout(cfg.StoreTimeout),
		agent.WithReservedTimeout(cfg.ReservedTimeout),
		agent.WithLeaseTTL(cfg.LeaseTTL),
		agent.WithElector(rt.elector),
	)

	rt.checks = map[string]telemetry.ReadyCheck{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	return rt, nil
}
