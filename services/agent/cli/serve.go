package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-agent/internal/version"
	"github.com/ramiqadoumi/go-task-agent/pkg/telemetry"
	"github.com/ramiqadoumi/go-task-agent/services/agent/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run agent cycles on the configured schedule",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "agent")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "task-agent", version.Version, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	rt, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, rt.checks)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down, finishing the current cycle...")
		runCancel()
	}()

	logger.Info("agent starting",
		slog.String("instance_id", rt.instanceID),
		slog.String("schedule", cfg.Schedule),
		slog.Any("trans_types", cfg.TransTypes),
		slog.Bool("disabled", cfg.Disabled),
	)

	if err := rt.agent.Run(runCtx, cfg.Schedule); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	logger.Info("stopped cleanly")
	return nil
}
