package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-agent/services/agent/config"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single agent cycle and exit",
	Long: `Run one submit/monitor/reconcile cycle without leader election.

Exits non-zero when the task store cannot be listed. Per-task failures are
reported in the cycle summary and do not change the exit code.`,
	RunE: runOnce,
}

func runOnce(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "agent")

	rt, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	sum, err := rt.agent.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("cycle: %w", err)
	}
	fmt.Printf("submitted=%d reused=%d released=%d failed_builds=%d rejected=%d done=%d failed=%d pending=%d warnings=%d\n",
		sum.Submitted, sum.Reused, sum.Released, sum.BuildFailed, sum.Rejected,
		sum.Done, sum.Failed, sum.Pending, len(sum.Warnings))
	return nil
}
