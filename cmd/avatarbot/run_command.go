package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapu/persona-avatar-bot-go/internal/app"
	"github.com/kapu/persona-avatar-bot-go/internal/config"
	"github.com/kapu/persona-avatar-bot-go/internal/report"
	"github.com/kapu/persona-avatar-bot-go/internal/service/orchestrator"
	"github.com/kapu/persona-avatar-bot-go/internal/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type batchFlags struct {
	limit      int
	name       string
	reportPath string
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Process at most N records (0 = all)")
	cmd.Flags().StringVar(&f.name, "name", "", "Only process records whose name contains this text")
	cmd.Flags().StringVar(&f.reportPath, "report", "", "Write a JSON run report to this path (default PIPELINE_REPORT_FILE)")
}

func newRunCommand() *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify every persona avatar and replace the ones that need it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, flags, false)
		},
	}
	flags.register(cmd)
	return cmd
}

func newCheckCommand() *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Classify persona avatars without searching or writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, flags, true)
		},
	}
	flags.register(cmd)
	return cmd
}

func runBatch(cmd *cobra.Command, flags batchFlags, checkOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	buildCtx, buildCancel := context.WithTimeout(ctx, 30*time.Second)
	container, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to assemble avatar pipeline", zap.Error(err))
		return err
	}
	defer container.Close()

	result, runErr := container.Orchestrator.Run(ctx, orchestrator.RunOptions{
		CheckOnly:  checkOnly,
		Limit:      flags.limit,
		NameFilter: flags.name,
	})
	if result == nil {
		return runErr
	}
	if result.Stopped {
		logger.Info("Run stopped by signal after finishing the in-flight record")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.RenderStats(result))
	if issues := report.RenderIssues(result); issues != "" {
		fmt.Fprintln(out, issues)
	}

	reportPath := flags.reportPath
	if reportPath == "" {
		reportPath = cfg.Pipeline.ReportFile
	}
	if reportPath != "" {
		if err := report.WriteJSON(reportPath, result); err != nil {
			logger.Error("Failed to write run report", zap.String("path", reportPath), zap.Error(err))
		} else {
			logger.Info("Run report written", zap.String("path", reportPath))
		}
	}

	return runErr
}
