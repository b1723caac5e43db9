package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/logger"
	"loyalty/internal/reports"
	"loyalty/pkg/bootstrap"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceRewardAggregator,
		Short: "Daily rewards aggregator",
		Long:  "Reward aggregator summarizes one day of the reward ledger into a report and summary metrics",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runResult is printed by the run command.
type runResult struct {
	Message string          `json:"message"`
	Data    *reports.Report `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func printResult(w io.Writer, report *reports.Report, runErr error) error {
	result := runResult{Message: "Daily rewards summary generated", Data: report}
	if runErr != nil {
		result = runResult{Message: "Failed to generate daily rewards summary", Error: runErr.Error()}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func withApp(fn func(ctx context.Context, app *App, cfg *config.Config, log logger.Logger) error) error {
	cfg, log, err := bootstrap.Setup(configFile, constants.ServiceRewardAggregator)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := NewApp(cfg, log)
	defer func() {
		if err := app.Shutdown(context.Background()); err != nil {
			log.ErrorwCtx(ctx, "Shutdown failed", "error", err)
		}
	}()

	if err := app.Initialize(ctx); err != nil {
		log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
		return err
	}

	return fn(ctx, app, cfg, log)
}

func runCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Aggregate one day and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App, _ *config.Config, log logger.Logger) error {
				report, runErr := app.RunOnce(ctx, date)
				if err := printResult(cmd.OutOrStdout(), report, runErr); err != nil {
					log.ErrorwCtx(ctx, "Failed to print result", "error", err)
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to aggregate in YYYY-MM-DD (default: yesterday in the configured timezone)")
	return cmd
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Aggregate yesterday on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App, cfg *config.Config, log logger.Logger) error {
				log.InfowCtx(ctx, "Reward aggregator scheduled", "schedule", cfg.Aggregation.Schedule, "timezone", cfg.Aggregation.Timezone)
				return app.Schedule(ctx)
			})
		},
	}
}
