package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "loyalty/cmd/reward-api/docs"
	"loyalty/internal/constants"
	"loyalty/pkg/bootstrap"
)

var (
	configFile string
)

// @title           Loyalty Rewards API
// @version         1.0
// @description     Read-only access to the reward ledger and daily rewards reports

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceRewardAPI,
		Short: "Reward API for the loyalty ledger",
		Long:  "Reward API serves daily rewards reports and ledger lookups over HTTP",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the reward API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap.Setup(configFile, constants.ServiceRewardAPI)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Reward API")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				_ = app.Shutdown(context.Background())
				return err
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Shutdown complete")
			return nil
		},
	}
}
