package bootstrap

import (
	"fmt"
	"os"
	"time"

	"loyalty/internal/config"
	"loyalty/internal/logger"
	"loyalty/pkg/logging"
)

// Setup resolves the config file from the flag or CONFIG_FILE, loads it and
// builds the service logger. Failures before the logger exists go to stderr.
func Setup(configFile, serviceName string) (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}

	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}

	return cfg, log, nil
}

// Location resolves the aggregation timezone. Ledger dates and report days
// are both cut in this zone so that they agree.
func Location(cfg *config.Config) (*time.Location, error) {
	if cfg.Aggregation.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(cfg.Aggregation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid aggregation timezone %q: %w", cfg.Aggregation.Timezone, err)
	}
	return loc, nil
}
