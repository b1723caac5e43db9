package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"loyalty/internal/aggregator"
	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/logger"
	"loyalty/internal/reports"
	"loyalty/pkg/bootstrap"
	"loyalty/pkg/metrics"
	"loyalty/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	dbs            *bootstrap.Databases
	service        *aggregator.Service
	pusher         *metrics.Pusher
	location       *time.Location
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceRewardAggregator)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	loc, err := bootstrap.Location(a.Config)
	if err != nil {
		return err
	}
	a.location = loc

	dbs, err := a.dbConnector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect databases: %w", err)
	}
	a.dbs = dbs

	store, err := bootstrap.NewLedgerStore(a.Config, dbs, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create ledger store: %w", err)
	}

	reportStore, err := bootstrap.NewReportStore(a.Config, dbs)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	// A batch job gets its own registry so that a push carries only the
	// aggregator's series.
	registry := prometheus.NewRegistry()
	metrics.RegisterAggregatorMetrics(registry)
	sink, err := metrics.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics sink: %w", err)
	}
	if a.Config.Aggregation.PushgatewayURL != "" {
		a.pusher = metrics.NewPusher(a.Config.Aggregation.PushgatewayURL, constants.ServiceRewardAggregator, registry)
	}

	a.service = aggregator.NewService(store, reportStore, sink, a.Logger, aggregator.WithLocation(loc))
	return nil
}

// RunOnce aggregates one day and pushes the run's metrics, also when the run
// failed so that the failure is visible.
func (a *App) RunOnce(ctx context.Context, date string) (*reports.Report, error) {
	report, err := a.service.Run(ctx, date)

	if a.pusher != nil {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer cancel()
		if pushErr := a.pusher.Push(pushCtx); pushErr != nil {
			a.Logger.WarnwCtx(ctx, "Failed to push aggregator metrics", "error", pushErr)
		}
	}

	return report, err
}

func (a *App) Schedule(ctx context.Context) error {
	timeout := a.Config.Aggregation.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultAggregateTimeout
	}
	spec := a.Config.Aggregation.Schedule
	if spec == "" {
		spec = constants.DefaultAggregateSchedule
	}

	scheduler, err := aggregator.NewScheduler(spec, a.location, timeout, aggregator.RunnerFunc(a.RunOnce), a.Logger)
	if err != nil {
		return err
	}

	return scheduler.Start(ctx)
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.dbs)...)
		return errs
	})
}
