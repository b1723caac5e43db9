package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"loyalty/internal/api"
	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/logger"
	"loyalty/pkg/bootstrap"
	"loyalty/pkg/metrics"
	"loyalty/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	dbs            *bootstrap.Databases
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceRewardAPI)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

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
	reader := api.NewCachedReportReader(reportStore, a.Config.API.ReportCacheSize, a.Config.API.ReportCacheTTL)

	metrics.RegisterAPIMetrics()
	metrics.RegisterLedgerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	healthRegistry := bootstrap.NewHealthRegistry(a.Config, dbs, nil)
	handler := api.NewHandler(store, reader, a.Logger)
	router := api.NewRouter(ctx, a.Config, constants.ServiceRewardAPI, handler, healthRegistry, a.Logger)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(context.Background())
	case err := <-errChan:
		_ = a.Shutdown(context.Background())
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.dbs)...)
		return errs
	})
}
