package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/consumer"
	"loyalty/internal/logger"
	"loyalty/internal/rewards"
	"loyalty/pkg/bootstrap"
	"loyalty/pkg/health"
	"loyalty/pkg/metrics"
	"loyalty/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	dbs            *bootstrap.Databases
	service        *consumer.Service
	healthRegistry *health.CheckerRegistry
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	consuming      atomic.Bool
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceRewardConsumer)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	dbs, err := a.dbConnector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect databases: %w", err)
	}
	a.dbs = dbs

	if err := a.initService(); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.InitBroker(constants.ServiceRewardConsumer); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	metrics.RegisterConsumerMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterLedgerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.healthRegistry = bootstrap.NewHealthRegistry(a.Config, dbs, a.Config.Broker.Kafka.Brokers)
	a.healthRegistry.Register(health.NewCheckFunc("consumer", func(context.Context) error {
		if !a.consuming.Load() {
			return errors.New("consume loop is not running")
		}
		return nil
	}))
	a.initHTTPServer()

	return nil
}

func (a *App) initService() error {
	store, err := bootstrap.NewLedgerStore(a.Config, a.dbs, a.Logger)
	if err != nil {
		return err
	}

	policy, err := rewards.NewPolicy(a.Config.Rewards)
	if err != nil {
		return err
	}

	sink, err := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	loc, err := bootstrap.Location(a.Config)
	if err != nil {
		return err
	}

	a.service = consumer.NewService(store, policy, sink, a.Logger, consumer.WithLocation(loc))
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := a.healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":%q,"timestamp":%q}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	inputTopic := a.Config.Broker.Kafka.InputTopic
	if inputTopic == "" {
		inputTopic = constants.DefaultInputTopic
	}

	g.Go(func() error {
		a.consuming.Store(true)
		err := a.Consumer.Consume(gCtx, inputTopic, a.service.HandleBatch)
		a.consuming.Store(false)
		if err != nil {
			return fmt.Errorf("consumer stopped: %w", err)
		}
		// A clean return outside shutdown means the reader closed; stop the
		// server with it.
		if gCtx.Err() == nil {
			return errors.New("consumer stopped unexpectedly")
		}
		return nil
	})

	return g.Wait()
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
