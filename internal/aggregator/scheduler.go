package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"loyalty/internal/logger"
	"loyalty/internal/reports"
)

// Runner runs one aggregation; an empty date means yesterday.
type Runner interface {
	Run(ctx context.Context, date string) (*reports.Report, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, date string) (*reports.Report, error)

func (f RunnerFunc) Run(ctx context.Context, date string) (*reports.Report, error) {
	return f(ctx, date)
}

// Scheduler runs the daily aggregation on a cron schedule. Overlapping runs
// are skipped and panics are recovered.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	runner   Runner
	timeout  time.Duration
	logger   logger.Logger
	baseCtx  context.Context
}

func NewScheduler(spec string, loc *time.Location, timeout time.Duration, runner Runner, log logger.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}

	cronLog := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		location: loc,
		runner:   runner,
		timeout:  timeout,
		logger:   log,
		baseCtx:  context.Background(),
	}

	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid aggregation schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start runs jobs until ctx is done, then waits for the running job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx
	s.cron.Start()
	s.logger.Infow("Aggregation scheduler started", "next_run", s.Next())

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Aggregation scheduler stopped")
	return nil
}

func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now().In(s.location))
}

func (s *Scheduler) runOnce() {
	ctx := s.baseCtx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.runner.Run(ctx, ""); err != nil {
		s.logger.Errorw("Scheduled aggregation failed", "error", err)
	}
}

type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
