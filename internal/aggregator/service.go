package aggregator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"loyalty/internal/ledger"
	"loyalty/internal/logger"
	"loyalty/internal/reports"
	apperrors "loyalty/pkg/errors"
	"loyalty/pkg/metrics"
	"loyalty/pkg/tracing"
)

const tracerName = "loyalty-aggregator"

// ReportWriter persists a serialized report under its date, replacing any
// earlier one.
type ReportWriter interface {
	Write(ctx context.Context, date string, body []byte) error
}

type Service struct {
	store    ledger.Store
	writer   ReportWriter
	sink     metrics.Sink
	logger   logger.Logger
	now      func() time.Time
	location *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone that decides what "yesterday" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func NewService(store ledger.Store, writer ReportWriter, sink metrics.Sink, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		writer:   writer,
		sink:     sink,
		logger:   log,
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultDate is the calendar day before now in the service location.
func (s *Service) DefaultDate() string {
	return ledger.FormatDate(s.now().In(s.location).AddDate(0, 0, -1))
}

// Run aggregates date, or yesterday when date is empty. The report is written
// only after both ledger scans succeed; any failure aborts the run.
func (s *Service) Run(ctx context.Context, date string) (*reports.Report, error) {
	if date == "" {
		date = s.DefaultDate()
	}
	if _, err := ledger.ParseDate(date); err != nil {
		return nil, apperrors.ErrValidation.WithCause(err).WithDetail("date", date)
	}

	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "aggregator.run")
	defer span.End()
	span.SetAttributes(attribute.String("report.date", date))

	start := time.Now()
	report, err := s.run(ctx, date)
	if err != nil {
		metrics.ObserveAggregatorRun(time.Since(start), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorwCtx(ctx, "Daily aggregation failed", "date", date, "error", err)
		return nil, err
	}

	metrics.ObserveAggregatorRun(time.Since(start), "success")
	s.logger.InfowCtx(ctx, "Daily aggregation completed",
		"date", report.Date,
		"total_issued", report.TotalIssued,
		"total_redeemed", report.TotalRedeemed,
		"net_rewards", report.NetRewards,
		"issued_count", report.IssuedCount,
		"redeemed_count", report.RedeemedCount,
	)
	return report, nil
}

func (s *Service) run(ctx context.Context, date string) (*reports.Report, error) {
	var issued, redeemed []ledger.Entry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		issued, err = s.store.Query(gctx, ledger.StatusIssued, date)
		return err
	})
	g.Go(func() error {
		var err error
		redeemed, err = s.store.Query(gctx, ledger.StatusRedeemed, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to scan ledger for %s: %w", date, err)
	}

	report := Summarize(date, issued, redeemed)

	body, err := report.Marshal()
	if err != nil {
		return nil, err
	}
	if err := s.writer.Write(ctx, date, body); err != nil {
		return nil, fmt.Errorf("failed to write report %s: %w", reports.Key(date), err)
	}

	dims := map[string]string{metrics.DimDate: date}
	summary := []struct {
		name  string
		value int64
	}{
		{metrics.TotalIssuedRewards, report.TotalIssued},
		{metrics.TotalRedeemedRewards, report.TotalRedeemed},
		{metrics.NetRewards, report.NetRewards},
	}
	for _, m := range summary {
		if err := s.sink.Increment(ctx, m.name, float64(m.value), dims); err != nil {
			return nil, fmt.Errorf("failed to emit %s: %w", m.name, err)
		}
	}

	return &report, nil
}

// Summarize totals and counts the ISSUED and REDEEMED entries of one day.
func Summarize(date string, issued, redeemed []ledger.Entry) reports.Report {
	report := reports.Report{
		Date:          date,
		IssuedCount:   len(issued),
		RedeemedCount: len(redeemed),
	}
	for _, e := range issued {
		report.TotalIssued += e.Points
	}
	for _, e := range redeemed {
		report.TotalRedeemed += e.Points
	}
	report.NetRewards = report.TotalIssued - report.TotalRedeemed
	return report
}
