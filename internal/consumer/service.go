package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/ledger"
	"loyalty/internal/logger"
	"loyalty/internal/rewards"
	apperrors "loyalty/pkg/errors"
	"loyalty/pkg/logging"
	"loyalty/pkg/metrics"
	"loyalty/pkg/retry"
	"loyalty/pkg/tracing"
)

const (
	tracerName      = "loyalty-consumer"
	unknownMerchant = "Unknown"
)

// Summary counts the terminal outcome of every event in a batch.
type Summary struct {
	Processed  int `json:"processed"`
	Committed  int `json:"committed"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

type Service struct {
	store    ledger.Store
	policy   rewards.Policy
	sink     metrics.Sink
	logger   logger.Logger
	now      func() time.Time
	location *time.Location
}

type Option func(*Service)

// WithClock replaces the processing clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone used to derive an entry's calendar day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func NewService(store ledger.Store, policy rewards.Policy, sink metrics.Sink, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		policy:   policy,
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

// ProcessBatch handles payloads in order. Malformed events are rejected and
// the batch continues. Any other failure stops the batch and is returned
// together with the summary of the events handled before it; those entries
// stay committed and a redelivery skips them.
func (s *Service) ProcessBatch(ctx context.Context, payloads [][]byte) (Summary, error) {
	if logging.GetBatchID(ctx) == "" {
		ctx = logging.WithBatchID(ctx, uuid.NewString())
	}
	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "consumer.process_batch")
	defer span.End()
	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}
	span.SetAttributes(attribute.Int("batch.size", len(payloads)))

	start := time.Now()
	var summary Summary

	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, span, start, summary, err)
		}

		result, err := s.processEvent(ctx, payload)
		if err != nil {
			return s.fail(ctx, span, start, summary, fmt.Errorf("event %d of %d: %w", i+1, len(payloads), err))
		}

		summary.Processed++
		switch result {
		case outcomeCommitted:
			summary.Committed++
		case outcomeDuplicate:
			summary.Duplicates++
		case outcomeRejected:
			summary.Rejected++
		}
		metrics.IncConsumerEvent(string(result))
	}

	metrics.ObserveBatch(time.Since(start), "success")
	span.SetAttributes(
		attribute.Int("batch.committed", summary.Committed),
		attribute.Int("batch.duplicates", summary.Duplicates),
		attribute.Int("batch.rejected", summary.Rejected),
	)
	s.logger.InfowCtx(ctx, "Batch processed",
		"processed", summary.Processed,
		"committed", summary.Committed,
		"duplicates", summary.Duplicates,
		"rejected", summary.Rejected,
	)

	return summary, nil
}

// HandleBatch adapts ProcessBatch to the broker's batch handler signature.
func (s *Service) HandleBatch(ctx context.Context, payloads [][]byte) error {
	_, err := s.ProcessBatch(ctx, payloads)
	return err
}

func (s *Service) fail(ctx context.Context, span trace.Span, start time.Time, summary Summary, err error) (Summary, error) {
	metrics.ObserveBatch(time.Since(start), "error")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.ErrorwCtx(ctx, "Batch aborted",
		"processed", summary.Processed,
		"committed", summary.Committed,
		"error", err,
	)
	return summary, err
}

type outcome string

const (
	outcomeCommitted outcome = "committed"
	outcomeDuplicate outcome = "duplicate"
	outcomeRejected  outcome = "rejected"
)

func (s *Service) processEvent(ctx context.Context, payload []byte) (outcome, error) {
	ev, err := rewards.DecodeEvent(payload)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Rejecting malformed event",
			"error", err,
			"payload_size", len(payload),
		)
		return outcomeRejected, nil
	}

	if ev.HasTransactionID() {
		ctx = logging.WithTransactionID(ctx, ev.TransactionID)

		existing, err := s.store.GetByTransactionID(ctx, ev.TransactionID)
		switch {
		case err == nil && existing.Status == ledger.StatusIssued:
			s.logger.DebugwCtx(ctx, "Skipping already issued transaction", "entry_id", existing.ID)
			return outcomeDuplicate, nil
		case err != nil && !apperrors.IsNotFound(err):
			return "", err
		}
	}

	points, err := s.policy.Award(ctx, ev)
	if err != nil {
		if !apperrors.IsPolicyViolation(err) {
			// The same event fails the same way on every attempt.
			return "", retry.Permanent(err)
		}
		metrics.PolicyViolationsTotal.Inc()
		s.logger.WarnwCtx(ctx, "Earn-rate policy violation, awarding zero points",
			"user_id", ev.UserID,
			"amount", ev.Amount.String(),
			"error", err,
		)
		points = 0
	}

	now := s.now()
	entry := &ledger.Entry{
		ID:            uuid.NewString(),
		UserID:        ev.UserID,
		Points:        points,
		Status:        ledger.StatusIssued,
		Date:          ledger.FormatDate(now.In(s.location)),
		Timestamp:     now.UTC(),
		TransactionID: ev.TransactionID,
		Merchant:      ev.Merchant,
		Category:      ev.Category,
	}

	committed, err := s.store.Put(ctx, entry)
	if err != nil {
		if apperrors.IsValidation(err) {
			return "", retry.Permanent(err)
		}
		return "", err
	}
	if !committed {
		// A concurrent delivery won the conditional write.
		s.logger.InfowCtx(ctx, "Duplicate suppressed by ledger", "user_id", ev.UserID)
		return outcomeDuplicate, nil
	}

	merchant := ev.Merchant
	if merchant == "" {
		merchant = unknownMerchant
	}
	err = s.sink.Increment(ctx, metrics.RewardPointsIssued, float64(points), map[string]string{
		metrics.DimUserID:   ev.UserID,
		metrics.DimMerchant: merchant,
	})
	if err != nil {
		return "", fmt.Errorf("failed to emit %s: %w", metrics.RewardPointsIssued, err)
	}

	s.logger.DebugwCtx(ctx, "Reward issued",
		"user_id", ev.UserID,
		"points", points,
		"entry_id", entry.ID,
	)
	return outcomeCommitted, nil
}
