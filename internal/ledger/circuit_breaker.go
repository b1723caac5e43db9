package ledger

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"loyalty/internal/config"
	"loyalty/pkg/circuitbreaker"
	apperrors "loyalty/pkg/errors"
)

// CircuitBreakerStore stops calling an unavailable backend until it recovers.
// Not-found lookups and validation failures do not count against it.
type CircuitBreakerStore struct {
	next Store
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(next Store, name string, cfg config.CircuitBreakerConfig) Store {
	if !cfg.Enabled {
		return next
	}

	cbConfig := circuitbreaker.DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || apperrors.IsNotFound(err) || apperrors.IsValidation(err)
	}

	return &CircuitBreakerStore{
		next: next,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) Put(ctx context.Context, entry *Entry) (bool, error) {
	result, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return s.next.Put(ctx, entry)
	})
	if err != nil {
		return false, s.wrap("ledger.put", err)
	}

	committed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("ledger store returned invalid result type %T", result)
	}
	return committed, nil
}

func (s *CircuitBreakerStore) Query(ctx context.Context, status Status, date string) ([]Entry, error) {
	result, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return s.next.Query(ctx, status, date)
	})
	if err != nil {
		return nil, s.wrap("ledger.query", err)
	}

	entries, ok := result.([]Entry)
	if !ok {
		return nil, fmt.Errorf("ledger store returned invalid result type %T", result)
	}
	return entries, nil
}

func (s *CircuitBreakerStore) GetByTransactionID(ctx context.Context, id string) (*Entry, error) {
	result, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return s.next.GetByTransactionID(ctx, id)
	})
	if err != nil {
		return nil, s.wrap("ledger.get", err)
	}

	entry, ok := result.(*Entry)
	if !ok {
		return nil, fmt.Errorf("ledger store returned invalid result type %T", result)
	}
	return entry, nil
}

func (s *CircuitBreakerStore) State() string {
	return s.cb.State().String()
}

// wrap turns breaker rejections into StoreUnavailable; other errors already
// carry their kind.
func (s *CircuitBreakerStore) wrap(op string, err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperrors.StoreUnavailable(op, fmt.Errorf("circuit breaker %s: %w", s.cb.Name(), err))
	}
	return err
}
