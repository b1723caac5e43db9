package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/logger"
	apperrors "loyalty/pkg/errors"
	"loyalty/pkg/metrics"
)

// CachedStore keeps committed ISSUED entries in Redis, keyed by transaction
// id, so that redelivered events are recognised without a database lookup.
// The store behind it stays authoritative.
type CachedStore struct {
	next    Store
	client  *redis.Client
	ttl     time.Duration
	onError string
	logger  logger.Logger
}

func NewCachedStore(next Store, client *redis.Client, cfg config.CacheConfig, log logger.Logger) *CachedStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = constants.DefaultCacheTTL
	}
	onError := cfg.OnError
	if onError == "" {
		onError = constants.FallbackAllow
	}

	return &CachedStore{
		next:    next,
		client:  client,
		ttl:     ttl,
		onError: onError,
		logger:  log,
	}
}

func cacheKey(transactionID string) string {
	return constants.CacheKeyPrefixTransaction + transactionID
}

func (s *CachedStore) Put(ctx context.Context, entry *Entry) (bool, error) {
	committed, err := s.next.Put(ctx, entry)
	if err != nil {
		return false, err
	}

	if committed && entry.Status == StatusIssued && entry.TransactionID != "" {
		s.fill(ctx, entry)
	}

	return committed, nil
}

func (s *CachedStore) Query(ctx context.Context, status Status, date string) ([]Entry, error) {
	return s.next.Query(ctx, status, date)
}

func (s *CachedStore) GetByTransactionID(ctx context.Context, id string) (*Entry, error) {
	raw, err := s.client.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var entry Entry
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			metrics.LedgerCacheRequestsTotal.WithLabelValues("hit").Inc()
			return &entry, nil
		}
		s.logger.WarnwCtx(ctx, "Discarding undecodable ledger cache value", "transaction_id", id)
	case errors.Is(err, redis.Nil):
		metrics.LedgerCacheRequestsTotal.WithLabelValues("miss").Inc()
	default:
		metrics.LedgerCacheRequestsTotal.WithLabelValues("error").Inc()
		if fallbackErr := s.fallback(ctx, "get", err); fallbackErr != nil {
			return nil, fallbackErr
		}
	}

	entry, err := s.next.GetByTransactionID(ctx, id)
	if err != nil {
		return nil, err
	}

	if entry.Status == StatusIssued {
		s.fill(ctx, entry)
	}

	return entry, nil
}

// fill caches an entry the store has already answered for. A failed fill
// never fails the caller, whatever on_cache_error says: the entry is
// durable and the next lookup falls through to the store.
func (s *CachedStore) fill(ctx context.Context, entry *Entry) {
	raw, err := json.Marshal(entry)
	if err == nil {
		err = s.client.Set(ctx, cacheKey(entry.TransactionID), raw, s.ttl).Err()
	}
	if err == nil {
		return
	}

	metrics.LedgerCacheRequestsTotal.WithLabelValues("error").Inc()
	metrics.FallbackUsageTotal.WithLabelValues(constants.LedgerServiceLabel, s.onError, "cache_set").Inc()
	s.logger.WarnwCtx(ctx, "Ledger cache fill failed",
		"transaction_id", entry.TransactionID,
		"error", err,
	)
}

// fallback returns nil when cache failures are tolerated and a
// StoreUnavailable error otherwise.
func (s *CachedStore) fallback(ctx context.Context, op string, err error) error {
	if s.onError == constants.FallbackError {
		return apperrors.StoreUnavailable("ledger.cache."+op, err)
	}

	metrics.FallbackUsageTotal.WithLabelValues(constants.LedgerServiceLabel, constants.FallbackAllow, "cache_"+op).Inc()
	s.logger.WarnwCtx(ctx, "Ledger cache unavailable, using store",
		"operation", op,
		"error", err,
	)
	return nil
}
