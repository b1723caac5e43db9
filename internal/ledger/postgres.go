package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"loyalty/internal/constants"
	apperrors "loyalty/pkg/errors"
	"loyalty/pkg/metrics"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, entry *Entry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, apperrors.ErrValidation.WithCause(err)
	}

	query := `
		INSERT INTO reward_ledger (id, user_id, points, status, date, timestamp, transaction_id, merchant, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id) WHERE status = 'ISSUED' AND transaction_id <> '' DO NOTHING
	`

	start := time.Now()
	res, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Points, string(entry.Status), entry.Date,
		entry.Timestamp, entry.TransactionID, entry.Merchant, entry.Category,
	)
	metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "postgres", "put", time.Since(start), err)
	if err != nil {
		return false, apperrors.StoreUnavailable("ledger.put", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.StoreUnavailable("ledger.put", err)
	}

	return rows == 1, nil
}

func (s *PostgresStore) Query(ctx context.Context, status Status, date string) ([]Entry, error) {
	query := `
		SELECT id, user_id, points, status, date, timestamp, transaction_id, merchant, category
		FROM reward_ledger
		WHERE status = $1 AND date = $2
		ORDER BY timestamp, id
	`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, string(status), date)
	if err != nil {
		metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "postgres", "query", time.Since(start), err)
		return nil, apperrors.StoreUnavailable("ledger.query", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "postgres", "query", time.Since(start), err)
			return nil, apperrors.StoreUnavailable("ledger.query", err)
		}
		entries = append(entries, *entry)
	}

	err = rows.Err()
	metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "postgres", "query", time.Since(start), err)
	if err != nil {
		return nil, apperrors.StoreUnavailable("ledger.query", err)
	}

	return entries, nil
}

func (s *PostgresStore) GetByTransactionID(ctx context.Context, id string) (*Entry, error) {
	query := `
		SELECT id, user_id, points, status, date, timestamp, transaction_id, merchant, category
		FROM reward_ledger
		WHERE transaction_id = $1
		ORDER BY (status = 'ISSUED') DESC, timestamp DESC
		LIMIT 1
	`

	start := time.Now()
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "postgres", "get", time.Since(start), nil)
		return nil, apperrors.ErrNotFound.WithDetail("transaction_id", id)
	}
	metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "postgres", "get", time.Since(start), err)
	if err != nil {
		return nil, apperrors.StoreUnavailable("ledger.get", err)
	}

	return entry, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry  Entry
		status string
		date   time.Time
	)

	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Points, &status, &date,
		&entry.Timestamp, &entry.TransactionID, &entry.Merchant, &entry.Category,
	)
	if err != nil {
		return nil, err
	}

	entry.Status = Status(status)
	entry.Date = FormatDate(date)
	entry.Timestamp = entry.Timestamp.UTC()
	return &entry, nil
}
