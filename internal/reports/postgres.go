package reports

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"loyalty/internal/constants"
	apperrors "loyalty/pkg/errors"
	"loyalty/pkg/metrics"
)

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Write replaces any earlier report for date.
func (s *PostgresSink) Write(ctx context.Context, date string, body []byte) error {
	query := `
		INSERT INTO daily_reports (date, report_key, content, body, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (date) DO UPDATE
		SET report_key = EXCLUDED.report_key,
			content = EXCLUDED.content,
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err := s.db.ExecContext(ctx, query, date, Key(date), string(body), body)
	metrics.ObserveDatabaseQuery(constants.ReportServiceLabel, "postgres", "write", time.Since(start), err)
	if err != nil {
		return apperrors.StoreUnavailable("reports.write", err)
	}
	return nil
}

func (s *PostgresSink) Read(ctx context.Context, date string) ([]byte, error) {
	query := `SELECT body FROM daily_reports WHERE date = $1`

	start := time.Now()
	var body []byte
	err := s.db.QueryRowContext(ctx, query, date).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveDatabaseQuery(constants.ReportServiceLabel, "postgres", "read", time.Since(start), nil)
		return nil, apperrors.ErrNotFound.WithDetail("date", date)
	}
	metrics.ObserveDatabaseQuery(constants.ReportServiceLabel, "postgres", "read", time.Since(start), err)
	if err != nil {
		return nil, apperrors.StoreUnavailable("reports.read", err)
	}
	return body, nil
}
