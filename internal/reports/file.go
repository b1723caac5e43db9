package reports

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "loyalty/pkg/errors"
)

// FileSink stores reports under dir using their object key as the relative
// path. Writes go through a temporary file and a rename, so readers never see
// a partial report.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) path(date string) string {
	return filepath.Join(s.dir, filepath.FromSlash(Key(date)))
}

func (s *FileSink) Write(ctx context.Context, date string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.path(date)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return apperrors.StoreUnavailable("reports.write", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".report-*")
	if err != nil {
		return apperrors.StoreUnavailable("reports.write", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return apperrors.StoreUnavailable("reports.write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.StoreUnavailable("reports.write", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.StoreUnavailable("reports.write", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return apperrors.StoreUnavailable("reports.write", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return apperrors.StoreUnavailable("reports.write", fmt.Errorf("rename report: %w", err))
	}
	return nil
}

func (s *FileSink) Read(ctx context.Context, date string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := os.ReadFile(s.path(date))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.ErrNotFound.WithDetail("date", date)
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable("reports.read", err)
	}
	return body, nil
}
