package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := StoreUnavailable("put", cause)

	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, IsMalformedEvent(err))
	assert.Equal(t, http.StatusServiceUnavailable, ToHTTPStatus(err))

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsRetryable())
	assert.Equal(t, "put", appErr.Details["operation"])

	assert.NoError(t, StoreUnavailable("put", nil))
}

func TestMalformedEventIsFatal(t *testing.T) {
	err := fmt.Errorf("decode: %w", ErrMalformedEvent.WithCause(errors.New("bad json")))
	assert.True(t, IsMalformedEvent(err))

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsFatal())
	assert.False(t, appErr.IsRetryable())
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrNotFound.WithDetail("message", "report for 2024-01-01 not found")
	assert.Empty(t, ErrNotFound.Details)
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrNotFound.WithDetail("date", "2024-01-01"))
	assert.Equal(t, "NOT_FOUND", resp.ErrorCode)
	assert.Equal(t, "2024-01-01", resp.Details["date"])

	resp = ToErrorResponse(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", resp.ErrorCode)
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("boom")))
}

func TestRecoverPanic(t *testing.T) {
	assert.NoError(t, RecoverPanic(nil))

	err := RecoverPanic("nil map write")
	require.Error(t, err)

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, true, appErr.Details["panic"])
	assert.True(t, appErr.IsFatal())
}
