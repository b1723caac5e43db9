package rewards

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "loyalty/pkg/errors"
)

// Event is a purchase transaction as delivered to the reward consumer.
type Event struct {
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Merchant      string          `json:"merchant,omitempty"`
	Category      string          `json:"category,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at,omitempty"`
}

type wireEvent struct {
	UserID        *string          `json:"user_id"`
	Amount        *decimal.Decimal `json:"amount"`
	TransactionID string           `json:"transaction_id"`
	Merchant      string           `json:"merchant"`
	Category      string           `json:"category"`
	OccurredAt    *time.Time       `json:"occurred_at"`
}

// envelope is the notification wrapper some producers put around the event,
// with the event JSON carried as a string in Message.
type envelope struct {
	Message *string `json:"Message"`
}

// DecodeEvent accepts either a bare event object or an envelope holding one.
// Any decode failure is reported as ErrMalformedEvent.
func DecodeEvent(payload []byte) (*Event, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, malformed("empty payload", nil)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, malformed("invalid JSON", err)
	}
	if env.Message != nil {
		payload = []byte(*env.Message)
	}

	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, malformed("invalid event", err)
	}

	if w.UserID == nil || strings.TrimSpace(*w.UserID) == "" {
		return nil, malformed("user_id is required", nil)
	}
	if w.Amount == nil {
		return nil, malformed("amount is required", nil)
	}
	if !amountInRange(*w.Amount) {
		return nil, malformed("amount out of range", nil)
	}

	ev := &Event{
		UserID:        *w.UserID,
		Amount:        *w.Amount,
		TransactionID: strings.TrimSpace(w.TransactionID),
		Merchant:      w.Merchant,
		Category:      w.Category,
	}
	if w.OccurredAt != nil {
		ev.OccurredAt = w.OccurredAt.UTC()
	}

	return ev, nil
}

// maxAmountScale bounds the exponent of an accepted amount in both
// directions.
const maxAmountScale = 18

// amountInRange reports whether the magnitude fits the points range and the
// exponent stays within maxAmountScale.
func amountInRange(amount decimal.Decimal) bool {
	exp := amount.Exponent()
	if exp < -maxAmountScale || exp > maxAmountScale {
		return false
	}
	return amount.Abs().LessThanOrEqual(maxAward)
}

func malformed(reason string, cause error) error {
	err := apperrors.ErrMalformedEvent.WithDetail("message", reason)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}

// HasTransactionID reports whether the event can be checked for duplicates.
func (e *Event) HasTransactionID() bool {
	return e.TransactionID != ""
}

func (e *Event) String() string {
	return fmt.Sprintf("user=%s amount=%s txn=%s", e.UserID, e.Amount.String(), e.TransactionID)
}
