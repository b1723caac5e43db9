package ledger

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusIssued   Status = "ISSUED"
	StatusRedeemed Status = "REDEEMED"
)

func (s Status) Valid() bool {
	return s == StatusIssued || s == StatusRedeemed
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid ledger status %q", s)
	}
	return status, nil
}

// DateLayout is the calendar-day key of ledger entries and reports.
const DateLayout = "2006-01-02"

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// Entry is one ledger record of points issued or redeemed for a user.
type Entry struct {
	ID            string    `json:"id" bson:"_id"`
	UserID        string    `json:"user_id" bson:"user_id"`
	Points        int64     `json:"points" bson:"points"`
	Status        Status    `json:"status" bson:"status"`
	Date          string    `json:"date" bson:"date"`
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
	TransactionID string    `json:"transaction_id,omitempty" bson:"transaction_id"`
	Merchant      string    `json:"merchant,omitempty" bson:"merchant"`
	Category      string    `json:"category,omitempty" bson:"category"`
}

func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.Points < 0 {
		return fmt.Errorf("points must be non-negative, got %d", e.Points)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	return nil
}
