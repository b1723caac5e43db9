package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("ISSUED")
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, s)

	_, err = ParseStatus("issued")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", FormatDate(d))

	for _, bad := range []string{"", "2024-1-15", "15/01/2024", "2024-02-30"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestEntryValidate(t *testing.T) {
	valid := Entry{
		ID:        "e1",
		UserID:    "u1",
		Points:    10,
		Status:    StatusIssued,
		Date:      "2024-01-15",
		Timestamp: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, valid.Validate())

	tests := map[string]func(e *Entry){
		"missing id":      func(e *Entry) { e.ID = "" },
		"missing user":    func(e *Entry) { e.UserID = "" },
		"negative points": func(e *Entry) { e.Points = -1 },
		"bad status":      func(e *Entry) { e.Status = "PENDING" },
		"bad date":        func(e *Entry) { e.Date = "yesterday" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			e := valid
			mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}
