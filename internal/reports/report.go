package reports

import (
	"encoding/json"
	"fmt"

	"loyalty/internal/constants"
)

// Report is the rollup of one day of ledger activity. Field order is the
// serialized order.
type Report struct {
	Date          string `json:"date" bson:"date"`
	TotalIssued   int64  `json:"total_issued" bson:"total_issued"`
	TotalRedeemed int64  `json:"total_redeemed" bson:"total_redeemed"`
	NetRewards    int64  `json:"net_rewards" bson:"net_rewards"`
	IssuedCount   int    `json:"issued_count" bson:"issued_count"`
	RedeemedCount int    `json:"redeemed_count" bson:"redeemed_count"`
}

// Marshal renders the report as indented JSON. Equal reports always render
// to identical bytes.
func (r Report) Marshal() ([]byte, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return body, nil
}

func Unmarshal(body []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &r, nil
}

// Key is the object key of the report for date.
func Key(date string) string {
	return fmt.Sprintf("%s/%s.json", constants.ReportKeyPrefix, date)
}
