package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/reports"
)

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	report := &reports.Report{Date: "2024-01-15", TotalIssued: 30, TotalRedeemed: 5, NetRewards: 25, IssuedCount: 2, RedeemedCount: 1}

	require.NoError(t, printResult(&buf, report, nil))
	assert.JSONEq(t, `{
		"message": "Daily rewards summary generated",
		"data": {
			"date": "2024-01-15",
			"total_issued": 30,
			"total_redeemed": 5,
			"net_rewards": 25,
			"issued_count": 2,
			"redeemed_count": 1
		}
	}`, buf.String())
}

func TestPrintResult_Error(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printResult(&buf, nil, errors.New("ledger unavailable")))
	assert.JSONEq(t, `{
		"message": "Failed to generate daily rewards summary",
		"error": "ledger unavailable"
	}`, buf.String())
}
