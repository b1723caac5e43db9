package rewards

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/config"
	apperrors "loyalty/pkg/errors"
)

func TestAward(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"42.75", 42},
		{"1", 1},
		{"0.99", 0},
		{"0", 0},
		{"-5", 0},
		{"-0.5", 0},
		{"100000.01", 100000},
		{"9223372036854775807.9", math.MaxInt64},
		{"10000000000000000000", math.MaxInt64},
		{"18446744073709551617.5", math.MaxInt64},
		{"1e100000000", math.MaxInt64},
		{"1e-100000000", 0},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, Award(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestAward_Monotonic(t *testing.T) {
	prev := Award(decimal.NewFromInt(-10))
	for cents := int64(-1000); cents <= 5000; cents += 7 {
		got := Award(decimal.New(cents, -2))
		assert.GreaterOrEqual(t, got, prev, "amount %d cents", cents)
		assert.GreaterOrEqual(t, got, int64(0))
		prev = got
	}
}

func TestAward_MonotonicAcrossInt64Boundary(t *testing.T) {
	amounts := []string{
		"9223372036854775806",
		"9223372036854775807",
		"9223372036854775808",
		"18446744073709551616",
		"1e30",
	}

	prev := int64(0)
	for _, a := range amounts {
		got := Award(decimal.RequireFromString(a))
		assert.GreaterOrEqual(t, got, prev, "amount %s", a)
		prev = got
	}
}

func TestFloorPolicy(t *testing.T) {
	ctx := context.Background()

	points, err := FloorPolicy{}.Award(ctx, &Event{UserID: "u1", Amount: decimal.RequireFromString("19.99")})
	require.NoError(t, err)
	assert.Equal(t, int64(19), points)

	points, err = FloorPolicy{}.Award(ctx, &Event{UserID: "u1", Amount: decimal.NewFromInt(-4)})
	assert.True(t, apperrors.IsPolicyViolation(err))
	assert.Zero(t, points)
}

func TestExpressionPolicy(t *testing.T) {
	policy, err := NewExpressionPolicy(`category == "travel" ? 2.0 : 1.0`)
	require.NoError(t, err)
	ctx := context.Background()

	points, err := policy.Award(ctx, &Event{UserID: "u1", Amount: decimal.RequireFromString("10.60"), Category: "travel"})
	require.NoError(t, err)
	assert.Equal(t, int64(21), points)

	points, err = policy.Award(ctx, &Event{UserID: "u1", Amount: decimal.RequireFromString("10.60"), Category: "grocery"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), points)

	points, err = policy.Award(ctx, &Event{UserID: "u1", Amount: decimal.Zero})
	assert.True(t, apperrors.IsPolicyViolation(err))
	assert.Zero(t, points)
}

func TestExpressionPolicy_NegativeMultiplier(t *testing.T) {
	policy, err := NewExpressionPolicy(`-1.0`)
	require.NoError(t, err)

	points, err := policy.Award(context.Background(), &Event{UserID: "u1", Amount: decimal.NewFromInt(10)})
	assert.True(t, apperrors.IsPolicyViolation(err))
	assert.Zero(t, points)
}

func TestExpressionPolicy_LargeMultiplierSaturates(t *testing.T) {
	policy, err := NewExpressionPolicy(`1e300`)
	require.NoError(t, err)

	points, err := policy.Award(context.Background(), &Event{UserID: "u1", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), points)
}

func TestExpressionPolicy_EvalErrorNamesExpression(t *testing.T) {
	policy, err := NewExpressionPolicy(`double(merchant)`)
	require.NoError(t, err)

	_, err = policy.Award(context.Background(), &Event{UserID: "u1", Amount: decimal.NewFromInt(10), Merchant: "Coffee Co"})
	require.Error(t, err)
	assert.False(t, apperrors.IsPolicyViolation(err))
	assert.Contains(t, err.Error(), "double(merchant)")
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy(config.RewardsConfig{Policy: "floor"})
	require.NoError(t, err)
	assert.IsType(t, FloorPolicy{}, p)

	p, err = NewPolicy(config.RewardsConfig{Policy: "expression", Expression: `1.5`})
	require.NoError(t, err)
	assert.IsType(t, &ExpressionPolicy{}, p)

	_, err = NewPolicy(config.RewardsConfig{Policy: "expression", Expression: `amount > 1.0`})
	assert.True(t, apperrors.IsValidation(err))

	_, err = NewPolicy(config.RewardsConfig{Policy: "tiered"})
	assert.Error(t, err)
}
