package rewards

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/pkg/cel"
	apperrors "loyalty/pkg/errors"
)

// maxAwardDigits is the number of decimal digits in MaxInt64.
const maxAwardDigits = 19

// maxAward is the largest number of points a single event can earn.
var maxAward = decimal.NewFromInt(math.MaxInt64)

// Award converts a spend amount into points: one point per whole currency
// unit, and zero for non-positive amounts. Awards saturate at MaxInt64.
func Award(amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}

	// Bound the integer digits before anything rescales the coefficient.
	intDigits := amount.NumDigits() + int(amount.Exponent())
	switch {
	case intDigits <= 0:
		return 0
	case intDigits > maxAwardDigits || amount.GreaterThanOrEqual(maxAward):
		return math.MaxInt64
	}
	return amount.Floor().IntPart()
}

// Policy computes the points for an event. A returned ErrPolicyViolation
// comes with the clamped award (zero) and must not abort processing; any
// other error is a processing failure.
type Policy interface {
	Award(ctx context.Context, ev *Event) (int64, error)
}

type FloorPolicy struct{}

func (FloorPolicy) Award(_ context.Context, ev *Event) (int64, error) {
	if !ev.Amount.IsPositive() {
		return 0, nonPositiveAmount(ev.Amount)
	}
	return Award(ev.Amount), nil
}

// ExpressionPolicy scales the amount by a CEL multiplier before flooring.
type ExpressionPolicy struct {
	program *cel.Program
}

func NewExpressionPolicy(expression string) (*ExpressionPolicy, error) {
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}

	program, err := eval.Compile(expression)
	if err != nil {
		return nil, apperrors.ErrValidation.WithCause(err).WithDetail("expression", expression)
	}

	return &ExpressionPolicy{program: program}, nil
}

func (p *ExpressionPolicy) Award(ctx context.Context, ev *Event) (int64, error) {
	if !ev.Amount.IsPositive() {
		return 0, nonPositiveAmount(ev.Amount)
	}

	multiplier, err := p.program.Eval(ctx, cel.Input{
		Amount:   ev.Amount.InexactFloat64(),
		Merchant: ev.Merchant,
		Category: ev.Category,
		UserID:   ev.UserID,
	})
	if err != nil {
		return 0, fmt.Errorf("earn-rate expression %q: %w", p.program.Expression(), err)
	}

	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) || multiplier < 0 {
		return 0, apperrors.ErrPolicyViolation.
			WithDetail("message", "earn-rate multiplier out of range").
			WithDetail("multiplier", fmt.Sprintf("%v", multiplier))
	}

	return Award(ev.Amount.Mul(decimal.NewFromFloat(multiplier))), nil
}

func nonPositiveAmount(amount decimal.Decimal) error {
	return apperrors.ErrPolicyViolation.
		WithDetail("message", "non-positive amount").
		WithDetail("amount", amount.String())
}

func NewPolicy(cfg config.RewardsConfig) (Policy, error) {
	switch cfg.Policy {
	case constants.PolicyFloor, "":
		return FloorPolicy{}, nil
	case constants.PolicyExpression:
		return NewExpressionPolicy(cfg.Expression)
	default:
		return nil, fmt.Errorf("unsupported reward policy: %s", cfg.Policy)
	}
}
