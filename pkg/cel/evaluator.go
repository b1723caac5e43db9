package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Variables visible to earn-rate expressions.
const (
	VarAmount   = "amount"
	VarMerchant = "merchant"
	VarCategory = "category"
	VarUserID   = "user_id"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarAmount, cel.DoubleType),
		cel.Variable(VarMerchant, cel.StringType),
		cel.Variable(VarCategory, cel.StringType),
		cel.Variable(VarUserID, cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

// Program is a compiled earn-rate expression. It is safe for concurrent use.
type Program struct {
	expression string
	program    cel.Program
}

func (p *Program) Expression() string {
	return p.expression
}

// Compile checks that expression yields a double and prepares it for
// evaluation.
func (e *Evaluator) Compile(expression string) (*Program, error) {
	ast, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Program{expression: expression, program: program}, nil
}

func (e *Evaluator) compile(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.DoubleType {
		return nil, fmt.Errorf("earn-rate expression must return double, got %v", ast.OutputType())
	}

	return ast, nil
}

type Input struct {
	Amount   float64
	Merchant string
	Category string
	UserID   string
}

func (p *Program) Eval(ctx context.Context, in Input) (float64, error) {
	vars := map[string]interface{}{
		VarAmount:   in.Amount,
		VarMerchant: in.Merchant,
		VarCategory: in.Category,
		VarUserID:   in.UserID,
	}

	result, _, err := p.program.ContextEval(ctx, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	value, ok := result.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("CEL expression did not return double, got %T", result.Value())
	}

	return value, nil
}
