// Package rules evaluates CEL input guards before a transaction is sent
// for scoring.
package rules

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Engine holds compiled guards in load order.
type Engine struct {
	mu     sync.RWMutex
	env    *cel.Env
	guards []*CompiledGuard
}

// CompiledGuard holds a pre-compiled CEL program.
type CompiledGuard struct {
	Config  *domain.GuardConfig
	Program cel.Program
}

// Violation is a guard that rejected an input.
type Violation struct {
	GuardID string
	Message string
}

// NewEngine creates a guard engine whose environment exposes every
// TransactionInput field by its wire name.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("distance_from_home", cel.DoubleType),
		cel.Variable("distance_from_last_transaction", cel.DoubleType),
		cel.Variable("ratio_to_median_purchase_price", cel.DoubleType),
		cel.Variable("repeat_retailer", cel.BoolType),
		cel.Variable("used_chip", cel.BoolType),
		cel.Variable("used_pin_number", cel.BoolType),
		cel.Variable("online_order", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// NewDefaultEngine creates an engine loaded with domain.DefaultGuards.
func NewDefaultEngine() (*Engine, error) {
	engine, err := NewEngine()
	if err != nil {
		return nil, err
	}
	if err := engine.LoadGuards(domain.DefaultGuards()); err != nil {
		return nil, err
	}
	return engine, nil
}

// ValidateGuard compiles a guard without loading it.
func (e *Engine) ValidateGuard(cfg *domain.GuardConfig) error {
	if cfg == nil {
		return fmt.Errorf("guard config is required")
	}
	_, err := e.compile(cfg)
	return err
}

// LoadGuards replaces the loaded guards. Disabled guards are skipped.
// On a compile error the previous set stays active.
func (e *Engine) LoadGuards(configs []*domain.GuardConfig) error {
	compiled := make([]*CompiledGuard, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		guard, err := e.compile(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, guard)
	}

	e.mu.Lock()
	e.guards = compiled
	e.mu.Unlock()
	return nil
}

// GuardsCount returns the number of loaded guards.
func (e *Engine) GuardsCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.guards)
}

// Check returns nil when input passes every guard, otherwise an error
// wrapping domain.ErrValidationRejected with the first violation's message.
func (e *Engine) Check(ctx context.Context, input domain.TransactionInput) error {
	violations := e.Evaluate(ctx, input)
	if len(violations) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrValidationRejected, violations[0].Message)
}

// Evaluate returns every violation, in guard order.
// Non-finite numbers are always rejected.
func (e *Engine) Evaluate(ctx context.Context, input domain.TransactionInput) []Violation {
	var violations []Violation
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"distance_from_home", input.DistanceFromHome},
		{"distance_from_last_transaction", input.DistanceFromLastTransaction},
		{"ratio_to_median_purchase_price", input.RatioToMedianPurchasePrice},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			violations = append(violations, Violation{GuardID: "finite-" + f.name, Message: f.name + " must be a finite number"})
		}
	}
	if len(violations) > 0 {
		return violations
	}

	e.mu.RLock()
	guards := e.guards
	e.mu.RUnlock()

	activation := map[string]any{
		"distance_from_home":             input.DistanceFromHome,
		"distance_from_last_transaction": input.DistanceFromLastTransaction,
		"ratio_to_median_purchase_price": input.RatioToMedianPurchasePrice,
		"repeat_retailer":                input.RepeatRetailer,
		"used_chip":                      input.UsedChip,
		"used_pin_number":                input.UsedPinNumber,
		"online_order":                   input.OnlineOrder,
	}

	for _, guard := range guards {
		out, _, err := guard.Program.ContextEval(ctx, activation)
		if err != nil {
			violations = append(violations, Violation{
				GuardID: guard.Config.ID,
				Message: fmt.Sprintf("guard %s failed: %v", guard.Config.ID, err),
			})
			continue
		}
		if out != types.True {
			violations = append(violations, Violation{GuardID: guard.Config.ID, Message: guard.Config.Message})
		}
	}
	return violations
}

func (e *Engine) compile(cfg *domain.GuardConfig) (*CompiledGuard, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile guard %s: %w", cfg.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("guard %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for guard %s: %w", cfg.ID, err)
	}
	return &CompiledGuard{Config: cfg, Program: program}, nil
}
