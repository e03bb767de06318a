package rules

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

func validInput() domain.TransactionInput {
	return domain.TransactionInput{
		DistanceFromHome:            12.5,
		DistanceFromLastTransaction: 0.4,
		RatioToMedianPurchasePrice:  1.1,
		UsedChip:                    true,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.GuardsCount() != 0 {
		t.Errorf("expected 0 guards, got %d", engine.GuardsCount())
	}

	defaults, err := NewDefaultEngine()
	if err != nil {
		t.Fatalf("failed to create default engine: %v", err)
	}
	if defaults.GuardsCount() != len(domain.DefaultGuards()) {
		t.Errorf("expected %d guards, got %d", len(domain.DefaultGuards()), defaults.GuardsCount())
	}
}

func TestDefaultGuards(t *testing.T) {
	engine, _ := NewDefaultEngine()
	ctx := context.Background()

	if err := engine.Check(ctx, validInput()); err != nil {
		t.Errorf("expected valid input to pass, got %v", err)
	}

	zero := domain.TransactionInput{}
	if err := engine.Check(ctx, zero); err != nil {
		t.Errorf("expected zero values to pass, got %v", err)
	}

	negative := validInput()
	negative.DistanceFromHome = -1
	err := engine.Check(ctx, negative)
	if !errors.Is(err, domain.ErrValidationRejected) {
		t.Fatalf("expected ErrValidationRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "Distance from home") {
		t.Errorf("expected guard message in error, got %v", err)
	}
}

func TestNonFiniteRejected(t *testing.T) {
	engine, _ := NewEngine()
	ctx := context.Background()

	tests := []struct {
		name  string
		input func(*domain.TransactionInput)
	}{
		{"NaN", func(in *domain.TransactionInput) { in.DistanceFromHome = math.NaN() }},
		{"PosInf", func(in *domain.TransactionInput) { in.RatioToMedianPurchasePrice = math.Inf(1) }},
		{"NegInf", func(in *domain.TransactionInput) { in.DistanceFromLastTransaction = math.Inf(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.input(&input)
			if err := engine.Check(ctx, input); !errors.Is(err, domain.ErrValidationRejected) {
				t.Errorf("expected ErrValidationRejected, got %v", err)
			}
		})
	}
}

func TestEvaluateCollectsAllViolations(t *testing.T) {
	engine, _ := NewDefaultEngine()

	input := domain.TransactionInput{
		DistanceFromHome:            -1,
		DistanceFromLastTransaction: -2,
		RatioToMedianPurchasePrice:  -3,
	}
	violations := engine.Evaluate(context.Background(), input)
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %d", len(violations))
	}
	if violations[0].GuardID != "distance-from-home-non-negative" {
		t.Errorf("expected guards in load order, first was %s", violations[0].GuardID)
	}
}

func TestCustomGuards(t *testing.T) {
	engine, _ := NewEngine()

	err := engine.LoadGuards([]*domain.GuardConfig{
		{ID: "chip-or-pin", Expression: "online_order || used_chip || used_pin_number", Message: "In-store purchases need chip or PIN", Enabled: true},
		{ID: "disabled", Expression: "false", Message: "never", Enabled: false},
	})
	if err != nil {
		t.Fatalf("LoadGuards failed: %v", err)
	}
	if engine.GuardsCount() != 1 {
		t.Errorf("expected disabled guard to be skipped, got %d", engine.GuardsCount())
	}

	input := validInput()
	input.UsedChip = false
	if err := engine.Check(context.Background(), input); err == nil {
		t.Error("expected chip-or-pin guard to reject")
	}
}

func TestInvalidGuards(t *testing.T) {
	engine, _ := NewDefaultEngine()

	tests := []struct {
		name string
		cfg  *domain.GuardConfig
	}{
		{"Syntax", &domain.GuardConfig{ID: "bad", Expression: "this is not valid CEL !!!", Enabled: true}},
		{"NonBool", &domain.GuardConfig{ID: "num", Expression: "distance_from_home * 2.0", Enabled: true}},
		{"UnknownVariable", &domain.GuardConfig{ID: "unknown", Expression: "amount > 1.0", Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.ValidateGuard(tt.cfg); err == nil {
				t.Error("expected validation error")
			}
			if err := engine.LoadGuards([]*domain.GuardConfig{tt.cfg}); err == nil {
				t.Error("expected load error")
			}
			if engine.GuardsCount() != 3 {
				t.Errorf("failed load should keep previous guards, got %d", engine.GuardsCount())
			}
		})
	}

	if err := engine.ValidateGuard(nil); err == nil {
		t.Error("expected error for nil guard")
	}
}
