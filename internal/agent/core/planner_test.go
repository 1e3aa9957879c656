package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/telemetry"
)

func plannerForTest() *Planner {
	cfg := &config.Config{}
	cfg.Guardrails.MaxValuePerIntent = 50000
	return NewPlanner(cfg, &fakeLLM{}, telemetry.NewTelemetry(config.TelemetryConfig{}))
}

func TestCreateExecutionStepsSwap(t *testing.T) {
	p := plannerForTest()
	classification := Classification{
		Intent:     IntentSwapTokens,
		Confidence: 0.9,
		Priority:   PriorityHigh,
		Parameters: map[string]interface{}{
			"tokenIn":  "ETH",
			"tokenOut": "USDC",
			"amountIn": 500.0,
		},
	}

	steps, err := p.CreateExecutionSteps(classification, "0xabc")
	if err != nil {
		t.Fatalf("CreateExecutionSteps: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	step := steps[0]
	if step.ID == "" || step.UserAddress != "0xabc" {
		t.Fatalf("step identity wrong: %+v", step)
	}
	if OperationOf(step.Parameters) != OpSwap {
		t.Fatalf("operation = %q", OperationOf(step.Parameters))
	}
	if step.MaxGas != maxGasSwap {
		t.Fatalf("maxGas = %d", step.MaxGas)
	}
	if step.MaxValue != 500 {
		t.Fatalf("maxValue should track the requested amount, got %v", step.MaxValue)
	}
	if step.Priority != PriorityHigh {
		t.Fatalf("priority not propagated: %q", step.Priority)
	}
	if !strings.Contains(step.Description, "ETH") || !strings.Contains(step.Description, "USDC") {
		t.Fatalf("description not descriptive: %q", step.Description)
	}

	wantDeadline := time.Now().Add(IntentDeadline).Unix()
	if step.Deadline < wantDeadline-5 || step.Deadline > wantDeadline+5 {
		t.Fatalf("deadline = %d, want about %d", step.Deadline, wantDeadline)
	}
}

func TestCreateExecutionStepsCapsValueAtGuardrail(t *testing.T) {
	p := plannerForTest()
	steps, err := p.CreateExecutionSteps(Classification{
		Intent:     IntentSwapTokens,
		Parameters: map[string]interface{}{"tokenIn": "ETH", "tokenOut": "USDC", "amountIn": 100000.0},
	}, "0xabc")
	if err != nil {
		t.Fatalf("CreateExecutionSteps: %v", err)
	}
	if steps[0].MaxValue != 50000 {
		t.Fatalf("maxValue should be capped at the guardrail, got %v", steps[0].MaxValue)
	}
}

func TestCreateExecutionStepsDefaultsOperations(t *testing.T) {
	p := plannerForTest()
	cases := []struct {
		intent string
		wantOp string
	}{
		{IntentStakeTokens, OpStake},
		{IntentUnstakeTokens, OpUnstake},
		{IntentClaimRewards, OpClaimRewards},
		{IntentPortfolioAnalysis, OpBalances},
		{IntentMarketResearch, OpMarketData},
		{IntentTransactionAnalysis, OpDecodeTransaction},
	}
	for _, tc := range cases {
		steps, err := p.CreateExecutionSteps(Classification{Intent: tc.intent, Parameters: map[string]interface{}{}}, "0xabc")
		if err != nil {
			t.Fatalf("%s: %v", tc.intent, err)
		}
		if got := OperationOf(steps[0].Parameters); got != tc.wantOp {
			t.Fatalf("%s: operation = %q, want %q", tc.intent, got, tc.wantOp)
		}
	}
}

func TestCreateExecutionStepsKeepsExplicitOperation(t *testing.T) {
	p := plannerForTest()
	steps, err := p.CreateExecutionSteps(Classification{
		Intent:     IntentPortfolioAnalysis,
		Parameters: map[string]interface{}{"operation": OpPnL, "timeframe": "7d"},
	}, "0xabc")
	if err != nil {
		t.Fatalf("CreateExecutionSteps: %v", err)
	}
	if OperationOf(steps[0].Parameters) != OpPnL {
		t.Fatalf("explicit operation overridden: %q", OperationOf(steps[0].Parameters))
	}
}

func TestCreateExecutionStepsComplexOperation(t *testing.T) {
	p := plannerForTest()
	steps, err := p.CreateExecutionSteps(Classification{Intent: IntentComplexOperation}, "0xabc")
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if len(steps) != 0 {
		t.Fatalf("complex operations must yield no steps")
	}
}

func TestCreateExecutionStepsUnsupportedIntent(t *testing.T) {
	p := plannerForTest()
	_, err := p.CreateExecutionSteps(Classification{Intent: "order_pizza"}, "0xabc")
	if err == nil || !strings.Contains(err.Error(), "unsupported intent") {
		t.Fatalf("expected unsupported intent error, got %v", err)
	}
}

func TestCreateExecutionStepsDoesNotMutateClassification(t *testing.T) {
	p := plannerForTest()
	params := map[string]interface{}{"timeframe": "24h"}
	_, err := p.CreateExecutionSteps(Classification{Intent: IntentPortfolioAnalysis, Parameters: params}, "0xabc")
	if err != nil {
		t.Fatalf("CreateExecutionSteps: %v", err)
	}
	if _, ok := params["operation"]; ok {
		t.Fatalf("classification parameters were mutated")
	}
}
