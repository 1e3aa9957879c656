package core

import (
	"context"
	"strings"
	"testing"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/telemetry"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := f.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

func (f *fakeLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", 0, 0, f.err
	}
	return f.response, 12, 8, nil
}

func (f *fakeLLM) GetAvailableModels() []string { return []string{"fast"} }

func (f *fakeLLM) GetModelInfo(model string) (ModelInfo, error) {
	return ModelInfo{Name: model}, nil
}

func (f *fakeLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 { return 0 }

func classifierForTest(llm LLMProvider) *IntentClassifier {
	cfg := &config.Config{}
	cfg.LLM.Routing.Classification = "fast"
	return NewIntentClassifier(cfg, llm, telemetry.NewTelemetry(config.TelemetryConfig{}))
}

func TestClassifyParsesResponseWithSurroundingText(t *testing.T) {
	llm := &fakeLLM{response: `Sure! Here is the classification:
{
  "intent": "swap_tokens",
  "confidence": 0.93,
  "required_agents": ["swap"],
  "parameters": {"operation": "swap", "tokenIn": "ETH", "tokenOut": "USDC", "amountIn": 500},
  "priority": "medium",
  "risk_level": "low"
}`}

	c := classifierForTest(llm)
	got, err := c.Classify(context.Background(), "swap 500 usd of eth to usdc", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Intent != IntentSwapTokens {
		t.Fatalf("intent = %q", got.Intent)
	}
	if got.Confidence != 0.93 {
		t.Fatalf("confidence = %v", got.Confidence)
	}
	if got.Parameters["tokenIn"] != "ETH" {
		t.Fatalf("parameters lost: %v", got.Parameters)
	}
	if len(llm.prompts) != 1 || !strings.Contains(llm.prompts[0], "swap_tokens") {
		t.Fatalf("prompt should enumerate the intent vocabulary")
	}
}

func TestClassifyEmptyResponseIsHardError(t *testing.T) {
	c := classifierForTest(&fakeLLM{response: "   \n"})
	_, err := c.Classify(context.Background(), "hello", nil)
	if err == nil || !strings.Contains(err.Error(), "no response from LLM") {
		t.Fatalf("expected hard error for empty response, got %v", err)
	}
}

func TestClassifyNonJSONIsHardError(t *testing.T) {
	c := classifierForTest(&fakeLLM{response: "I believe the user wants to swap tokens."})
	_, err := c.Classify(context.Background(), "hello", nil)
	if err == nil || !strings.Contains(err.Error(), "invalid JSON response") {
		t.Fatalf("expected hard error for non-JSON response, got %v", err)
	}
}

func TestClassifyNormalizesOutOfRangeFields(t *testing.T) {
	llm := &fakeLLM{response: `{"intent": "Portfolio_Analysis", "confidence": 1.7, "priority": "urgent", "risk_level": "extreme"}`}
	c := classifierForTest(llm)

	got, err := c.Classify(context.Background(), "show my balances", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Intent != IntentPortfolioAnalysis {
		t.Fatalf("intent not lowercased: %q", got.Intent)
	}
	if got.Confidence != 1 {
		t.Fatalf("confidence not clamped: %v", got.Confidence)
	}
	if got.Priority != PriorityMedium {
		t.Fatalf("priority not defaulted: %q", got.Priority)
	}
	if got.RiskLevel != RiskMedium {
		t.Fatalf("risk not defaulted: %q", got.RiskLevel)
	}
	if got.Parameters == nil {
		t.Fatalf("parameters should never be nil after normalization")
	}
}

func TestExtractJSONObjectBalancesNestedBraces(t *testing.T) {
	s := `prefix {"a": {"b": 1}, "c": [1, 2]} suffix {"second": true}`
	got := extractJSONObject(s)
	if got != `{"a": {"b": 1}, "c": [1, 2]}` {
		t.Fatalf("extractJSONObject = %q", got)
	}
	if extractJSONObject("no braces here") != "" {
		t.Fatalf("expected empty string when no object present")
	}
}
