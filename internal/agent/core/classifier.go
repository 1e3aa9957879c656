package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/telemetry"
)

// IntentClassifier turns free-text user messages into structured
// classifications with a single chat-completion call. There is no fallback
// classifier: upstream failures are hard errors and retries are a caller
// concern.
type IntentClassifier struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewIntentClassifier creates a new classifier instance
func NewIntentClassifier(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *IntentClassifier {
	return &IntentClassifier{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[CLASSIFIER] ", log.LstdFlags),
	}
}

// validIntents is the closed vocabulary the classifier may emit.
var validIntents = map[string]bool{
	IntentSwapTokens:          true,
	IntentStakeTokens:         true,
	IntentUnstakeTokens:       true,
	IntentClaimRewards:        true,
	IntentPortfolioAnalysis:   true,
	IntentMarketResearch:      true,
	IntentTransactionAnalysis: true,
	IntentComplexOperation:    true,
}

// Classify classifies one user message. The optional context map carries
// request-scoped hints such as the user's preferences.
func (c *IntentClassifier) Classify(ctx context.Context, message string, reqContext map[string]interface{}) (Classification, error) {
	startTime := time.Now()

	prompt := c.createClassificationPrompt(message, reqContext)
	model := c.config.LLM.Routing.Classification

	response, inTokens, outTokens, err := c.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.1, // classification should be as stable as the model allows
		"max_tokens":  600,
	})

	if c.telemetry != nil {
		c.telemetry.RecordLLMEvent(ctx, telemetry.LLMEvent{
			Model:        model,
			Operation:    "classification",
			Duration:     time.Since(startTime),
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			Cost:         c.llmProvider.CalculateCost(inTokens, outTokens, model),
			Success:      err == nil,
		})
	}
	if err != nil {
		return Classification{}, fmt.Errorf("classification request failed: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return Classification{}, fmt.Errorf("no response from LLM")
	}

	classification, err := parseClassificationResponse(response)
	if err != nil {
		return Classification{}, err
	}

	c.normalize(&classification)
	c.logger.Printf("Classified %q as %s (confidence %.2f)", truncate(message, 60), classification.Intent, classification.Confidence)
	return classification, nil
}

// createClassificationPrompt renders the system prompt with the intent
// vocabulary, the agent capability sheet and the expected JSON shape.
func (c *IntentClassifier) createClassificationPrompt(message string, reqContext map[string]interface{}) string {
	ctxBlock := ""
	if reqContext != nil {
		if v, ok := reqContext["user_address"].(string); ok && v != "" {
			ctxBlock += fmt.Sprintf("User address: %s\n", v)
		}
		if v, ok := reqContext["risk_tolerance"].(string); ok && v != "" {
			ctxBlock += fmt.Sprintf("Risk tolerance: %s\n", v)
		}
		if v, ok := reqContext["default_slippage"].(float64); ok && v > 0 {
			ctxBlock += fmt.Sprintf("Default slippage: %.2f%%\n", v)
		}
		if v, ok := reqContext["recent_intents"].([]string); ok && len(v) > 0 {
			ctxBlock += fmt.Sprintf("Recent intents: %s\n", strings.Join(v, ", "))
		}
	}
	if ctxBlock != "" {
		ctxBlock = "\nUSER CONTEXT:\n" + ctxBlock
	}

	return fmt.Sprintf(`You are an intent classifier for a DeFi execution assistant. Classify the user's message into exactly one intent.%s

USER MESSAGE: %s

VALID INTENTS:
- swap_tokens: exchange one token for another
- stake_tokens: delegate tokens to a validator
- unstake_tokens: withdraw a staking position
- claim_rewards: collect accrued staking rewards
- portfolio_analysis: balances, PnL or positions questions
- market_research: market data, token or protocol research, news
- transaction_analysis: decode a transaction, gas or risk questions
- complex_operation: anything requiring multiple chained operations

%s

CLASSIFICATION REQUIREMENTS:
1. Pick the single best-fitting intent from the list above.
2. Extract operation parameters exactly as named in the agent sheet (tokenIn, tokenOut, amountIn, amount, validatorId, positionId, timeframe, token, query, txHash, operation).
3. Always include an "operation" key in parameters naming the concrete operation (swap, stake, unstake, claim_rewards, balances, pnl, positions, market_data, token_analysis, protocol_analysis, news, decode_transaction, analyze_gas, risk_assessment, performance_report).
4. Set priority to low, medium or high based on urgency words in the message.
5. Set risk_level to low, medium, high or critical based on the amounts involved.
6. Confidence must reflect how certain the classification is, between 0 and 1.

OUTPUT FORMAT (JSON):
{
  "intent": "intent_name",
  "confidence": 0.95,
  "required_agents": ["agent capability strings"],
  "parameters": {
    "operation": "swap",
    "tokenIn": "ETH"
  },
  "priority": "medium",
  "risk_level": "low"
}

Respond ONLY with valid JSON. Do not include any other text or explanation.`, ctxBlock, message, CapabilitiesDoc())
}

// parseClassificationResponse extracts the first balanced JSON object from the
// response and unmarshals it.
func parseClassificationResponse(response string) (Classification, error) {
	jsonStr := extractJSONObject(response)
	if jsonStr == "" {
		return Classification{}, fmt.Errorf("invalid JSON response")
	}

	var classification Classification
	if err := json.Unmarshal([]byte(jsonStr), &classification); err != nil {
		return Classification{}, fmt.Errorf("invalid JSON response")
	}
	return classification, nil
}

// extractJSONObject returns the first balanced {...} block in s, or "".
func extractJSONObject(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// normalize clamps and defaults classifier output so downstream components
// never see out-of-range values.
func (c *IntentClassifier) normalize(classification *Classification) {
	classification.Intent = strings.ToLower(strings.TrimSpace(classification.Intent))
	if !validIntents[classification.Intent] && classification.Intent != "" {
		c.logger.Printf("Warning: model emitted unknown intent %q", classification.Intent)
	}

	if classification.Confidence < 0 {
		classification.Confidence = 0
	}
	if classification.Confidence > 1 {
		classification.Confidence = 1
	}

	switch classification.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		classification.Priority = PriorityMedium
	}

	switch classification.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
	default:
		classification.RiskLevel = RiskMedium
	}

	if classification.Parameters == nil {
		classification.Parameters = map[string]interface{}{}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
