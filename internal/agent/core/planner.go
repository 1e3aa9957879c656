package core

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/telemetry"
)

// ErrNotImplemented marks intents the plan builder recognizes but cannot
// expand yet. Callers turn it into an empty plan with an explicit warning
// instead of a hard failure.
var ErrNotImplemented = errors.New("complex operations are not implemented yet")

// IntentDeadline is how long a constructed step stays executable.
const IntentDeadline = time.Hour

// Per-capability gas ceilings applied to constructed steps. Read-only
// operations carry no gas budget at all.
const (
	maxGasSwap    uint64 = 500000
	maxGasStake   uint64 = 350000
	maxGasUnstake uint64 = 350000
	maxGasClaim   uint64 = 200000
)

// Planner expands one classification into executable per-agent steps.
type Planner struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *Planner {
	return &Planner{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// CreateExecutionSteps dispatches on the classified intent and constructs the
// step sequence. Every step gets a fresh ID, a deadline of now plus one hour
// and capability-appropriate gas/value ceilings.
func (p *Planner) CreateExecutionSteps(classification Classification, userAddress string) ([]AgentIntent, error) {
	intent := classification.Intent
	params := copyParams(classification.Parameters)

	switch intent {
	case IntentSwapTokens:
		ensureOperation(params, OpSwap)
		return []AgentIntent{p.newStep(userAddress, classification, params,
			describeSwap(params), maxGasSwap, p.valueCeiling(params, "amountIn"))}, nil

	case IntentStakeTokens:
		ensureOperation(params, OpStake)
		return []AgentIntent{p.newStep(userAddress, classification, params,
			describeAmountOp("Stake", params), maxGasStake, p.valueCeiling(params, "amount"))}, nil

	case IntentUnstakeTokens:
		ensureOperation(params, OpUnstake)
		return []AgentIntent{p.newStep(userAddress, classification, params,
			describeAmountOp("Unstake", params), maxGasUnstake, p.valueCeiling(params, "amount"))}, nil

	case IntentClaimRewards:
		ensureOperation(params, OpClaimRewards)
		return []AgentIntent{p.newStep(userAddress, classification, params,
			"Claim staking rewards", maxGasClaim, 0)}, nil

	case IntentPortfolioAnalysis:
		ensureOperation(params, OpBalances)
		return []AgentIntent{p.newStep(userAddress, classification, params,
			fmt.Sprintf("Portfolio %s report", OperationOf(params)), 0, 0)}, nil

	case IntentMarketResearch:
		ensureOperation(params, OpMarketData)
		return []AgentIntent{p.newStep(userAddress, classification, params,
			describeResearch(params), 0, 0)}, nil

	case IntentTransactionAnalysis:
		ensureOperation(params, OpDecodeTransaction)
		return []AgentIntent{p.newStep(userAddress, classification, params,
			fmt.Sprintf("Transaction %s", strings.ReplaceAll(OperationOf(params), "_", " ")), 0, 0)}, nil

	case IntentComplexOperation:
		return nil, ErrNotImplemented

	default:
		return nil, fmt.Errorf("unsupported intent: %s", intent)
	}
}

// newStep constructs one AgentIntent with plan-wide invariants applied.
func (p *Planner) newStep(userAddress string, classification Classification, params map[string]interface{}, description string, maxGas uint64, maxValue float64) AgentIntent {
	now := time.Now()
	slippage := floatParam(params, "slippage")
	step := AgentIntent{
		ID:          uuid.New().String(),
		UserAddress: userAddress,
		Description: description,
		Parameters:  params,
		MaxGas:      maxGas,
		MaxValue:    maxValue,
		Deadline:    now.Add(IntentDeadline).Unix(),
		Slippage:    slippage,
		Priority:    classification.Priority,
		CreatedAt:   now,
	}
	p.logger.Printf("Step %s: %s (maxGas=%d maxValue=%.2f)", step.ID, description, maxGas, maxValue)
	return step
}

// valueCeiling derives the step's maxValue from the requested amount, capped
// by the deployment-wide guardrail.
func (p *Planner) valueCeiling(params map[string]interface{}, key string) float64 {
	limit := p.config.Guardrails.MaxValuePerIntent
	amount := floatParam(params, key)
	if amount <= 0 {
		return limit
	}
	if limit > 0 && amount > limit {
		return limit
	}
	return amount
}

func copyParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	return out
}

func ensureOperation(params map[string]interface{}, fallback string) {
	if OperationOf(params) == "" {
		params["operation"] = fallback
	}
}

func describeSwap(params map[string]interface{}) string {
	tokenIn := stringParam(params, "tokenIn")
	tokenOut := stringParam(params, "tokenOut")
	if amount := floatParam(params, "amountIn"); amount > 0 && tokenIn != "" && tokenOut != "" {
		return fmt.Sprintf("Swap %.2f %s to %s", amount, tokenIn, tokenOut)
	}
	return "Swap tokens"
}

func describeAmountOp(verb string, params map[string]interface{}) string {
	token := stringParam(params, "token")
	if amount := floatParam(params, "amount"); amount > 0 {
		if token != "" {
			return fmt.Sprintf("%s %.2f %s", verb, amount, token)
		}
		return fmt.Sprintf("%s %.2f tokens", verb, amount)
	}
	return verb + " tokens"
}

func describeResearch(params map[string]interface{}) string {
	switch OperationOf(params) {
	case OpTokenAnalysis:
		if token := stringParam(params, "token"); token != "" {
			return fmt.Sprintf("Research token %s", token)
		}
	case OpNews:
		return "Fetch market news"
	case OpProtocolAnalysis:
		return "Research protocol fundamentals"
	}
	return "Fetch market data"
}
