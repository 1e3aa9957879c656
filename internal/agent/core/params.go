package core

import (
	"fmt"
	"strings"
)

// Operation names carried in the "operation" parameter of every intent step.
const (
	OpSwap              = "swap"
	OpStake             = "stake"
	OpUnstake           = "unstake"
	OpClaimRewards      = "claim_rewards"
	OpBalances          = "balances"
	OpPnL               = "pnl"
	OpPositions         = "positions"
	OpMarketData        = "market_data"
	OpNews              = "news"
	OpTokenAnalysis     = "token_analysis"
	OpProtocolAnalysis  = "protocol_analysis"
	OpDecodeTransaction = "decode_transaction"
	OpAnalyzeGas        = "analyze_gas"
	OpRiskAssessment    = "risk_assessment"
	OpPerformanceReport = "performance_report"
)

// IntentParams is the typed view of an intent's open parameter map. Exactly
// one variant is produced per operation at the classifier/plan boundary, so
// agents work with parsed values instead of re-validating maps.
type IntentParams interface {
	// Operation returns the operation name this variant belongs to.
	Operation() string

	// Map renders the variant back into the open parameter map without loss.
	Map() map[string]interface{}
}

// SwapParams describes a token swap.
type SwapParams struct {
	TokenIn  string
	TokenOut string
	AmountIn float64
	Protocol string
}

func (SwapParams) Operation() string { return OpSwap }

func (p SwapParams) Map() map[string]interface{} {
	m := map[string]interface{}{
		"operation": OpSwap,
		"tokenIn":   p.TokenIn,
		"tokenOut":  p.TokenOut,
		"amountIn":  p.AmountIn,
	}
	if p.Protocol != "" {
		m["protocol"] = p.Protocol
	}
	return m
}

// StakeParams describes staking an amount with an optional explicit validator.
type StakeParams struct {
	Token       string
	Amount      float64
	ValidatorID string
}

func (StakeParams) Operation() string { return OpStake }

func (p StakeParams) Map() map[string]interface{} {
	m := map[string]interface{}{
		"operation": OpStake,
		"token":     p.Token,
		"amount":    p.Amount,
	}
	if p.ValidatorID != "" {
		m["validatorId"] = p.ValidatorID
	}
	return m
}

// UnstakeParams describes withdrawing an existing staking position.
type UnstakeParams struct {
	PositionID string
	Amount     float64
}

func (UnstakeParams) Operation() string { return OpUnstake }

func (p UnstakeParams) Map() map[string]interface{} {
	m := map[string]interface{}{
		"operation":  OpUnstake,
		"positionId": p.PositionID,
	}
	if p.Amount > 0 {
		m["amount"] = p.Amount
	}
	return m
}

// ClaimRewardsParams describes claiming accumulated staking rewards.
type ClaimRewardsParams struct {
	PositionID string
}

func (ClaimRewardsParams) Operation() string { return OpClaimRewards }

func (p ClaimRewardsParams) Map() map[string]interface{} {
	return map[string]interface{}{
		"operation":  OpClaimRewards,
		"positionId": p.PositionID,
	}
}

// PortfolioParams describes a read-only portfolio query.
type PortfolioParams struct {
	Op        string // balances, pnl, positions
	Timeframe string // pnl only: 24h, 7d, 30d, 1y, all
}

func (p PortfolioParams) Operation() string { return p.Op }

func (p PortfolioParams) Map() map[string]interface{} {
	m := map[string]interface{}{"operation": p.Op}
	if p.Timeframe != "" {
		m["timeframe"] = p.Timeframe
	}
	return m
}

// ResearchParams describes a market research request.
type ResearchParams struct {
	Op    string // market_data, news, token_analysis, protocol_analysis
	Query string
	Token string
}

func (p ResearchParams) Operation() string { return p.Op }

func (p ResearchParams) Map() map[string]interface{} {
	m := map[string]interface{}{"operation": p.Op}
	if p.Query != "" {
		m["query"] = p.Query
	}
	if p.Token != "" {
		m["token"] = p.Token
	}
	return m
}

// AnalyticsParams describes a transaction analysis request.
type AnalyticsParams struct {
	Op        string // decode_transaction, analyze_gas, risk_assessment, performance_report
	TxHash    string
	Timeframe string
}

func (p AnalyticsParams) Operation() string { return p.Op }

func (p AnalyticsParams) Map() map[string]interface{} {
	m := map[string]interface{}{"operation": p.Op}
	if p.TxHash != "" {
		m["txHash"] = p.TxHash
	}
	if p.Timeframe != "" {
		m["timeframe"] = p.Timeframe
	}
	return m
}

// ParseParams converts an open parameter map into its typed variant for the
// given operation. Missing or malformed required fields fail here, at the
// boundary, so agents downstream never see half-valid maps.
func ParseParams(operation string, params map[string]interface{}) (IntentParams, error) {
	switch operation {
	case OpSwap:
		p := SwapParams{
			TokenIn:  stringParam(params, "tokenIn"),
			TokenOut: stringParam(params, "tokenOut"),
			AmountIn: floatParam(params, "amountIn"),
			Protocol: stringParam(params, "protocol"),
		}
		if p.TokenIn == "" || p.TokenOut == "" {
			return nil, fmt.Errorf("swap requires tokenIn and tokenOut")
		}
		if p.AmountIn <= 0 {
			return nil, fmt.Errorf("swap requires a positive amountIn")
		}
		return p, nil
	case OpStake:
		p := StakeParams{
			Token:       stringParam(params, "token"),
			Amount:      floatParam(params, "amount"),
			ValidatorID: stringParam(params, "validatorId"),
		}
		if p.Amount <= 0 {
			return nil, fmt.Errorf("stake requires a positive amount")
		}
		return p, nil
	case OpUnstake:
		p := UnstakeParams{
			PositionID: stringParam(params, "positionId"),
			Amount:     floatParam(params, "amount"),
		}
		if p.PositionID == "" {
			return nil, fmt.Errorf("unstake requires a positionId")
		}
		return p, nil
	case OpClaimRewards:
		p := ClaimRewardsParams{PositionID: stringParam(params, "positionId")}
		if p.PositionID == "" {
			return nil, fmt.Errorf("claim_rewards requires a positionId")
		}
		return p, nil
	case OpBalances, OpPnL, OpPositions:
		p := PortfolioParams{Op: operation, Timeframe: stringParam(params, "timeframe")}
		if operation == OpPnL && p.Timeframe == "" {
			p.Timeframe = "24h"
		}
		return p, nil
	case OpMarketData, OpNews, OpTokenAnalysis, OpProtocolAnalysis:
		p := ResearchParams{
			Op:    operation,
			Query: stringParam(params, "query"),
			Token: stringParam(params, "token"),
		}
		if operation == OpTokenAnalysis && p.Token == "" {
			return nil, fmt.Errorf("token_analysis requires a token")
		}
		return p, nil
	case OpDecodeTransaction, OpAnalyzeGas, OpRiskAssessment, OpPerformanceReport:
		p := AnalyticsParams{
			Op:        operation,
			TxHash:    stringParam(params, "txHash"),
			Timeframe: stringParam(params, "timeframe"),
		}
		switch operation {
		case OpDecodeTransaction, OpAnalyzeGas, OpRiskAssessment:
			if p.TxHash == "" {
				return nil, fmt.Errorf("%s requires a txHash", operation)
			}
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", operation)
	}
}

// OperationOf extracts the operation name from an open parameter map.
func OperationOf(params map[string]interface{}) string {
	return strings.TrimSpace(stringParam(params, "operation"))
}

func stringParam(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func floatParam(params map[string]interface{}, key string) float64 {
	if params == nil {
		return 0
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
			return f
		}
	}
	return 0
}
