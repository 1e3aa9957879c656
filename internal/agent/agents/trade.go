package agents

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/onchainos/steward/internal/agent/core"
)

const (
	ammFeeRate      = 0.003 // flat 0.3% AMM fee on the output amount
	approveGas      = 45000
	swapGas         = 150000
	defaultProtocol = "uniswap"
)

// TradeAgent serves swap intents: it quotes against the price feed, applies
// the fee and synthetic price-impact model, and routes execution through the
// boundary as an approve+swap batch.
type TradeAgent struct {
	baseAgent
	prices       *priceFeed
	boundary     core.ExecutionBoundary
	explorerBase string
}

func NewTradeAgent(prices *priceFeed, boundary core.ExecutionBoundary, explorerBase string) *TradeAgent {
	return &TradeAgent{
		baseAgent:    newBaseAgent("trade-agent", "Trade Agent", "TRADE", core.CapabilitySwap),
		prices:       prices,
		boundary:     boundary,
		explorerBase: explorerBase,
	}
}

type swapQuote struct {
	params         core.SwapParams
	protocol       string
	priceIn        float64
	priceOut       float64
	amountOut      float64
	minOut         float64
	impactPct      float64
	valueUSD       float64
	degradedReason string
}

func (a *TradeAgent) Simulate(ctx context.Context, intent core.AgentIntent) core.SimulationResult {
	parsed, op, err := parseIntentParams(intent)
	if err != nil {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("invalid swap parameters: %v", err))
	}
	params, ok := parsed.(core.SwapParams)
	if !ok {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("trade agent cannot serve operation %q", op))
	}

	quote, err := a.quote(ctx, params, intent.Slippage)
	if err != nil {
		return core.FailedSimulation(core.ErrKindUpstream, fmt.Sprintf("quoting %s/%s: %v", params.TokenIn, params.TokenOut, err))
	}

	var warnings []string
	if quote.impactPct > 5 {
		warnings = append(warnings, fmt.Sprintf("high price impact: %.2f%%", quote.impactPct))
	}
	if intent.Slippage > 3 {
		warnings = append(warnings, fmt.Sprintf("slippage tolerance %.1f%% is above 3%%", intent.Slippage))
	}

	result := core.SimulationResult{
		Success:       true,
		GasEstimate:   approveGas + swapGas,
		ValueEstimate: quote.valueUSD,
		Risk:          core.CalculateRisk(quote.valueUSD, 1, quote.impactPct/100),
		Calls:         a.swapCalls(quote),
		Justification: fmt.Sprintf("Swap %.4f %s for ~%.4f %s via %s (price impact %.2f%%, fee 0.30%%, min received %.4f)",
			params.AmountIn, params.TokenIn, quote.amountOut, params.TokenOut, quote.protocol, quote.impactPct, quote.minOut),
		Warnings:   warnings,
		Confidence: 0.9,
	}
	if quote.degradedReason != "" {
		result.Degraded = true
		result.DegradedReason = quote.degradedReason
		result.Confidence = 0.7
	}
	return result
}

func (a *TradeAgent) Execute(ctx context.Context, intent core.AgentIntent) core.ExecutionResult {
	if intent.Expired(time.Now()) {
		return core.FailedExecution(core.ErrKindExpired, "intent deadline has passed")
	}
	parsed, op, err := parseIntentParams(intent)
	if err != nil {
		return core.FailedExecution(core.ErrKindValidation, fmt.Sprintf("invalid swap parameters: %v", err))
	}
	params, ok := parsed.(core.SwapParams)
	if !ok {
		return core.FailedExecution(core.ErrKindValidation, fmt.Sprintf("trade agent cannot serve operation %q", op))
	}

	quote, err := a.quote(ctx, params, intent.Slippage)
	if err != nil {
		return core.FailedExecution(core.ErrKindUpstream, fmt.Sprintf("quoting %s/%s: %v", params.TokenIn, params.TokenOut, err))
	}

	a.logger.Printf("Executing swap %.4f %s -> %s for %s", params.AmountIn, params.TokenIn, params.TokenOut, intent.UserAddress)
	return submitThroughBoundary(ctx, a.boundary, intent, a.swapCalls(quote), quote.valueUSD, a.explorerBase)
}

// quote prices both legs and applies the fee and impact model.
func (a *TradeAgent) quote(ctx context.Context, params core.SwapParams, slippagePct float64) (swapQuote, error) {
	quoteIn, reasonIn, err := a.prices.price(ctx, params.TokenIn)
	if err != nil {
		return swapQuote{}, err
	}
	quoteOut, reasonOut, err := a.prices.price(ctx, params.TokenOut)
	if err != nil {
		return swapQuote{}, err
	}

	impactPct := math.Min(params.AmountIn/100000*2, 15)
	gross := params.AmountIn * quoteIn.PriceUSD / quoteOut.PriceUSD
	amountOut := gross * (1 - ammFeeRate) * (1 - impactPct/100)
	minOut := amountOut * (1 - slippagePct/100)

	protocol := params.Protocol
	if protocol == "" {
		protocol = defaultProtocol
	}
	reason := reasonIn
	if reason == "" {
		reason = reasonOut
	}
	return swapQuote{
		params:         params,
		protocol:       protocol,
		priceIn:        quoteIn.PriceUSD,
		priceOut:       quoteOut.PriceUSD,
		amountOut:      amountOut,
		minOut:         minOut,
		impactPct:      impactPct,
		valueUSD:       params.AmountIn * quoteIn.PriceUSD,
		degradedReason: reason,
	}, nil
}

// swapCalls builds the approve+swap batch handed to the boundary.
func (a *TradeAgent) swapCalls(quote swapQuote) []core.CallData {
	params := quote.params
	router := syntheticAddress("amm-router:" + quote.protocol)
	tokenIn := syntheticAddress("token:" + strings.ToUpper(params.TokenIn))

	return []core.CallData{
		{
			Target:      tokenIn,
			Data:        encodeCall("0x095ea7b3", addressWord(router), amountWei(params.AmountIn)),
			Value:       "0",
			Description: fmt.Sprintf("approve %.4f %s for %s", params.AmountIn, params.TokenIn, quote.protocol),
			GasLimit:    approveGas,
			Required:    true,
		},
		{
			Target:      router,
			Data:        encodeCall("0x38ed1739", amountWei(params.AmountIn), amountWei(quote.minOut)),
			Value:       "0",
			Description: fmt.Sprintf("swap %.4f %s for at least %.4f %s", params.AmountIn, params.TokenIn, quote.minOut, params.TokenOut),
			GasLimit:    swapGas,
			Required:    true,
		},
	}
}
