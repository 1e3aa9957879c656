package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/chain"
)

// PnL stand-in figures, scaled by the timeframe multiplier.
const (
	basePnLGain     = 125.50
	basePnLRewards  = 45.30
	basePnLGasSpent = 12.20
)

var pnlMultipliers = map[string]float64{
	"24h": 0.5,
	"7d":  2,
	"30d": 5,
	"1y":  15,
	"all": 25,
}

// PositionSource supplies the staking positions the portfolio views fold in.
type PositionSource interface {
	Positions() []StakePosition
}

type staticPositions []StakePosition

func (s staticPositions) Positions() []StakePosition { return s }

// PortfolioAgent serves the read-only portfolio queries: balances, pnl and
// positions. With a chain client it reads the live native balance; everything
// else comes from fixture data with the degraded flag set.
type PortfolioAgent struct {
	baseAgent
	prices    *priceFeed
	chain     *chain.Client
	positions PositionSource
	balances  map[string]float64
}

func NewPortfolioAgent(prices *priceFeed, chainClient *chain.Client, positions PositionSource) *PortfolioAgent {
	if positions == nil {
		positions = staticPositions(defaultPositions())
	}
	return &PortfolioAgent{
		baseAgent: newBaseAgent("portfolio-agent", "Portfolio Agent", "PORTFOLIO", core.CapabilityPortfolioAnalysis),
		prices:    prices,
		chain:     chainClient,
		positions: positions,
		balances: map[string]float64{
			"ETH":  3.2,
			"USDC": 1250,
			"WBTC": 0.05,
		},
	}
}

func (a *PortfolioAgent) Simulate(ctx context.Context, intent core.AgentIntent) core.SimulationResult {
	parsed, op, err := parseIntentParams(intent)
	if err != nil {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("invalid portfolio parameters: %v", err))
	}
	params, ok := parsed.(core.PortfolioParams)
	if !ok {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("portfolio agent cannot serve operation %q", op))
	}

	report, degradedReason, err := a.report(ctx, intent.UserAddress, params)
	if err != nil {
		return core.FailedSimulation(core.ErrKindValidation, err.Error())
	}

	result := core.SimulationResult{
		Success:       true,
		Risk:          core.CalculateRisk(0, 1, 0),
		Calls:         []core.CallData{},
		Justification: report,
		Confidence:    0.95,
	}
	if degradedReason != "" {
		result.Degraded = true
		result.DegradedReason = degradedReason
		result.Confidence = 0.75
	}
	return result
}

// Execute re-runs the read-only computation; nothing touches the boundary.
func (a *PortfolioAgent) Execute(ctx context.Context, intent core.AgentIntent) core.ExecutionResult {
	sim := a.Simulate(ctx, intent)
	if !sim.Success {
		return core.FailedExecution(sim.ErrorKind, sim.Justification)
	}
	return core.ExecutionResult{
		Success:        true,
		Calls:          []core.CallResult{},
		Degraded:       sim.Degraded,
		DegradedReason: sim.DegradedReason,
		Timestamp:      time.Now(),
	}
}

func (a *PortfolioAgent) report(ctx context.Context, userAddress string, params core.PortfolioParams) (string, string, error) {
	switch params.Op {
	case core.OpBalances:
		return a.balancesReport(ctx, userAddress)
	case core.OpPnL:
		return a.pnlReport(userAddress, params.Timeframe)
	case core.OpPositions:
		return a.positionsReport(ctx)
	default:
		return "", "", fmt.Errorf("portfolio agent cannot serve operation %q", params.Op)
	}
}

func (a *PortfolioAgent) balancesReport(ctx context.Context, userAddress string) (string, string, error) {
	amounts := make(map[string]float64, len(a.balances))
	for token, amount := range a.balances {
		amounts[token] = amount
	}

	degradedReason := ""
	if a.chain != nil {
		wei, err := a.chain.NativeBalance(ctx, userAddress)
		if err != nil {
			degradedReason = fmt.Sprintf("chain read failed: %v", err)
		} else {
			amounts["ETH"] = chain.WeiToToken(wei, 18)
		}
	} else {
		degradedReason = "chain rpc not configured; using fixture balances"
	}

	tokens := make([]string, 0, len(amounts))
	for token := range amounts {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Portfolio for %s:", userAddress)
	total := 0.0
	for _, token := range tokens {
		quote, reason, err := a.prices.price(ctx, token)
		if err != nil {
			return "", "", fmt.Errorf("pricing %s: %w", token, err)
		}
		if degradedReason == "" {
			degradedReason = reason
		}
		value := amounts[token] * quote.PriceUSD
		total += value
		fmt.Fprintf(&sb, " %.4f %s ($%.2f);", amounts[token], token, value)
	}

	stakedTotal := 0.0
	for _, pos := range a.positions.Positions() {
		quote, reason, err := a.prices.price(ctx, pos.Token)
		if err != nil {
			return "", "", fmt.Errorf("pricing %s: %w", pos.Token, err)
		}
		if degradedReason == "" {
			degradedReason = reason
		}
		stakedTotal += pos.Amount * quote.PriceUSD
	}
	total += stakedTotal

	fmt.Fprintf(&sb, " staked $%.2f; total $%.2f", stakedTotal, total)
	return sb.String(), degradedReason, nil
}

func (a *PortfolioAgent) pnlReport(userAddress, timeframe string) (string, string, error) {
	multiplier, ok := pnlMultipliers[timeframe]
	if !ok {
		return "", "", fmt.Errorf("unsupported pnl timeframe %q", timeframe)
	}
	gain := basePnLGain * multiplier
	rewards := basePnLRewards * multiplier
	gas := basePnLGasSpent * multiplier
	net := gain + rewards - gas

	report := fmt.Sprintf("PnL (%s) for %s: trading gains $%.2f, staking rewards $%.2f, gas spent $%.2f, net $%.2f",
		timeframe, userAddress, gain, rewards, gas, net)
	return report, "pnl figures are stand-ins, not a ledger computation", nil
}

func (a *PortfolioAgent) positionsReport(ctx context.Context) (string, string, error) {
	positions := a.positions.Positions()
	if len(positions) == 0 {
		return "No open staking positions.", "", nil
	}

	degradedReason := ""
	var sb strings.Builder
	sb.WriteString("Staking positions:")
	for _, pos := range positions {
		quote, reason, err := a.prices.price(ctx, pos.Token)
		if err != nil {
			return "", "", fmt.Errorf("pricing %s: %w", pos.Token, err)
		}
		if degradedReason == "" {
			degradedReason = reason
		}
		fmt.Fprintf(&sb, " %s: %.4f %s ($%.2f) with %s, rewards %.4f %s;",
			pos.ID, pos.Amount, pos.Token, pos.Amount*quote.PriceUSD, pos.ValidatorID, pos.Rewards, pos.Token)
	}
	return strings.TrimSuffix(sb.String(), ";"), degradedReason, nil
}
