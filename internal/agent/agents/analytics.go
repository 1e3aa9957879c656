package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/agent/telemetry"
	"github.com/onchainos/steward/internal/chain"
)

// knownSelectors maps 4-byte function selectors to their signatures, covering
// the calls the execution agents themselves emit plus the common ERC-20 pair.
var knownSelectors = map[string]string{
	"0x095ea7b3": "approve(address,uint256)",
	"0x38ed1739": "swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
	"0xa694fc3a": "stake(uint256)",
	"0x2e1a7d4d": "withdraw(uint256)",
	"0x3d18b912": "getReward()",
	"0x70a08231": "balanceOf(address)",
	"0xa9059cbb": "transfer(address,uint256)",
	"0x23b872dd": "transferFrom(address,address,uint256)",
}

// txDecode is the cached view of one analyzed transaction.
type txDecode struct {
	hash           string
	to             string
	function       string
	valueNative    float64
	gasUsed        uint64
	gasLimit       uint64
	status         uint64
	pending        bool
	degraded       bool
	degradedReason string
}

// AnalyticsAgent answers transaction analysis requests: decoding a hash,
// gas-usage review, a heuristic risk read and the orchestrator performance
// report. Decodes of mined transactions are immutable, so they are cached
// by hash with no expiry.
type AnalyticsAgent struct {
	baseAgent
	chainClient *chain.Client
	tele        *telemetry.Telemetry

	mu      sync.RWMutex
	decodes map[string]txDecode
}

func NewAnalyticsAgent(chainClient *chain.Client, tele *telemetry.Telemetry) *AnalyticsAgent {
	return &AnalyticsAgent{
		baseAgent:   newBaseAgent("analytics-agent", "Analytics Agent", "ANALYTICS", core.CapabilityTransactionAnalysis),
		chainClient: chainClient,
		tele:        tele,
		decodes:     make(map[string]txDecode),
	}
}

func (a *AnalyticsAgent) Simulate(ctx context.Context, intent core.AgentIntent) core.SimulationResult {
	parsed, op, err := parseIntentParams(intent)
	if err != nil {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("invalid analytics parameters: %v", err))
	}
	params, ok := parsed.(core.AnalyticsParams)
	if !ok {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("analytics agent cannot serve operation %q", op))
	}

	var summary, degradedReason string
	switch params.Op {
	case core.OpDecodeTransaction, core.OpAnalyzeGas, core.OpRiskAssessment:
		if !isTxHash(params.TxHash) {
			return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("malformed transaction hash %q", params.TxHash))
		}
		decode := a.decode(ctx, params.TxHash)
		switch params.Op {
		case core.OpDecodeTransaction:
			summary = decode.describe()
		case core.OpAnalyzeGas:
			summary = gasReport(decode)
		case core.OpRiskAssessment:
			summary = riskReport(decode)
		}
		if decode.degraded {
			degradedReason = decode.degradedReason
		}
	case core.OpPerformanceReport:
		summary, degradedReason = a.performanceReport()
	default:
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("analytics agent cannot serve operation %q", params.Op))
	}

	result := core.SimulationResult{
		Success:       true,
		Risk:          core.CalculateRisk(0, 1, 0),
		Calls:         []core.CallData{},
		Justification: summary,
		Confidence:    0.9,
	}
	if degradedReason != "" {
		result.Degraded = true
		result.DegradedReason = degradedReason
		result.Confidence = 0.6
	}
	return result
}

// Execute re-runs the read-only analysis; nothing touches the boundary.
func (a *AnalyticsAgent) Execute(ctx context.Context, intent core.AgentIntent) core.ExecutionResult {
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

// decode serves from the cache when possible. Pending transactions are not
// pinned: their receipt fields change once mined.
func (a *AnalyticsAgent) decode(ctx context.Context, txHash string) txDecode {
	key := strings.ToLower(txHash)
	a.mu.RLock()
	cached, ok := a.decodes[key]
	a.mu.RUnlock()
	if ok {
		return cached
	}

	d := a.freshDecode(ctx, txHash)
	if !d.pending {
		a.mu.Lock()
		a.decodes[key] = d
		a.mu.Unlock()
	}
	return d
}

func (a *AnalyticsAgent) freshDecode(ctx context.Context, txHash string) txDecode {
	if a.chainClient == nil {
		return fixtureDecode(txHash, "chain rpc not configured; returning fixture decode")
	}
	info, err := a.chainClient.TransactionInfo(ctx, txHash)
	if err != nil {
		a.logger.Printf("warn: transaction lookup failed, serving fixture: %v", err)
		return fixtureDecode(txHash, fmt.Sprintf("chain read failed: %v", err))
	}
	return txDecode{
		hash:        info.Hash,
		to:          info.To,
		function:    functionFor(info.Input),
		valueNative: chain.WeiToToken(info.ValueWei, 18),
		gasUsed:     info.GasUsed,
		gasLimit:    info.GasLimit,
		status:      info.Status,
		pending:     info.Pending,
	}
}

// fixtureDecode stands in when no chain endpoint can answer; the shape matches
// a routine approve-then-swap execution.
func fixtureDecode(txHash, reason string) txDecode {
	return txDecode{
		hash:           txHash,
		to:             syntheticAddress("amm-router"),
		function:       knownSelectors["0x38ed1739"],
		gasUsed:        138412,
		gasLimit:       195000,
		status:         1,
		degraded:       true,
		degradedReason: reason,
	}
}

func functionFor(input string) string {
	input = strings.TrimSpace(input)
	if input == "" || input == "0x" {
		return "native transfer"
	}
	if len(input) < 10 {
		return fmt.Sprintf("malformed calldata %q", input)
	}
	selector := strings.ToLower(input[:10])
	if name, ok := knownSelectors[selector]; ok {
		return name
	}
	return fmt.Sprintf("unknown function %s", selector)
}

func (d txDecode) describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s calls %s on %s with %.4f ETH attached.", d.hash, d.function, d.to, d.valueNative)
	if d.pending {
		sb.WriteString(" It is still pending.")
		return sb.String()
	}
	status := "succeeded"
	if d.status == 0 {
		status = "reverted"
	}
	fmt.Fprintf(&sb, " It %s using %d of %d gas.", status, d.gasUsed, d.gasLimit)
	if d.degraded {
		sb.WriteString(" (fixture data)")
	}
	return sb.String()
}

func gasReport(d txDecode) string {
	if d.pending {
		return fmt.Sprintf("Transaction %s is still pending; gas usage is unknown until it is mined (limit %d).", d.hash, d.gasLimit)
	}
	if d.gasLimit == 0 {
		return fmt.Sprintf("Transaction %s carries no gas limit information.", d.hash)
	}
	efficiency := float64(d.gasUsed) / float64(d.gasLimit) * 100
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s used %d of %d gas (%.1f%% of limit).", d.hash, d.gasUsed, d.gasLimit, efficiency)
	switch {
	case efficiency > 95:
		sb.WriteString(" The limit left under 5% headroom; a small state change could have reverted it out-of-gas.")
	case efficiency < 50:
		fmt.Fprintf(&sb, " The limit is over-provisioned; around %d would have sufficed with margin.", d.gasUsed*12/10)
	default:
		sb.WriteString(" Gas provisioning looks reasonable.")
	}
	if d.degraded {
		sb.WriteString(" (fixture data)")
	}
	return sb.String()
}

// riskReport is a heuristic read of the decoded transaction, not a full audit.
func riskReport(d txDecode) string {
	var findings []string
	score := 0

	if !d.pending && !d.degraded && d.status == 0 {
		findings = append(findings, "the transaction reverted on-chain")
		score += 3
	}
	switch {
	case d.valueNative > 10:
		findings = append(findings, fmt.Sprintf("it moves %.4f ETH of native value", d.valueNative))
		score += 3
	case d.valueNative > 1:
		findings = append(findings, fmt.Sprintf("it moves %.4f ETH of native value", d.valueNative))
		score++
	}
	if strings.HasPrefix(d.function, "unknown function") {
		findings = append(findings, "the function selector is unrecognized; verify the target contract")
		score += 2
	}
	if strings.HasPrefix(d.function, "approve(") {
		findings = append(findings, "it grants a token approval; check the spender and allowance amount")
		score += 2
	}
	if !d.pending && d.gasLimit > 0 && float64(d.gasUsed) >= float64(d.gasLimit)*0.98 {
		findings = append(findings, "gas usage ran within 2% of the limit")
		score++
	}

	level := core.RiskLow
	switch {
	case score >= 5:
		level = core.RiskHigh
	case score >= 3:
		level = core.RiskMedium
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Risk assessment for %s: %s.", d.hash, level)
	if len(findings) == 0 {
		sb.WriteString(" No obvious red flags in the decoded call.")
	} else {
		fmt.Fprintf(&sb, " Findings: %s.", strings.Join(findings, "; "))
	}
	if d.degraded {
		sb.WriteString(" (fixture data)")
	}
	return sb.String()
}

func (a *AnalyticsAgent) performanceReport() (string, string) {
	if a.tele == nil {
		return "=== PERFORMANCE REPORT ===\nTelemetry is not wired; no live counters are available.",
			"telemetry not configured; returning fixture report"
	}
	return a.tele.GetPerformanceReport(), ""
}

func isTxHash(s string) bool {
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
