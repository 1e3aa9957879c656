// Package agents holds the five capability agents served through the registry:
// trade, stake, portfolio, research and analytics. Each one implements the
// core.Agent contract; validation problems and upstream failures are folded
// into failed results instead of escaping as raw errors.
package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/agent/telemetry"
	"github.com/onchainos/steward/internal/chain"
	"github.com/onchainos/steward/internal/market"
	"github.com/onchainos/steward/internal/research"
	"github.com/onchainos/steward/internal/schema"
)

// Deps bundles the collaborators the agent set is built from. Chain, LLM,
// Cache and Index are optional; agents degrade to fixture data without them.
type Deps struct {
	Config    *config.Config
	Logger    *log.Logger
	Telemetry *telemetry.Telemetry
	LLM       core.LLMProvider
	Boundary  core.ExecutionBoundary
	Chain     *chain.Client
	Cache     research.Cache
	Index     *research.Index
}

// NewAgents constructs the standard agent set in registration order.
func NewAgents(deps Deps) []core.Agent {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[AGENTS] ", log.LstdFlags)
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	cache := deps.Cache
	if cache == nil {
		cache = research.NewMemoryCache()
	}

	prices := newPriceFeed(cfg.Market)
	explorer := cfg.Chain.ExplorerBaseURL

	trade := NewTradeAgent(prices, deps.Boundary, explorer)
	stake := NewStakeAgent(nil, nil, prices, deps.Boundary, explorer)
	portfolio := NewPortfolioAgent(prices, deps.Chain, stake)
	researcher := NewResearchAgent(cfg.LLM, cfg.Research, deps.LLM, cache, deps.Index, deps.Telemetry)
	analytics := NewAnalyticsAgent(deps.Chain, deps.Telemetry)

	return []core.Agent{trade, stake, portfolio, researcher, analytics}
}

// priceFeed resolves token prices through the live source when one is
// configured, falling back to the static table with an explicit reason.
type priceFeed struct {
	live   market.Source
	static *market.StaticSource
}

func newPriceFeed(cfg config.MarketConfig) *priceFeed {
	feed := &priceFeed{static: market.NewStaticSource()}
	if strings.TrimSpace(cfg.PriceAPIURL) != "" {
		feed.live = market.NewHTTPSource(cfg)
	}
	return feed
}

// price returns a quote plus a non-empty degraded reason whenever the quote
// did not come from the live API.
func (f *priceFeed) price(ctx context.Context, symbol string) (market.Quote, string, error) {
	if f.live != nil {
		quote, err := f.live.Price(ctx, symbol)
		if err == nil {
			return quote, "", nil
		}
		fallback, ferr := f.static.Price(ctx, symbol)
		if ferr != nil {
			return market.Quote{}, "", err
		}
		return fallback, fmt.Sprintf("price api failed: %v", err), nil
	}
	quote, err := f.static.Price(ctx, symbol)
	if err != nil {
		return market.Quote{}, "", err
	}
	return quote, "price api not configured", nil
}

// baseAgent carries the identity fields and the default explanation shared by
// every agent variant.
type baseAgent struct {
	id     string
	name   string
	caps   []string
	logger *log.Logger
}

func newBaseAgent(id, name, prefix string, caps ...string) baseAgent {
	return baseAgent{
		id:     id,
		name:   name,
		caps:   caps,
		logger: log.New(log.Writer(), "["+prefix+"] ", log.LstdFlags),
	}
}

func (b baseAgent) ID() string   { return b.id }
func (b baseAgent) Name() string { return b.name }

func (b baseAgent) Capabilities() []string {
	out := make([]string, len(b.caps))
	copy(out, b.caps)
	return out
}

// Explain is the default post-hoc narrative: success with gas and hash, or
// the failure reason.
func (b baseAgent) Explain(result core.ExecutionResult) string {
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Sprintf("%s could not complete the operation: %s", b.name, msg)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s completed the operation", b.name)
	if result.GasUsed > 0 {
		fmt.Fprintf(&sb, " using %d gas", result.GasUsed)
	}
	if result.TransactionHash != "" {
		fmt.Fprintf(&sb, " (tx %s)", result.TransactionHash)
	}
	sb.WriteString(".")
	if result.Degraded && result.DegradedReason != "" {
		fmt.Fprintf(&sb, " Note: %s.", result.DegradedReason)
	}
	return sb.String()
}

// parseIntentParams validates the raw parameter map against the operation's
// schema and converts it into its typed variant.
func parseIntentParams(intent core.AgentIntent) (core.IntentParams, string, error) {
	op := core.OperationOf(intent.Parameters)
	if op == "" {
		return nil, "", fmt.Errorf("intent has no operation parameter")
	}
	if err := schema.ValidateParams(op, intent.Parameters); err != nil {
		return nil, op, err
	}
	parsed, err := core.ParseParams(op, intent.Parameters)
	if err != nil {
		return nil, op, err
	}
	return parsed, op, nil
}

// submitThroughBoundary relays calls and folds the per-call outcomes into an
// ExecutionResult. Success requires every required call to succeed.
func submitThroughBoundary(ctx context.Context, boundary core.ExecutionBoundary, intent core.AgentIntent, calls []core.CallData, valueUSD float64, explorerBase string) core.ExecutionResult {
	if boundary == nil {
		return core.FailedExecution(core.ErrKindUpstream, "no execution boundary configured")
	}
	callResults, err := boundary.SubmitCalls(ctx, intent.UserAddress, calls)
	if err != nil {
		return core.FailedExecution(core.ErrKindUpstream, fmt.Sprintf("execution boundary: %v", err))
	}

	result := core.ExecutionResult{Success: true, Calls: callResults, Timestamp: time.Now()}
	var gas uint64
	for _, cr := range callResults {
		gas += cr.GasUsed
		if cr.Required && !cr.Success && result.Error == "" {
			msg := cr.Error
			if msg == "" {
				msg = "required call failed"
			}
			result.Success = false
			result.Error = fmt.Sprintf("call to %s failed: %s", cr.Target, msg)
			result.ErrorKind = core.ErrKindUpstream
		}
	}
	result.GasUsed = gas
	if result.Success {
		result.TransactionHash = chain.SyntheticTxHash(intent.ID, intent.UserAddress)
		result.ExplorerURL = chain.ExplorerTxURL(explorerBase, result.TransactionHash)
		result.ValueTransferred = valueUSD
	}

	if m, ok := boundary.(interface{ Mode() string }); ok {
		switch m.Mode() {
		case "mock":
			result.Degraded = true
			result.DegradedReason = "execution boundary is a mock; no transaction was broadcast"
		case "preflight":
			result.Degraded = true
			result.DegradedReason = "calls were preflighted only; no relayer is configured"
		}
	}
	return result
}

// syntheticAddress derives a stable address-shaped placeholder for protocol
// contracts the mock call builder references.
func syntheticAddress(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return "0x" + hex.EncodeToString(sum[:20])
}

// amountWei scales a token amount by 1e18 for call payloads.
func amountWei(amount float64) *big.Int {
	if amount <= 0 {
		return big.NewInt(0)
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18)).Int(nil)
	if wei == nil {
		return big.NewInt(0)
	}
	return wei
}

// addressWord parses a hex address into the integer form used for ABI words.
func addressWord(addr string) *big.Int {
	word, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(addr), "0x"), 16)
	if !ok {
		return big.NewInt(0)
	}
	return word
}

// encodeCall renders a selector plus 32-byte words into calldata hex.
func encodeCall(selector string, words ...*big.Int) string {
	var b strings.Builder
	b.WriteString(selector)
	for _, w := range words {
		fmt.Fprintf(&b, "%064x", w)
	}
	return b.String()
}
