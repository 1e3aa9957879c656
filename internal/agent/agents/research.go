package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/agent/telemetry"
	"github.com/onchainos/steward/internal/research"
)

// ResearchAgent serves the market research operations. Live answers come from
// the routed LLM; without a provider, or when the call fails, it falls back
// to fixture payloads with the degraded flag set. Completed answers are
// cached under the serialized parameter set and indexed for later recall.
type ResearchAgent struct {
	baseAgent
	routing config.LLMRoutingConfig
	cfg     config.ResearchConfig
	llm     core.LLMProvider
	cache   research.Cache
	index   *research.Index
	tele    *telemetry.Telemetry
}

func NewResearchAgent(llmCfg config.LLMConfig, cfg config.ResearchConfig, llm core.LLMProvider, cache research.Cache, index *research.Index, tele *telemetry.Telemetry) *ResearchAgent {
	if cache == nil {
		cache = research.NewMemoryCache()
	}
	return &ResearchAgent{
		baseAgent: newBaseAgent("research-agent", "Research Agent", "RESEARCH", core.CapabilityMarketResearch),
		routing:   llmCfg.Routing,
		cfg:       cfg.Normalize(),
		llm:       llm,
		cache:     cache,
		index:     index,
		tele:      tele,
	}
}

// researchPayload is the envelope cached per parameter set so the degraded
// state survives a cache round-trip.
type researchPayload struct {
	Summary        string `json:"summary"`
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}

func (a *ResearchAgent) Simulate(ctx context.Context, intent core.AgentIntent) core.SimulationResult {
	parsed, op, err := parseIntentParams(intent)
	if err != nil {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("invalid research parameters: %v", err))
	}
	params, ok := parsed.(core.ResearchParams)
	if !ok {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("research agent cannot serve operation %q", op))
	}

	payload := a.lookup(ctx, params, intent.Description, intent.UserAddress)

	result := core.SimulationResult{
		Success:       true,
		Risk:          core.CalculateRisk(0, 1, 0),
		Calls:         []core.CallData{},
		Justification: payload.Summary,
		Confidence:    0.9,
	}
	if payload.Degraded {
		result.Degraded = true
		result.DegradedReason = payload.DegradedReason
		result.Confidence = 0.6
	}
	return result
}

// Execute re-runs the read-only lookup; nothing touches the boundary.
func (a *ResearchAgent) Execute(ctx context.Context, intent core.AgentIntent) core.ExecutionResult {
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

// lookup serves from the cache when fresh, otherwise answers, caches and
// indexes the result.
func (a *ResearchAgent) lookup(ctx context.Context, params core.ResearchParams, description, userAddress string) researchPayload {
	key := research.CacheKey(params.Op, params.Map())
	if raw, ok := a.cache.Get(ctx, key); ok {
		var cached researchPayload
		if err := json.Unmarshal([]byte(raw), &cached); err == nil && cached.Summary != "" {
			return cached
		}
	}

	payload := a.answer(ctx, params, description)

	if raw, err := json.Marshal(payload); err == nil {
		a.cache.Set(ctx, key, string(raw), a.cfg.CacheTTL)
	}
	if a.index != nil {
		note := research.Note{
			UserAddress: userAddress,
			Operation:   params.Op,
			Query:       params.Query,
			Token:       params.Token,
			Summary:     payload.Summary,
			Degraded:    payload.Degraded,
		}
		if err := a.index.Add(note); err != nil {
			a.logger.Printf("warn: indexing research note: %v", err)
		}
	}
	return payload
}

// answer asks the routed research model, degrading to fixtures when no
// provider or model is available or the call fails.
func (a *ResearchAgent) answer(ctx context.Context, params core.ResearchParams, description string) researchPayload {
	if a.llm == nil {
		return a.fixture(params, "llm provider not configured; returning fixture research")
	}
	model := a.routing.Research
	if model == "" {
		model = a.routing.Fallback
	}
	if model == "" {
		return a.fixture(params, "no research model routed; returning fixture research")
	}

	start := time.Now()
	content, inTokens, outTokens, err := a.llm.GenerateWithTokens(ctx, a.prompt(params, description), model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  500,
	})
	if a.tele != nil {
		a.tele.RecordLLMEvent(ctx, telemetry.LLMEvent{
			Model:        model,
			Operation:    "research",
			Duration:     time.Since(start),
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			Cost:         a.llm.CalculateCost(inTokens, outTokens, model),
			Success:      err == nil,
		})
	}
	if err != nil {
		a.logger.Printf("warn: research call failed, serving fixture: %v", err)
		return a.fixture(params, fmt.Sprintf("research call failed: %v", err))
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return a.fixture(params, "empty research response; returning fixture research")
	}
	return researchPayload{Summary: content}
}

func (a *ResearchAgent) prompt(params core.ResearchParams, description string) string {
	var sb strings.Builder
	sb.WriteString("You are a DeFi research analyst. Answer concisely in plain text.\n\n")
	fmt.Fprintf(&sb, "REQUEST: %s\n", params.Op)
	if params.Token != "" {
		fmt.Fprintf(&sb, "TOKEN: %s\n", params.Token)
	}
	query := params.Query
	if query == "" {
		query = description
	}
	if query != "" {
		fmt.Fprintf(&sb, "QUERY: %s\n", query)
	}
	return sb.String()
}

func (a *ResearchAgent) fixture(params core.ResearchParams, reason string) researchPayload {
	var summary string
	switch params.Op {
	case core.OpMarketData:
		summary = "Market snapshot (fixture): BTC dominance 52.1%, total market cap $2.31T, 24h volume $89.4B, fear/greed index 61 (greed)."
	case core.OpNews:
		summary = "Headlines (fixture): 1) L2 throughput doubles quarter over quarter. 2) Major AMM ships concentrated liquidity. 3) Staking yields compress as participation rises."
	case core.OpTokenAnalysis:
		summary = fmt.Sprintf("Analysis for %s (fixture): rating neutral, on-chain activity steady, liquidity adequate, 30d volatility moderate.", params.Token)
	case core.OpProtocolAnalysis:
		target := params.Query
		if target == "" {
			target = params.Token
		}
		if target == "" {
			summary = "Protocol review (fixture): TVL trend flat, audits current, governance active, emissions declining."
		} else {
			summary = fmt.Sprintf("Protocol review for %s (fixture): TVL trend flat, audits current, governance active, emissions declining.", target)
		}
	default:
		summary = "No fixture available for this research operation."
	}
	return researchPayload{Summary: summary, Degraded: true, DegradedReason: reason}
}
