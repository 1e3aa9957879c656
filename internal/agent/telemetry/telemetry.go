package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/onchainos/steward/config"
)

var (
	meter = otel.Meter("github.com/onchainos/steward/internal/agent/telemetry")

	agentExecCounter, _ = meter.Int64Counter("steward.agent.executions",
		metric.WithDescription("Agent simulate/execute invocations"))
	llmTokenCounter, _ = meter.Int64Counter("steward.llm.tokens",
		metric.WithDescription("LLM tokens consumed, prompt and completion combined"))
)

// Telemetry provides monitoring and LLM cost tracking for the agent layer.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds various performance metrics
type Metrics struct {
	// Plan metrics
	TotalPlans            int64
	SimulatedPlans        int64
	ExecutedPlans         int64
	FailedPlans           int64
	AverageProcessingTime time.Duration

	// Agent metrics
	AgentExecutions   map[string]int64
	AgentSuccessRates map[string]float64
	AgentAverageTimes map[string]time.Duration

	// LLM metrics
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64

	// Risk distribution across simulations
	RiskCounts map[string]int64
}

// CostTracker tracks costs across different LLM models and operations
type CostTracker struct {
	ModelCosts     map[string]float64 // model -> cost
	OperationCosts map[string]float64 // operation -> cost
	TotalCost      float64
	TotalTokens    int64
}

// PlanEvent represents one full classify/plan/simulate/execute pipeline run.
type PlanEvent struct {
	ID             string
	UserAddress    string
	Intent         string
	Stage          string // parse, simulate, execute
	StartTime      time.Time
	EndTime        time.Time
	ProcessingTime time.Duration
	Success        bool
	Error          string
	Cost           float64
	TokensUsed     int64
	AgentsUsed     []string
	ModelsUsed     []string
}

// AgentEvent represents a single agent simulate or execute invocation.
type AgentEvent struct {
	ID        string
	AgentID   string
	Operation string // simulate or execute
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Success   bool
	Error     string
	Risk      string
	GasUsed   uint64
}

// LLMEvent represents one completion call to a provider.
type LLMEvent struct {
	Model        string
	Operation    string // classification, explanation, research
	Duration     time.Duration
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Success      bool
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(config config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: config,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			AgentExecutions:   make(map[string]int64),
			AgentSuccessRates: make(map[string]float64),
			AgentAverageTimes: make(map[string]time.Duration),
			LLMRequests:       make(map[string]int64),
			LLMTokensUsed:     make(map[string]int64),
			RiskCounts:        make(map[string]int64),
		},
		costTracker: &CostTracker{
			ModelCosts:     make(map[string]float64),
			OperationCosts: make(map[string]float64),
		},
	}

	// Periodic logs can be disabled via config
	if config.Enabled && config.PeriodicLogs {
		go t.startMetricsCollection()
	}

	return t
}

// RecordPlanEvent records a complete pipeline event
func (t *Telemetry) RecordPlanEvent(ctx context.Context, event PlanEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalPlans++
	switch event.Stage {
	case "simulate":
		t.metrics.SimulatedPlans++
	case "execute":
		t.metrics.ExecutedPlans++
	}
	if !event.Success {
		t.metrics.FailedPlans++
	}

	// Update average processing time
	if t.metrics.TotalPlans == 1 {
		t.metrics.AverageProcessingTime = event.ProcessingTime
	} else {
		total := t.metrics.AverageProcessingTime * time.Duration(t.metrics.TotalPlans-1)
		t.metrics.AverageProcessingTime = (total + event.ProcessingTime) / time.Duration(t.metrics.TotalPlans)
	}

	for _, agent := range event.AgentsUsed {
		t.metrics.AgentExecutions[agent]++
	}
	for _, model := range event.ModelsUsed {
		t.metrics.LLMRequests[model]++
		t.metrics.LLMTokensUsed[model] += event.TokensUsed
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Plan Event: ID=%s, Stage=%s, Success=%t, Duration=%v, Cost=$%.4f, Tokens=%d",
		event.ID, event.Stage, event.Success, event.ProcessingTime, event.Cost, event.TokensUsed)
}

// RecordAgentEvent records an agent simulate/execute event
func (t *Telemetry) RecordAgentEvent(ctx context.Context, event AgentEvent) {
	if !t.config.Enabled {
		return
	}

	agentExecCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", event.AgentID),
		attribute.String("operation", event.Operation),
		attribute.Bool("success", event.Success),
	))

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.AgentExecutions[event.AgentID]++

	// Update success rate
	currentSuccess := t.metrics.AgentSuccessRates[event.AgentID]
	currentExecutions := t.metrics.AgentExecutions[event.AgentID]
	if event.Success {
		currentSuccess += 1.0
	}
	t.metrics.AgentSuccessRates[event.AgentID] = currentSuccess / float64(currentExecutions)

	// Update average time
	currentAvg := t.metrics.AgentAverageTimes[event.AgentID]
	if currentExecutions == 1 {
		t.metrics.AgentAverageTimes[event.AgentID] = event.Duration
	} else {
		total := currentAvg * time.Duration(currentExecutions-1)
		t.metrics.AgentAverageTimes[event.AgentID] = (total + event.Duration) / time.Duration(currentExecutions)
	}

	if event.Risk != "" {
		t.metrics.RiskCounts[event.Risk]++
	}

	t.logger.Printf("Agent Event: Agent=%s, Op=%s, Success=%t, Duration=%v, Risk=%s",
		event.AgentID, event.Operation, event.Success, event.Duration, event.Risk)
}

// RecordLLMEvent records one completion call with its cost
func (t *Telemetry) RecordLLMEvent(ctx context.Context, event LLMEvent) {
	if !t.config.Enabled {
		return
	}

	llmTokenCounter.Add(ctx, event.InputTokens+event.OutputTokens, metric.WithAttributes(
		attribute.String("model", event.Model),
		attribute.String("operation", event.Operation),
	))

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.LLMRequests[event.Model]++
	t.metrics.LLMTokensUsed[event.Model] += event.InputTokens + event.OutputTokens

	if t.config.CostTracking {
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.InputTokens + event.OutputTokens
		t.costTracker.ModelCosts[event.Model] += event.Cost
		t.costTracker.OperationCosts[event.Operation] += event.Cost
	}

	t.logger.Printf("LLM Event: Model=%s, Op=%s, Success=%t, Tokens=%d/%d, Cost=$%.4f",
		event.Model, event.Operation, event.Success, event.InputTokens, event.OutputTokens, event.Cost)
}

// GetMetrics returns current metrics snapshot
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// Copy to avoid races on the maps
	metrics := *t.metrics
	metrics.AgentExecutions = make(map[string]int64)
	metrics.AgentSuccessRates = make(map[string]float64)
	metrics.AgentAverageTimes = make(map[string]time.Duration)
	metrics.LLMRequests = make(map[string]int64)
	metrics.LLMTokensUsed = make(map[string]int64)
	metrics.RiskCounts = make(map[string]int64)

	for k, v := range t.metrics.AgentExecutions {
		metrics.AgentExecutions[k] = v
	}
	for k, v := range t.metrics.AgentSuccessRates {
		metrics.AgentSuccessRates[k] = v
	}
	for k, v := range t.metrics.AgentAverageTimes {
		metrics.AgentAverageTimes[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		metrics.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		metrics.LLMTokensUsed[k] = v
	}
	for k, v := range t.metrics.RiskCounts {
		metrics.RiskCounts[k] = v
	}

	return metrics
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:      t.costTracker.TotalCost,
		TotalTokens:    t.costTracker.TotalTokens,
		ModelCosts:     make(map[string]float64),
		OperationCosts: make(map[string]float64),
	}

	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.OperationCosts {
		summary.OperationCosts[k] = v
	}

	return summary
}

// CostSummary provides a summary of costs
type CostSummary struct {
	TotalCost      float64
	TotalTokens    int64
	ModelCosts     map[string]float64
	OperationCosts map[string]float64
}

// startMetricsCollection starts periodic metrics collection
func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()

		t.logger.Printf("Metrics Snapshot: Plans=%d (failed %d), AvgTime=%v, TotalCost=$%.4f, TotalTokens=%d",
			metrics.TotalPlans, metrics.FailedPlans,
			metrics.AverageProcessingTime, costs.TotalCost, costs.TotalTokens)
	}
}

// Shutdown gracefully shuts down the telemetry system
func (t *Telemetry) Shutdown() {
	t.logger.Println("Shutting down telemetry system...")

	metrics := t.GetMetrics()
	costs := t.GetCostSummary()
	if metrics.TotalPlans == 0 {
		return
	}

	t.logger.Printf("Final Report:")
	t.logger.Printf("  Total Plans: %d", metrics.TotalPlans)
	t.logger.Printf("  Failed: %d", metrics.FailedPlans)
	t.logger.Printf("  Average Processing Time: %v", metrics.AverageProcessingTime)
	t.logger.Printf("  Total Cost: $%.4f", costs.TotalCost)
	t.logger.Printf("  Total Tokens: %d", costs.TotalTokens)
}

// GetPerformanceReport returns a detailed performance report
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	total := metrics.TotalPlans
	if total == 0 {
		total = 1 // avoid division by zero in the percentages below
	}

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Overall Metrics:
  Total Plans: %d
  Simulated: %d
  Executed: %d
  Failed: %d (%.2f%%)
  Average Processing Time: %v
  Total Cost: $%.4f
  Total Tokens: %d

Agent Performance:
`, metrics.TotalPlans, metrics.SimulatedPlans, metrics.ExecutedPlans,
		metrics.FailedPlans, float64(metrics.FailedPlans)/float64(total)*100,
		metrics.AverageProcessingTime, costs.TotalCost, costs.TotalTokens)

	for agent, executions := range metrics.AgentExecutions {
		successRate := metrics.AgentSuccessRates[agent]
		avgTime := metrics.AgentAverageTimes[agent]
		report += fmt.Sprintf("  %s: %d executions, %.2f%% success, %v avg time\n",
			agent, executions, successRate*100, avgTime)
	}

	report += "\nLLM Usage:\n"
	for model, requests := range metrics.LLMRequests {
		tokens := metrics.LLMTokensUsed[model]
		cost := costs.ModelCosts[model]
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n",
			model, requests, tokens, cost)
	}

	report += "\nRisk Distribution:\n"
	for risk, count := range metrics.RiskCounts {
		report += fmt.Sprintf("  %s: %d simulations\n", risk, count)
	}

	return report
}
