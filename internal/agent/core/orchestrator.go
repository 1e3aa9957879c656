package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/telemetry"
	"github.com/onchainos/steward/internal/budget"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AgentRegistry is the read side of the capability registry the orchestrator
// dispatches through. When several agents share a capability the first match
// wins; the registry itself applies no ranking.
type AgentRegistry interface {
	Get(id string) (Agent, bool)
	GetByCapability(capability string) []Agent
	GetAll() []Agent
}

// PlanRepository persists plans and their simulation/execution outcomes.
type PlanRepository interface {
	SavePlan(ctx context.Context, plan ExecutionPlan) error
	UpdatePlanStatus(ctx context.Context, planID string, status PlanStatus) error
	GetPlan(ctx context.Context, planID string) (ExecutionPlan, bool, error)
	SaveSimulation(ctx context.Context, planID string, results []SimulationResult) error
	SaveExecution(ctx context.Context, planID string, results []ExecutionResult) error
}

// ProcessingStatus mirrors in-flight pipeline state for status endpoints.
type ProcessingStatus struct {
	PlanID      string    `json:"plan_id"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	CurrentStep string    `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Orchestrator coordinates classification, planning, estimation and agent
// dispatch for every user request.
type Orchestrator struct {
	config    *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	registry  AgentRegistry

	// Core components
	classifier  Classifier
	planner     *Planner
	llmProvider LLMProvider
	memory      MemoryStore
	plans       PlanRepository
	guardrails  budget.Config

	// Processing state
	processing map[string]*ProcessingStatus
	mu         sync.RWMutex

	// Daily spend accounting per user address, reset when the UTC day rolls
	// over. Backs the daily_value_cap guardrail across plans.
	dailyMu    sync.Mutex
	dailySpend map[string]float64
	dailyDay   string

	// Concurrency control
	semaphore chan struct{}
}

var orchestratorTracer trace.Tracer = otel.Tracer("steward/internal/agent/orchestrator")

// NewOrchestrator creates a new orchestrator instance. Agents are registered
// separately on the capability registry before any plan is processed.
func NewOrchestrator(cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry, registry AgentRegistry, memory MemoryStore, plans PlanRepository) (*Orchestrator, error) {
	llmProvider, err := NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}

	maxPlans := cfg.Agents.MaxConcurrentPlans
	if maxPlans <= 0 {
		maxPlans = 1
	}

	o := &Orchestrator{
		config:      cfg,
		logger:      logger,
		telemetry:   tele,
		registry:    registry,
		classifier:  NewIntentClassifier(cfg, llmProvider, tele),
		planner:     NewPlanner(cfg, llmProvider, tele),
		llmProvider: llmProvider,
		memory:      memory,
		plans:       plans,
		guardrails:  budget.FromGuardrails(cfg.Guardrails),
		processing:  make(map[string]*ProcessingStatus),
		dailySpend:  make(map[string]float64),
		dailyDay:    time.Now().UTC().Format("2006-01-02"),
		semaphore:   make(chan struct{}, maxPlans),
	}

	return o, nil
}

// LLM exposes the orchestrator's underlying LLM provider.
func (o *Orchestrator) LLM() LLMProvider {
	return o.llmProvider
}

// SetClassifier swaps the intent classifier. Used when an alternative
// classification backend is wired in.
func (o *Orchestrator) SetClassifier(c Classifier) {
	if o == nil || c == nil {
		return
	}
	o.classifier = c
}

// ParseIntent turns a natural-language message into an execution plan:
// classify, build steps, aggregate estimates via agent simulations, and
// generate a human-readable explanation. Any failure surfaces as a single
// wrapped error.
func (o *Orchestrator) ParseIntent(ctx context.Context, userAddress, message string) (ExecutionPlan, error) {
	startTime := time.Now()
	ctx, span := orchestratorTracer.Start(ctx, "agent.parse_intent",
		trace.WithAttributes(
			attribute.String("user.address", userAddress),
		))
	defer span.End()

	planID := uuid.New().String()
	span.SetAttributes(attribute.String("plan.id", planID))

	status := &ProcessingStatus{
		PlanID:      planID,
		Status:      "pending",
		Progress:    0.0,
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
	}

	o.mu.Lock()
	o.processing[planID] = status
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.processing, planID)
		o.mu.Unlock()
	}()

	// Acquire semaphore for concurrency control
	select {
	case o.semaphore <- struct{}{}:
		defer func() { <-o.semaphore }()
	case <-ctx.Done():
		return ExecutionPlan{}, ctx.Err()
	}

	planEvent := telemetry.PlanEvent{
		ID:          planID,
		UserAddress: userAddress,
		Stage:       "parse",
		StartTime:   startTime,
	}

	defer func() {
		planEvent.EndTime = time.Now()
		planEvent.ProcessingTime = planEvent.EndTime.Sub(planEvent.StartTime)
		o.telemetry.RecordPlanEvent(ctx, planEvent)
	}()

	o.logger.Printf("Parsing intent for user %s: %s", userAddress, truncate(message, 120))

	plan, err := o.parseIntent(ctx, span, planID, userAddress, message, status, &planEvent)
	if err != nil {
		o.updateStatus(status, "failed", 0.0, err.Error())
		planEvent.Success = false
		planEvent.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExecutionPlan{}, fmt.Errorf("Failed to parse intent: %w", err)
	}

	planEvent.Success = true
	planEvent.Intent = plan.Classification.Intent
	o.updateStatus(status, "completed", 1.0, "Plan created")
	o.logger.Printf("Created plan %s (%s, %d steps) in %v", planID, plan.Classification.Intent, len(plan.Steps), time.Since(startTime))
	span.SetAttributes(
		attribute.String("plan.intent", plan.Classification.Intent),
		attribute.Int("plan.step_count", len(plan.Steps)),
		attribute.Float64("plan.value_estimate", plan.ValueEstimate),
	)
	span.SetStatus(codes.Ok, "completed")

	return plan, nil
}

func (o *Orchestrator) parseIntent(ctx context.Context, span trace.Span, planID, userAddress, message string, status *ProcessingStatus, planEvent *telemetry.PlanEvent) (ExecutionPlan, error) {
	prefs, err := o.memory.Preferences(ctx, userAddress)
	if err != nil {
		return ExecutionPlan{}, fmt.Errorf("loading user preferences: %w", err)
	}

	reqContext := map[string]interface{}{
		"user_address":     userAddress,
		"risk_tolerance":   string(prefs.RiskTolerance),
		"default_slippage": prefs.DefaultSlippage,
	}
	if recent, err := o.memory.History(ctx, userAddress, 5); err != nil {
		o.logger.Printf("warn: loading intent history failed: %v", err)
	} else if len(recent) > 0 {
		names := make([]string, 0, len(recent))
		for _, rec := range recent {
			names = append(names, rec.Intent)
		}
		reqContext["recent_intents"] = names
	}

	// Phase 1: Classification
	o.updateStatus(status, "classifying", 0.2, "Classifying intent")
	classifyCtx, classifySpan := orchestratorTracer.Start(ctx, "agent.classify")
	classification, err := o.classifier.Classify(classifyCtx, message, reqContext)
	if err != nil {
		classifySpan.RecordError(err)
		classifySpan.SetStatus(codes.Error, err.Error())
		classifySpan.End()
		return ExecutionPlan{}, err
	}
	classifySpan.SetStatus(codes.Ok, "completed")
	classifySpan.End()
	span.AddEvent("classification.complete", trace.WithAttributes(
		attribute.String("classification.intent", classification.Intent),
		attribute.Float64("classification.confidence", classification.Confidence),
	))

	var warnings []string
	if threshold := o.config.Agents.ConfidenceThreshold; threshold > 0 && classification.Confidence < threshold {
		warnings = append(warnings, fmt.Sprintf("classification confidence %.2f is below threshold %.2f", classification.Confidence, threshold))
	}

	// Apply the user's default slippage when the message did not specify one.
	if classification.Parameters == nil {
		classification.Parameters = map[string]interface{}{}
	}
	if floatParam(classification.Parameters, "slippage") <= 0 && prefs.DefaultSlippage > 0 {
		classification.Parameters["slippage"] = prefs.DefaultSlippage
	}

	// Phase 2: Step construction
	o.updateStatus(status, "planning", 0.4, "Building execution steps")
	steps, err := o.planner.CreateExecutionSteps(classification, userAddress)
	if err != nil {
		if errors.Is(err, ErrNotImplemented) {
			warnings = append(warnings, err.Error())
			steps = nil
		} else {
			return ExecutionPlan{}, err
		}
	}

	plan := ExecutionPlan{
		ID:             planID,
		UserAddress:    userAddress,
		Classification: classification,
		Steps:          steps,
		RiskAssessment: string(classification.RiskLevel),
		Warnings:       warnings,
		Status:         PlanCreated,
		CreatedAt:      time.Now(),
	}
	status.TotalSteps = len(steps)

	// Phase 3: Estimate aggregation through agent simulations
	o.updateStatus(status, "estimating", 0.6, "Aggregating estimates")
	estimateCtx, estimateSpan := orchestratorTracer.Start(ctx, "agent.estimate")
	agentsUsed := o.aggregateEstimates(estimateCtx, &plan)
	estimateSpan.SetAttributes(attribute.Int("estimate.agents", len(agentsUsed)))
	estimateSpan.SetStatus(codes.Ok, "completed")
	estimateSpan.End()
	planEvent.AgentsUsed = agentsUsed

	// Phase 4: Explanation. The plan stands on its own, so an explanation
	// failure degrades to a deterministic summary instead of failing the parse.
	o.updateStatus(status, "explaining", 0.8, "Generating explanation")
	explanation, modelUsed, tokens, err := o.generateExplanation(ctx, plan)
	if err != nil {
		o.logger.Printf("warn: explanation for plan %s failed: %v", planID, err)
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("explanation unavailable: %v", err))
		explanation = fallbackExplanation(plan)
	}
	plan.Explanation = explanation
	if modelUsed != "" {
		planEvent.ModelsUsed = append(planEvent.ModelsUsed, modelUsed)
	}
	planEvent.TokensUsed += tokens

	if o.plans != nil {
		if err := o.plans.SavePlan(ctx, plan); err != nil {
			o.logger.Printf("warn: saving plan %s failed: %v", planID, err)
		}
	}

	record := IntentRecord{
		ID:          uuid.New().String(),
		PlanID:      planID,
		Intent:      classification.Intent,
		Description: truncate(message, 200),
		Timestamp:   time.Now(),
	}
	if err := o.memory.RecordIntent(ctx, userAddress, record); err != nil {
		o.logger.Printf("warn: recording intent for %s failed: %v", userAddress, err)
	}

	return plan, nil
}

// aggregateEstimates runs a preview simulation per step through the first
// matching agent and rolls gas, value and risk up onto the plan. A step whose
// capability matches no agent contributes a warning instead of aborting.
func (o *Orchestrator) aggregateEstimates(ctx context.Context, plan *ExecutionPlan) []string {
	maxRisk := RiskLevel(plan.RiskAssessment)
	if maxRisk.Rank() < 0 {
		maxRisk = RiskLow
	}

	var agentsUsed []string
	seen := map[string]bool{}
	for _, step := range plan.Steps {
		capability := inferCapabilityFromStep(step)
		agent, ok := o.resolveAgent(capability)
		if !ok {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("no agent registered for capability %q", capability))
			continue
		}

		stepCtx, cancel := o.stepContext(ctx)
		simStart := time.Now()
		sim := agent.Simulate(stepCtx, step)
		cancel()

		o.telemetry.RecordAgentEvent(ctx, telemetry.AgentEvent{
			ID:        step.ID,
			AgentID:   agent.ID(),
			Operation: "simulate",
			StartTime: simStart,
			EndTime:   time.Now(),
			Duration:  time.Since(simStart),
			Success:   sim.Success,
			Risk:      string(sim.Risk),
			GasUsed:   sim.GasEstimate,
		})

		plan.GasEstimate += sim.GasEstimate
		plan.ValueEstimate += sim.ValueEstimate
		if sim.Risk.Rank() > maxRisk.Rank() {
			maxRisk = sim.Risk
		}
		plan.Warnings = append(plan.Warnings, sim.Warnings...)
		if !sim.Success {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("preview for step %q failed: %s", step.Description, sim.Justification))
		}
		if !seen[agent.ID()] {
			seen[agent.ID()] = true
			agentsUsed = append(agentsUsed, agent.ID())
		}
	}

	plan.RiskAssessment = string(maxRisk)
	return agentsUsed
}

// SimulatePlan previews every step of a plan without side effects. A step
// whose capability matches no agent yields a synthetic failed result rather
// than aborting the whole plan.
func (o *Orchestrator) SimulatePlan(ctx context.Context, plan *ExecutionPlan) ([]SimulationResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "agent.simulate_plan",
		trace.WithAttributes(
			attribute.String("plan.id", plan.ID),
			attribute.Int("plan.step_count", len(plan.Steps)),
		))
	defer span.End()

	select {
	case o.semaphore <- struct{}{}:
		defer func() { <-o.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	planEvent := telemetry.PlanEvent{
		ID:          plan.ID,
		UserAddress: plan.UserAddress,
		Intent:      plan.Classification.Intent,
		Stage:       "simulate",
		StartTime:   startTime,
	}

	results := make([]SimulationResult, 0, len(plan.Steps))
	now := time.Now()
	for _, step := range plan.Steps {
		capability := inferCapabilityFromStep(step)
		agent, ok := o.resolveAgent(capability)
		if !ok {
			o.logger.Printf("plan %s: no agent for capability %q, recording failed simulation", plan.ID, capability)
			results = append(results, FailedSimulation(ErrKindDispatch, fmt.Sprintf("no agent registered for capability %q", capability)))
			continue
		}

		stepCtx, cancel := o.stepContext(ctx)
		simStart := time.Now()
		sim := agent.Simulate(stepCtx, step)
		cancel()

		if step.Expired(now) {
			sim.Warnings = append(sim.Warnings, "intent deadline has passed; execution will be rejected")
		}

		o.telemetry.RecordAgentEvent(ctx, telemetry.AgentEvent{
			ID:        step.ID,
			AgentID:   agent.ID(),
			Operation: "simulate",
			StartTime: simStart,
			EndTime:   time.Now(),
			Duration:  time.Since(simStart),
			Success:   sim.Success,
			Risk:      string(sim.Risk),
			GasUsed:   sim.GasEstimate,
		})

		results = append(results, sim)
	}

	plan.Status = PlanSimulated
	if o.plans != nil {
		if err := o.plans.SaveSimulation(ctx, plan.ID, results); err != nil {
			o.logger.Printf("warn: saving simulation for plan %s failed: %v", plan.ID, err)
		}
		if err := o.plans.UpdatePlanStatus(ctx, plan.ID, PlanSimulated); err != nil {
			o.logger.Printf("warn: updating plan %s status failed: %v", plan.ID, err)
		}
	}

	planEvent.Success = true
	planEvent.EndTime = time.Now()
	planEvent.ProcessingTime = planEvent.EndTime.Sub(startTime)
	o.telemetry.RecordPlanEvent(ctx, planEvent)
	span.SetStatus(codes.Ok, "completed")

	return results, nil
}

// ExecutePlan runs the plan's steps in order. A failing step stops the plan
// unless its priority is low; expired steps are rejected without reaching an
// agent. Results for every attempted step are returned even when the plan
// stops early.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan *ExecutionPlan) ([]ExecutionResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "agent.execute_plan",
		trace.WithAttributes(
			attribute.String("plan.id", plan.ID),
			attribute.Int("plan.step_count", len(plan.Steps)),
		))
	defer span.End()

	select {
	case o.semaphore <- struct{}{}:
		defer func() { <-o.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	prefs, err := o.memory.Preferences(ctx, plan.UserAddress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("loading user preferences: %w", err)
	}

	if err := o.approvalGate(plan, prefs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	startTime := time.Now()
	planEvent := telemetry.PlanEvent{
		ID:          plan.ID,
		UserAddress: plan.UserAddress,
		Intent:      plan.Classification.Intent,
		Stage:       "execute",
		StartTime:   startTime,
	}

	plan.Status = PlanExecuting
	if o.plans != nil {
		if err := o.plans.UpdatePlanStatus(ctx, plan.ID, PlanExecuting); err != nil {
			o.logger.Printf("warn: updating plan %s status failed: %v", plan.ID, err)
		}
	}

	monitor := budget.NewMonitor(o.guardrails)
	results := make([]ExecutionResult, 0, len(plan.Steps))
	stopped := false

	for _, step := range plan.Steps {
		result, agentID, panicked := o.executeStep(ctx, step, prefs, monitor)
		results = append(results, result)
		if agentID != "" && !contains(planEvent.AgentsUsed, agentID) {
			planEvent.AgentsUsed = append(planEvent.AgentsUsed, agentID)
		}

		if panicked {
			o.logger.Printf("plan %s: step %s panicked, stopping: %s", plan.ID, step.ID, result.Error)
			stopped = true
			break
		}
		if !result.Success {
			if step.Priority == PriorityLow {
				o.logger.Printf("plan %s: low-priority step %s failed, continuing: %s", plan.ID, step.ID, result.Error)
				continue
			}
			o.logger.Printf("plan %s: step %s failed, stopping: %s", plan.ID, step.ID, result.Error)
			stopped = true
			break
		}
	}

	if stopped {
		plan.Status = PlanFailed
	} else {
		plan.Status = PlanCompleted
	}

	if o.plans != nil {
		if err := o.plans.SaveExecution(ctx, plan.ID, results); err != nil {
			o.logger.Printf("warn: saving execution for plan %s failed: %v", plan.ID, err)
		}
		if err := o.plans.UpdatePlanStatus(ctx, plan.ID, plan.Status); err != nil {
			o.logger.Printf("warn: updating plan %s status failed: %v", plan.ID, err)
		}
	}

	planEvent.Success = !stopped
	planEvent.EndTime = time.Now()
	planEvent.ProcessingTime = planEvent.EndTime.Sub(startTime)
	o.telemetry.RecordPlanEvent(ctx, planEvent)

	if stopped {
		span.SetStatus(codes.Error, "plan stopped on step failure")
	} else {
		span.SetStatus(codes.Ok, "completed")
	}
	span.SetAttributes(attribute.Int("plan.results", len(results)))
	o.logger.Printf("Executed plan %s: %d/%d steps, status %s", plan.ID, len(results), len(plan.Steps), plan.Status)

	return results, nil
}

// executeStep runs policy checks and dispatches one step. All failures are
// folded into the returned result; the second return is the agent ID when an
// agent actually ran, and the third marks a recovered panic, which always
// stops the plan.
func (o *Orchestrator) executeStep(ctx context.Context, step AgentIntent, prefs UserPreferences, monitor *budget.Monitor) (result ExecutionResult, agentID string, panicked bool) {
	if step.Expired(time.Now()) {
		return FailedExecution(ErrKindExpired, "intent deadline has passed"), "", false
	}

	if prefs.MaxSpendPerIntent > 0 && step.MaxValue > prefs.MaxSpendPerIntent {
		return FailedExecution(ErrKindBudget, fmt.Sprintf("step value $%.2f exceeds per-intent preference $%.2f", step.MaxValue, prefs.MaxSpendPerIntent)), "", false
	}

	if err := monitor.Add(step.MaxValue, int64(step.MaxGas)); err != nil {
		return FailedExecution(ErrKindBudget, err.Error()), "", false
	}

	if err := monitor.CheckDaily(o.spentToday(step.UserAddress)); err != nil {
		return FailedExecution(ErrKindBudget, err.Error()), "", false
	}

	capability := inferCapabilityFromStep(step)
	agent, ok := o.resolveAgent(capability)
	if !ok {
		return FailedExecution(ErrKindDispatch, fmt.Sprintf("no agent registered for capability %q", capability)), "", false
	}
	agentID = agent.ID()

	stepCtx, cancel := o.stepContext(ctx)
	defer cancel()

	execStart := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = FailedExecution(ErrKindInternal, fmt.Sprintf("step panicked: %v", r))
			panicked = true
		}
		o.telemetry.RecordAgentEvent(ctx, telemetry.AgentEvent{
			ID:        step.ID,
			AgentID:   agentID,
			Operation: "execute",
			StartTime: execStart,
			EndTime:   time.Now(),
			Duration:  time.Since(execStart),
			Success:   result.Success,
			GasUsed:   result.GasUsed,
		})
	}()

	result = agent.Execute(stepCtx, step)
	if result.Success {
		o.recordSpend(step.UserAddress, result.ValueTransferred)
	}
	return result, agentID, false
}

// spentToday returns the value already executed for a user during the current
// UTC day. The first call after a day rollover resets all counters.
func (o *Orchestrator) spentToday(address string) float64 {
	o.dailyMu.Lock()
	defer o.dailyMu.Unlock()
	o.rolloverLocked()
	return o.dailySpend[address]
}

// recordSpend adds executed value onto the user's running total for the day.
func (o *Orchestrator) recordSpend(address string, value float64) {
	if value <= 0 {
		return
	}
	o.dailyMu.Lock()
	defer o.dailyMu.Unlock()
	o.rolloverLocked()
	o.dailySpend[address] += value
}

func (o *Orchestrator) rolloverLocked() {
	day := time.Now().UTC().Format("2006-01-02")
	if o.dailySpend == nil || o.dailyDay != day {
		o.dailySpend = make(map[string]float64)
		o.dailyDay = day
	}
}

// approvalGate refuses execution of plans whose estimated value crosses the
// static approval threshold or the user's two-factor threshold.
func (o *Orchestrator) approvalGate(plan *ExecutionPlan, prefs UserPreferences) error {
	if budget.RequiresApproval(o.guardrails, plan.ValueEstimate) {
		threshold := 0.0
		if o.guardrails.ApprovalThreshold != nil {
			threshold = *o.guardrails.ApprovalThreshold
		}
		return budget.ErrApprovalRequired{EstimatedValue: plan.ValueEstimate, Threshold: threshold}
	}
	if prefs.TwoFactorThreshold > 0 && plan.ValueEstimate > prefs.TwoFactorThreshold {
		return budget.ErrApprovalRequired{EstimatedValue: plan.ValueEstimate, Threshold: prefs.TwoFactorThreshold}
	}
	return nil
}

// ExplainResults renders a human-readable narrative for executed results,
// delegating to each step's agent where one resolves.
func (o *Orchestrator) ExplainResults(plan ExecutionPlan, results []ExecutionResult) string {
	parts := make([]string, 0, len(results))
	for i, result := range results {
		if i >= len(plan.Steps) {
			break
		}
		agent, ok := o.resolveAgent(inferCapabilityFromStep(plan.Steps[i]))
		if ok {
			parts = append(parts, agent.Explain(result))
			continue
		}
		if result.Success {
			parts = append(parts, fmt.Sprintf("Step %d completed.", i+1))
		} else {
			parts = append(parts, fmt.Sprintf("Step %d failed: %s", i+1, result.Error))
		}
	}
	return strings.Join(parts, "\n")
}

// GetProcessingStatus reports in-flight pipeline state for a plan.
func (o *Orchestrator) GetProcessingStatus(planID string) (ProcessingStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	status, ok := o.processing[planID]
	if !ok {
		return ProcessingStatus{}, false
	}
	return *status, true
}

// Preferences returns the stored preferences for a user.
func (o *Orchestrator) Preferences(ctx context.Context, address string) (UserPreferences, error) {
	return o.memory.Preferences(ctx, address)
}

// SavePreferences replaces the stored preferences for a user.
func (o *Orchestrator) SavePreferences(ctx context.Context, address string, prefs UserPreferences) error {
	return o.memory.SavePreferences(ctx, address, prefs)
}

// History returns up to limit most-recent intent records for a user.
func (o *Orchestrator) History(ctx context.Context, address string, limit int) ([]IntentRecord, error) {
	return o.memory.History(ctx, address, limit)
}

// Frequency returns per-intent counters for a user.
func (o *Orchestrator) Frequency(ctx context.Context, address string) (map[string]int, error) {
	return o.memory.Frequency(ctx, address)
}

// ClearUserMemory drops all remembered state for a user.
func (o *Orchestrator) ClearUserMemory(ctx context.Context, address string) error {
	return o.memory.ClearUserMemory(ctx, address)
}

func (o *Orchestrator) resolveAgent(capability string) (Agent, bool) {
	agents := o.registry.GetByCapability(capability)
	if len(agents) == 0 {
		return nil, false
	}
	// first match wins when several agents share a capability
	return agents[0], true
}

func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := o.config.Agents.AgentTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) generateExplanation(ctx context.Context, plan ExecutionPlan) (explanation, model string, tokens int64, err error) {
	if len(plan.Steps) == 0 {
		return "No executable steps were produced for this request.", "", 0, nil
	}

	model = o.config.LLM.Routing.Explanation
	if model == "" {
		model = o.config.LLM.Routing.Fallback
	}
	if model == "" {
		return fallbackExplanation(plan), "", 0, nil
	}

	prompt := createExplanationPrompt(plan)
	options := map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  400,
	}

	start := time.Now()
	text, inputTokens, outputTokens, genErr := o.llmProvider.GenerateWithTokens(ctx, prompt, model, options)
	o.telemetry.RecordLLMEvent(ctx, telemetry.LLMEvent{
		Model:        model,
		Operation:    "explanation",
		Duration:     time.Since(start),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         o.llmProvider.CalculateCost(inputTokens, outputTokens, model),
		Success:      genErr == nil,
	})
	if genErr != nil {
		return "", model, 0, fmt.Errorf("explanation generation failed: %w", genErr)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", model, 0, fmt.Errorf("no response from LLM")
	}
	return text, model, inputTokens + outputTokens, nil
}

func createExplanationPrompt(plan ExecutionPlan) string {
	var sb strings.Builder
	sb.WriteString("You are a DeFi execution assistant. Explain the following plan to the user in plain language.\n\n")
	sb.WriteString(fmt.Sprintf("INTENT: %s\n", plan.Classification.Intent))
	sb.WriteString("PLANNED STEPS:\n")
	for i, step := range plan.Steps {
		sb.WriteString(fmt.Sprintf("%d. %s (max gas %d, max value $%.2f)\n", i+1, step.Description, step.MaxGas, step.MaxValue))
	}
	sb.WriteString(fmt.Sprintf("\nESTIMATES: gas %d, value $%.2f, risk %s\n", plan.GasEstimate, plan.ValueEstimate, plan.RiskAssessment))
	if len(plan.Warnings) > 0 {
		sb.WriteString("WARNINGS:\n")
		for _, w := range plan.Warnings {
			sb.WriteString("- " + w + "\n")
		}
	}
	sb.WriteString("\nWrite 2-4 sentences covering what will happen, the cost, and anything the user should watch out for. Respond with plain text only.")
	return sb.String()
}

func fallbackExplanation(plan ExecutionPlan) string {
	descriptions := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		descriptions = append(descriptions, step.Description)
	}
	return fmt.Sprintf("This plan will: %s. Estimated gas %d, estimated value $%.2f, risk %s.",
		strings.Join(descriptions, "; "), plan.GasEstimate, plan.ValueEstimate, plan.RiskAssessment)
}

// inferCapabilityFromStep maps a step onto the capability it should dispatch
// to, from the operation parameter first and keywords in the description as a
// fallback. Steps that match nothing dispatch to "unknown", which no agent
// serves.
func inferCapabilityFromStep(step AgentIntent) string {
	switch OperationOf(step.Parameters) {
	case OpSwap:
		return CapabilitySwap
	case OpStake:
		return CapabilityStake
	case OpUnstake:
		return CapabilityUnstake
	case OpClaimRewards:
		// reward claims are served by staking agents
		return CapabilityStake
	case OpBalances, OpPnL, OpPositions:
		return CapabilityPortfolioAnalysis
	case OpMarketData, OpNews, OpTokenAnalysis, OpProtocolAnalysis:
		return CapabilityMarketResearch
	case OpDecodeTransaction, OpAnalyzeGas, OpRiskAssessment, OpPerformanceReport:
		return CapabilityTransactionAnalysis
	}

	desc := strings.ToLower(step.Description)
	switch {
	// "unstake" contains "stake", so it must match first
	case strings.Contains(desc, "unstake"):
		return CapabilityUnstake
	case strings.Contains(desc, "swap"):
		return CapabilitySwap
	case strings.Contains(desc, "claim") && strings.Contains(desc, "reward"):
		return CapabilityStake
	case strings.Contains(desc, "stake"):
		return CapabilityStake
	case strings.Contains(desc, "portfolio"), strings.Contains(desc, "balance"), strings.Contains(desc, "pnl"), strings.Contains(desc, "position"):
		return CapabilityPortfolioAnalysis
	case strings.Contains(desc, "market"), strings.Contains(desc, "news"), strings.Contains(desc, "research"):
		return CapabilityMarketResearch
	case strings.Contains(desc, "transaction"), strings.Contains(desc, "gas"), strings.Contains(desc, "decode"):
		return CapabilityTransactionAnalysis
	default:
		return CapabilityUnknown
	}
}

func (o *Orchestrator) updateStatus(status *ProcessingStatus, newStatus string, progress float64, currentStep string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	status.Status = newStatus
	status.Progress = progress
	status.CurrentStep = currentStep
	status.LastUpdated = time.Now()
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
