package core

import (
	"context"
	"time"
)

// RiskLevel is the tier assigned to an operation by the risk scorer.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels so callers can compare tiers.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// Priority marks how important a plan step is; failures of non-low steps stop the plan.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ErrorKind classifies failures on result objects so callers do not have to
// pattern-match message strings.
type ErrorKind string

const (
	ErrKindValidation     ErrorKind = "validation"
	ErrKindUpstream       ErrorKind = "upstream"
	ErrKindDispatch       ErrorKind = "dispatch"
	ErrKindExpired        ErrorKind = "expired"
	ErrKindBudget         ErrorKind = "budget"
	ErrKindNotImplemented ErrorKind = "not_implemented"
	ErrKindInternal       ErrorKind = "internal"
)

// Intent vocabulary the classifier is allowed to emit.
const (
	IntentSwapTokens          = "swap_tokens"
	IntentStakeTokens         = "stake_tokens"
	IntentUnstakeTokens       = "unstake_tokens"
	IntentClaimRewards        = "claim_rewards"
	IntentPortfolioAnalysis   = "portfolio_analysis"
	IntentMarketResearch      = "market_research"
	IntentTransactionAnalysis = "transaction_analysis"
	IntentComplexOperation    = "complex_operation"
)

// Capability strings agents declare and the router dispatches on.
const (
	CapabilitySwap                = "swap"
	CapabilityStake               = "stake"
	CapabilityUnstake             = "unstake"
	CapabilityPortfolioAnalysis   = "portfolio_analysis"
	CapabilityMarketResearch      = "market_research"
	CapabilityTransactionAnalysis = "transaction_analysis"
	CapabilityUnknown             = "unknown"
)

// AgentIntent represents one user-requested operation directed at one agent.
// It is constructed by the plan builder and consumed read-only by exactly one
// agent's Simulate/Execute; it is never mutated after construction.
type AgentIntent struct {
	ID          string                 `json:"id"`
	UserAddress string                 `json:"user_address"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	MaxGas      uint64                 `json:"max_gas"`
	MaxValue    float64                `json:"max_value"`
	Deadline    int64                  `json:"deadline"` // unix seconds; expired intents are rejected on execute
	Slippage    float64                `json:"slippage,omitempty"`
	Priority    Priority               `json:"priority,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Expired reports whether the intent deadline has passed.
func (i AgentIntent) Expired(now time.Time) bool {
	return i.Deadline > 0 && now.Unix() > i.Deadline
}

// CallData is the atomic unit handed to the execution boundary: a target
// address, an encoded payload and a value. The orchestration core never
// interprets the payload.
type CallData struct {
	Target      string `json:"target"`
	Data        string `json:"data"`
	Value       string `json:"value"` // wei, decimal string
	Description string `json:"description"`
	GasLimit    uint64 `json:"gas_limit,omitempty"`
	Required    bool   `json:"required"`
}

// CallResult mirrors the boundary's per-call response.
type CallResult struct {
	Target     string `json:"target"`
	Success    bool   `json:"success"`
	GasUsed    uint64 `json:"gas_used"`
	ReturnData string `json:"return_data,omitempty"`
	Error      string `json:"error,omitempty"`
	Required   bool   `json:"required"`
}

// SimulationResult previews what execution would do, without side effects.
// Invariant: if Success is false, Calls is empty and Risk is at least high so
// callers never treat a failed simulation as low-risk.
type SimulationResult struct {
	Success        bool       `json:"success"`
	GasEstimate    uint64     `json:"gas_estimate"`
	ValueEstimate  float64    `json:"value_estimate"`
	Risk           RiskLevel  `json:"risk"`
	Calls          []CallData `json:"calls"`
	Justification  string     `json:"justification"`
	Warnings       []string   `json:"warnings,omitempty"`
	Confidence     float64    `json:"confidence"`
	Degraded       bool       `json:"degraded,omitempty"`
	DegradedReason string     `json:"degraded_reason,omitempty"`
	ErrorKind      ErrorKind  `json:"error_kind,omitempty"`
}

// FailedSimulation builds a simulation result honouring the failure invariant.
func FailedSimulation(kind ErrorKind, justification string) SimulationResult {
	return SimulationResult{
		Success:       false,
		Risk:          RiskHigh,
		Calls:         []CallData{},
		Justification: justification,
		Confidence:    0,
		ErrorKind:     kind,
	}
}

// ExecutionResult is the outcome of actually executing an intent.
// Invariant: Success implies every required CallResult in Calls succeeded.
type ExecutionResult struct {
	Success          bool         `json:"success"`
	TransactionHash  string       `json:"transaction_hash,omitempty"`
	GasUsed          uint64       `json:"gas_used,omitempty"`
	ValueTransferred float64      `json:"value_transferred,omitempty"`
	ExplorerURL      string       `json:"explorer_url,omitempty"`
	Calls            []CallResult `json:"calls"`
	Error            string       `json:"error,omitempty"`
	ErrorKind        ErrorKind    `json:"error_kind,omitempty"`
	Degraded         bool         `json:"degraded,omitempty"`
	DegradedReason   string       `json:"degraded_reason,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
}

// FailedExecution builds an execution result for a step that never completed.
func FailedExecution(kind ErrorKind, msg string) ExecutionResult {
	return ExecutionResult{
		Success:   false,
		Calls:     []CallResult{},
		Error:     msg,
		ErrorKind: kind,
		Timestamp: time.Now(),
	}
}

// Classification is the structured output of the intent classifier.
type Classification struct {
	Intent         string                 `json:"intent"`
	Confidence     float64                `json:"confidence"`
	RequiredAgents []string               `json:"required_agents"`
	Parameters     map[string]interface{} `json:"parameters"`
	Priority       Priority               `json:"priority"`
	RiskLevel      RiskLevel              `json:"risk_level"`
}

// PlanStatus tracks the lifecycle of an execution plan.
type PlanStatus string

const (
	PlanCreated   PlanStatus = "created"
	PlanSimulated PlanStatus = "simulated"
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// ExecutionPlan aggregates one classification into one or more intents plus
// rollup estimates. It is created once per user request and only its Status
// changes afterwards.
type ExecutionPlan struct {
	ID             string         `json:"id"`
	UserAddress    string         `json:"user_address"`
	Classification Classification `json:"classification"`
	Steps          []AgentIntent  `json:"steps"`
	GasEstimate    uint64         `json:"gas_estimate"`
	ValueEstimate  float64        `json:"value_estimate"`
	RiskAssessment string         `json:"risk_assessment"`
	Explanation    string         `json:"explanation"`
	Warnings       []string       `json:"warnings,omitempty"`
	Status         PlanStatus     `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// UserPreferences is the per-user execution policy kept in memory state.
type UserPreferences struct {
	MaxSpendPerIntent  float64   `json:"max_spend_per_intent"`
	DefaultSlippage    float64   `json:"default_slippage"`
	AllowedProtocols   []string  `json:"allowed_protocols,omitempty"`
	AllowedContracts   []string  `json:"allowed_contracts,omitempty"`
	RiskTolerance      RiskLevel `json:"risk_tolerance"`
	TwoFactorThreshold float64   `json:"two_factor_threshold"`
}

// DefaultPreferences returns the preferences applied before a user customises anything.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		MaxSpendPerIntent:  10000,
		DefaultSlippage:    0.5,
		RiskTolerance:      RiskMedium,
		TwoFactorThreshold: 5000,
	}
}

// IntentRecord is one remembered intent in a user's bounded history.
type IntentRecord struct {
	ID          string    `json:"id"`
	PlanID      string    `json:"plan_id,omitempty"`
	Intent      string    `json:"intent"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// MemoryHistoryLimit caps how many intent records are retained per user.
const MemoryHistoryLimit = 50

// Agent is the polymorphic contract implemented by every capability agent.
// Validation problems never escape Simulate/Execute as raw errors; they are
// folded into failed results.
type Agent interface {
	// ID returns the stable agent identifier used by the registry.
	ID() string

	// Name returns a human-readable agent name.
	Name() string

	// Capabilities returns the capability strings this agent serves.
	Capabilities() []string

	// Simulate previews the intent without side effects.
	Simulate(ctx context.Context, intent AgentIntent) SimulationResult

	// Execute performs the real operation through the execution boundary.
	Execute(ctx context.Context, intent AgentIntent) ExecutionResult

	// Explain produces a human-readable narrative for an execution result.
	Explain(result ExecutionResult) string
}

// Classifier turns free text into a structured classification.
type Classifier interface {
	Classify(ctx context.Context, message string, context map[string]interface{}) (Classification, error)
}

// ExecutionBoundary is the downstream proxy that receives batches of calls.
// Implementations live outside the orchestration core.
type ExecutionBoundary interface {
	// SubmitCalls relays the calls for a user and reports per-call outcomes.
	SubmitCalls(ctx context.Context, userAddress string, calls []CallData) ([]CallResult, error)
}

// MemoryStore is the injected per-user preference and history state.
// Implementations must be safe for concurrent use.
type MemoryStore interface {
	// Preferences returns the stored preferences, or defaults on first access.
	Preferences(ctx context.Context, address string) (UserPreferences, error)

	// SavePreferences replaces the stored preferences for a user.
	SavePreferences(ctx context.Context, address string, prefs UserPreferences) error

	// RecordIntent appends to the user's bounded intent history and bumps the
	// frequency counter for the intent name.
	RecordIntent(ctx context.Context, address string, rec IntentRecord) error

	// History returns up to limit most-recent intent records, newest first.
	History(ctx context.Context, address string, limit int) ([]IntentRecord, error)

	// Frequency returns the per-intent counter for a user.
	Frequency(ctx context.Context, address string) (map[string]int, error)

	// ClearUserMemory drops all remembered state for a user.
	ClearUserMemory(ctx context.Context, address string) error
}

// LLMProvider interface defines the contract for LLM providers
type LLMProvider interface {
	// Generate generates text using the LLM
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string   `json:"name"`
	Provider        string   `json:"provider"`
	MaxTokens       int      `json:"max_tokens"`
	CostPer1KInput  float64  `json:"cost_per_1k_input"`
	CostPer1KOutput float64  `json:"cost_per_1k_output"`
	Capabilities    []string `json:"capabilities"`
	Description     string   `json:"description"`
}
