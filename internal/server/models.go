package server

import (
	"github.com/onchainos/steward/internal/agent/core"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// IntentRequest submits a natural-language request on behalf of a wallet.
type IntentRequest struct {
	UserAddress string `json:"user_address"`
	Message     string `json:"message"`
}

// PlanDetailResponse is a stored plan plus whatever simulation and execution
// records exist for it.
type PlanDetailResponse struct {
	Plan       core.ExecutionPlan     `json:"plan"`
	Simulation []core.SimulationResult `json:"simulation,omitempty"`
	Execution  []core.ExecutionResult  `json:"execution,omitempty"`
}

// ExplainResponse carries the rendered narrative for executed results.
type ExplainResponse struct {
	PlanID      string `json:"plan_id"`
	Explanation string `json:"explanation"`
}

// ResearchSearchRequest queries the research note index.
type ResearchSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// ResearchIngestRequest fetches one URL and files its readable text as a note.
type ResearchIngestRequest struct {
	URL         string `json:"url"`
	UserAddress string `json:"user_address,omitempty"`
}

// CreateWatchRequest registers a recurring natural-language request.
type CreateWatchRequest struct {
	UserAddress  string `json:"user_address"`
	Description  string `json:"description"`
	ScheduleCron string `json:"schedule_cron"`
}

// UpdateWatchRequest changes a watch's description, schedule or enabled flag.
type UpdateWatchRequest struct {
	UserAddress  string `json:"user_address"`
	Description  string `json:"description"`
	ScheduleCron string `json:"schedule_cron"`
	Enabled      *bool  `json:"enabled,omitempty"`
}
