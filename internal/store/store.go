// Package store persists users, plans, per-user memory and watches. The
// Postgres backend is authoritative; an in-memory backend keeps the server
// usable when no database is configured.
package store

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/core"
)

var (
	// ErrNotFound is returned when an update or delete matches no row.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when signup hits an existing email.
	ErrEmailTaken = errors.New("email already registered")
)

// User is one registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Watch is a stored natural-language request replayed on a cron schedule.
type Watch struct {
	ID           string     `json:"id"`
	UserAddress  string     `json:"user_address"`
	Description  string     `json:"description"`
	ScheduleCron string     `json:"schedule_cron"`
	Enabled      bool       `json:"enabled"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Store is the persistence surface the server and orchestrator share. The
// plan methods satisfy core.PlanRepository; the per-user memory methods are
// raw persistence that internal/memory wraps with defaulting and the history
// cap.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, bool, error)
	GetUserByID(ctx context.Context, id string) (User, bool, error)

	SavePlan(ctx context.Context, plan core.ExecutionPlan) error
	UpdatePlanStatus(ctx context.Context, planID string, status core.PlanStatus) error
	GetPlan(ctx context.Context, planID string) (core.ExecutionPlan, bool, error)
	ListPlans(ctx context.Context, userAddress string, limit int) ([]core.ExecutionPlan, error)
	SaveSimulation(ctx context.Context, planID string, results []core.SimulationResult) error
	GetSimulation(ctx context.Context, planID string) ([]core.SimulationResult, bool, error)
	SaveExecution(ctx context.Context, planID string, results []core.ExecutionResult) error
	GetExecution(ctx context.Context, planID string) ([]core.ExecutionResult, bool, error)

	GetPreferences(ctx context.Context, address string) (core.UserPreferences, bool, error)
	SavePreferences(ctx context.Context, address string, prefs core.UserPreferences) error
	AppendIntent(ctx context.Context, address string, rec core.IntentRecord, keep int) error
	ListIntents(ctx context.Context, address string, limit int) ([]core.IntentRecord, error)
	IntentFrequency(ctx context.Context, address string) (map[string]int, error)
	ClearUser(ctx context.Context, address string) error

	CreateWatch(ctx context.Context, w Watch) (Watch, error)
	ListWatches(ctx context.Context, userAddress string) ([]Watch, error)
	ListEnabledWatches(ctx context.Context) ([]Watch, error)
	UpdateWatch(ctx context.Context, w Watch) error
	DeleteWatch(ctx context.Context, id, userAddress string) error
	MarkWatchRun(ctx context.Context, id string, at time.Time) error

	Close() error
}

// Open connects to Postgres when one is configured, otherwise serves from
// memory. A configured-but-unreachable database also falls back to memory so
// the agent surface stays available; the warning makes the downgrade visible.
func Open(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) Store {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	if strings.TrimSpace(cfg.Postgres.URL) == "" && strings.TrimSpace(cfg.Postgres.Host) == "" {
		logger.Printf("no postgres configured; using in-memory store")
		return NewMemory()
	}
	pg, err := NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		logger.Printf("warn: postgres unavailable (%v); falling back to in-memory store", err)
		return NewMemory()
	}
	logger.Printf("connected to postgres at %s", cfg.Postgres.Host)
	return pg
}
