package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onchainos/steward/internal/agent/core"
)

// Memory is an in-process Store used when no database is configured and in
// tests. Everything is copied on the way in and out so callers cannot alias
// internal state.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]User // by id
	plans       map[string]core.ExecutionPlan
	simulations map[string][]core.SimulationResult
	executions  map[string][]core.ExecutionResult
	preferences map[string]core.UserPreferences
	history     map[string][]core.IntentRecord // newest first
	frequency   map[string]map[string]int
	watches     map[string]Watch
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:       map[string]User{},
		plans:       map[string]core.ExecutionPlan{},
		simulations: map[string][]core.SimulationResult{},
		executions:  map[string][]core.ExecutionResult{},
		preferences: map[string]core.UserPreferences{},
		history:     map[string][]core.IntentRecord{},
		frequency:   map[string]map[string]int{},
		watches:     map[string]Watch{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	normalized := strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if strings.ToLower(u.Email) == normalized {
			return User{}, ErrEmailTaken
		}
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	normalized := strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if strings.ToLower(u.Email) == normalized {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (m *Memory) GetUserByID(ctx context.Context, id string) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *Memory) SavePlan(ctx context.Context, plan core.ExecutionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan.Steps = append([]core.AgentIntent(nil), plan.Steps...)
	plan.Warnings = append([]string(nil), plan.Warnings...)
	m.plans[plan.ID] = plan
	return nil
}

func (m *Memory) UpdatePlanStatus(ctx context.Context, planID string, status core.PlanStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return ErrNotFound
	}
	plan.Status = status
	m.plans[planID] = plan
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, planID string) (core.ExecutionPlan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[planID]
	if !ok {
		return core.ExecutionPlan{}, false, nil
	}
	plan.Steps = append([]core.AgentIntent(nil), plan.Steps...)
	plan.Warnings = append([]string(nil), plan.Warnings...)
	return plan, true, nil
}

func (m *Memory) ListPlans(ctx context.Context, userAddress string, limit int) ([]core.ExecutionPlan, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var plans []core.ExecutionPlan
	for _, plan := range m.plans {
		if plan.UserAddress == userAddress {
			plans = append(plans, plan)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt.After(plans[j].CreatedAt) })
	if len(plans) > limit {
		plans = plans[:limit]
	}
	return plans, nil
}

func (m *Memory) SaveSimulation(ctx context.Context, planID string, results []core.SimulationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulations[planID] = append([]core.SimulationResult(nil), results...)
	return nil
}

func (m *Memory) GetSimulation(ctx context.Context, planID string) ([]core.SimulationResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, ok := m.simulations[planID]
	if !ok {
		return nil, false, nil
	}
	return append([]core.SimulationResult(nil), results...), true, nil
}

func (m *Memory) SaveExecution(ctx context.Context, planID string, results []core.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[planID] = append([]core.ExecutionResult(nil), results...)
	return nil
}

func (m *Memory) GetExecution(ctx context.Context, planID string) ([]core.ExecutionResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, ok := m.executions[planID]
	if !ok {
		return nil, false, nil
	}
	return append([]core.ExecutionResult(nil), results...), true, nil
}

func (m *Memory) GetPreferences(ctx context.Context, address string) (core.UserPreferences, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefs, ok := m.preferences[address]
	return prefs, ok, nil
}

func (m *Memory) SavePreferences(ctx context.Context, address string, prefs core.UserPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[address] = prefs
	return nil
}

func (m *Memory) AppendIntent(ctx context.Context, address string, rec core.IntentRecord, keep int) error {
	if keep <= 0 {
		keep = core.MemoryHistoryLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	history := append([]core.IntentRecord{rec}, m.history[address]...)
	if len(history) > keep {
		history = history[:keep]
	}
	m.history[address] = history
	if m.frequency[address] == nil {
		m.frequency[address] = map[string]int{}
	}
	m.frequency[address][rec.Intent]++
	return nil
}

func (m *Memory) ListIntents(ctx context.Context, address string, limit int) ([]core.IntentRecord, error) {
	if limit <= 0 || limit > core.MemoryHistoryLimit {
		limit = core.MemoryHistoryLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.history[address]
	if len(history) > limit {
		history = history[:limit]
	}
	return append([]core.IntentRecord(nil), history...), nil
}

func (m *Memory) IntentFrequency(ctx context.Context, address string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	freq := map[string]int{}
	for intent, count := range m.frequency[address] {
		freq[intent] = count
	}
	return freq, nil
}

func (m *Memory) ClearUser(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.preferences, address)
	delete(m.history, address)
	delete(m.frequency, address)
	return nil
}

func (m *Memory) CreateWatch(ctx context.Context, w Watch) (Watch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.ID = uuid.NewString()
	w.CreatedAt = time.Now().UTC()
	m.watches[w.ID] = w
	return w, nil
}

func (m *Memory) ListWatches(ctx context.Context, userAddress string) ([]Watch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var watches []Watch
	for _, w := range m.watches {
		if w.UserAddress == userAddress {
			watches = append(watches, w)
		}
	}
	sort.Slice(watches, func(i, j int) bool { return watches[i].CreatedAt.After(watches[j].CreatedAt) })
	return watches, nil
}

func (m *Memory) ListEnabledWatches(ctx context.Context) ([]Watch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var watches []Watch
	for _, w := range m.watches {
		if w.Enabled {
			watches = append(watches, w)
		}
	}
	sort.Slice(watches, func(i, j int) bool { return watches[i].CreatedAt.Before(watches[j].CreatedAt) })
	return watches, nil
}

func (m *Memory) UpdateWatch(ctx context.Context, w Watch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.watches[w.ID]
	if !ok || existing.UserAddress != w.UserAddress {
		return ErrNotFound
	}
	existing.Description = w.Description
	existing.ScheduleCron = w.ScheduleCron
	existing.Enabled = w.Enabled
	m.watches[w.ID] = existing
	return nil
}

func (m *Memory) DeleteWatch(ctx context.Context, id, userAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.watches[id]
	if !ok || existing.UserAddress != userAddress {
		return ErrNotFound
	}
	delete(m.watches, id)
	return nil
}

func (m *Memory) MarkWatchRun(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	w.LastRunAt = &t
	m.watches[id] = w
	return nil
}
