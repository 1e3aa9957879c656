// Package memory adapts the persistence layer to the per-user memory
// contract the orchestrator consumes: preferences with defaults, a bounded
// intent history and frequency counters.
package memory

import (
	"context"
	"log"

	"github.com/onchainos/steward/internal/agent/core"
)

type storeAPI interface {
	GetPreferences(ctx context.Context, address string) (core.UserPreferences, bool, error)
	SavePreferences(ctx context.Context, address string, prefs core.UserPreferences) error
	AppendIntent(ctx context.Context, address string, rec core.IntentRecord, keep int) error
	ListIntents(ctx context.Context, address string, limit int) ([]core.IntentRecord, error)
	IntentFrequency(ctx context.Context, address string) (map[string]int, error)
	ClearUser(ctx context.Context, address string) error
}

// Manager implements core.MemoryStore on top of the store.
type Manager struct {
	store  storeAPI
	logger *log.Logger
}

// NewManager wraps st. A nil logger gets a prefixed default.
func NewManager(st storeAPI, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[MEMORY] ", log.LstdFlags)
	}
	return &Manager{store: st, logger: logger}
}

// Preferences returns the stored preferences, or the defaults when the user
// has never saved any. The defaults are not persisted on read; the first
// explicit save writes them.
func (m *Manager) Preferences(ctx context.Context, address string) (core.UserPreferences, error) {
	prefs, ok, err := m.store.GetPreferences(ctx, address)
	if err != nil {
		return core.UserPreferences{}, err
	}
	if !ok {
		return core.DefaultPreferences(), nil
	}
	return prefs, nil
}

func (m *Manager) SavePreferences(ctx context.Context, address string, prefs core.UserPreferences) error {
	return m.store.SavePreferences(ctx, address, prefs)
}

// RecordIntent appends to the bounded history and bumps the frequency counter.
func (m *Manager) RecordIntent(ctx context.Context, address string, rec core.IntentRecord) error {
	return m.store.AppendIntent(ctx, address, rec, core.MemoryHistoryLimit)
}

func (m *Manager) History(ctx context.Context, address string, limit int) ([]core.IntentRecord, error) {
	return m.store.ListIntents(ctx, address, limit)
}

func (m *Manager) Frequency(ctx context.Context, address string) (map[string]int, error) {
	return m.store.IntentFrequency(ctx, address)
}

func (m *Manager) ClearUserMemory(ctx context.Context, address string) error {
	m.logger.Printf("clearing memory for %s", address)
	return m.store.ClearUser(ctx, address)
}
