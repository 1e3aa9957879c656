package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/store"
)

func TestPreferencesDefaultOnFirstAccess(t *testing.T) {
	m := NewManager(store.NewMemory(), nil)
	ctx := context.Background()

	prefs, err := m.Preferences(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	want := core.DefaultPreferences()
	if prefs.MaxSpendPerIntent != want.MaxSpendPerIntent || prefs.RiskTolerance != want.RiskTolerance {
		t.Fatalf("expected defaults, got %+v", prefs)
	}

	prefs.DefaultSlippage = 2.0
	if err := m.SavePreferences(ctx, "0xabc", prefs); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	got, err := m.Preferences(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Preferences after save: %v", err)
	}
	if got.DefaultSlippage != 2.0 {
		t.Fatalf("expected saved slippage, got %v", got.DefaultSlippage)
	}
}

func TestRecordIntentCapsHistory(t *testing.T) {
	m := NewManager(store.NewMemory(), nil)
	ctx := context.Background()

	for i := 0; i < core.MemoryHistoryLimit+10; i++ {
		rec := core.IntentRecord{
			ID:        fmt.Sprintf("intent-%d", i),
			Intent:    "portfolio",
			Timestamp: time.Now(),
		}
		if err := m.RecordIntent(ctx, "0xabc", rec); err != nil {
			t.Fatalf("RecordIntent %d: %v", i, err)
		}
	}

	history, err := m.History(ctx, "0xabc", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != core.MemoryHistoryLimit {
		t.Fatalf("expected history capped at %d, got %d", core.MemoryHistoryLimit, len(history))
	}
	if history[0].ID != fmt.Sprintf("intent-%d", core.MemoryHistoryLimit+9) {
		t.Fatalf("expected newest first, got %s", history[0].ID)
	}

	freq, err := m.Frequency(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Frequency: %v", err)
	}
	if freq["portfolio"] != core.MemoryHistoryLimit+10 {
		t.Fatalf("frequency counts beyond the history cap, got %d", freq["portfolio"])
	}
}

func TestClearUserMemory(t *testing.T) {
	m := NewManager(store.NewMemory(), nil)
	ctx := context.Background()

	prefs := core.DefaultPreferences()
	prefs.MaxSpendPerIntent = 123
	if err := m.SavePreferences(ctx, "0xabc", prefs); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	if err := m.RecordIntent(ctx, "0xabc", core.IntentRecord{ID: "intent-1", Intent: "trade", Timestamp: time.Now()}); err != nil {
		t.Fatalf("RecordIntent: %v", err)
	}

	if err := m.ClearUserMemory(ctx, "0xabc"); err != nil {
		t.Fatalf("ClearUserMemory: %v", err)
	}

	got, err := m.Preferences(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if got.MaxSpendPerIntent != core.DefaultPreferences().MaxSpendPerIntent {
		t.Fatalf("expected defaults after clear, got %+v", got)
	}
	history, _ := m.History(ctx, "0xabc", 0)
	if len(history) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(history))
	}
}

// The manager must satisfy the orchestrator's contract.
var _ core.MemoryStore = (*Manager)(nil)
