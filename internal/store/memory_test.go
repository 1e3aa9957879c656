package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/onchainos/steward/internal/agent/core"
)

func TestMemoryUsers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u, err := m.CreateUser(ctx, "Alice@Example.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" {
		t.Fatalf("expected generated id")
	}

	if _, err := m.CreateUser(ctx, "alice@example.com", "other"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	got, ok, err := m.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil || !ok {
		t.Fatalf("GetUserByEmail: ok=%v err=%v", ok, err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected %s, got %s", u.ID, got.ID)
	}

	if _, ok, _ := m.GetUserByID(ctx, "missing"); ok {
		t.Fatalf("expected miss for unknown id")
	}
}

func TestMemoryPlanLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		plan := core.ExecutionPlan{
			ID:          fmt.Sprintf("plan-%d", i),
			UserAddress: "0xabc",
			Status:      core.PlanCreated,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := m.SavePlan(ctx, plan); err != nil {
			t.Fatalf("SavePlan: %v", err)
		}
	}

	if err := m.UpdatePlanStatus(ctx, "plan-1", core.PlanCompleted); err != nil {
		t.Fatalf("UpdatePlanStatus: %v", err)
	}
	if err := m.UpdatePlanStatus(ctx, "plan-404", core.PlanCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	plan, ok, err := m.GetPlan(ctx, "plan-1")
	if err != nil || !ok {
		t.Fatalf("GetPlan: ok=%v err=%v", ok, err)
	}
	if plan.Status != core.PlanCompleted {
		t.Fatalf("expected completed, got %s", plan.Status)
	}

	plans, err := m.ListPlans(ctx, "0xabc", 2)
	if err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].ID != "plan-2" || plans[1].ID != "plan-1" {
		t.Fatalf("expected newest first, got %s then %s", plans[0].ID, plans[1].ID)
	}
}

func TestMemorySimulationAndExecution(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, _ := m.GetSimulation(ctx, "plan-1"); ok {
		t.Fatalf("expected miss before save")
	}

	sim := []core.SimulationResult{{Success: true, GasEstimate: 195000}}
	if err := m.SaveSimulation(ctx, "plan-1", sim); err != nil {
		t.Fatalf("SaveSimulation: %v", err)
	}
	got, ok, err := m.GetSimulation(ctx, "plan-1")
	if err != nil || !ok || len(got) != 1 || got[0].GasEstimate != 195000 {
		t.Fatalf("unexpected simulation: ok=%v err=%v %+v", ok, err, got)
	}

	exec := []core.ExecutionResult{{Success: true, GasUsed: 138412}}
	if err := m.SaveExecution(ctx, "plan-1", exec); err != nil {
		t.Fatalf("SaveExecution: %v", err)
	}
	gotExec, ok, err := m.GetExecution(ctx, "plan-1")
	if err != nil || !ok || len(gotExec) != 1 || gotExec[0].GasUsed != 138412 {
		t.Fatalf("unexpected execution: ok=%v err=%v %+v", ok, err, gotExec)
	}
}

func TestMemoryIntentHistoryTrims(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		rec := core.IntentRecord{
			ID:        fmt.Sprintf("intent-%d", i),
			Intent:    "trade",
			Timestamp: time.Now(),
		}
		if err := m.AppendIntent(ctx, "0xabc", rec, 5); err != nil {
			t.Fatalf("AppendIntent: %v", err)
		}
	}

	recs, err := m.ListIntents(ctx, "0xabc", 0)
	if err != nil {
		t.Fatalf("ListIntents: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("expected history trimmed to 5, got %d", len(recs))
	}
	if recs[0].ID != "intent-6" {
		t.Fatalf("expected newest first, got %s", recs[0].ID)
	}

	freq, err := m.IntentFrequency(ctx, "0xabc")
	if err != nil {
		t.Fatalf("IntentFrequency: %v", err)
	}
	if freq["trade"] != 7 {
		t.Fatalf("frequency counts all appends, got %d", freq["trade"])
	}

	if err := m.ClearUser(ctx, "0xabc"); err != nil {
		t.Fatalf("ClearUser: %v", err)
	}
	recs, _ = m.ListIntents(ctx, "0xabc", 0)
	if len(recs) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(recs))
	}
	freq, _ = m.IntentFrequency(ctx, "0xabc")
	if len(freq) != 0 {
		t.Fatalf("expected empty frequency after clear, got %v", freq)
	}
}

func TestMemoryPreferences(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, _ := m.GetPreferences(ctx, "0xabc"); ok {
		t.Fatalf("expected miss before save")
	}

	prefs := core.DefaultPreferences()
	prefs.DefaultSlippage = 1.5
	if err := m.SavePreferences(ctx, "0xabc", prefs); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	got, ok, err := m.GetPreferences(ctx, "0xabc")
	if err != nil || !ok {
		t.Fatalf("GetPreferences: ok=%v err=%v", ok, err)
	}
	if got.DefaultSlippage != 1.5 {
		t.Fatalf("expected slippage 1.5, got %v", got.DefaultSlippage)
	}
}

func TestMemoryWatches(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	w, err := m.CreateWatch(ctx, Watch{
		UserAddress:  "0xabc",
		Description:  "check eth price",
		ScheduleCron: "0 * * * *",
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("CreateWatch: %v", err)
	}
	if w.ID == "" {
		t.Fatalf("expected generated id")
	}

	w.Description = "check eth and btc price"
	w.Enabled = false
	if err := m.UpdateWatch(ctx, w); err != nil {
		t.Fatalf("UpdateWatch: %v", err)
	}

	watches, err := m.ListWatches(ctx, "0xabc")
	if err != nil {
		t.Fatalf("ListWatches: %v", err)
	}
	if len(watches) != 1 || watches[0].Description != "check eth and btc price" || watches[0].Enabled {
		t.Fatalf("unexpected watches: %+v", watches)
	}

	enabled, err := m.ListEnabledWatches(ctx)
	if err != nil {
		t.Fatalf("ListEnabledWatches: %v", err)
	}
	if len(enabled) != 0 {
		t.Fatalf("disabled watch should not be listed, got %d", len(enabled))
	}

	ranAt := time.Now()
	if err := m.MarkWatchRun(ctx, w.ID, ranAt); err != nil {
		t.Fatalf("MarkWatchRun: %v", err)
	}
	watches, _ = m.ListWatches(ctx, "0xabc")
	if watches[0].LastRunAt == nil || !watches[0].LastRunAt.Equal(ranAt) {
		t.Fatalf("expected last run recorded, got %+v", watches[0].LastRunAt)
	}

	// Ownership is enforced on update and delete.
	foreign := watches[0]
	foreign.UserAddress = "0xother"
	if err := m.UpdateWatch(ctx, foreign); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign update, got %v", err)
	}
	if err := m.DeleteWatch(ctx, w.ID, "0xother"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := m.DeleteWatch(ctx, w.ID, "0xabc"); err != nil {
		t.Fatalf("DeleteWatch: %v", err)
	}
	watches, _ = m.ListWatches(ctx, "0xabc")
	if len(watches) != 0 {
		t.Fatalf("expected no watches after delete, got %d", len(watches))
	}
}
