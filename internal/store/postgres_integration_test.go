package store_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/store"
)

func TestPostgresStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgUser := "steward"
	pgPassword := "steward"
	pgDB := "steward"

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase(pgDB),
		tcPostgres.WithUsername(pgUser),
		tcPostgres.WithPassword(pgPassword),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, host, port.Port(), pgDB)
	if err := applySchema(ctx, dsn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	st, err := store.NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.Close()

	// Users.
	u, err := st.CreateUser(ctx, "integration@example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := st.CreateUser(ctx, "integration@example.com", "hash2"); !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	byID, ok, err := st.GetUserByID(ctx, u.ID)
	if err != nil || !ok || byID.Email != "integration@example.com" {
		t.Fatalf("get user by id: ok=%v err=%v %+v", ok, err, byID)
	}

	// Plans round-trip through jsonb.
	plan := core.ExecutionPlan{
		ID:          "plan-int-1",
		UserAddress: "0xabc",
		Classification: core.Classification{
			Intent:         "trade",
			Confidence:     0.93,
			RequiredAgents: []string{"trade-agent"},
		},
		Steps: []core.AgentIntent{{
			ID:          "intent-int-1",
			UserAddress: "0xabc",
			Description: "swap 0.5 ETH to USDC",
			Parameters:  map[string]interface{}{"operation": "swap", "token_in": "ETH"},
		}},
		GasEstimate:    195000,
		ValueEstimate:  1000,
		RiskAssessment: string(core.RiskLow),
		Explanation:    "swap via amm",
		Warnings:       []string{"testnet only"},
		Status:         core.PlanCreated,
		CreatedAt:      time.Now().UTC(),
	}
	if err := st.SavePlan(ctx, plan); err != nil {
		t.Fatalf("save plan: %v", err)
	}
	// Upsert keeps the same row.
	plan.Explanation = "swap via amm, revised"
	if err := st.SavePlan(ctx, plan); err != nil {
		t.Fatalf("resave plan: %v", err)
	}
	got, ok, err := st.GetPlan(ctx, plan.ID)
	if err != nil || !ok {
		t.Fatalf("get plan: ok=%v err=%v", ok, err)
	}
	if got.Explanation != "swap via amm, revised" || got.Classification.Intent != "trade" || len(got.Steps) != 1 {
		t.Fatalf("unexpected plan: %+v", got)
	}
	if err := st.UpdatePlanStatus(ctx, plan.ID, core.PlanCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}
	plans, err := st.ListPlans(ctx, "0xabc", 10)
	if err != nil || len(plans) != 1 || plans[0].Status != core.PlanCompleted {
		t.Fatalf("list plans: err=%v %+v", err, plans)
	}

	// Simulation and execution snapshots.
	sim := []core.SimulationResult{{Success: true, GasEstimate: 195000, Justification: "quote ok"}}
	if err := st.SaveSimulation(ctx, plan.ID, sim); err != nil {
		t.Fatalf("save simulation: %v", err)
	}
	gotSim, ok, err := st.GetSimulation(ctx, plan.ID)
	if err != nil || !ok || len(gotSim) != 1 || !gotSim[0].Success {
		t.Fatalf("get simulation: ok=%v err=%v %+v", ok, err, gotSim)
	}
	exec := []core.ExecutionResult{{Success: true, GasUsed: 138412, Timestamp: time.Now().UTC()}}
	if err := st.SaveExecution(ctx, plan.ID, exec); err != nil {
		t.Fatalf("save execution: %v", err)
	}
	gotExec, ok, err := st.GetExecution(ctx, plan.ID)
	if err != nil || !ok || len(gotExec) != 1 || gotExec[0].GasUsed != 138412 {
		t.Fatalf("get execution: ok=%v err=%v %+v", ok, err, gotExec)
	}

	// Memory: history trims to keep, frequency counts every append.
	for i := 0; i < 7; i++ {
		rec := core.IntentRecord{
			ID:        fmt.Sprintf("intent-%d", i),
			PlanID:    plan.ID,
			Intent:    "trade",
			Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := st.AppendIntent(ctx, "0xabc", rec, 5); err != nil {
			t.Fatalf("append intent %d: %v", i, err)
		}
	}
	recs, err := st.ListIntents(ctx, "0xabc", 0)
	if err != nil {
		t.Fatalf("list intents: %v", err)
	}
	if len(recs) != 5 || recs[0].ID != "intent-6" {
		t.Fatalf("expected 5 newest-first records, got %+v", recs)
	}
	freq, err := st.IntentFrequency(ctx, "0xabc")
	if err != nil || freq["trade"] != 7 {
		t.Fatalf("intent frequency: err=%v %v", err, freq)
	}

	prefs := core.DefaultPreferences()
	prefs.DefaultSlippage = 1.5
	if err := st.SavePreferences(ctx, "0xabc", prefs); err != nil {
		t.Fatalf("save preferences: %v", err)
	}
	gotPrefs, ok, err := st.GetPreferences(ctx, "0xabc")
	if err != nil || !ok || gotPrefs.DefaultSlippage != 1.5 {
		t.Fatalf("get preferences: ok=%v err=%v %+v", ok, err, gotPrefs)
	}

	if err := st.ClearUser(ctx, "0xabc"); err != nil {
		t.Fatalf("clear user: %v", err)
	}
	if _, ok, _ := st.GetPreferences(ctx, "0xabc"); ok {
		t.Fatalf("expected preferences cleared")
	}
	recs, _ = st.ListIntents(ctx, "0xabc", 0)
	if len(recs) != 0 {
		t.Fatalf("expected history cleared, got %d", len(recs))
	}

	// Watches.
	w, err := st.CreateWatch(ctx, store.Watch{
		UserAddress:  "0xabc",
		Description:  "hourly portfolio check",
		ScheduleCron: "0 * * * *",
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}
	if w.ID == "" {
		t.Fatalf("expected generated watch id")
	}
	enabled, err := st.ListEnabledWatches(ctx)
	if err != nil || len(enabled) != 1 {
		t.Fatalf("list enabled watches: err=%v %+v", err, enabled)
	}
	ranAt := time.Now().UTC().Truncate(time.Second)
	if err := st.MarkWatchRun(ctx, w.ID, ranAt); err != nil {
		t.Fatalf("mark watch run: %v", err)
	}
	watches, err := st.ListWatches(ctx, "0xabc")
	if err != nil || len(watches) != 1 || watches[0].LastRunAt == nil {
		t.Fatalf("list watches: err=%v %+v", err, watches)
	}
	w.Enabled = false
	if err := st.UpdateWatch(ctx, w); err != nil {
		t.Fatalf("update watch: %v", err)
	}
	enabled, _ = st.ListEnabledWatches(ctx)
	if len(enabled) != 0 {
		t.Fatalf("expected no enabled watches, got %d", len(enabled))
	}
	if err := st.DeleteWatch(ctx, w.ID, "0xabc"); err != nil {
		t.Fatalf("delete watch: %v", err)
	}
}

func applySchema(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	schemaSQL := `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  email TEXT UNIQUE NOT NULL,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  user_address TEXT NOT NULL,
  classification JSONB NOT NULL DEFAULT '{}'::jsonb,
  steps JSONB NOT NULL DEFAULT '[]'::jsonb,
  gas_estimate BIGINT NOT NULL DEFAULT 0,
  value_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
  risk_assessment TEXT NOT NULL DEFAULT 'low',
  explanation TEXT NOT NULL DEFAULT '',
  warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS plan_simulations (
  plan_id TEXT PRIMARY KEY REFERENCES plans(id) ON DELETE CASCADE,
  results JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS plan_executions (
  plan_id TEXT PRIMARY KEY REFERENCES plans(id) ON DELETE CASCADE,
  results JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_preferences (
  user_address TEXT PRIMARY KEY,
  preferences JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS intent_history (
  id BIGSERIAL PRIMARY KEY,
  user_address TEXT NOT NULL,
  intent_id TEXT NOT NULL,
  plan_id TEXT NOT NULL DEFAULT '',
  intent TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS intent_frequency (
  user_address TEXT NOT NULL,
  intent TEXT NOT NULL,
  count INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (user_address, intent)
);

CREATE TABLE IF NOT EXISTS watches (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  user_address TEXT NOT NULL,
  description TEXT NOT NULL,
  schedule_cron TEXT NOT NULL DEFAULT '@hourly',
  enabled BOOLEAN NOT NULL DEFAULT TRUE,
  last_run_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
