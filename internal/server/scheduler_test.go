package server

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/store"
)

type stubRunner struct {
	parsed    []string
	simulated int
	parseErr  error
	steps     int
}

func (r *stubRunner) ParseIntent(ctx context.Context, userAddress, message string) (core.ExecutionPlan, error) {
	r.parsed = append(r.parsed, message)
	if r.parseErr != nil {
		return core.ExecutionPlan{}, r.parseErr
	}
	plan := core.ExecutionPlan{ID: "plan-w", UserAddress: userAddress, CreatedAt: time.Now()}
	for i := 0; i < r.steps; i++ {
		plan.Steps = append(plan.Steps, core.AgentIntent{ID: "step"})
	}
	return plan, nil
}

func (r *stubRunner) SimulatePlan(ctx context.Context, plan *core.ExecutionPlan) ([]core.SimulationResult, error) {
	r.simulated++
	return []core.SimulationResult{{Success: true}}, nil
}

type denyLocker struct{ asked []string }

func (l *denyLocker) TryLock(ctx context.Context, name string, ttl time.Duration) bool {
	l.asked = append(l.asked, name)
	return false
}

func (l *denyLocker) Unlock(ctx context.Context, name string) {}

func TestIsDue(t *testing.T) {
	hourAgo := time.Now().Add(-61 * time.Minute)
	halfHourAgo := time.Now().Add(-30 * time.Minute)
	dayAgo := time.Now().Add(-25 * time.Hour)

	cases := []struct {
		name string
		spec string
		last *time.Time
		want bool
	}{
		{"hourly never run", "@hourly", nil, true},
		{"hourly recent", "@hourly", &halfHourAgo, false},
		{"hourly stale", "@hourly", &hourAgo, true},
		{"daily recent", "@daily", &hourAgo, false},
		{"daily stale", "@daily", &dayAgo, true},
		{"cron stale", "0 * * * *", &hourAgo, true},
		{"cron never run", "0 * * * *", nil, true},
		{"invalid falls back to daily", "bananas", &hourAgo, false},
		{"invalid never run", "bananas", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isDue(tc.spec, tc.last); got != tc.want {
				t.Fatalf("isDue(%q) = %v, want %v", tc.spec, got, tc.want)
			}
		})
	}
}

func TestSchedulerRunMarksWatch(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	watch, err := st.CreateWatch(ctx, store.Watch{
		UserAddress: "0xabc", Description: "check my portfolio", ScheduleCron: "@hourly", Enabled: true,
	})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}

	runner := &stubRunner{steps: 1}
	sched := &Scheduler{Store: st, Runner: runner, Logger: log.New(io.Discard, "", 0)}
	sched.run(ctx, watch)

	if len(runner.parsed) != 1 || runner.parsed[0] != "check my portfolio" {
		t.Fatalf("expected the watch description to be replayed, got %+v", runner.parsed)
	}
	if runner.simulated != 1 {
		t.Fatalf("expected one simulation, got %d", runner.simulated)
	}
	stored, _ := st.ListWatches(ctx, "0xabc")
	if len(stored) != 1 || stored[0].LastRunAt == nil {
		t.Fatalf("expected last_run_at to be set, got %+v", stored)
	}
}

func TestSchedulerRunSkipsMarkOnFailure(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	watch, err := st.CreateWatch(ctx, store.Watch{
		UserAddress: "0xabc", Description: "check my portfolio", ScheduleCron: "@hourly", Enabled: true,
	})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}

	runner := &stubRunner{parseErr: errors.New("llm down")}
	sched := &Scheduler{Store: st, Runner: runner, Logger: log.New(io.Discard, "", 0)}
	sched.run(ctx, watch)

	stored, _ := st.ListWatches(ctx, "0xabc")
	if len(stored) != 1 || stored[0].LastRunAt != nil {
		t.Fatalf("expected last_run_at to stay unset, got %+v", stored)
	}
}

func TestSchedulerTickRespectsLock(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	if _, err := st.CreateWatch(ctx, store.Watch{
		UserAddress: "0xabc", Description: "check my portfolio", ScheduleCron: "@hourly", Enabled: true,
	}); err != nil {
		t.Fatalf("create watch: %v", err)
	}

	runner := &stubRunner{}
	locker := &denyLocker{}
	sched := &Scheduler{Store: st, Runner: runner, Locker: locker, Logger: log.New(io.Discard, "", 0)}
	sched.tick()

	if len(locker.asked) != 1 {
		t.Fatalf("expected one lock attempt, got %d", len(locker.asked))
	}
	if len(runner.parsed) != 0 {
		t.Fatalf("expected no replay when the lock is held elsewhere, got %+v", runner.parsed)
	}
}

func TestSchedulerTickSkipsDisabledAndFresh(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	fresh, err := st.CreateWatch(ctx, store.Watch{
		UserAddress: "0xabc", Description: "fresh", ScheduleCron: "@hourly", Enabled: true,
	})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}
	if err := st.MarkWatchRun(ctx, fresh.ID, time.Now()); err != nil {
		t.Fatalf("mark run: %v", err)
	}
	if _, err := st.CreateWatch(ctx, store.Watch{
		UserAddress: "0xabc", Description: "disabled", ScheduleCron: "@hourly", Enabled: false,
	}); err != nil {
		t.Fatalf("create watch: %v", err)
	}

	runner := &stubRunner{}
	sched := &Scheduler{Store: st, Runner: runner, Logger: log.New(io.Discard, "", 0)}
	sched.tick()

	if len(runner.parsed) != 0 {
		t.Fatalf("expected nothing to replay, got %+v", runner.parsed)
	}
}
