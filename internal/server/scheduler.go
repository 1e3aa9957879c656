package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/store"
)

// Runner is the slice of the orchestrator the scheduler drives. Watch runs
// parse and simulate only; execution always requires an explicit request.
type Runner interface {
	ParseIntent(ctx context.Context, userAddress, message string) (core.ExecutionPlan, error)
	SimulatePlan(ctx context.Context, plan *core.ExecutionPlan) ([]core.SimulationResult, error)
}

// Locker takes a short-lived advisory lock so only one replica replays a
// watch per tick. A nil Locker disables locking for single-node deployments.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) bool
	Unlock(ctx context.Context, name string)
}

// Scheduler replays enabled watches on their cron schedule.
type Scheduler struct {
	Store    store.Store
	Runner   Runner
	Locker   Locker
	Logger   *log.Logger
	Interval time.Duration
	Stop     chan struct{}
}

// Start launches the tick loop in a goroutine. Stop is signalled by closing
// the Stop channel.
func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	watches, err := s.Store.ListEnabledWatches(ctx)
	if err != nil {
		s.Logger.Printf("warn: listing watches failed: %v", err)
		return
	}
	for _, w := range watches {
		if !isDue(w.ScheduleCron, w.LastRunAt) {
			continue
		}
		// distributed lock to avoid duplicate runs
		lockName := "sched:" + w.ID
		if s.Locker != nil && !s.Locker.TryLock(ctx, lockName, 2*time.Minute) {
			continue
		}
		go func(w store.Watch) {
			defer func() {
				if s.Locker != nil {
					s.Locker.Unlock(ctx, lockName)
				}
			}()
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)
			s.run(ctx, w)
		}(w)
	}
}

// run replays one watch: parse the stored request into a fresh plan and
// simulate it so the snapshot lands in the plan records. Mutating steps are
// never executed from the scheduler.
func (s *Scheduler) run(ctx context.Context, w store.Watch) {
	plan, err := s.Runner.ParseIntent(ctx, w.UserAddress, w.Description)
	if err != nil {
		s.Logger.Printf("warn: watch %s parse failed: %v", w.ID, err)
		return
	}
	if len(plan.Steps) > 0 {
		if _, err := s.Runner.SimulatePlan(ctx, &plan); err != nil {
			s.Logger.Printf("warn: watch %s simulation failed: %v", w.ID, err)
			return
		}
	}
	if err := s.Store.MarkWatchRun(ctx, w.ID, time.Now()); err != nil {
		s.Logger.Printf("warn: marking watch %s run failed: %v", w.ID, err)
	}
	s.Logger.Printf("watch %s replayed as plan %s", w.ID, plan.ID)
}

// isDue determines if a watch with cronSpec should run now based on its last
// run time. Supports "@daily", "@hourly", and standard 5-field cron
// expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			// If never run, due now
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
