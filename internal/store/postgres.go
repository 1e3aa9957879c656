package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/onchainos/steward/internal/agent/core"
)

// Postgres implements Store on a SQL database. DB is exported so tests can
// inject a mock connection.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens and pings the database at dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error { return p.DB.Close() }

func (p *Postgres) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	var u User
	err := p.DB.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at
	`, email, passwordHash).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	var u User
	err := p.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (User, bool, error) {
	var u User
	err := p.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (p *Postgres) SavePlan(ctx context.Context, plan core.ExecutionPlan) error {
	classification, err := json.Marshal(plan.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}
	steps, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	warnings, err := json.Marshal(plan.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO plans (id, user_address, classification, steps, gas_estimate, value_estimate, risk_assessment, explanation, warnings, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			classification = EXCLUDED.classification,
			steps = EXCLUDED.steps,
			gas_estimate = EXCLUDED.gas_estimate,
			value_estimate = EXCLUDED.value_estimate,
			risk_assessment = EXCLUDED.risk_assessment,
			explanation = EXCLUDED.explanation,
			warnings = EXCLUDED.warnings,
			status = EXCLUDED.status
	`, plan.ID, plan.UserAddress, classification, steps, plan.GasEstimate, plan.ValueEstimate,
		string(plan.RiskAssessment), plan.Explanation, warnings, string(plan.Status), plan.CreatedAt)
	return err
}

func (p *Postgres) UpdatePlanStatus(ctx context.Context, planID string, status core.PlanStatus) error {
	res, err := p.DB.ExecContext(ctx, `
		UPDATE plans SET status = $2 WHERE id = $1
	`, planID, string(status))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetPlan(ctx context.Context, planID string) (core.ExecutionPlan, bool, error) {
	var (
		plan           core.ExecutionPlan
		classification []byte
		steps          []byte
		warnings       []byte
		risk           string
		status         string
	)
	err := p.DB.QueryRowContext(ctx, `
		SELECT id, user_address, classification, steps, gas_estimate, value_estimate, risk_assessment, explanation, warnings, status, created_at
		FROM plans WHERE id = $1
	`, planID).Scan(&plan.ID, &plan.UserAddress, &classification, &steps, &plan.GasEstimate,
		&plan.ValueEstimate, &risk, &plan.Explanation, &warnings, &status, &plan.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExecutionPlan{}, false, nil
	}
	if err != nil {
		return core.ExecutionPlan{}, false, err
	}
	if err := json.Unmarshal(classification, &plan.Classification); err != nil {
		return core.ExecutionPlan{}, false, fmt.Errorf("unmarshal classification: %w", err)
	}
	if err := json.Unmarshal(steps, &plan.Steps); err != nil {
		return core.ExecutionPlan{}, false, fmt.Errorf("unmarshal steps: %w", err)
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &plan.Warnings); err != nil {
			return core.ExecutionPlan{}, false, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	plan.RiskAssessment = risk
	plan.Status = core.PlanStatus(status)
	return plan, true, nil
}

func (p *Postgres) ListPlans(ctx context.Context, userAddress string, limit int) ([]core.ExecutionPlan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, user_address, classification, steps, gas_estimate, value_estimate, risk_assessment, explanation, warnings, status, created_at
		FROM plans WHERE user_address = $1
		ORDER BY created_at DESC LIMIT $2
	`, userAddress, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []core.ExecutionPlan
	for rows.Next() {
		var (
			plan           core.ExecutionPlan
			classification []byte
			steps          []byte
			warnings       []byte
			risk           string
			status         string
		)
		if err := rows.Scan(&plan.ID, &plan.UserAddress, &classification, &steps, &plan.GasEstimate,
			&plan.ValueEstimate, &risk, &plan.Explanation, &warnings, &status, &plan.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(classification, &plan.Classification); err != nil {
			return nil, fmt.Errorf("unmarshal classification: %w", err)
		}
		if err := json.Unmarshal(steps, &plan.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
		if len(warnings) > 0 {
			if err := json.Unmarshal(warnings, &plan.Warnings); err != nil {
				return nil, fmt.Errorf("unmarshal warnings: %w", err)
			}
		}
		plan.RiskAssessment = risk
		plan.Status = core.PlanStatus(status)
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (p *Postgres) SaveSimulation(ctx context.Context, planID string, results []core.SimulationResult) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal simulation results: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO plan_simulations (plan_id, results)
		VALUES ($1, $2)
		ON CONFLICT (plan_id) DO UPDATE SET results = EXCLUDED.results, created_at = now()
	`, planID, payload)
	return err
}

func (p *Postgres) GetSimulation(ctx context.Context, planID string) ([]core.SimulationResult, bool, error) {
	var payload []byte
	err := p.DB.QueryRowContext(ctx, `
		SELECT results FROM plan_simulations WHERE plan_id = $1
	`, planID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var results []core.SimulationResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, false, fmt.Errorf("unmarshal simulation results: %w", err)
	}
	return results, true, nil
}

func (p *Postgres) SaveExecution(ctx context.Context, planID string, results []core.ExecutionResult) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal execution results: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO plan_executions (plan_id, results)
		VALUES ($1, $2)
		ON CONFLICT (plan_id) DO UPDATE SET results = EXCLUDED.results, created_at = now()
	`, planID, payload)
	return err
}

func (p *Postgres) GetExecution(ctx context.Context, planID string) ([]core.ExecutionResult, bool, error) {
	var payload []byte
	err := p.DB.QueryRowContext(ctx, `
		SELECT results FROM plan_executions WHERE plan_id = $1
	`, planID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var results []core.ExecutionResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, false, fmt.Errorf("unmarshal execution results: %w", err)
	}
	return results, true, nil
}

func (p *Postgres) GetPreferences(ctx context.Context, address string) (core.UserPreferences, bool, error) {
	var payload []byte
	err := p.DB.QueryRowContext(ctx, `
		SELECT preferences FROM user_preferences WHERE user_address = $1
	`, address).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserPreferences{}, false, nil
	}
	if err != nil {
		return core.UserPreferences{}, false, err
	}
	var prefs core.UserPreferences
	if err := json.Unmarshal(payload, &prefs); err != nil {
		return core.UserPreferences{}, false, fmt.Errorf("unmarshal preferences: %w", err)
	}
	return prefs, true, nil
}

func (p *Postgres) SavePreferences(ctx context.Context, address string, prefs core.UserPreferences) error {
	payload, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO user_preferences (user_address, preferences, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_address) DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = now()
	`, address, payload)
	return err
}

// AppendIntent records one intent, trims the history to keep rows and bumps
// the frequency counter, all in one transaction.
func (p *Postgres) AppendIntent(ctx context.Context, address string, rec core.IntentRecord, keep int) error {
	if keep <= 0 {
		keep = core.MemoryHistoryLimit
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO intent_history (user_address, intent_id, plan_id, intent, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, address, rec.ID, rec.PlanID, rec.Intent, rec.Description, rec.Timestamp); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM intent_history
		WHERE user_address = $1 AND id NOT IN (
			SELECT id FROM intent_history WHERE user_address = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		)
	`, address, keep); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO intent_frequency (user_address, intent, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_address, intent) DO UPDATE SET count = intent_frequency.count + 1
	`, address, rec.Intent); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) ListIntents(ctx context.Context, address string, limit int) ([]core.IntentRecord, error) {
	if limit <= 0 || limit > core.MemoryHistoryLimit {
		limit = core.MemoryHistoryLimit
	}
	rows, err := p.DB.QueryContext(ctx, `
		SELECT intent_id, plan_id, intent, description, created_at
		FROM intent_history WHERE user_address = $1
		ORDER BY created_at DESC, id DESC LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []core.IntentRecord
	for rows.Next() {
		var rec core.IntentRecord
		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.Intent, &rec.Description, &rec.Timestamp); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (p *Postgres) IntentFrequency(ctx context.Context, address string) (map[string]int, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT intent, count FROM intent_frequency WHERE user_address = $1
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	freq := map[string]int{}
	for rows.Next() {
		var intent string
		var count int
		if err := rows.Scan(&intent, &count); err != nil {
			return nil, err
		}
		freq[intent] = count
	}
	return freq, rows.Err()
}

// ClearUser wipes preferences, history and frequency counters for one address.
func (p *Postgres) ClearUser(ctx context.Context, address string) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM user_preferences WHERE user_address = $1`,
		`DELETE FROM intent_history WHERE user_address = $1`,
		`DELETE FROM intent_frequency WHERE user_address = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, address); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) CreateWatch(ctx context.Context, w Watch) (Watch, error) {
	err := p.DB.QueryRowContext(ctx, `
		INSERT INTO watches (user_address, description, schedule_cron, enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, w.UserAddress, w.Description, w.ScheduleCron, w.Enabled).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return Watch{}, err
	}
	return w, nil
}

func (p *Postgres) ListWatches(ctx context.Context, userAddress string) ([]Watch, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, user_address, description, schedule_cron, enabled, last_run_at, created_at
		FROM watches WHERE user_address = $1 ORDER BY created_at DESC
	`, userAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWatches(rows)
}

func (p *Postgres) ListEnabledWatches(ctx context.Context) ([]Watch, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, user_address, description, schedule_cron, enabled, last_run_at, created_at
		FROM watches WHERE enabled = true ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWatches(rows)
}

func scanWatches(rows *sql.Rows) ([]Watch, error) {
	var watches []Watch
	for rows.Next() {
		var w Watch
		var lastRun sql.NullTime
		if err := rows.Scan(&w.ID, &w.UserAddress, &w.Description, &w.ScheduleCron, &w.Enabled, &lastRun, &w.CreatedAt); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			t := lastRun.Time
			w.LastRunAt = &t
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

func (p *Postgres) UpdateWatch(ctx context.Context, w Watch) error {
	res, err := p.DB.ExecContext(ctx, `
		UPDATE watches SET description = $3, schedule_cron = $4, enabled = $5
		WHERE id = $1 AND user_address = $2
	`, w.ID, w.UserAddress, w.Description, w.ScheduleCron, w.Enabled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteWatch(ctx context.Context, id, userAddress string) error {
	res, err := p.DB.ExecContext(ctx, `
		DELETE FROM watches WHERE id = $1 AND user_address = $2
	`, id, userAddress)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkWatchRun(ctx context.Context, id string, at time.Time) error {
	_, err := p.DB.ExecContext(ctx, `
		UPDATE watches SET last_run_at = $2 WHERE id = $1
	`, id, at)
	return err
}
