package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onchainos/steward/internal/agent/core"
)

const (
	stakeGas   = 120000
	unstakeGas = 160000
	claimGas   = 80000
)

// Validator is one row of the in-memory validator table the stake agent
// selects from. Amounts are token units.
type Validator struct {
	ID          string
	Name        string
	APR         float64 // percent
	Commission  float64 // percent
	Uptime      float64 // percent
	TotalStaked float64
	MaxCapacity float64
}

// EffectiveAPR is the selection score: gross APR net of commission, scaled by
// uptime.
func (v Validator) EffectiveAPR() float64 {
	return v.APR * (1 - v.Commission/100) * (v.Uptime / 100)
}

// StakePosition is one open staking position tracked by the agent.
type StakePosition struct {
	ID          string
	ValidatorID string
	Token       string
	Amount      float64
	Rewards     float64
	CreatedAt   time.Time
}

func defaultValidators() []Validator {
	return []Validator{
		{ID: "validator-alpha", Name: "Alpha Staking", APR: 12, Commission: 5, Uptime: 99.5, TotalStaked: 350000, MaxCapacity: 1000000},
		{ID: "validator-beta", Name: "Beta Nodes", APR: 14, Commission: 3, Uptime: 99.0, TotalStaked: 480000, MaxCapacity: 500000},
		{ID: "validator-gamma", Name: "Gamma Validators", APR: 10, Commission: 7, Uptime: 98.0, TotalStaked: 120000, MaxCapacity: 400000},
	}
}

func defaultPositions() []StakePosition {
	return []StakePosition{
		{ID: "pos-1", ValidatorID: "validator-beta", Token: "ETH", Amount: 2.5, Rewards: 0.12, CreatedAt: time.Now().Add(-30 * 24 * time.Hour)},
		{ID: "pos-2", ValidatorID: "validator-alpha", Token: "ETH", Amount: 10, Rewards: 0.45, CreatedAt: time.Now().Add(-90 * 24 * time.Hour)},
	}
}

// StakeAgent serves stake, unstake and reward-claim intents against its
// in-memory validator table and position book. The table is seeded once at
// construction and mutated only by successful executions.
type StakeAgent struct {
	baseAgent
	mu           sync.Mutex
	validators   []Validator
	positions    map[string]StakePosition
	prices       *priceFeed
	boundary     core.ExecutionBoundary
	explorerBase string
}

// NewStakeAgent builds the agent; nil validators or positions fall back to
// the seeded defaults.
func NewStakeAgent(validators []Validator, positions []StakePosition, prices *priceFeed, boundary core.ExecutionBoundary, explorerBase string) *StakeAgent {
	if validators == nil {
		validators = defaultValidators()
	}
	if positions == nil {
		positions = defaultPositions()
	}
	book := make(map[string]StakePosition, len(positions))
	for _, p := range positions {
		book[p.ID] = p
	}
	return &StakeAgent{
		baseAgent:    newBaseAgent("stake-agent", "Stake Agent", "STAKE", core.CapabilityStake, core.CapabilityUnstake),
		validators:   validators,
		positions:    book,
		prices:       prices,
		boundary:     boundary,
		explorerBase: explorerBase,
	}
}

// stakePlan is the shared product of the per-operation prepare steps: what to
// call, what it is worth, and how to mutate the book once execution succeeds.
type stakePlan struct {
	calls          []core.CallData
	gasEstimate    uint64
	valueUSD       float64
	complexity     int
	warnings       []string
	justification  string
	degradedReason string
	apply          func()
}

func (a *StakeAgent) Simulate(ctx context.Context, intent core.AgentIntent) core.SimulationResult {
	parsed, _, err := parseIntentParams(intent)
	if err != nil {
		return core.FailedSimulation(core.ErrKindValidation, fmt.Sprintf("invalid staking parameters: %v", err))
	}
	plan, kind, err := a.prepare(ctx, parsed)
	if err != nil {
		return core.FailedSimulation(kind, err.Error())
	}

	result := core.SimulationResult{
		Success:       true,
		GasEstimate:   plan.gasEstimate,
		ValueEstimate: plan.valueUSD,
		Risk:          core.CalculateRisk(plan.valueUSD, plan.complexity, 0),
		Calls:         plan.calls,
		Justification: plan.justification,
		Warnings:      plan.warnings,
		Confidence:    0.9,
	}
	if plan.degradedReason != "" {
		result.Degraded = true
		result.DegradedReason = plan.degradedReason
		result.Confidence = 0.7
	}
	return result
}

func (a *StakeAgent) Execute(ctx context.Context, intent core.AgentIntent) core.ExecutionResult {
	if intent.Expired(time.Now()) {
		return core.FailedExecution(core.ErrKindExpired, "intent deadline has passed")
	}
	parsed, _, err := parseIntentParams(intent)
	if err != nil {
		return core.FailedExecution(core.ErrKindValidation, fmt.Sprintf("invalid staking parameters: %v", err))
	}
	plan, kind, err := a.prepare(ctx, parsed)
	if err != nil {
		return core.FailedExecution(kind, err.Error())
	}

	a.logger.Printf("Executing %s for %s (value $%.2f)", parsed.Operation(), intent.UserAddress, plan.valueUSD)
	result := submitThroughBoundary(ctx, a.boundary, intent, plan.calls, plan.valueUSD, a.explorerBase)
	if result.Success && plan.apply != nil {
		a.mu.Lock()
		plan.apply()
		a.mu.Unlock()
	}
	return result
}

func (a *StakeAgent) prepare(ctx context.Context, parsed core.IntentParams) (stakePlan, core.ErrorKind, error) {
	switch p := parsed.(type) {
	case core.StakeParams:
		return a.prepareStake(ctx, p)
	case core.UnstakeParams:
		return a.prepareUnstake(ctx, p)
	case core.ClaimRewardsParams:
		return a.prepareClaim(ctx, p)
	default:
		return stakePlan{}, core.ErrKindValidation, fmt.Errorf("stake agent cannot serve operation %q", parsed.Operation())
	}
}

func (a *StakeAgent) prepareStake(ctx context.Context, p core.StakeParams) (stakePlan, core.ErrorKind, error) {
	token := p.Token
	if token == "" {
		token = "ETH"
	}

	validator, kind, err := a.selectValidator(p.ValidatorID, p.Amount)
	if err != nil {
		return stakePlan{}, kind, err
	}

	quote, reason, err := a.prices.price(ctx, token)
	if err != nil {
		return stakePlan{}, core.ErrKindUpstream, fmt.Errorf("pricing %s: %w", token, err)
	}
	valueUSD := p.Amount * quote.PriceUSD

	complexity := 1
	var warnings []string
	if validator.Uptime < 95 {
		complexity++
		warnings = append(warnings, fmt.Sprintf("validator %s uptime is below 95%%", validator.ID))
	}

	pool := syntheticAddress("staking-pool:" + validator.ID)
	amount := p.Amount
	return stakePlan{
		calls: []core.CallData{{
			Target:      pool,
			Data:        encodeCall("0xa694fc3a", amountWei(amount)),
			Value:       "0",
			Description: fmt.Sprintf("stake %.4f %s with %s", amount, token, validator.Name),
			GasLimit:    stakeGas,
			Required:    true,
		}},
		gasEstimate: stakeGas,
		valueUSD:    valueUSD,
		complexity:  complexity,
		warnings:    warnings,
		justification: fmt.Sprintf("Stake %.4f %s with %s (effective APR %.2f%%, uptime %.1f%%)",
			amount, token, validator.Name, validator.EffectiveAPR(), validator.Uptime),
		degradedReason: reason,
		apply: func() {
			for i := range a.validators {
				if a.validators[i].ID == validator.ID {
					a.validators[i].TotalStaked += amount
				}
			}
			id := uuid.New().String()
			a.positions[id] = StakePosition{
				ID:          id,
				ValidatorID: validator.ID,
				Token:       token,
				Amount:      amount,
				CreatedAt:   time.Now(),
			}
		},
	}, "", nil
}

func (a *StakeAgent) prepareUnstake(ctx context.Context, p core.UnstakeParams) (stakePlan, core.ErrorKind, error) {
	pos, ok := a.position(p.PositionID)
	if !ok {
		return stakePlan{}, core.ErrKindValidation, fmt.Errorf("unknown position %q", p.PositionID)
	}
	amount := p.Amount
	if amount <= 0 {
		amount = pos.Amount
	}
	if amount > pos.Amount {
		return stakePlan{}, core.ErrKindValidation, fmt.Errorf("unstake amount %.4f exceeds position balance %.4f", amount, pos.Amount)
	}

	quote, reason, err := a.prices.price(ctx, pos.Token)
	if err != nil {
		return stakePlan{}, core.ErrKindUpstream, fmt.Errorf("pricing %s: %w", pos.Token, err)
	}

	pool := syntheticAddress("staking-pool:" + pos.ValidatorID)
	return stakePlan{
		calls: []core.CallData{{
			Target:      pool,
			Data:        encodeCall("0x2e1a7d4d", amountWei(amount)),
			Value:       "0",
			Description: fmt.Sprintf("withdraw %.4f %s from %s", amount, pos.Token, pos.ValidatorID),
			GasLimit:    unstakeGas,
			Required:    true,
		}},
		gasEstimate: unstakeGas,
		valueUSD:    amount * quote.PriceUSD,
		complexity:  2,
		warnings:    []string{"an unbonding delay applies before withdrawn funds become transferable"},
		justification: fmt.Sprintf("Unstake %.4f %s from %s (position %s)",
			amount, pos.Token, pos.ValidatorID, pos.ID),
		degradedReason: reason,
		apply: func() {
			current, ok := a.positions[pos.ID]
			if !ok {
				return
			}
			for i := range a.validators {
				if a.validators[i].ID == current.ValidatorID {
					a.validators[i].TotalStaked -= amount
				}
			}
			if amount >= current.Amount {
				delete(a.positions, pos.ID)
				return
			}
			current.Amount -= amount
			a.positions[pos.ID] = current
		},
	}, "", nil
}

func (a *StakeAgent) prepareClaim(ctx context.Context, p core.ClaimRewardsParams) (stakePlan, core.ErrorKind, error) {
	pos, ok := a.position(p.PositionID)
	if !ok {
		return stakePlan{}, core.ErrKindValidation, fmt.Errorf("unknown position %q", p.PositionID)
	}

	quote, reason, err := a.prices.price(ctx, pos.Token)
	if err != nil {
		return stakePlan{}, core.ErrKindUpstream, fmt.Errorf("pricing %s: %w", pos.Token, err)
	}

	var warnings []string
	if pos.Rewards <= 0 {
		warnings = append(warnings, fmt.Sprintf("position %s has no accrued rewards", pos.ID))
	}

	pool := syntheticAddress("staking-pool:" + pos.ValidatorID)
	return stakePlan{
		calls: []core.CallData{{
			Target:      pool,
			Data:        encodeCall("0x3d18b912"),
			Value:       "0",
			Description: fmt.Sprintf("claim rewards from %s", pos.ValidatorID),
			GasLimit:    claimGas,
			Required:    true,
		}},
		gasEstimate: claimGas,
		valueUSD:    pos.Rewards * quote.PriceUSD,
		complexity:  1,
		warnings:    warnings,
		justification: fmt.Sprintf("Claim %.4f %s rewards from %s (position %s)",
			pos.Rewards, pos.Token, pos.ValidatorID, pos.ID),
		degradedReason: reason,
		apply: func() {
			current, ok := a.positions[pos.ID]
			if !ok {
				return
			}
			current.Rewards = 0
			a.positions[pos.ID] = current
		},
	}, "", nil
}

// selectValidator resolves an explicit validator ID or picks the best
// effective APR among validators with remaining capacity.
func (a *StakeAgent) selectValidator(id string, amount float64) (Validator, core.ErrorKind, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id != "" {
		for _, v := range a.validators {
			if v.ID == id {
				if v.TotalStaked+amount > v.MaxCapacity {
					return Validator{}, core.ErrKindValidation,
						fmt.Errorf("validator %s cannot absorb %.4f more (capacity %.0f, staked %.0f)", id, amount, v.MaxCapacity, v.TotalStaked)
				}
				return v, "", nil
			}
		}
		return Validator{}, core.ErrKindValidation, fmt.Errorf("unknown validator %q", id)
	}

	best := -1
	for i, v := range a.validators {
		if v.TotalStaked+amount > v.MaxCapacity {
			continue
		}
		if best < 0 || v.EffectiveAPR() > a.validators[best].EffectiveAPR() {
			best = i
		}
	}
	if best < 0 {
		return Validator{}, core.ErrKindUpstream, fmt.Errorf("no validator has remaining capacity for %.4f", amount)
	}
	return a.validators[best], "", nil
}

// position returns a copy of one tracked position.
func (a *StakeAgent) position(id string) (StakePosition, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[id]
	return pos, ok
}

// Positions lists the open positions in stable ID order, used by the
// portfolio views.
func (a *StakeAgent) Positions() []StakePosition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]StakePosition, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
