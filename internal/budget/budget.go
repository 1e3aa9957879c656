package budget

import (
	"fmt"

	"github.com/onchainos/steward/config"
)

// Config defines spend guardrails for a single execution plan.
type Config struct {
	MaxValue          *float64
	MaxGas            *int64
	DailyValueCap     *float64
	ApprovalThreshold *float64
	RequireApproval   bool
	Metadata          map[string]interface{}
}

// FromGuardrails lifts the static guardrails configuration into a plan budget.
// Zero-valued limits are treated as unset.
func FromGuardrails(g config.GuardrailsConfig) Config {
	g = g.Normalize()
	cfg := Config{RequireApproval: g.RequireApproval}
	if g.MaxValuePerIntent > 0 {
		v := g.MaxValuePerIntent
		cfg.MaxValue = &v
	}
	if g.MaxGasPerIntent > 0 {
		v := g.MaxGasPerIntent
		cfg.MaxGas = &v
	}
	if g.DailyValueCap > 0 {
		v := g.DailyValueCap
		cfg.DailyValueCap = &v
	}
	if g.ApprovalThreshold > 0 {
		v := g.ApprovalThreshold
		cfg.ApprovalThreshold = &v
	}
	return cfg
}

// Validate ensures the budget values are sane before use.
func (c Config) Validate() error {
	if c.MaxValue != nil && *c.MaxValue < 0 {
		return fmt.Errorf("max_value cannot be negative")
	}
	if c.MaxGas != nil && *c.MaxGas < 0 {
		return fmt.Errorf("max_gas cannot be negative")
	}
	if c.DailyValueCap != nil && *c.DailyValueCap < 0 {
		return fmt.Errorf("daily_value_cap cannot be negative")
	}
	if c.ApprovalThreshold != nil {
		if *c.ApprovalThreshold < 0 {
			return fmt.Errorf("approval_threshold cannot be negative")
		}
		if c.DailyValueCap != nil && *c.ApprovalThreshold > *c.DailyValueCap {
			return fmt.Errorf("approval_threshold cannot exceed daily_value_cap")
		}
	}
	return nil
}

// Clone produces a deep copy of the config.
func (c Config) Clone() Config {
	clone := Config{
		RequireApproval: c.RequireApproval,
	}
	if c.MaxValue != nil {
		v := *c.MaxValue
		clone.MaxValue = &v
	}
	if c.MaxGas != nil {
		v := *c.MaxGas
		clone.MaxGas = &v
	}
	if c.DailyValueCap != nil {
		v := *c.DailyValueCap
		clone.DailyValueCap = &v
	}
	if c.ApprovalThreshold != nil {
		v := *c.ApprovalThreshold
		clone.ApprovalThreshold = &v
	}
	if c.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// Merge overlays non-nil values from override onto base. User preferences
// tighten the static guardrails this way without widening them.
func Merge(base Config, override Config) Config {
	result := base.Clone()
	if override.MaxValue != nil {
		v := *override.MaxValue
		result.MaxValue = &v
	}
	if override.MaxGas != nil {
		v := *override.MaxGas
		result.MaxGas = &v
	}
	if override.DailyValueCap != nil {
		v := *override.DailyValueCap
		result.DailyValueCap = &v
	}
	if override.ApprovalThreshold != nil {
		v := *override.ApprovalThreshold
		result.ApprovalThreshold = &v
	}
	if override.Metadata != nil {
		result.Metadata = make(map[string]interface{}, len(override.Metadata))
		for k, v := range override.Metadata {
			result.Metadata[k] = v
		}
	}
	if override.RequireApproval {
		result.RequireApproval = true
	}
	return result
}

// IsZero reports whether the config defines no explicit limits or requirements.
func (c Config) IsZero() bool {
	if c.MaxValue != nil && *c.MaxValue != 0 {
		return false
	}
	if c.MaxGas != nil && *c.MaxGas != 0 {
		return false
	}
	if c.DailyValueCap != nil && *c.DailyValueCap != 0 {
		return false
	}
	if c.ApprovalThreshold != nil && *c.ApprovalThreshold != 0 {
		return false
	}
	if c.RequireApproval {
		return false
	}
	return len(c.Metadata) == 0
}

// RequiresApproval returns true when approval is mandatory based on config
// and the plan's estimated value.
func RequiresApproval(cfg Config, estimatedValue float64) bool {
	if cfg.RequireApproval {
		return true
	}
	if cfg.ApprovalThreshold != nil && estimatedValue > *cfg.ApprovalThreshold {
		return true
	}
	return false
}
