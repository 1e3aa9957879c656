package config

import "fmt"

// GuardrailsConfig bounds how much value an execution path may move.
type GuardrailsConfig struct {
	MaxValuePerIntent float64 `mapstructure:"max_value_per_intent"`
	MaxGasPerIntent   int64   `mapstructure:"max_gas_per_intent"`
	DailyValueCap     float64 `mapstructure:"daily_value_cap"`
	ApprovalThreshold float64 `mapstructure:"approval_threshold"`
	RequireApproval   bool    `mapstructure:"require_approval"`
}

// Normalize clamps configuration values into usable ranges.
func (c GuardrailsConfig) Normalize() GuardrailsConfig {
	cfg := c
	if cfg.MaxValuePerIntent < 0 {
		cfg.MaxValuePerIntent = 0
	}
	if cfg.MaxGasPerIntent < 0 {
		cfg.MaxGasPerIntent = 0
	}
	if cfg.DailyValueCap < 0 {
		cfg.DailyValueCap = 0
	}
	if cfg.ApprovalThreshold < 0 {
		cfg.ApprovalThreshold = 0
	}
	if cfg.DailyValueCap > 0 && cfg.MaxValuePerIntent > cfg.DailyValueCap {
		cfg.MaxValuePerIntent = cfg.DailyValueCap
	}
	return cfg
}

// Validate ensures guardrail values are internally consistent.
func (c GuardrailsConfig) Validate() error {
	if c.MaxValuePerIntent < 0 {
		return fmt.Errorf("guardrails.max_value_per_intent cannot be negative")
	}
	if c.DailyValueCap < 0 {
		return fmt.Errorf("guardrails.daily_value_cap cannot be negative")
	}
	if c.ApprovalThreshold < 0 {
		return fmt.Errorf("guardrails.approval_threshold cannot be negative")
	}
	if c.DailyValueCap > 0 && c.ApprovalThreshold > c.DailyValueCap {
		return fmt.Errorf("guardrails.approval_threshold cannot exceed daily_value_cap")
	}
	return nil
}
