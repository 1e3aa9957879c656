package budget

import (
	"testing"

	"github.com/onchainos/steward/config"
)

func TestConfigValidate(t *testing.T) {
	neg := float64(-1)
	cfg := Config{MaxValue: &neg}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}

	cap := float64(10)
	threshold := float64(20)
	cfg = Config{DailyValueCap: &cap, ApprovalThreshold: &threshold}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected threshold validation error")
	}
}

func TestFromGuardrails(t *testing.T) {
	cfg := FromGuardrails(config.GuardrailsConfig{
		MaxValuePerIntent: 50000,
		MaxGasPerIntent:   2_000_000,
		ApprovalThreshold: 10000,
	})
	if cfg.MaxValue == nil || *cfg.MaxValue != 50000 {
		t.Fatalf("expected max value limit, got %+v", cfg.MaxValue)
	}
	if cfg.MaxGas == nil || *cfg.MaxGas != 2_000_000 {
		t.Fatalf("expected max gas limit")
	}
	if cfg.DailyValueCap != nil {
		t.Fatalf("expected unset daily cap to stay nil")
	}
	if cfg.ApprovalThreshold == nil || *cfg.ApprovalThreshold != 10000 {
		t.Fatalf("expected approval threshold carried over")
	}
}

func TestMergeClone(t *testing.T) {
	value := float64(5000)
	base := Config{MaxValue: &value, RequireApproval: false, Metadata: map[string]interface{}{"team": "core"}}
	override := Config{RequireApproval: true, Metadata: map[string]interface{}{"team": "ops"}}
	merged := Merge(base, override)
	if !merged.RequireApproval {
		t.Fatalf("expected require approval flag")
	}
	if merged.Metadata["team"].(string) != "ops" {
		t.Fatalf("expected metadata override")
	}
	if merged.MaxValue == nil || *merged.MaxValue != value {
		t.Fatalf("expected max value to persist")
	}
	// ensure clone
	merged.Metadata["team"] = "changed"
	if base.Metadata["team"].(string) != "core" {
		t.Fatalf("metadata should be isolated from base")
	}
}

func TestMonitorAddAndDaily(t *testing.T) {
	maxValue := 5000.0
	maxGas := int64(1_000_000)
	dailyCap := 8000.0
	cfg := Config{MaxValue: &maxValue, MaxGas: &maxGas, DailyValueCap: &dailyCap}
	mon := NewMonitor(cfg)
	if err := mon.Add(2500, 400_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mon.Add(1000, 700_000); err == nil {
		t.Fatalf("expected gas budget breach")
	}
	if err := mon.CheckDaily(3000); err != nil {
		t.Fatalf("unexpected daily breach: %v", err)
	}
	if err := mon.CheckDaily(6000); err == nil {
		t.Fatalf("expected daily value breach")
	}
}

func TestRequiresApproval(t *testing.T) {
	cfg := Config{}
	if RequiresApproval(cfg, 5000) {
		t.Fatalf("unexpected approval requirement")
	}
	threshold := 4000.0
	cfg.ApprovalThreshold = &threshold
	if !RequiresApproval(cfg, 5000) {
		t.Fatalf("expected approval requirement when exceeding threshold")
	}
}
