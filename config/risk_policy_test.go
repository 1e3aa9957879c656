package config

import "testing"

func TestRiskPolicyNormalize(t *testing.T) {
	cfg := RiskPolicyConfig{
		AllowProtocols: []string{"Uniswap", " uniswap ", "Aave"},
		DenyProtocols:  []string{"SketchySwap"},
		AllowContracts: []string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", " 0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		ContractLabels: map[string]string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": " Router "},
	}

	norm := cfg.Normalize()
	if len(norm.AllowProtocols) != 2 || norm.AllowProtocols[0] != "aave" {
		t.Fatalf("unexpected allow list: %#v", norm.AllowProtocols)
	}
	if len(norm.AllowContracts) != 1 {
		t.Fatalf("expected contract dedupe, got %#v", norm.AllowContracts)
	}
	if val := norm.ContractLabels["0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"]; val != "Router" {
		t.Fatalf("expected trimmed contract label, got %q", val)
	}
}

func TestRiskPolicyValidate(t *testing.T) {
	valid := RiskPolicyConfig{
		AllowProtocols: []string{"uniswap"},
		DenyProtocols:  []string{"sketchyswap"},
		AllowContracts: []string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	conflict := RiskPolicyConfig{
		AllowProtocols: []string{"uniswap"},
		DenyProtocols:  []string{"uniswap"},
	}
	if err := conflict.Validate(); err == nil {
		t.Fatalf("expected allow/deny conflict error")
	}

	badAddr := RiskPolicyConfig{AllowContracts: []string{"0x123"}}
	if err := badAddr.Validate(); err == nil {
		t.Fatalf("expected invalid address error")
	}
}

func TestRiskPolicyProtocolAllowed(t *testing.T) {
	cfg := RiskPolicyConfig{
		Enabled:        true,
		AllowProtocols: []string{"uniswap", "aave"},
		DenyProtocols:  []string{"sketchyswap"},
	}.Normalize()

	if !cfg.ProtocolAllowed("Uniswap") {
		t.Fatalf("expected uniswap to be allowed")
	}
	if cfg.ProtocolAllowed("sketchyswap") {
		t.Fatalf("expected sketchyswap to be denied")
	}
	if cfg.ProtocolAllowed("random") {
		t.Fatalf("expected unknown protocol to be denied when allow list is set")
	}

	open := RiskPolicyConfig{Enabled: true, DenyProtocols: []string{"sketchyswap"}}.Normalize()
	if !open.ProtocolAllowed("random") {
		t.Fatalf("expected unknown protocol allowed when allow list is empty")
	}

	disabled := RiskPolicyConfig{DenyProtocols: []string{"uniswap"}}.Normalize()
	if !disabled.ProtocolAllowed("uniswap") {
		t.Fatalf("expected disabled policy to allow everything")
	}
}
