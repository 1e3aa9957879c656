package config

import (
	"fmt"
	"sort"
	"strings"
)

// RiskPolicyConfig configures protocol and contract allowlisting for execution.
type RiskPolicyConfig struct {
	Enabled        bool              `mapstructure:"enabled" json:"enabled"`
	AllowProtocols []string          `mapstructure:"allow_protocols" json:"allow_protocols"`
	DenyProtocols  []string          `mapstructure:"deny_protocols" json:"deny_protocols"`
	AllowContracts []string          `mapstructure:"allow_contracts" json:"allow_contracts"`
	ContractLabels map[string]string `mapstructure:"contract_labels" json:"contract_labels"`
}

// Normalize cleans entries and removes duplicates.
func (c RiskPolicyConfig) Normalize() RiskPolicyConfig {
	norm := c
	norm.AllowProtocols = sanitizeNameList(norm.AllowProtocols)
	norm.DenyProtocols = sanitizeNameList(norm.DenyProtocols)
	norm.AllowContracts = sanitizeAddressList(norm.AllowContracts)
	if norm.ContractLabels == nil {
		norm.ContractLabels = map[string]string{}
	} else {
		labels := make(map[string]string, len(norm.ContractLabels))
		for addr, label := range norm.ContractLabels {
			key := normalizeAddress(addr)
			if key == "" {
				continue
			}
			labels[key] = strings.TrimSpace(label)
		}
		norm.ContractLabels = labels
	}
	return norm
}

// Validate ensures configured policy entries do not conflict and are well-formed.
func (c RiskPolicyConfig) Validate() error {
	norm := c.Normalize()

	allow := make(map[string]struct{}, len(norm.AllowProtocols))
	for _, name := range norm.AllowProtocols {
		allow[name] = struct{}{}
	}
	for _, name := range norm.DenyProtocols {
		if _, ok := allow[name]; ok {
			return fmt.Errorf("risk policy conflict: protocol %q present in both allow and deny lists", name)
		}
	}
	for _, addr := range norm.AllowContracts {
		if !looksLikeAddress(addr) {
			return fmt.Errorf("risk policy contract %q is not a valid address", addr)
		}
	}
	for addr := range norm.ContractLabels {
		if !looksLikeAddress(addr) {
			return fmt.Errorf("risk policy contract label key %q is not a valid address", addr)
		}
	}
	return nil
}

// ProtocolAllowed reports whether a protocol passes the configured policy.
// An empty allow list means every protocol not explicitly denied is allowed.
func (c RiskPolicyConfig) ProtocolAllowed(name string) bool {
	if !c.Enabled {
		return true
	}
	key := strings.TrimSpace(strings.ToLower(name))
	if key == "" {
		return true
	}
	for _, deny := range c.DenyProtocols {
		if deny == key {
			return false
		}
	}
	if len(c.AllowProtocols) == 0 {
		return true
	}
	for _, allow := range c.AllowProtocols {
		if allow == key {
			return true
		}
	}
	return false
}

func sanitizeNameList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		name := strings.TrimSpace(strings.ToLower(raw))
		if name == "" {
			continue
		}
		seen[name] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sanitizeAddressList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		addr := normalizeAddress(raw)
		if addr == "" {
			continue
		}
		seen[addr] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for addr := range seen {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func normalizeAddress(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}

func looksLikeAddress(value string) bool {
	if !strings.HasPrefix(value, "0x") || len(value) != 42 {
		return false
	}
	for _, r := range value[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
