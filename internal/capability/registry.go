package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/onchainos/steward/internal/agent/core"
)

// CardVersion is stamped on cards derived from live agents.
const CardVersion = "v1"

// SchemaDocument names the embedded JSON Schema document governing intent
// parameters for every registered agent.
const SchemaDocument = "intent_schemas.json"

// AgentCard is the discovery record for a registered agent. Cards are
// checksummed and HMAC-signed so a client listing the registry can verify
// the card was produced by this deployment.
type AgentCard struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	InputSchema  string   `json:"input_schema"`
	CostEstimate float64  `json:"cost_estimate"`
	SideEffects  bool     `json:"side_effects"`
	Checksum     string   `json:"checksum"`
	Signature    string   `json:"signature"`
}

// ErrAgentMissing indicates a required agent is not registered.
var ErrAgentMissing = fmt.Errorf("required agent missing")

// mutating capabilities imply on-chain side effects; everything else is a read.
var mutatingCapabilities = map[string]bool{
	core.CapabilitySwap:    true,
	core.CapabilityStake:   true,
	core.CapabilityUnstake: true,
}

// Registry maps agent IDs and capability strings to live agents. Lookup by
// capability preserves registration order; callers apply their own selection
// policy when several agents declare the same capability.
type Registry struct {
	mu            sync.RWMutex
	signingSecret string
	agents        map[string]core.Agent
	cards         map[string]AgentCard
	order         []string
}

// NewRegistry returns an empty registry. If signingSecret is non-empty every
// card produced by Register carries an HMAC signature over its checksum.
func NewRegistry(signingSecret string) *Registry {
	return &Registry{
		signingSecret: signingSecret,
		agents:        make(map[string]core.Agent),
		cards:         make(map[string]AgentCard),
	}
}

// Register adds an agent and derives its signed card. Re-registering an ID
// replaces the previous agent but keeps its original position in capability
// lookups.
func (r *Registry) Register(agent core.Agent) error {
	if agent == nil {
		return fmt.Errorf("agent is nil")
	}
	id := agent.ID()
	if id == "" {
		return fmt.Errorf("agent has empty id")
	}
	card, err := r.buildCard(agent)
	if err != nil {
		return fmt.Errorf("build card for %s: %w", id, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; !exists {
		r.order = append(r.order, id)
	}
	r.agents[id] = agent
	r.cards[id] = card
	return nil
}

// Get returns the agent registered under id.
func (r *Registry) Get(id string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	return agent, ok
}

// GetByCapability returns every agent declaring the capability, in
// registration order. A capability nobody declares yields an empty slice,
// never an error; callers must treat empty as "no agent can serve this".
func (r *Registry) GetByCapability(capability string) []core.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.Agent
	for _, id := range r.order {
		agent := r.agents[id]
		for _, c := range agent.Capabilities() {
			if c == capability {
				out = append(out, agent)
				break
			}
		}
	}
	return out
}

// GetAll returns all registered agents in registration order.
func (r *Registry) GetAll() []core.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// Unregister removes an agent. Removing an unknown ID is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return
	}
	delete(r.agents, id)
	delete(r.cards, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Card returns the signed card for an agent ID.
func (r *Registry) Card(id string) (AgentCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.cards[id]
	return card, ok
}

// Cards returns all cards in registration order.
func (r *Registry) Cards() []AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentCard, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.cards[id])
	}
	return out
}

// RequireAgents fails if any of the listed agent IDs is absent. Called at
// startup so a misconfigured deployment refuses to serve.
func (r *Registry) RequireAgents(ids []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if _, ok := r.agents[id]; !ok {
			return fmt.Errorf("%w: %s", ErrAgentMissing, id)
		}
	}
	return nil
}

// Verify recomputes a card's checksum and signature and compares both.
func (r *Registry) Verify(card AgentCard) error {
	checksum, err := ComputeChecksum(card)
	if err != nil {
		return err
	}
	if checksum != card.Checksum {
		return fmt.Errorf("checksum mismatch for %s", card.ID)
	}
	if r.signingSecret == "" {
		return nil
	}
	expected, err := SignCard(card, r.signingSecret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(card.Signature)) {
		return fmt.Errorf("signature mismatch for %s", card.ID)
	}
	return nil
}

func (r *Registry) buildCard(agent core.Agent) (AgentCard, error) {
	caps := agent.Capabilities()
	sideEffects := false
	for _, c := range caps {
		if mutatingCapabilities[c] {
			sideEffects = true
			break
		}
	}
	card := AgentCard{
		ID:           agent.ID(),
		Name:         agent.Name(),
		Version:      CardVersion,
		Capabilities: caps,
		InputSchema:  SchemaDocument,
		SideEffects:  sideEffects,
	}
	checksum, err := ComputeChecksum(card)
	if err != nil {
		return AgentCard{}, err
	}
	card.Checksum = checksum
	if r.signingSecret != "" {
		sig, err := SignCard(card, r.signingSecret)
		if err != nil {
			return AgentCard{}, err
		}
		card.Signature = sig
	}
	return card, nil
}

// ComputeChecksum returns a deterministic hash of the card payload,
// excluding the checksum and signature fields themselves.
func ComputeChecksum(card AgentCard) (string, error) {
	payload := map[string]interface{}{
		"id":            card.ID,
		"name":          card.Name,
		"version":       card.Version,
		"description":   card.Description,
		"capabilities":  card.Capabilities,
		"input_schema":  card.InputSchema,
		"cost_estimate": card.CostEstimate,
		"side_effects":  card.SideEffects,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// SignCard computes an HMAC-SHA256 signature over the card checksum.
func SignCard(card AgentCard, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	checksum := card.Checksum
	if checksum == "" {
		var err error
		checksum, err = ComputeChecksum(card)
		if err != nil {
			return "", err
		}
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
