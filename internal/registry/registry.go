// Package registry provides read access to agent personas. Agents are owned
// by whoever maintains the roster; the engine never writes them.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/wallet"
)

// Agent is an agent persona.
type Agent struct {
	Wallet      string             `json:"wallet"`
	Name        string             `json:"name"`
	Personality compat.Personality `json:"personality"`
	Enabled     bool               `json:"enabled"`
	AutoChat    bool               `json:"autoChat"`
}

// Registry looks agents up by wallet.
type Registry interface {
	// GetAgent returns AGENT_NOT_FOUND for unknown wallets.
	GetAgent(ctx context.Context, walletAddr string) (Agent, error)
	// ListEligible returns enabled agents ordered by wallet, minus exclude.
	ListEligible(ctx context.Context, exclude string) ([]Agent, error)
}

// Normalize validates an agent and canonicalises its fields.
func Normalize(a Agent) (Agent, error) {
	w, err := wallet.Normalize(a.Wallet)
	if err != nil {
		return a, err
	}
	p, err := compat.ParsePersonality(string(a.Personality))
	if err != nil {
		return a, err
	}
	a.Wallet = w
	a.Personality = p
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		a.Name = w[:10]
	}
	return a, nil
}

// Static is an in-memory registry.
type Static struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewStatic builds a registry from agents, rejecting invalid or duplicate entries.
func NewStatic(agents ...Agent) (*Static, error) {
	s := &Static{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		n, err := Normalize(a)
		if err != nil {
			return nil, err
		}
		if _, dup := s.agents[n.Wallet]; dup {
			return nil, fmt.Errorf("duplicate agent wallet %s", n.Wallet)
		}
		s.agents[n.Wallet] = n
	}
	return s, nil
}

// Put adds or replaces an agent.
func (s *Static) Put(a Agent) error {
	n, err := Normalize(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.agents[n.Wallet] = n
	s.mu.Unlock()
	return nil
}

func (s *Static) GetAgent(_ context.Context, walletAddr string) (Agent, error) {
	w, err := wallet.Normalize(walletAddr)
	if err != nil {
		return Agent{}, err
	}
	s.mu.RLock()
	a, ok := s.agents[w]
	s.mu.RUnlock()
	if !ok {
		return Agent{}, apperr.New(apperr.CodeAgentNotFound, fmt.Sprintf("agent %s not found", w))
	}
	return a, nil
}

func (s *Static) ListEligible(_ context.Context, exclude string) ([]Agent, error) {
	exclude = strings.ToLower(strings.TrimSpace(exclude))
	s.mu.RLock()
	out := make([]Agent, 0, len(s.agents))
	for w, a := range s.agents {
		if !a.Enabled || w == exclude {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}

// All returns every agent, enabled or not, ordered by wallet.
func (s *Static) All() []Agent {
	s.mu.RLock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}
