package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/LoveLedger/LoveLedger/internal/compat"
)

// rosterFile models the on-disk agents.yaml schema.
type rosterFile struct {
	Agents []rosterAgent `yaml:"agents"`
}

type rosterAgent struct {
	Wallet      string `yaml:"wallet"`
	Name        string `yaml:"name"`
	Personality string `yaml:"personality"`
	Enabled     *bool  `yaml:"enabled,omitempty"`
	AutoChat    bool   `yaml:"autoChat"`
}

// FileRegistry serves agents from a YAML roster that can be reloaded.
type FileRegistry struct {
	path string

	mu     sync.RWMutex
	static *Static
}

// LoadFile reads and validates a roster.
func LoadFile(path string) (*FileRegistry, error) {
	r := &FileRegistry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the roster. On error the previous roster stays in place.
func (r *FileRegistry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}
	static, err := parseRoster(data)
	if err != nil {
		return fmt.Errorf("registry: parse %s: %w", r.path, err)
	}
	r.mu.Lock()
	r.static = static
	r.mu.Unlock()
	slog.Info("Agent roster loaded", "path", r.path, "agents", len(static.agents))
	return nil
}

// Path returns the roster location.
func (r *FileRegistry) Path() string { return r.path }

func (r *FileRegistry) current() *Static {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.static
}

func (r *FileRegistry) GetAgent(ctx context.Context, walletAddr string) (Agent, error) {
	return r.current().GetAgent(ctx, walletAddr)
}

func (r *FileRegistry) ListEligible(ctx context.Context, exclude string) ([]Agent, error) {
	return r.current().ListEligible(ctx, exclude)
}

// All returns every agent in the roster.
func (r *FileRegistry) All() []Agent {
	return r.current().All()
}

func parseRoster(data []byte) (*Static, error) {
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	agents := make([]Agent, 0, len(f.Agents))
	for i, ra := range f.Agents {
		enabled := true
		if ra.Enabled != nil {
			enabled = *ra.Enabled
		}
		a := Agent{
			Wallet:      ra.Wallet,
			Name:        ra.Name,
			Personality: compat.Personality(ra.Personality),
			Enabled:     enabled,
			AutoChat:    ra.AutoChat,
		}
		if _, err := Normalize(a); err != nil {
			return nil, fmt.Errorf("agents[%d]: %w", i, err)
		}
		agents = append(agents, a)
	}
	return NewStatic(agents...)
}
