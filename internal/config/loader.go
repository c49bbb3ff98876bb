package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".loveledger"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LOVELEDGER"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("LOVELEDGER_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("LOVELEDGER_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Env files feed the overrides below, so they load first.
	LoadEnvFiles()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := loadResolvedConfig(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	for _, g := range envGroups(cfg) {
		prefix := EnvPrefix + "_" + g.name
		if err := envconfig.Process(prefix, g.spec); err != nil {
			return nil, fmt.Errorf("apply %s_* overrides: %w", prefix, err)
		}
	}

	// Fallback for API Key
	if cfg.Providers.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Providers.OpenAI.APIKey = key
		}
	}

	expandHome := func(p *string) {
		if strings.HasPrefix(*p, "~") {
			if home, err := resolveHomeDir(); err == nil {
				*p = filepath.Join(home, (*p)[1:])
			}
		}
	}
	expandHome(&cfg.Paths.Database)
	expandHome(&cfg.Paths.Roster)
	expandHome(&cfg.Paths.LockFile)

	applyDefaults(cfg)
	return cfg, nil
}

type envGroup struct {
	name string
	spec any
}

// envGroups maps each LOVELEDGER_<name>_* override prefix to the part of cfg it fills.
func envGroups(cfg *Config) []envGroup {
	return []envGroup{
		{"PATHS", &cfg.Paths},
		{"ECONOMY", &cfg.Economy},
		{"SCHEDULER", &cfg.Scheduler},
		{"DIALOGUE", &cfg.Dialogue},
		{"OPENAI", &cfg.Providers.OpenAI},
		{"NOTIFY", &cfg.Notify},
		{"LOG", &cfg.Log},
	}
}

// applyDefaults replaces zero or out-of-range values with defaults.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Economy.InvitationTTL <= 0 {
		cfg.Economy.InvitationTTL = def.Economy.InvitationTTL
	}
	if cfg.Economy.MaxMessageLength <= 0 {
		cfg.Economy.MaxMessageLength = def.Economy.MaxMessageLength
	}
	if cfg.Economy.AffinityAlpha <= 0 || cfg.Economy.AffinityAlpha > 1 {
		cfg.Economy.AffinityAlpha = def.Economy.AffinityAlpha
	}
	if cfg.Economy.SaturationAffinity <= 0 {
		cfg.Economy.SaturationAffinity = def.Economy.SaturationAffinity
	}
	if cfg.Economy.RewardExchanges <= 0 {
		cfg.Economy.RewardExchanges = def.Economy.RewardExchanges
	}
	if cfg.Economy.RewardNoise < 0 {
		cfg.Economy.RewardNoise = def.Economy.RewardNoise
	}
	if cfg.Scheduler.TickInterval <= 0 {
		cfg.Scheduler.TickInterval = def.Scheduler.TickInterval
	}
	if cfg.Scheduler.MaxPairsPerTick <= 0 {
		cfg.Scheduler.MaxPairsPerTick = def.Scheduler.MaxPairsPerTick
	}
	if cfg.Scheduler.ResolveBatch <= 0 {
		cfg.Scheduler.ResolveBatch = def.Scheduler.ResolveBatch
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Dialogue.Generator)) {
	case "provider":
		cfg.Dialogue.Generator = "provider"
	default:
		cfg.Dialogue.Generator = "fixture"
	}
	if cfg.Dialogue.Turns <= 0 {
		cfg.Dialogue.Turns = def.Dialogue.Turns
	}
	if cfg.Dialogue.TurnTimeout <= 0 {
		cfg.Dialogue.TurnTimeout = def.Dialogue.TurnTimeout
	}
	if cfg.Notify.BusBuffer <= 0 {
		cfg.Notify.BusBuffer = def.Notify.BusBuffer
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "error":
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	default:
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format != "json" {
		cfg.Log.Format = "text"
	}
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// loadResolvedConfig reads path, merging any "$include" files beneath it and
// substituting ${VAR} references from the environment.
func loadResolvedConfig(path string) ([]byte, error) {
	obj, err := loadConfigObject(path, map[string]struct{}{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

func loadConfigObject(path string, visited map[string]struct{}) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, seen := visited[absPath]; seen {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	visited[absPath] = struct{}{}
	defer delete(visited, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	merged := map[string]any{}
	if includeRaw, ok := raw["$include"]; ok {
		includeFiles, err := parseIncludes(includeRaw)
		if err != nil {
			return nil, err
		}
		baseDir := filepath.Dir(absPath)
		for _, includePath := range includeFiles {
			if !filepath.IsAbs(includePath) {
				includePath = filepath.Join(baseDir, includePath)
			}
			child, err := loadConfigObject(includePath, visited)
			if err != nil {
				return nil, err
			}
			deepMerge(merged, child)
		}
	}
	delete(raw, "$include")
	substituteEnvValues(raw)
	deepMerge(merged, raw)
	return merged, nil
}

func parseIncludes(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("$include entries must be strings")
			}
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("$include must be a string or array of strings")
	}
}

func deepMerge(dst, src map[string]any) {
	for key, val := range src {
		srcMap, ok := val.(map[string]any)
		if !ok {
			dst[key] = val
			continue
		}
		dstMap, ok := dst[key].(map[string]any)
		if !ok {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		deepMerge(dstMap, srcMap)
	}
}

func substituteEnvValues(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = substituteEnvValues(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = substituteEnvValues(item)
		}
		return t
	case string:
		return envPattern.ReplaceAllStringFunc(t, func(match string) string {
			name := envPattern.FindStringSubmatch(match)[1]
			if value, ok := os.LookupEnv(name); ok {
				return value
			}
			return match
		})
	default:
		return v
	}
}
