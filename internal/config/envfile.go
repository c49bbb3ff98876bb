package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// controlKeys choose where configuration is read from rather than what it says.
var controlKeys = map[string]bool{
	EnvPrefix + "_CONFIG":   true,
	EnvPrefix + "_HOME":     true,
	EnvPrefix + "_ENV_FILE": true,
}

// EnvFile reports what one env file contributed to the process environment.
type EnvFile struct {
	Path      string
	Applied   []string // keys set from the file
	Shadowed  []string // keys already in the environment, left untouched
	Unknown   []string // LOVELEDGER_* keys no override group reads
	Malformed []int    // line numbers that could not be parsed
}

// EnvFileCandidates lists env files in load order: $LOVELEDGER_ENV_FILE,
// ~/.config/loveledger/env, ~/.loveledger/env, ~/.loveledger/.env.
func EnvFileCandidates() []string {
	var raw []string
	if explicit := strings.TrimSpace(os.Getenv(EnvPrefix + "_ENV_FILE")); explicit != "" {
		raw = append(raw, explicit)
	}
	if home, err := os.UserHomeDir(); err == nil {
		raw = append(raw, filepath.Join(home, ".config", "loveledger", "env"))
	}
	if home, err := resolveHomeDir(); err == nil {
		raw = append(raw,
			filepath.Join(home, ConfigDir, "env"),
			filepath.Join(home, ConfigDir, ".env"),
		)
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, p := range raw {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// LoadEnvFiles applies every candidate env file that exists. The first file
// to set a key wins, and the process environment beats every file.
func LoadEnvFiles() []EnvFile {
	var loaded []EnvFile
	for _, path := range EnvFileCandidates() {
		f, err := ApplyEnvFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Env file unreadable", "path", path, "error", err)
			}
			continue
		}
		if len(f.Unknown) > 0 {
			slog.Warn("Env file sets unknown LoveLedger keys", "path", path, "keys", f.Unknown)
		}
		if len(f.Malformed) > 0 {
			slog.Warn("Env file has malformed lines", "path", path, "lines", f.Malformed)
		}
		slog.Debug("Env file applied", "path", path, "applied", len(f.Applied), "shadowed", len(f.Shadowed))
		loaded = append(loaded, f)
	}
	return loaded
}

// ApplyEnvFile reads KEY=VALUE lines from path and sets the keys that are
// not already present in the environment.
func ApplyEnvFile(path string) (EnvFile, error) {
	f := EnvFile{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	for i, line := range strings.Split(string(data), "\n") {
		key, value, err := parseEnvLine(line)
		if err != nil {
			f.Malformed = append(f.Malformed, i+1)
			continue
		}
		if key == "" {
			continue
		}
		if strings.HasPrefix(key, EnvPrefix+"_") && !knownEnvKey(key) {
			f.Unknown = append(f.Unknown, key)
		}
		if _, exists := os.LookupEnv(key); exists {
			f.Shadowed = append(f.Shadowed, key)
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return f, fmt.Errorf("set %s: %w", key, err)
		}
		f.Applied = append(f.Applied, key)
	}
	return f, nil
}

// parseEnvLine returns an empty key for blank lines and comments.
func parseEnvLine(line string) (key, value string, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", nil
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	k, v, found := strings.Cut(line, "=")
	k = strings.TrimSpace(k)
	if !found || !envKeyPattern.MatchString(k) {
		return "", "", fmt.Errorf("invalid env line %q", line)
	}
	v = strings.TrimSpace(v)
	switch {
	case len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"':
		if unq, err := strconv.Unquote(v); err == nil {
			return k, unq, nil
		}
		return k, v[1 : len(v)-1], nil
	case len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'':
		return k, v[1 : len(v)-1], nil
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return k, v, nil
}

// knownEnvKey reports whether Load reads key.
func knownEnvKey(key string) bool {
	if controlKeys[key] {
		return true
	}
	for _, g := range envGroups(&Config{}) {
		if strings.HasPrefix(key, EnvPrefix+"_"+g.name+"_") {
			return true
		}
	}
	return false
}
