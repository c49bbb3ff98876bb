package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// unsetForTest clears key for the test and restores it afterwards.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	_ = os.Unsetenv(key)
}

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line, key, value string
		wantErr          bool
	}{
		{line: "", key: ""},
		{line: "   # rotated monthly", key: ""},
		{line: "export LOVELEDGER_LOG_LEVEL=debug", key: "LOVELEDGER_LOG_LEVEL", value: "debug"},
		{line: `OPENAI_API_KEY="sk-test\tkey"`, key: "OPENAI_API_KEY", value: "sk-test\tkey"},
		{line: `LOVELEDGER_NOTIFY_SLACK_CHANNEL='#dates $live'`, key: "LOVELEDGER_NOTIFY_SLACK_CHANNEL", value: "#dates $live"},
		{line: "LOVELEDGER_ECONOMY_REWARD_SEED=42 # reproducible", key: "LOVELEDGER_ECONOMY_REWARD_SEED", value: "42"},
		{line: "LOVELEDGER_NOTIFY_KAFKA_BROKERS=", key: "LOVELEDGER_NOTIFY_KAFKA_BROKERS", value: ""},
		{line: "JUST_A_WORD", wantErr: true},
		{line: "9LIVES=1", wantErr: true},
		{line: "=orphan", wantErr: true},
	}
	for _, tt := range tests {
		key, value, err := parseEnvLine(tt.line)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseEnvLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
		}
		if key != tt.key || value != tt.value {
			t.Errorf("parseEnvLine(%q) = %q, %q; want %q, %q", tt.line, key, value, tt.key, tt.value)
		}
	}
}

func TestApplyEnvFileReportsWhatItSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env")
	content := "# loveledger\n" +
		"LOVELEDGER_ECONOMY_REWARD_SEED=5\n" +
		"LOVELEDGER_DIALOGUE_MODEL=from-file\n" +
		"LOVELEDGER_SCHEDULE_TICK=1m\n" +
		"not a line\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	unsetForTest(t, "LOVELEDGER_ECONOMY_REWARD_SEED")
	unsetForTest(t, "LOVELEDGER_SCHEDULE_TICK")
	t.Setenv("LOVELEDGER_DIALOGUE_MODEL", "from-shell")

	f, err := ApplyEnvFile(path)
	if err != nil {
		t.Fatalf("apply env file: %v", err)
	}
	if want := []string{"LOVELEDGER_ECONOMY_REWARD_SEED", "LOVELEDGER_SCHEDULE_TICK"}; !reflect.DeepEqual(f.Applied, want) {
		t.Fatalf("applied = %v, want %v", f.Applied, want)
	}
	if want := []string{"LOVELEDGER_DIALOGUE_MODEL"}; !reflect.DeepEqual(f.Shadowed, want) {
		t.Fatalf("shadowed = %v, want %v", f.Shadowed, want)
	}
	if want := []string{"LOVELEDGER_SCHEDULE_TICK"}; !reflect.DeepEqual(f.Unknown, want) {
		t.Fatalf("unknown = %v, want %v", f.Unknown, want)
	}
	if want := []int{5}; !reflect.DeepEqual(f.Malformed, want) {
		t.Fatalf("malformed = %v, want %v", f.Malformed, want)
	}
	if got := os.Getenv("LOVELEDGER_DIALOGUE_MODEL"); got != "from-shell" {
		t.Fatalf("shell value overwritten: %q", got)
	}
	if got := os.Getenv("LOVELEDGER_ECONOMY_REWARD_SEED"); got != "5" {
		t.Fatalf("seed not applied: %q", got)
	}
}

func TestApplyEnvFileMissing(t *testing.T) {
	if _, err := ApplyEnvFile(filepath.Join(t.TempDir(), "absent")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestEnvFileCandidatesExplicitFirstWithoutDuplicates(t *testing.T) {
	home := t.TempDir()
	isolate(t, home)
	explicit := filepath.Join(home, ConfigDir, "env")
	t.Setenv("LOVELEDGER_ENV_FILE", explicit)

	got := EnvFileCandidates()
	want := []string{
		explicit,
		filepath.Join(home, ".config", "loveledger", "env"),
		filepath.Join(home, ConfigDir, ".env"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
}

func TestEnvFileCandidatesFollowLoveledgerHome(t *testing.T) {
	home := t.TempDir()
	isolate(t, home)
	alt := filepath.Join(home, "alt")
	t.Setenv("LOVELEDGER_HOME", alt)

	got := EnvFileCandidates()
	if len(got) != 3 || got[1] != filepath.Join(alt, ConfigDir, "env") {
		t.Fatalf("unexpected candidates %v", got)
	}
}

func TestLoadEnvFilesFirstFileWins(t *testing.T) {
	home := t.TempDir()
	isolate(t, home)
	explicit := filepath.Join(home, "first.env")
	if err := os.WriteFile(explicit, []byte("LOVELEDGER_LOG_FORMAT=json\n"), 0o600); err != nil {
		t.Fatalf("write explicit env: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(home, ConfigDir), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(home, ConfigDir, "env"), []byte("LOVELEDGER_LOG_FORMAT=text\n"), 0o600); err != nil {
		t.Fatalf("write home env: %v", err)
	}
	t.Setenv("LOVELEDGER_ENV_FILE", explicit)
	unsetForTest(t, "LOVELEDGER_LOG_FORMAT")

	loaded := LoadEnvFiles()
	if len(loaded) != 2 {
		t.Fatalf("expected 2 env files loaded, got %+v", loaded)
	}
	if len(loaded[1].Shadowed) != 1 {
		t.Fatalf("expected second file shadowed, got %+v", loaded[1])
	}
	if got := os.Getenv("LOVELEDGER_LOG_FORMAT"); got != "json" {
		t.Fatalf("LOVELEDGER_LOG_FORMAT = %q, want json", got)
	}
}

func TestKnownEnvKey(t *testing.T) {
	for _, key := range []string{"LOVELEDGER_HOME", "LOVELEDGER_OPENAI_API_KEY", "LOVELEDGER_NOTIFY_KAFKA_TOPIC", "LOVELEDGER_PATHS_ROSTER"} {
		if !knownEnvKey(key) {
			t.Errorf("expected %s to be known", key)
		}
	}
	for _, key := range []string{"LOVELEDGER_KAFKA_TOPIC", "LOVELEDGER_PATHS"} {
		if knownEnvKey(key) {
			t.Errorf("expected %s to be unknown", key)
		}
	}
}
