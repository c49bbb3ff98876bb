package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	isolate(t, tmpDir)

	cfg := DefaultConfig()
	cfg.Dialogue.Model = "saved-model"
	if err := Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("saved config file missing: %v", err)
	}
	var round Config
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("parse saved config: %v", err)
	}
	if round.Dialogue.Model != "saved-model" {
		t.Fatalf("expected saved model, got %q", round.Dialogue.Model)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if loaded.Dialogue.Model != "saved-model" {
		t.Fatalf("expected saved model after load, got %q", loaded.Dialogue.Model)
	}

	newDir := filepath.Join(tmpDir, "nested", "dir")
	if err := EnsureDir(newDir); err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	if info, err := os.Stat(newDir); err != nil || !info.IsDir() {
		t.Fatalf("expected created directory, err=%v", err)
	}
}

func TestLoadInvalidJSONReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".loveledger")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(`{"economy":`), 0o600); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	isolate(t, tmpDir)

	if _, err := Load(); err == nil {
		t.Fatal("expected JSON error, got nil")
	}
}

func TestSubstituteEnvValuesLeavesUnknownToken(t *testing.T) {
	input := map[string]any{
		"value": "${NOT_SET_VAR}",
	}
	out := substituteEnvValues(input).(map[string]any)
	if out["value"] != "${NOT_SET_VAR}" {
		t.Fatalf("expected unknown env token unchanged, got %v", out["value"])
	}
}

func TestSubstituteEnvValuesInNestedArrays(t *testing.T) {
	t.Setenv("TEST_BROKER", "kafka:9092")
	input := map[string]any{
		"list": []any{"${TEST_BROKER}", map[string]any{"inner": "x-${TEST_BROKER}"}},
	}
	out := substituteEnvValues(input).(map[string]any)
	list := out["list"].([]any)
	if list[0] != "kafka:9092" {
		t.Fatalf("expected substituted list item, got %v", list[0])
	}
	if inner := list[1].(map[string]any)["inner"]; inner != "x-kafka:9092" {
		t.Fatalf("expected substituted nested value, got %v", inner)
	}
}
