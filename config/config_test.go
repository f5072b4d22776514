package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalYAML = `sentimentflow:
  name: "TestApp"
  version: "1.0"
ingest:
  max_workers: 2
  retry:
    max_attempts: 3
    base_delay: 50ms
storage:
  backend: memory
stream:
  debounce_interval: 250ms
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Sentimentflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Sentimentflow.Name)
	}
	if cfg.Ingest.MaxWorkers != 2 {
		t.Errorf("unexpected max workers: %d", cfg.Ingest.MaxWorkers)
	}
	if cfg.Stream.DebounceInterval != 250*time.Millisecond {
		t.Errorf("unexpected debounce interval: %v", cfg.Stream.DebounceInterval)
	}
	// Defaults fill in unspecified sections.
	if cfg.Cache.MaxEntries != 512 {
		t.Errorf("unexpected cache default: %d", cfg.Cache.MaxEntries)
	}
	if cfg.Channels.MeasurementBuffer != 1024 {
		t.Errorf("unexpected channel default: %d", cfg.Channels.MeasurementBuffer)
	}
}

func TestLoadConfigRequiresName(t *testing.T) {
	path := writeTempConfig(t, `sentimentflow:
  version: "1.0"
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing name")
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	path := writeTempConfig(t, `sentimentflow:
  name: "TestApp"
  version: "1.0"
storage:
  backend: cassandra
`)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for unknown backend")
	}
}

func TestLoadConfigDynamoRequiresTable(t *testing.T) {
	path := writeTempConfig(t, `sentimentflow:
  name: "TestApp"
  version: "1.0"
storage:
  backend: dynamodb
  dynamodb:
    region: us-east-1
`)
	defer os.Remove(path)

	os.Unsetenv("DYNAMODB_TABLE")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing table")
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if env := AppEnvironment(); env != EnvironmentProduction {
		t.Errorf("alias not normalised: %s", env)
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Errorf("staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Errorf("development should not be production-like")
	}
}
