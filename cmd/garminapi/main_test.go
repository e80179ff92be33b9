package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails when the config file is unreadable.
func TestRun_InvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server: [not a mapping"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("GARMINAPI_CONFIG")
	defer os.Setenv("GARMINAPI_CONFIG", originalEnv)
	os.Setenv("GARMINAPI_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with malformed config")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: ""

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("GARMINAPI_CONFIG")
	defer os.Setenv("GARMINAPI_CONFIG", originalEnv)
	os.Setenv("GARMINAPI_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("GARMINAPI_CONFIG")
	defer os.Setenv("GARMINAPI_CONFIG", originalEnv)

	os.Unsetenv("GARMINAPI_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("GARMINAPI_CONFIG")
	defer os.Setenv("GARMINAPI_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("GARMINAPI_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_StartupAndShutdown boots the full service on an ephemeral port and
// shuts it down via context cancellation. MQTT, InfluxDB and sync stay
// disabled so the test has no external dependencies.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")
	tokensPath := filepath.Join(tmpDir, "tokens")

	configContent := `
server:
  host: "127.0.0.1"
  port: 18731
  timeouts:
    read: 5
    write: 5
    idle: 5

tokens:
  path: "` + tokensPath + `"

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

sync:
  enabled: false

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("GARMINAPI_CONFIG")
	defer os.Setenv("GARMINAPI_CONFIG", originalEnv)
	os.Setenv("GARMINAPI_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}
}
