package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Server defaults
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.False(t, cfg.Server.TLSEnabled)

	// LLM defaults
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.NotNil(t, cfg.LLM.Anthropic)
	assert.NotNil(t, cfg.LLM.OpenAI)
	assert.NotNil(t, cfg.LLM.Ollama)

	// Rule threshold defaults
	assert.Equal(t, 75.0, cfg.Rules.MachineUptimeCriticalPct)
	assert.Equal(t, 70.0, cfg.Rules.InventoryCriticalPct)
	assert.Equal(t, 92.0, cfg.Rules.WorkerAvailabilityPct)
	assert.Equal(t, 2.0, cfg.Rules.DemandSpikeSigma)
	assert.Equal(t, 95.0, cfg.Rules.UtilizationMaxPct)
	assert.Equal(t, 0.3, cfg.Rules.ComponentDelayedShare)

	// Orchestrator defaults
	assert.Equal(t, 60, cfg.Orchestrator.StageTimeoutSeconds)
	assert.Equal(t, 2, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 500, cfg.Orchestrator.BackoffBaseMillis)

	// History and audit defaults
	assert.NotEmpty(t, cfg.History.SQLitePath)
	assert.NotEmpty(t, cfg.Audit.LogPath)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Rate limit defaults
	assert.Equal(t, 12, cfg.RateLimit.AnalyzePerMinute)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name: "invalid port - too low",
			modifyFn: func(cfg *Config) {
				cfg.Server.Port = 0
			},
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name: "invalid port - too high",
			modifyFn: func(cfg *Config) {
				cfg.Server.Port = 70000
			},
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name: "tls without cert paths",
			modifyFn: func(cfg *Config) {
				cfg.Server.TLSEnabled = true
			},
			wantError: true,
			errorMsg:  "tls_cert_path is required",
		},
		{
			name: "invalid LLM provider",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Provider = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid provider",
		},
		{
			name: "anthropic with key but no model",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Anthropic["api_key"] = "test-key"
				delete(cfg.LLM.Anthropic, "model")
			},
			wantError: true,
			errorMsg:  "Anthropic model is required",
		},
		{
			name: "ollama without base url",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Provider = "ollama"
				delete(cfg.LLM.Ollama, "base_url")
			},
			wantError: true,
			errorMsg:  "Ollama base URL is required",
		},
		{
			name: "uptime threshold out of range",
			modifyFn: func(cfg *Config) {
				cfg.Rules.MachineUptimeCriticalPct = 150
			},
			wantError: true,
			errorMsg:  "must be in (0,100]",
		},
		{
			name: "non-positive demand spike sigma",
			modifyFn: func(cfg *Config) {
				cfg.Rules.DemandSpikeSigma = -1
			},
			wantError: true,
			errorMsg:  "must be positive",
		},
		{
			name: "delayed share not a fraction",
			modifyFn: func(cfg *Config) {
				cfg.Rules.ComponentDelayedShare = 1.5
			},
			wantError: true,
			errorMsg:  "must be in (0,1)",
		},
		{
			name: "zero stage timeout",
			modifyFn: func(cfg *Config) {
				cfg.Orchestrator.StageTimeoutSeconds = 0
			},
			wantError: true,
			errorMsg:  "must be at least 1 second",
		},
		{
			name: "negative retries",
			modifyFn: func(cfg *Config) {
				cfg.Orchestrator.MaxRetries = -1
			},
			wantError: true,
			errorMsg:  "cannot be negative",
		},
		{
			name: "missing sqlite path",
			modifyFn: func(cfg *Config) {
				cfg.History.SQLitePath = ""
			},
			wantError: true,
			errorMsg:  "sqlite_path is required",
		},
		{
			name: "missing audit log path",
			modifyFn: func(cfg *Config) {
				cfg.Audit.LogPath = ""
			},
			wantError: true,
			errorMsg:  "log_path is required",
		},
		{
			name: "invalid log level",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Level = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name: "invalid log format",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Format = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log format",
		},
		{
			name: "negative rate limit",
			modifyFn: func(cfg *Config) {
				cfg.RateLimit.AnalyzePerMinute = -5
			},
			wantError: true,
			errorMsg:  "cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()

			if tt.wantError {
				assert.NotEmpty(t, errs, "expected validation errors but got none")
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.errorMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected error message containing '%s', got: %v", tt.errorMsg, errs)
			} else {
				assert.Empty(t, errs, "expected no validation errors but got: %v", errs)
			}
		})
	}
}

// Missing credentials are not a validation error: the pipeline degrades
// to rule-engine-only output, so validation only marks the provider as
// unconfigured.
func TestValidate_MarksProviderConfigured(t *testing.T) {
	os.Unsetenv("ANTHROPIC_API_KEY")

	cfg := DefaultConfig()
	errs := cfg.Validate()
	assert.Empty(t, errs)
	assert.False(t, cfg.LLM.Configured, "no API key means rule-engine-only mode")

	cfg = DefaultConfig()
	cfg.LLM.Anthropic["api_key"] = "test-key"
	errs = cfg.Validate()
	assert.Empty(t, errs)
	assert.True(t, cfg.LLM.Configured)

	// Ollama needs no credentials at all.
	cfg = DefaultConfig()
	cfg.LLM.Provider = "ollama"
	errs = cfg.Validate()
	assert.Empty(t, errs)
	assert.True(t, cfg.LLM.Configured)
}

func TestConfigManagerLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090

llm:
  provider: "ollama"
  ollama:
    base_url: "http://ollama.internal:11434"
    model: "llama3"

rules:
  machine_uptime_critical_pct: 80
  demand_spike_sigma: 2.5

orchestrator:
  stage_timeout_seconds: 30
  max_retries: 1

history:
  sqlite_path: "/tmp/plantops-test.db"

logging:
  level: "debug"
  format: "text"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "http://ollama.internal:11434", cfg.LLM.Ollama["base_url"])
	assert.Equal(t, 80.0, cfg.Rules.MachineUptimeCriticalPct)
	assert.Equal(t, 2.5, cfg.Rules.DemandSpikeSigma)
	assert.Equal(t, 30, cfg.Orchestrator.StageTimeoutSeconds)
	assert.Equal(t, 1, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, "/tmp/plantops-test.db", cfg.History.SQLitePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Unset values fall back to defaults.
	assert.Equal(t, 70.0, cfg.Rules.InventoryCriticalPct)
	assert.Equal(t, 12, cfg.RateLimit.AnalyzePerMinute)
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	os.Setenv("PLANTOPS_HISTORY_DB", "/tmp/env-history.db")
	os.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	defer func() {
		os.Unsetenv("ANTHROPIC_API_KEY")
		os.Unsetenv("PLANTOPS_HISTORY_DB")
		os.Unsetenv("OLLAMA_BASE_URL")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
llm:
  provider: "anthropic"
  anthropic:
    model: "claude-3-5-sonnet-20241022"

history:
  sqlite_path: "/var/lib/plantops/file.db"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)

	assert.Equal(t, "env-anthropic-key", cfg.LLM.Anthropic["api_key"], "API key should come from environment")
	assert.Equal(t, "/tmp/env-history.db", cfg.History.SQLitePath, "history path should be overridden by environment")
	assert.Equal(t, "http://env-ollama:11434", cfg.LLM.Ollama["base_url"], "Ollama URL should be overridden by environment")
}

func TestConfigManagerMissingFile(t *testing.T) {
	mgr, err := NewConfigManager("/tmp/nonexistent-plantops-config.yaml")
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)
	assert.NotNil(t, cfg)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 75.0, cfg.Rules.MachineUptimeCriticalPct)
}

func TestConfigManagerValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 99999

llm:
  provider: "invalid-provider"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	err = mgr.Validate(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
