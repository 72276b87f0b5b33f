package config

import "context"

// Package config provides configuration management for plantops-ai.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (rule thresholds are hot-reloadable)
//   - Manage sensitive data (LLM API keys)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (PLANTOPS_* prefix, plus provider API keys)
//   2. YAML config file (default: /etc/plantops/config.yaml)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - port: Listen port (default 8090)
//      - tls_enabled / tls_cert_path / tls_key_path
//      - allowed_origins: origins permitted to open WebSocket connections
//
//   2. LLM Provider
//      - provider: "anthropic" | "openai" | "ollama" | "" (rule-engine-only)
//      - per-provider maps: api_key, model, max_tokens, base_url
//
//   3. Rules
//      - threshold overrides for the deterministic rule battery
//
//   4. Orchestrator
//      - stage_timeout_seconds, max_retries, backoff_base_ms
//
//   5. History
//      - sqlite_path: historical observation store used for model training
//
//   6. Audit
//      - log_path, max_size_mb, max_backups, max_age_days
//
//   7. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//
//   8. RateLimit
//      - analyze_per_minute: token-bucket rate for the analyze endpoint

// RuleThresholds carries the tunable cutoffs of the rule battery.
// Zero values are replaced by defaults at load time.
type RuleThresholds struct {
	MachineUptimeCriticalPct float64
	InventoryCriticalPct     float64
	WorkerAvailabilityPct    float64
	DemandSpikeSigma         float64
	UtilizationMaxPct        float64
	ComponentDelayedShare    float64
}

// Config contains all configuration fields.
type Config struct {
	Server struct {
		Port           int
		TLSEnabled     bool
		TLSCertPath    string
		TLSKeyPath     string
		AllowedOrigins []string
	}

	LLM struct {
		Provider  string
		Anthropic map[string]interface{}
		OpenAI    map[string]interface{}
		Ollama    map[string]interface{}
		// Configured is set during validation. False means the
		// orchestrator runs in rule-engine-only mode.
		Configured bool
	}

	Rules RuleThresholds

	Orchestrator struct {
		StageTimeoutSeconds int
		MaxRetries          int
		BackoffBaseMillis   int
	}

	History struct {
		SQLitePath string
	}

	Audit struct {
		LogPath    string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	Logging struct {
		Level  string
		Format string
	}

	RateLimit struct {
		AnalyzePerMinute int
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/plantops/config.yaml")
}
