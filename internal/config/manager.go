package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("PLANTOPS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults plus env vars are a complete
	// configuration on their own.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No file, use defaults
		} else if os.IsNotExist(err) {
			// No file, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads. Rule thresholds
// picked up here apply to the next analysis run; in-flight runs keep the
// snapshot of thresholds they started with.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.tls_enabled", defaults.Server.TLSEnabled)
	m.viper.SetDefault("server.tls_cert_path", defaults.Server.TLSCertPath)
	m.viper.SetDefault("server.tls_key_path", defaults.Server.TLSKeyPath)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	// LLM defaults
	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.anthropic", defaults.LLM.Anthropic)
	m.viper.SetDefault("llm.openai", defaults.LLM.OpenAI)
	m.viper.SetDefault("llm.ollama", defaults.LLM.Ollama)

	// Rule threshold defaults
	m.viper.SetDefault("rules.machine_uptime_critical_pct", defaults.Rules.MachineUptimeCriticalPct)
	m.viper.SetDefault("rules.inventory_critical_pct", defaults.Rules.InventoryCriticalPct)
	m.viper.SetDefault("rules.worker_availability_pct", defaults.Rules.WorkerAvailabilityPct)
	m.viper.SetDefault("rules.demand_spike_sigma", defaults.Rules.DemandSpikeSigma)
	m.viper.SetDefault("rules.utilization_max_pct", defaults.Rules.UtilizationMaxPct)
	m.viper.SetDefault("rules.component_delayed_share", defaults.Rules.ComponentDelayedShare)

	// Orchestrator defaults
	m.viper.SetDefault("orchestrator.stage_timeout_seconds", defaults.Orchestrator.StageTimeoutSeconds)
	m.viper.SetDefault("orchestrator.max_retries", defaults.Orchestrator.MaxRetries)
	m.viper.SetDefault("orchestrator.backoff_base_ms", defaults.Orchestrator.BackoffBaseMillis)

	// History defaults
	m.viper.SetDefault("history.sqlite_path", defaults.History.SQLitePath)

	// Audit defaults
	m.viper.SetDefault("audit.log_path", defaults.Audit.LogPath)
	m.viper.SetDefault("audit.max_size_mb", defaults.Audit.MaxSizeMB)
	m.viper.SetDefault("audit.max_backups", defaults.Audit.MaxBackups)
	m.viper.SetDefault("audit.max_age_days", defaults.Audit.MaxAgeDays)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)

	// Rate limit defaults
	m.viper.SetDefault("ratelimit.analyze_per_minute", defaults.RateLimit.AnalyzePerMinute)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.TLSEnabled = m.viper.GetBool("server.tls_enabled")
	cfg.Server.TLSCertPath = m.viper.GetString("server.tls_cert_path")
	cfg.Server.TLSKeyPath = m.viper.GetString("server.tls_key_path")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	// LLM
	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.Anthropic = m.viper.GetStringMap("llm.anthropic")
	cfg.LLM.OpenAI = m.viper.GetStringMap("llm.openai")
	cfg.LLM.Ollama = m.viper.GetStringMap("llm.ollama")

	// Rules
	cfg.Rules.MachineUptimeCriticalPct = m.viper.GetFloat64("rules.machine_uptime_critical_pct")
	cfg.Rules.InventoryCriticalPct = m.viper.GetFloat64("rules.inventory_critical_pct")
	cfg.Rules.WorkerAvailabilityPct = m.viper.GetFloat64("rules.worker_availability_pct")
	cfg.Rules.DemandSpikeSigma = m.viper.GetFloat64("rules.demand_spike_sigma")
	cfg.Rules.UtilizationMaxPct = m.viper.GetFloat64("rules.utilization_max_pct")
	cfg.Rules.ComponentDelayedShare = m.viper.GetFloat64("rules.component_delayed_share")

	// Orchestrator
	cfg.Orchestrator.StageTimeoutSeconds = m.viper.GetInt("orchestrator.stage_timeout_seconds")
	cfg.Orchestrator.MaxRetries = m.viper.GetInt("orchestrator.max_retries")
	cfg.Orchestrator.BackoffBaseMillis = m.viper.GetInt("orchestrator.backoff_base_ms")

	// History
	cfg.History.SQLitePath = m.viper.GetString("history.sqlite_path")

	// Audit
	cfg.Audit.LogPath = m.viper.GetString("audit.log_path")
	cfg.Audit.MaxSizeMB = m.viper.GetInt("audit.max_size_mb")
	cfg.Audit.MaxBackups = m.viper.GetInt("audit.max_backups")
	cfg.Audit.MaxAgeDays = m.viper.GetInt("audit.max_age_days")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")

	// Rate limit
	cfg.RateLimit.AnalyzePerMinute = m.viper.GetInt("ratelimit.analyze_per_minute")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	// Anthropic API key from environment
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		if m.config.LLM.Anthropic == nil {
			m.config.LLM.Anthropic = make(map[string]interface{})
		}
		m.config.LLM.Anthropic["api_key"] = apiKey
	}

	// OpenAI API key from environment
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if m.config.LLM.OpenAI == nil {
			m.config.LLM.OpenAI = make(map[string]interface{})
		}
		m.config.LLM.OpenAI["api_key"] = apiKey
	}

	// Ollama base URL from environment
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if m.config.LLM.Ollama == nil {
			m.config.LLM.Ollama = make(map[string]interface{})
		}
		m.config.LLM.Ollama["base_url"] = baseURL
	}

	// Port from environment - only override if explicitly set
	if portEnv := os.Getenv("PLANTOPS_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}

	// History store path from environment
	if dbPath := os.Getenv("PLANTOPS_HISTORY_DB"); dbPath != "" {
		m.config.History.SQLitePath = dbPath
	}
}
