package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8090
	cfg.Server.TLSEnabled = false
	cfg.Server.TLSCertPath = ""
	cfg.Server.TLSKeyPath = ""

	// LLM defaults. An empty provider means the orchestrator runs in
	// rule-engine-only mode.
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Anthropic = map[string]interface{}{
		"model":      "claude-3-5-sonnet-20241022",
		"max_tokens": 2048,
	}
	cfg.LLM.OpenAI = map[string]interface{}{
		"model":      "gpt-4",
		"max_tokens": 2048,
	}
	cfg.LLM.Ollama = map[string]interface{}{
		"base_url": "http://localhost:11434",
		"model":    "llama3",
	}

	// Rule threshold defaults, derived from line master data and domain
	// knowledge.
	cfg.Rules.MachineUptimeCriticalPct = 75.0
	cfg.Rules.InventoryCriticalPct = 70.0
	cfg.Rules.WorkerAvailabilityPct = 92.0
	cfg.Rules.DemandSpikeSigma = 2.0
	cfg.Rules.UtilizationMaxPct = 95.0
	cfg.Rules.ComponentDelayedShare = 0.3

	// Orchestrator defaults
	cfg.Orchestrator.StageTimeoutSeconds = 60
	cfg.Orchestrator.MaxRetries = 2
	cfg.Orchestrator.BackoffBaseMillis = 500

	// History defaults
	cfg.History.SQLitePath = "/var/lib/plantops/plantops-ai.db"

	// Audit defaults
	cfg.Audit.LogPath = "/var/log/plantops/decisions.log"
	cfg.Audit.MaxSizeMB = 50
	cfg.Audit.MaxBackups = 5
	cfg.Audit.MaxAgeDays = 90

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Rate limit defaults. 0 disables limiting.
	cfg.RateLimit.AnalyzePerMinute = 12

	return cfg
}
