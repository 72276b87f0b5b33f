package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
// Missing LLM credentials are not an error: the pipeline degrades to
// rule-engine-only output, so validation only marks the provider as
// unconfigured.
func (c *Config) Validate() []error {
	var errs []error

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.TLSEnabled {
		if c.Server.TLSCertPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: "tls_cert_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSCertPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: fmt.Sprintf("certificate file does not exist: %s", c.Server.TLSCertPath),
			})
		}

		if c.Server.TLSKeyPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: "tls_key_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSKeyPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: fmt.Sprintf("key file does not exist: %s", c.Server.TLSKeyPath),
			})
		}
	}

	// LLM provider. Empty provider is valid and means rule-engine-only.
	validProviders := map[string]bool{
		"":          true,
		"none":      true,
		"anthropic": true,
		"openai":    true,
		"ollama":    true,
	}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: anthropic, openai, ollama, none", c.LLM.Provider),
		})
	}

	switch c.LLM.Provider {
	case "anthropic":
		hasKey := false
		if apiKey, ok := c.LLM.Anthropic["api_key"].(string); ok && apiKey != "" {
			hasKey = true
		} else if os.Getenv("ANTHROPIC_API_KEY") != "" {
			hasKey = true
		}
		c.LLM.Configured = hasKey

		if hasKey {
			if model, ok := c.LLM.Anthropic["model"].(string); !ok || model == "" {
				errs = append(errs, &ValidationError{
					Field:   "llm.anthropic.model",
					Message: "Anthropic model is required",
				})
			}
		}

	case "openai":
		hasKey := false
		if apiKey, ok := c.LLM.OpenAI["api_key"].(string); ok && apiKey != "" {
			hasKey = true
		} else if os.Getenv("OPENAI_API_KEY") != "" {
			hasKey = true
		}
		c.LLM.Configured = hasKey

		if hasKey {
			if model, ok := c.LLM.OpenAI["model"].(string); !ok || model == "" {
				errs = append(errs, &ValidationError{
					Field:   "llm.openai.model",
					Message: "OpenAI model is required",
				})
			}
		}

	case "ollama":
		// No API key needed, a reachable base URL is the whole setup.
		c.LLM.Configured = true

		if baseURL, ok := c.LLM.Ollama["base_url"].(string); !ok || baseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.ollama.base_url",
				Message: "Ollama base URL is required",
			})
		}
		if model, ok := c.LLM.Ollama["model"].(string); !ok || model == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.ollama.model",
				Message: "Ollama model is required",
			})
		}

	default:
		c.LLM.Configured = false
	}

	// Rule thresholds
	if c.Rules.MachineUptimeCriticalPct <= 0 || c.Rules.MachineUptimeCriticalPct > 100 {
		errs = append(errs, &ValidationError{
			Field:   "rules.machine_uptime_critical_pct",
			Message: fmt.Sprintf("must be in (0,100], got %.1f", c.Rules.MachineUptimeCriticalPct),
		})
	}
	if c.Rules.InventoryCriticalPct <= 0 || c.Rules.InventoryCriticalPct > 100 {
		errs = append(errs, &ValidationError{
			Field:   "rules.inventory_critical_pct",
			Message: fmt.Sprintf("must be in (0,100], got %.1f", c.Rules.InventoryCriticalPct),
		})
	}
	if c.Rules.WorkerAvailabilityPct <= 0 || c.Rules.WorkerAvailabilityPct > 100 {
		errs = append(errs, &ValidationError{
			Field:   "rules.worker_availability_pct",
			Message: fmt.Sprintf("must be in (0,100], got %.1f", c.Rules.WorkerAvailabilityPct),
		})
	}
	if c.Rules.DemandSpikeSigma <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "rules.demand_spike_sigma",
			Message: fmt.Sprintf("must be positive, got %.1f", c.Rules.DemandSpikeSigma),
		})
	}
	if c.Rules.ComponentDelayedShare <= 0 || c.Rules.ComponentDelayedShare >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "rules.component_delayed_share",
			Message: fmt.Sprintf("must be in (0,1), got %.2f", c.Rules.ComponentDelayedShare),
		})
	}

	// Orchestrator
	if c.Orchestrator.StageTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "orchestrator.stage_timeout_seconds",
			Message: fmt.Sprintf("must be at least 1 second, got %d", c.Orchestrator.StageTimeoutSeconds),
		})
	}
	if c.Orchestrator.MaxRetries < 0 {
		errs = append(errs, &ValidationError{
			Field:   "orchestrator.max_retries",
			Message: fmt.Sprintf("cannot be negative, got %d", c.Orchestrator.MaxRetries),
		})
	}
	if c.Orchestrator.BackoffBaseMillis < 1 {
		errs = append(errs, &ValidationError{
			Field:   "orchestrator.backoff_base_ms",
			Message: fmt.Sprintf("must be at least 1ms, got %d", c.Orchestrator.BackoffBaseMillis),
		})
	}

	// History store
	if c.History.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "history.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	// Audit
	if c.Audit.LogPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "audit.log_path",
			Message: "log_path is required",
		})
	}
	if c.Audit.MaxSizeMB < 1 {
		errs = append(errs, &ValidationError{
			Field:   "audit.max_size_mb",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Audit.MaxSizeMB),
		})
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	// Rate limit
	if c.RateLimit.AnalyzePerMinute < 0 {
		errs = append(errs, &ValidationError{
			Field:   "ratelimit.analyze_per_minute",
			Message: fmt.Sprintf("cannot be negative, got %d", c.RateLimit.AnalyzePerMinute),
		})
	}

	return errs
}
