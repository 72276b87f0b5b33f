package adapter

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/plantops/plantops-ai/internal/llm/provider/anthropic"
	"github.com/plantops/plantops-ai/internal/llm/provider/ollama"
	"github.com/plantops/plantops-ai/internal/llm/provider/openai"
	"github.com/plantops/plantops-ai/internal/llm/types"
	"github.com/plantops/plantops-ai/internal/metrics"
)

// ProviderType identifies which LLM provider is configured
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
	ProviderNone      ProviderType = "none" // No LLM configured
)

// ErrProviderNotConfigured is returned when a completion is attempted without a configured provider
var ErrProviderNotConfigured = fmt.Errorf("LLM provider not configured")

// Config holds LLM provider configuration
type Config struct {
	Provider ProviderType `json:"provider"`
	APIKey   string       `json:"api_key"`  // For Anthropic/OpenAI
	BaseURL  string       `json:"base_url"` // For Ollama
	Model    string       `json:"model"`    // Model name
}

// client is the minimal surface every provider implements.
type client interface {
	Complete(ctx context.Context, messages []types.Message) (string, *types.TokenUsage, error)
	Model() string
}

// llmAdapterImpl is the unified adapter implementation
type llmAdapterImpl struct {
	provider ProviderType
	model    string // Model name for metrics
	client   client
}

// NewLLMAdapter creates an adapter based on configuration.
// A missing provider or missing credentials yields an unconfigured adapter,
// not an error: the pipeline degrades to rule-engine-only analysis.
func NewLLMAdapter(cfg *Config) (LLMAdapter, error) {
	if cfg == nil {
		// Try environment variables as fallback
		cfg = &Config{
			Provider: ProviderType(os.Getenv("PLANTOPS_LLM_PROVIDER")),
			APIKey:   os.Getenv("PLANTOPS_LLM_API_KEY"),
			BaseURL:  os.Getenv("PLANTOPS_LLM_BASE_URL"),
			Model:    os.Getenv("PLANTOPS_LLM_MODEL"),
		}
	}

	if cfg.Provider == "" || cfg.Provider == ProviderNone {
		return &llmAdapterImpl{provider: ProviderNone}, nil
	}

	var c client
	var err error

	switch cfg.Provider {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return &llmAdapterImpl{provider: ProviderNone}, nil
		}
		c, err = anthropic.NewClient(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return &llmAdapterImpl{provider: ProviderNone}, nil
		}
		c, err = openai.NewClient(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}

	case ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
		c, err = ollama.NewClient(cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	return &llmAdapterImpl{
		provider: cfg.Provider,
		model:    c.Model(),
		client:   c,
	}, nil
}

// Complete delegates to the provider-specific client.
func (a *llmAdapterImpl) Complete(ctx context.Context, messages []types.Message) (string, *types.TokenUsage, error) {
	if a.provider == ProviderNone {
		return "", nil, ErrProviderNotConfigured
	}

	start := time.Now()
	defer func() {
		metrics.LLMRequestDuration.WithLabelValues(string(a.provider), a.model).Observe(time.Since(start).Seconds())
	}()

	text, usage, err := a.client.Complete(ctx, messages)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(string(a.provider), a.model, "error").Inc()
		return "", nil, err
	}
	metrics.LLMRequestsTotal.WithLabelValues(string(a.provider), a.model, "success").Inc()

	if usage != nil {
		metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "input").Add(float64(usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "output").Add(float64(usage.CompletionTokens))
	}
	return text, usage, nil
}

func (a *llmAdapterImpl) Provider() ProviderType { return a.provider }

func (a *llmAdapterImpl) Model() string { return a.model }

func (a *llmAdapterImpl) Configured() bool { return a.provider != ProviderNone }
