package adapter

import (
	"context"

	"github.com/plantops/plantops-ai/internal/llm/types"
)

// Package adapter provides a unified interface for different LLM providers.
//
// Responsibilities:
//   - Abstract differences between LLM providers (Anthropic, OpenAI, Ollama)
//   - Provide a single interface for all completion calls
//   - Normalize system/user message handling across providers
//   - Token usage accounting via Prometheus metrics
//   - Degraded mode when no provider is configured
//
// Supported Providers:
//   1. Anthropic: Claude models via the messages API
//   2. OpenAI: GPT models via the chat completions API
//   3. Ollama: Local models (llama3, mistral, etc.) via /api/chat
//
// Degraded Mode:
//   When the provider is empty or "none", or credentials are missing,
//   NewLLMAdapter returns a working adapter whose Complete always returns
//   ErrProviderNotConfigured. Callers fall back to rule-engine-only
//   analysis rather than failing at startup.
//
// Integration Points:
//   - Reasoning Engine: the only caller; one Complete per agent stage
//   - Metrics: requests, duration, and token counters per provider/model

// LLMAdapter defines the unified interface for LLM providers.
type LLMAdapter interface {
	// Complete sends a conversation and returns the completion text.
	// messages: list of {role: "user"|"assistant"|"system", content: "..."}
	// Usage is nil when the provider does not report it.
	Complete(ctx context.Context, messages []types.Message) (string, *types.TokenUsage, error)

	// Provider returns the configured provider type.
	Provider() ProviderType

	// Model returns the configured model identifier, or "" when unconfigured.
	Model() string

	// Configured reports whether a real provider is wired in.
	// When false, Complete always returns ErrProviderNotConfigured.
	Configured() bool
}
