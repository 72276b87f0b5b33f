package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/plantops/plantops-ai/internal/llm/types"
)

// Package anthropic provides the Anthropic provider for the LLM adapter.
//
// Responsibilities:
//   - Implement the provider client interface for the Anthropic messages API
//   - Extract the system message into the top-level system field
//   - Report token usage from the API response
//   - Error handling with status and body surfaced to the caller
//
// Configuration:
//   - ANTHROPIC_API_KEY: Required. API key from Anthropic
//   - ANTHROPIC_MODEL: Optional. Model ID (defaults to claude-3-5-sonnet-20241022)
//   - ANTHROPIC_MAX_TOKENS: Optional. Maximum tokens in response (default 2048)
//   - ANTHROPIC_BASE_URL: Optional. Base URL (for proxies)

const (
	DefaultBaseURL    = "https://api.anthropic.com/v1"
	DefaultModel      = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens  = 2048
	DefaultAPIVersion = "2023-06-01"
	DefaultTimeout    = 120 * time.Second
)

// Client implements the provider client interface for Anthropic.
type Client struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	httpClient *http.Client
}

// Anthropic API structures
type anthMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []anthMessage `json:"messages"`
	System    string        `json:"system,omitempty"`
}

type anthResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string    `json:"model"`
	StopReason string    `json:"stop_reason"`
	Usage      anthUsage `json:"usage"`
}

type anthUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewClient creates a new Anthropic client. Empty model falls back to
// ANTHROPIC_MODEL then DefaultModel.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	if model == "" {
		model = os.Getenv("ANTHROPIC_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}

	maxTokens := DefaultMaxTokens
	if v := os.Getenv("ANTHROPIC_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxTokens = n
		}
	}

	baseURL := os.Getenv("ANTHROPIC_BASE_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// Model returns the configured model ID.
func (c *Client) Model() string { return c.model }

// SetBaseURL overrides the Anthropic API base URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = url }

// Complete sends a conversation to the messages API and returns the
// concatenated text content blocks.
func (c *Client) Complete(ctx context.Context, messages []types.Message) (string, *types.TokenUsage, error) {
	system, filtered := extractSystem(messages)

	anthMessages := make([]anthMessage, len(filtered))
	for i, msg := range filtered {
		anthMessages[i] = anthMessage{Role: msg.Role, Content: msg.Content}
	}

	req := anthRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  anthMessages,
		System:    system,
	}

	resp, err := c.makeRequest(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("Anthropic API request failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := &types.TokenUsage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	return text, usage, nil
}

func (c *Client) makeRequest(ctx context.Context, req anthRequest) (*anthResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", DefaultAPIVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(body))
	}

	var resp anthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// extractSystem pulls the first system message out of the conversation.
// Anthropic takes the system prompt as a top-level field, not a message.
func extractSystem(messages []types.Message) (string, []types.Message) {
	var system string
	filtered := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" && system == "" {
			system = msg.Content
			continue
		}
		filtered = append(filtered, msg)
	}
	return system, filtered
}
