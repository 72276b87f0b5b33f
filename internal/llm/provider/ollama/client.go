package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/plantops/plantops-ai/internal/llm/types"
)

// Package ollama provides the Ollama provider for the LLM adapter.
//
// Responsibilities:
//   - Implement the provider client interface via the /api/chat endpoint
//   - Approximate token counting (Ollama does not expose a tokenizer)
//   - Connection error handling with a hint that the daemon may be down
//
// Configuration:
//   - OLLAMA_BASE_URL: Optional. URL to the Ollama instance (default http://localhost:11434)
//   - OLLAMA_MODEL: Optional. Model name (default llama3)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3"
	DefaultTimeout = 300 * time.Second
)

// Client implements the provider client interface for Ollama.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// Ollama API structures
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// NewClient creates a new Ollama client.
func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// SetBaseURL overrides the Ollama base URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = strings.TrimSuffix(url, "/") }

// Complete sends a conversation to /api/chat.
// Token usage is approximate; Ollama does not expose its tokenizer.
func (c *Client) Complete(ctx context.Context, messages []types.Message) (string, *types.TokenUsage, error) {
	ollamaMessages := make([]ollamaMessage, len(messages))
	promptChars := 0
	for i, msg := range messages {
		ollamaMessages[i] = ollamaMessage{Role: msg.Role, Content: msg.Content}
		promptChars += len(msg.Content)
	}

	req := ollamaChatRequest{
		Model:    c.model,
		Messages: ollamaMessages,
		Stream:   false,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("Ollama request failed (is the daemon running at %s?): %w", c.baseURL, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("Ollama API error %d: %s", httpResp.StatusCode, string(body))
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	text := resp.Message.Content
	usage := &types.TokenUsage{
		PromptTokens:     promptChars / 4,
		CompletionTokens: types.EstimateTokens(text),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return text, usage, nil
}
