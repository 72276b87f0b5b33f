package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/plantops/plantops-ai/internal/llm/types"
)

// Package openai provides the OpenAI provider for the LLM adapter.
//
// Responsibilities:
//   - Implement the provider client interface via the chat completions API
//   - Report token usage from the API response
//   - Error handling with status and body surfaced to the caller
//
// Configuration:
//   - OPENAI_API_KEY: Required. API key from OpenAI
//   - OPENAI_MODEL: Optional. Model ID (defaults to gpt-4o)
//   - OPENAI_BASE_URL: Optional. Base URL (for proxies and compatible endpoints)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o"
	DefaultMaxTokens = 4096
	DefaultTimeout   = 120 * time.Second
)

// Client implements the provider client interface for OpenAI.
type Client struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	httpClient *http.Client
}

// OpenAI API structures
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewClient creates a new OpenAI client. Empty model falls back to
// OPENAI_MODEL then DefaultModel.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:    apiKey,
		model:     model,
		maxTokens: DefaultMaxTokens,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// Model returns the configured model ID.
func (c *Client) Model() string { return c.model }

// SetBaseURL overrides the OpenAI API base URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = url }

// Complete sends a conversation to the chat completions API.
func (c *Client) Complete(ctx context.Context, messages []types.Message) (string, *types.TokenUsage, error) {
	openAIMessages := make([]openAIMessage, len(messages))
	for i, msg := range messages {
		openAIMessages[i] = openAIMessage{Role: msg.Role, Content: msg.Content}
	}

	request := openAIChatRequest{
		Model:     c.model,
		Messages:  openAIMessages,
		MaxTokens: c.maxTokens,
	}

	response, err := c.makeRequest(ctx, "/chat/completions", request)
	if err != nil {
		return "", nil, fmt.Errorf("OpenAI API request failed: %w", err)
	}

	var chatResponse openAIChatResponse
	if err := json.Unmarshal(response, &chatResponse); err != nil {
		return "", nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}

	if len(chatResponse.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in OpenAI response")
	}

	usage := &types.TokenUsage{
		PromptTokens:     chatResponse.Usage.PromptTokens,
		CompletionTokens: chatResponse.Usage.CompletionTokens,
		TotalTokens:      chatResponse.Usage.TotalTokens,
	}
	return chatResponse.Choices[0].Message.Content, usage, nil
}

// makeRequest makes an HTTP request to the OpenAI API
func (c *Client) makeRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API error (status %d): %s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}
