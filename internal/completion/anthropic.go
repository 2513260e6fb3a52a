package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
)

// AnthropicOption configures the Anthropic client.
type AnthropicOption func(*Anthropic)

// WithAnthropicBaseURL sets a custom base URL.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(c *Anthropic) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(httpClient *http.Client) AnthropicOption {
	return func(c *Anthropic) {
		c.httpClient = httpClient
	}
}

// Anthropic calls the Messages API.
type Anthropic struct {
	apiKey     string
	baseURL    string
	version    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewAnthropic creates an Anthropic Messages client.
func NewAnthropic(apiKey string, opts ...AnthropicOption) *Anthropic {
	c := &Anthropic{
		apiKey:     apiKey,
		baseURL:    defaultAnthropicBaseURL,
		version:    defaultAnthropicVersion,
		model:      defaultAnthropicModel,
		maxTokens:  defaultMaxTokens,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Anthropic) Name() string { return "anthropic" }

type messagesRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete sends a non-streaming messages request.
func (c *Anthropic) Complete(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	body, err := json.Marshal(messagesRequest{
		Model:     model,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.UserMessage()}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	var result messagesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" || block.Type == "" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyCompletion
	}

	return &Response{Text: text.String(), Model: result.Model}, nil
}

func (c *Anthropic) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)
	req.Header.Set("User-Agent", userAgent)
}
