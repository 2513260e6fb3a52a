// Package completion talks to the optional text-generation service the
// processing agent uses to answer prompts.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/chat-webhook-relay/internal/config"
)

const userAgent = "chat-webhook-relay/1.0"

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("completion: provider returned no text")

// Request is one completion call: a system preamble, the user prompt and a
// serialized context blob appended to it.
type Request struct {
	System    string
	Prompt    string
	Context   string
	Model     string
	MaxTokens int
}

// UserMessage is the prompt with the context blob attached.
func (r *Request) UserMessage() string {
	if r.Context == "" {
		return r.Prompt
	}
	return r.Prompt + "\n\nContext:\n" + r.Context
}

// Response is the provider's answer.
type Response struct {
	Text  string
	Model string
}

// Provider turns a Request into text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// APIError is an error reported by the provider's HTTP API.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("completion API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("completion API error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("completion API error (status %d): %s", e.StatusCode, e.Message)
}

// Option configures the HTTP client a provider uses.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New builds the provider selected by cfg. It returns (nil, nil) when no
// API key is configured; callers then use their fallback.
func New(cfg config.CompletionConfig, opts ...Option) (Provider, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	o := options{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Provider {
	case "openai", "":
		c := NewOpenAI(cfg.APIKey, WithOpenAIHTTPClient(o.httpClient))
		if cfg.BaseURL != "" {
			c.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		if cfg.Model != "" {
			c.model = cfg.Model
		}
		if cfg.MaxTokens > 0 {
			c.maxTokens = cfg.MaxTokens
		}
		return c, nil
	case "anthropic":
		c := NewAnthropic(cfg.APIKey, WithAnthropicHTTPClient(o.httpClient))
		if cfg.BaseURL != "" {
			c.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		if cfg.Model != "" {
			c.model = cfg.Model
		}
		if cfg.MaxTokens > 0 {
			c.maxTokens = cfg.MaxTokens
		}
		return c, nil
	default:
		return nil, fmt.Errorf("completion: unsupported provider %q", cfg.Provider)
	}
}

// parseAPIError decodes the {"error": {...}} envelope both APIs use.
func parseAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error *struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		apiErr.Type = envelope.Error.Type
		apiErr.Code = envelope.Error.Code
		if envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		}
	}
	return apiErr
}
