package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/chat-webhook-relay/internal/event"
	"github.com/tjfontaine/chat-webhook-relay/internal/logstore"
	"github.com/tjfontaine/chat-webhook-relay/internal/server"
)

// DefaultAgentTimeout bounds a single call to the agent.
const DefaultAgentTimeout = 30 * time.Second

// maxAgentResponse caps how much of an agent reply is read.
const maxAgentResponse = 1 << 20

// ErrAgentUnavailable means the agent could not be reached in time:
// connection refused, DNS failure, or timeout.
var ErrAgentUnavailable = errors.New("relay: processing agent unavailable")

// AgentStatusError is a non-2xx answer from the agent.
type AgentStatusError struct {
	StatusCode int
	Body       string
}

func (e *AgentStatusError) Error() string {
	return fmt.Sprintf("relay: processing agent returned status %d: %s", e.StatusCode, e.Body)
}

// ProcessRequest is the body POSTed to the agent's /process endpoint.
type ProcessRequest struct {
	Prompt     string        `json:"prompt"`
	Context    event.Context `json:"context"`
	RecentLogs []string      `json:"recentLogs,omitempty"`
}

// ProcessResponse is the agent's successful answer.
type ProcessResponse struct {
	Reply       string              `json:"reply"`
	Timestamp   string              `json:"timestamp"`
	LogMetrics  logstore.LogMetrics `json:"logMetrics"`
	ContextUsed bool                `json:"contextUsed"`
}

// Agent is what the relay needs from the processing agent.
type Agent interface {
	Process(ctx context.Context, req *ProcessRequest) (*ProcessResponse, error)
}

// AgentClientOption configures an AgentClient.
type AgentClientOption func(*AgentClient)

// WithAgentHTTPClient replaces the default client. Its Timeout is overwritten
// by the configured agent timeout.
func WithAgentHTTPClient(c *http.Client) AgentClientOption {
	return func(a *AgentClient) {
		a.client = c
	}
}

// WithAgentTimeout overrides DefaultAgentTimeout.
func WithAgentTimeout(d time.Duration) AgentClientOption {
	return func(a *AgentClient) {
		a.timeout = d
	}
}

// AgentClient calls the agent over HTTP. A single attempt is made; retries
// are left to the platform's webhook redelivery.
type AgentClient struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewAgentClient creates a client for the agent at baseURL.
func NewAgentClient(baseURL string, opts ...AgentClientOption) *AgentClient {
	a := &AgentClient{
		url:     strings.TrimSuffix(baseURL, "/") + "/process",
		timeout: DefaultAgentTimeout,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.client.Timeout = a.timeout
	return a
}

// Process forwards req. Transport failures and timeouts wrap
// ErrAgentUnavailable; non-2xx replies are *AgentStatusError.
func (a *AgentClient) Process(ctx context.Context, req *ProcessRequest) (*ProcessResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal process request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if id := server.GetRequestID(ctx); id != "" {
		httpReq.Header.Set(server.RequestIDHeader, id)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAgentResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrAgentUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AgentStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out ProcessResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal process response: %w", err)
	}
	return &out, nil
}
