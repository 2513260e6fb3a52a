package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/tjfontaine/chat-webhook-relay/internal/config"
	"github.com/tjfontaine/chat-webhook-relay/internal/testutil"
)

func TestOpenAI_Complete(t *testing.T) {
	// Skip if no API key and not in replay mode
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("VCR_MODE") == "record" {
		t.Skip("Skipping test: OPENAI_API_KEY not set")
	}

	recorder, cleanup := testutil.NewVCRRecorder(t, "openai_complete")
	defer cleanup()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = "test-key"
	}

	p := NewOpenAI(apiKey, WithOpenAIHTTPClient(testutil.VCRHTTPClient(recorder)))

	resp, err := p.Complete(context.Background(), &Request{
		System:    "You are an operations assistant.",
		Prompt:    "ping",
		Context:   `{"serverMetrics":{"errorCount":0}}`,
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text == "" {
		t.Error("Expected content in response")
	}
	if !strings.HasPrefix(resp.Model, "gpt-4o-mini") {
		t.Errorf("Model = %q", resp.Model)
	}
}

func TestOpenAI_RequestShape(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"m","choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", WithOpenAIBaseURL(srv.URL+"/v1/"))
	resp, err := p.Complete(context.Background(), &Request{System: "sys", Prompt: "hello", Context: "{}"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "hi" {
		t.Errorf("Text = %q", resp.Text)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "sys" {
		t.Errorf("system message = %+v", got.Messages[0])
	}
	if got.Messages[1].Content != "hello\n\nContext:\n{}" {
		t.Errorf("user message = %q", got.Messages[1].Content)
	}
	if got.Model != defaultOpenAIModel || got.MaxTokens != defaultMaxTokens {
		t.Errorf("model/max_tokens = %s/%d", got.Model, got.MaxTokens)
	}
}

func TestAnthropic_Complete(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "ak-test" {
			t.Errorf("x-api-key = %q", key)
		}
		if v := r.Header.Get("anthropic-version"); v != defaultAnthropicVersion {
			t.Errorf("anthropic-version = %q", v)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"id":"msg_1","model":"claude-x","content":[{"type":"text","text":"part one, "},{"type":"text","text":"part two"}],"stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	p := NewAnthropic("ak-test", WithAnthropicBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), &Request{System: "sys", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "part one, part two" {
		t.Errorf("Text = %q", resp.Text)
	}
	if got.System != "sys" || len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("request = %+v", got)
	}
	if got.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d", got.MaxTokens)
	}
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"type":"rate_limit_error","code":"rate_limit_exceeded","message":"slow down"}}`)
	}))
	defer srv.Close()

	providers := []Provider{
		NewOpenAI("k", WithOpenAIBaseURL(srv.URL)),
		NewAnthropic("k", WithAnthropicBaseURL(srv.URL)),
	}
	for _, p := range providers {
		t.Run(p.Name(), func(t *testing.T) {
			_, err := p.Complete(context.Background(), &Request{Prompt: "x"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "slow down" {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestComplete_EmptyAndMalformed(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "no choices", body: `{"choices":[]}`, wantErr: ErrEmptyCompletion},
		{name: "malformed", body: `{"choices":`, wantErr: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewOpenAI("k", WithOpenAIBaseURL(srv.URL)).Complete(context.Background(), &Request{Prompt: "x"})
			if err == nil {
				t.Fatal("Complete() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew(t *testing.T) {
	p, err := New(config.CompletionConfig{Provider: "openai"})
	if err != nil || p != nil {
		t.Fatalf("New() without key = %v, %v; want nil, nil", p, err)
	}

	p, err = New(config.CompletionConfig{Provider: "anthropic", APIKey: "k", Model: "claude-custom", MaxTokens: 10})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a, ok := p.(*Anthropic)
	if !ok {
		t.Fatalf("New() = %T, want *Anthropic", p)
	}
	if a.model != "claude-custom" || a.maxTokens != 10 {
		t.Errorf("model/maxTokens = %s/%d", a.model, a.maxTokens)
	}

	p, err = New(config.CompletionConfig{APIKey: "k", BaseURL: "http://localhost:9999/v1/"})
	if err != nil {
		t.Fatal(err)
	}
	if o := p.(*OpenAI); o.baseURL != "http://localhost:9999/v1" {
		t.Errorf("baseURL = %q", o.baseURL)
	}

	if _, err := New(config.CompletionConfig{Provider: "mystery", APIKey: "k"}); err == nil {
		t.Error("New() with unknown provider: error = nil")
	}
}
