package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/chat-webhook-relay/internal/completion"
	"github.com/tjfontaine/chat-webhook-relay/internal/logstore"
	"github.com/tjfontaine/chat-webhook-relay/internal/server"
)

const maxBodyBytes = 1 << 20

// ProcessRequest is the /process request body. Context is passed through
// to the provider as-is.
type ProcessRequest struct {
	Prompt     string          `json:"prompt"`
	Context    json.RawMessage `json:"context,omitempty"`
	RecentLogs []string        `json:"recentLogs,omitempty"`
}

// ProcessResponse is the /process success body.
type ProcessResponse struct {
	Reply       string              `json:"reply"`
	Timestamp   string              `json:"timestamp"`
	LogMetrics  logstore.LogMetrics `json:"logMetrics"`
	ContextUsed bool                `json:"contextUsed"`
}

// FailureResponse is the /process body when the provider call fails.
type FailureResponse struct {
	Error      string              `json:"error"`
	Message    string              `json:"message"`
	Timestamp  string              `json:"timestamp"`
	LogMetrics logstore.LogMetrics `json:"logMetrics"`
}

// HandleProcess answers one prompt.
func (a *Agent) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, ok := SnapshotFromContext(ctx)
	if !ok {
		snap = a.snapshot(ctx)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		server.AddError(ctx, err)
		server.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt_required"})
		return
	}

	var req ProcessRequest
	if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		server.AddError(ctx, err)
		server.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt_required"})
		return
	}

	a.store.Record(ctx, logstore.TagThreadStart,
		fmt.Sprintf("metrics={%s} body=%s", snap.Metrics.Summary(), compact(body)))

	reply, err := a.answer(ctx, &req, snap)
	if err != nil {
		a.countCompletion(ctx, "error")
		server.AddError(ctx, err)
		a.logger.ErrorContext(ctx, "completion failed",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		a.store.Record(ctx, logstore.TagError,
			fmt.Sprintf("%s metrics={%s}", err.Error(), snap.Metrics.Summary()))

		server.WriteJSON(w, http.StatusInternalServerError, FailureResponse{
			Error:      "processing_failed",
			Message:    failureMessage(err),
			Timestamp:  a.timestamp(),
			LogMetrics: snap.Metrics,
		})
		return
	}
	a.countCompletion(ctx, "ok")

	a.store.Record(ctx, logstore.TagResponse,
		fmt.Sprintf("reply=%q metrics={%s}", reply, snap.Metrics.Summary()))

	server.WriteJSON(w, http.StatusOK, ProcessResponse{
		Reply:       reply,
		Timestamp:   a.timestamp(),
		LogMetrics:  snap.Metrics,
		ContextUsed: true,
	})
}

// answer returns the provider's reply, or the fallback when no provider is
// configured.
func (a *Agent) answer(ctx context.Context, req *ProcessRequest, snap Snapshot) (string, error) {
	if a.provider == nil {
		server.AddLogField(ctx, "provider", "fallback")
		return FallbackReply(req.Prompt, snap.Metrics), nil
	}
	server.AddLogField(ctx, "provider", a.provider.Name())

	blob, err := contextBlob(req, snap)
	if err != nil {
		return "", err
	}
	blob, truncated := a.budget.Fit(blob)

	ctx, span := a.tracer.Start(ctx, "agent.complete",
		trace.WithAttributes(
			attribute.String("completion.provider", a.provider.Name()),
			attribute.Bool("completion.context_truncated", truncated),
		),
	)
	defer span.End()

	if a.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ProviderTimeout)
		defer cancel()
	}

	resp, err := a.provider.Complete(ctx, &completion.Request{
		System:  SystemPreamble(snap.Metrics),
		Prompt:  req.Prompt,
		Context: blob,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	return resp.Text, nil
}

func (a *Agent) countCompletion(ctx context.Context, outcome string) {
	if a.completions == nil {
		return
	}
	a.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SystemPreamble describes the agent's recent operational state.
func SystemPreamble(m logstore.LogMetrics) string {
	return fmt.Sprintf("You are an operations assistant answering questions from a chat workspace. "+
		"Current system status: %d errors in the last %d log lines, "+
		"last activity at %s, %d recent requests. "+
		"Use the attached context when it is relevant to the question.",
		m.ErrorCount, m.TotalLines, m.LastActivity(), m.RecentRequests)
}

// FallbackReply is the deterministic answer used without a provider.
func FallbackReply(prompt string, m logstore.LogMetrics) string {
	return fmt.Sprintf("Echo: %s\n\nContext: %d log lines scanned, %d errors, %d health checks, %d recent requests, last activity %s.",
		prompt, m.TotalLines, m.ErrorCount, m.HealthChecks, m.RecentRequests, m.LastActivity())
}

type combinedContext struct {
	Client        json.RawMessage     `json:"client,omitempty"`
	ServerMetrics logstore.LogMetrics `json:"serverMetrics"`
	LogSample     []string            `json:"logSample"`
	RecentLogs    []string            `json:"recentLogs,omitempty"`
}

func contextBlob(req *ProcessRequest, snap Snapshot) (string, error) {
	sample := snap.Sample
	if sample == nil {
		sample = []string{}
	}
	b, err := json.MarshalIndent(combinedContext{
		Client:        req.Context,
		ServerMetrics: snap.Metrics,
		LogSample:     sample,
		RecentLogs:    req.RecentLogs,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	return string(b), nil
}

// failureMessage is the category returned to callers. Provider error
// bodies stay in the log.
func failureMessage(err error) string {
	var apiErr *completion.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "completion provider timed out"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	case errors.As(err, &apiErr):
		return "completion provider rejected the request"
	case errors.Is(err, completion.ErrEmptyCompletion):
		return "completion provider returned no text"
	default:
		return "completion provider unavailable"
	}
}

func compact(body []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return string(body)
	}
	return buf.String()
}
