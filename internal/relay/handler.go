// Package relay is the HTTP front door for chat-platform webhooks. It
// authenticates each delivery, pulls out the user's text, hands it to the
// processing agent and translates the answer back into a chat reply.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/chat-webhook-relay/internal/event"
	"github.com/tjfontaine/chat-webhook-relay/internal/server"
	"github.com/tjfontaine/chat-webhook-relay/internal/signature"
)

const (
	// MaxBodyBytes caps inbound webhook bodies.
	MaxBodyBytes = 1 << 20

	NoTextMessage          = "No text to process"
	UnavailableMessage     = "Sorry, I can't reach the assistant right now. Please try again in a moment."
	ProcessingErrorMessage = "Sorry, something went wrong while processing your message."
	InvalidPayloadMessage  = "Sorry, I couldn't read that request."

	responseTypeInChannel = "in_channel"
)

// ChatReply is the body returned to the chat platform.
type ChatReply struct {
	Text         string `json:"text,omitempty"`
	ResponseType string `json:"response_type,omitempty"`
	Error        string `json:"error,omitempty"`
}

// PanicReply is written when a relay handler panics, so the end user still
// receives text.
var PanicReply = ChatReply{Text: ProcessingErrorMessage, Error: "internal_error"}

// Handler serves the relay endpoints.
type Handler struct {
	service    string
	verifier   *signature.Verifier
	agent      Agent
	extractors []event.Extractor
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithExtractors replaces event.DefaultExtractors.
func WithExtractors(extractors ...event.Extractor) Option {
	return func(h *Handler) {
		h.extractors = extractors
	}
}

// WithClock overrides the clock used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a relay Handler.
func NewHandler(service string, verifier *signature.Verifier, agent Agent, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:    service,
		verifier:   verifier,
		agent:      agent,
		extractors: event.DefaultExtractors,
		logger:     logger,
		tracer:     otel.Tracer("github.com/tjfontaine/chat-webhook-relay/internal/relay"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the relay routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Post("/webhook", h.HandleWebhook)
	r.Post("/test", h.HandleTest)
}

// HandleHealth is a shallow liveness check; it never contacts the agent.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   h.service,
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// HandleWebhook authenticates, decodes and forwards one platform delivery.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The verifier needs the exact wire bytes.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		server.AddError(ctx, err)
		server.WriteJSON(w, http.StatusBadRequest, ChatReply{Text: InvalidPayloadMessage, Error: "invalid_payload"})
		return
	}

	if err := h.verifier.Check(
		r.Header.Get(signature.TimestampHeader),
		r.Header.Get(signature.SignatureHeader),
		body,
	); err != nil {
		server.AddLogField(ctx, "outcome", "rejected")
		server.AddError(ctx, err)
		server.WriteJSON(w, http.StatusBadRequest, ChatReply{Error: "invalid_signature"})
		return
	}

	ev, err := event.Decode(r.Header.Get("Content-Type"), body)
	if err != nil {
		server.AddLogField(ctx, "outcome", "undecodable")
		server.AddError(ctx, err)
		server.WriteJSON(w, http.StatusBadRequest, ChatReply{Text: InvalidPayloadMessage, Error: "invalid_payload"})
		return
	}
	server.AddLogField(ctx, "event_type", string(ev.Type))

	if ev.IsChallenge() {
		server.AddLogField(ctx, "outcome", "challenge_answered")
		server.WriteJSON(w, http.StatusOK, map[string]string{"challenge": ev.Challenge})
		return
	}

	x, ok := event.Extract(ev, h.extractors)
	if !ok {
		server.AddLogField(ctx, "outcome", "no_text")
		server.WriteJSON(w, http.StatusOK, ChatReply{Text: NoTextMessage})
		return
	}
	server.AddLogField(ctx, "text_source", x.Source)

	resp, err := h.forward(ctx, x)
	if err != nil {
		status, reply := h.failureReply(ctx, err)
		server.WriteJSON(w, status, reply)
		return
	}

	if strings.TrimSpace(resp.Reply) == "" {
		server.AddLogField(ctx, "outcome", "empty_reply")
		server.WriteJSON(w, http.StatusOK, ChatReply{Text: ProcessingErrorMessage, ResponseType: responseTypeInChannel})
		return
	}

	server.AddLogField(ctx, "outcome", "replied")
	server.WriteJSON(w, http.StatusOK, ChatReply{Text: resp.Reply, ResponseType: responseTypeInChannel})
}

type testRequest struct {
	Text string `json:"text"`
	User string `json:"user,omitempty"`
}

type testReply struct {
	Reply     string `json:"reply"`
	Timestamp string `json:"timestamp"`
}

// HandleTest forwards {text, user} straight to the agent without signature
// or challenge handling. It must only be reachable from the internal network.
func (h *Handler) HandleTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		server.AddError(ctx, err)
		server.WriteJSON(w, http.StatusBadRequest, ChatReply{Error: "invalid_payload"})
		return
	}

	var req testRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Text == "" {
		server.WriteJSON(w, http.StatusBadRequest, ChatReply{Error: "text_required"})
		return
	}

	user := req.User
	if user == "" {
		user = "test-user"
	}

	resp, err := h.forward(ctx, event.Extraction{
		Source: "test",
		Text:   req.Text,
		Context: event.Context{
			User:      user,
			Channel:   "test",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		status, reply := h.failureReply(ctx, err)
		server.WriteJSON(w, status, reply)
		return
	}

	timestamp := resp.Timestamp
	if timestamp == "" {
		timestamp = h.now().UTC().Format(time.RFC3339Nano)
	}
	server.WriteJSON(w, http.StatusOK, testReply{Reply: resp.Reply, Timestamp: timestamp})
}

func (h *Handler) forward(ctx context.Context, x event.Extraction) (*ProcessResponse, error) {
	ctx, span := h.tracer.Start(ctx, "relay.forward",
		trace.WithAttributes(
			attribute.String("relay.text_source", x.Source),
			attribute.Int("relay.text_length", len(x.Text)),
		),
	)
	defer span.End()

	resp, err := h.agent.Process(ctx, &ProcessRequest{Prompt: x.Text, Context: x.Context})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent call failed")
		return nil, err
	}
	return resp, nil
}

// failureReply maps an agent error to a status and a user-facing body. The
// error detail is logged, never returned.
func (h *Handler) failureReply(ctx context.Context, err error) (int, ChatReply) {
	server.AddError(ctx, err)

	if errors.Is(err, ErrAgentUnavailable) {
		server.AddLogField(ctx, "outcome", "upstream_down")
		h.logger.WarnContext(ctx, "processing agent unavailable",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		return http.StatusServiceUnavailable, ChatReply{Text: UnavailableMessage, Error: "service_unavailable"}
	}

	server.AddLogField(ctx, "outcome", "upstream_error")
	h.logger.ErrorContext(ctx, "processing agent failed",
		slog.String("request_id", server.GetRequestID(ctx)),
		slog.String("error", err.Error()),
	)
	return http.StatusInternalServerError, ChatReply{Text: ProcessingErrorMessage, Error: "processing_error"}
}
