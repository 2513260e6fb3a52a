// Package agent is the processing service behind the relay. It answers
// prompts, enriching them with metrics computed from its own activity log,
// and records every interaction in that log.
package agent

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/chat-webhook-relay/internal/completion"
	"github.com/tjfontaine/chat-webhook-relay/internal/logstore"
)

const instrumentationName = "github.com/tjfontaine/chat-webhook-relay/internal/agent"

const (
	DefaultTailLines       = 20
	DefaultHealthTailLines = 50
	DefaultSampleLines     = 5
	DefaultProviderTimeout = 30 * time.Second
)

// Config tunes the agent's log windows and provider call.
type Config struct {
	// TailLines is the window /process computes metrics over.
	TailLines int
	// HealthTailLines is the window /health computes metrics over.
	HealthTailLines int
	// SampleLines is how many raw lines are sent along as context.
	SampleLines int
	// ProviderTimeout bounds one completion call. Zero disables it.
	ProviderTimeout time.Duration
	// Services lists optional integrations and whether they are configured.
	Services map[string]bool
}

func (c *Config) setDefaults() {
	if c.TailLines <= 0 {
		c.TailLines = DefaultTailLines
	}
	if c.HealthTailLines <= 0 {
		c.HealthTailLines = DefaultHealthTailLines
	}
	if c.SampleLines < 0 {
		c.SampleLines = 0
	}
	if c.Services == nil {
		c.Services = map[string]bool{}
	}
}

// Option configures an Agent.
type Option func(*Agent)

// WithBudget truncates the context blob to the budget's token limit.
func WithBudget(b *completion.Budget) Option {
	return func(a *Agent) {
		a.budget = b
	}
}

// WithClock overrides the clock used for timestamps and uptime.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// Agent serves /process and /health.
type Agent struct {
	store    *logstore.Store
	provider completion.Provider
	budget   *completion.Budget
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	started  time.Time

	completions metric.Int64Counter
}

// New creates an Agent. A nil provider selects the deterministic fallback
// reply.
func New(store *logstore.Store, provider completion.Provider, logger *slog.Logger, cfg Config, opts ...Option) *Agent {
	cfg.setDefaults()
	a := &Agent{
		store:    store,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.started = a.now()

	counter, err := otel.Meter(instrumentationName).Int64Counter("agent.completions",
		metric.WithDescription("Prompts answered, by outcome"),
	)
	if err != nil {
		logger.Warn("create completions counter", slog.String("error", err.Error()))
	} else {
		a.completions = counter
	}
	return a
}

// Register mounts the agent routes on r. Only /process runs the log-context
// middleware; /health computes its own wider window.
func (a *Agent) Register(r chi.Router) {
	r.Get("/health", a.HandleHealth)
	r.With(a.LogContext).Post("/process", a.HandleProcess)
}

func (a *Agent) timestamp() string {
	return a.now().UTC().Format(logstore.TimestampLayout)
}
