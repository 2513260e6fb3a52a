package agent

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tjfontaine/chat-webhook-relay/internal/logstore"
	"github.com/tjfontaine/chat-webhook-relay/internal/server"
)

type snapshotKey struct{}

// Snapshot is the log state captured before a /process handler runs.
type Snapshot struct {
	Metrics logstore.LogMetrics
	// Sample holds the most recent raw lines, oldest first.
	Sample []string
}

// WithSnapshot stores s in ctx.
func WithSnapshot(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, s)
}

// SnapshotFromContext returns the snapshot stored by LogContext.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	s, ok := ctx.Value(snapshotKey{}).(Snapshot)
	return s, ok
}

// LogContext records the request, computes metrics over the recent log
// window, records a LOG_CHECK summary and makes the snapshot available to
// the handler. It runs whether or not the request later succeeds.
func (a *Agent) LogContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		a.store.Record(ctx, logstore.TagRequest, r.Method+" "+r.URL.Path)

		snap := a.snapshot(ctx)
		a.store.Record(ctx, logstore.TagLogCheck, snap.Metrics.Summary())
		server.AddLogField(ctx, "log_errors", strconv.Itoa(snap.Metrics.ErrorCount))

		next.ServeHTTP(w, r.WithContext(WithSnapshot(ctx, snap)))
	})
}

// snapshot reads the last TailLines entries. A read failure yields empty
// metrics; the log is advisory.
func (a *Agent) snapshot(ctx context.Context) Snapshot {
	metrics, entries, err := a.store.Metrics(a.cfg.TailLines)
	if err != nil {
		a.logger.WarnContext(ctx, "read log metrics",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		return Snapshot{}
	}

	start := len(entries) - a.cfg.SampleLines
	if start < 0 {
		start = 0
	}
	sample := make([]string, 0, len(entries)-start)
	for _, e := range entries[start:] {
		sample = append(sample, e.Raw)
	}
	return Snapshot{Metrics: metrics, Sample: sample}
}
