package agent

import (
	"log/slog"
	"net/http"
	"runtime"

	"github.com/tjfontaine/chat-webhook-relay/internal/logstore"
	"github.com/tjfontaine/chat-webhook-relay/internal/server"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status           string              `json:"status"`
	Timestamp        string              `json:"timestamp"`
	Uptime           float64             `json:"uptime"` // seconds
	Services         map[string]bool     `json:"services"`
	LogHealth        logstore.LogMetrics `json:"logHealth"`
	Memory           MemoryStats         `json:"memory"`
	LogWriteFailures int64               `json:"logWriteFailures"`
}

type MemoryStats struct {
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapSys    uint64 `json:"heapSys"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

// HandleHealth is a liveness probe: it always answers 200 and never touches
// the completion provider.
func (a *Agent) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	metrics, _, err := a.store.Metrics(a.cfg.HealthTailLines)
	if err != nil {
		a.logger.WarnContext(ctx, "read log metrics",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
	}
	a.store.Record(ctx, logstore.TagHealthCheck, metrics.Summary())

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	server.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: a.timestamp(),
		Uptime:    a.now().Sub(a.started).Seconds(),
		Services:  a.cfg.Services,
		LogHealth: metrics,
		Memory: MemoryStats{
			HeapAlloc:  ms.HeapAlloc,
			HeapSys:    ms.HeapSys,
			Sys:        ms.Sys,
			NumGC:      ms.NumGC,
			Goroutines: runtime.NumGoroutine(),
		},
		LogWriteFailures: a.store.WriteFailures(),
	})
}
