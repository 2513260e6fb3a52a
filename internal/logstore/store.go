// Package logstore is the processing agent's append-only, per-day log.
//
// Every entry is one line in {dir}/{YYYY-MM-DD}.log (UTC). Writes open the
// file in append mode and issue a single write per line, so concurrent
// requests never interleave partial lines and no lock is needed. Reads open
// the file fresh each time; nothing is cached between calls.
package logstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/tjfontaine/chat-webhook-relay/internal/logstore"

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for timestamps and file selection.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger that receives write-failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store writes and reads the day files under a directory.
type Store struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	failures     atomic.Int64
	failureCount metric.Int64Counter
}

// New creates a Store rooted at dir. The directory is created on first write.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := otel.Meter(meterName).Int64Counter(
		"logstore.write_failures",
		metric.WithDescription("Log entries that could not be appended"),
	)
	if err != nil {
		s.logger.Warn("failed to create write failure counter", slog.String("error", err.Error()))
	}
	s.failureCount = counter
	return s
}

// Dir returns the directory holding the day files.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the day file that holds entries written at t.
func (s *Store) Path(t time.Time) string {
	return filepath.Join(s.dir, t.UTC().Format("2006-01-02")+".log")
}

// Append writes one entry to today's file.
func (s *Store) Append(ctx context.Context, tag Tag, payload string) error {
	now := s.now().UTC()
	line := formatLine(now.Format(TimestampLayout), tag, payload) + "\n"

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(s.Path(now), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("append log entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// Record appends an entry and never fails. Write errors are counted and
// reported on the diagnostics logger instead of reaching the caller.
func (s *Store) Record(ctx context.Context, tag Tag, payload string) {
	err := s.Append(ctx, tag, payload)
	if err == nil {
		return
	}

	s.failures.Add(1)
	if s.failureCount != nil {
		s.failureCount.Add(ctx, 1, metric.WithAttributes(attribute.String("tag", string(tag))))
	}
	s.logger.WarnContext(ctx, "log store write failed",
		slog.String("tag", string(tag)),
		slog.String("error", err.Error()),
	)
}

// WriteFailures returns how many Record calls failed since the Store was created.
func (s *Store) WriteFailures() int64 {
	return s.failures.Load()
}

// Tail returns up to the last n non-empty entries of today's file.
// A missing file yields no entries and no error.
func (s *Store) Tail(n int) ([]Entry, error) {
	return s.TailAt(s.now(), n)
}

// TailAt is Tail for the day file containing t.
func (s *Store) TailAt(t time.Time, n int) ([]Entry, error) {
	data, err := os.ReadFile(s.Path(t))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			kept = append(kept, line)
		}
	}

	if n >= 0 && len(kept) > n {
		kept = kept[len(kept)-n:]
	}

	entries := make([]Entry, len(kept))
	for i, line := range kept {
		entries[i] = ParseEntry(line)
	}
	return entries, nil
}

// Metrics computes LogMetrics over the last n entries of today's file.
func (s *Store) Metrics(n int) (LogMetrics, []Entry, error) {
	entries, err := s.Tail(n)
	if err != nil {
		return LogMetrics{}, nil, err
	}
	return ComputeMetrics(entries), entries, nil
}
