package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tjfontaine/chat-webhook-relay/internal/logstore"
)

// WriteMetrics renders metrics, and optionally the entries they were
// computed from, in the requested format.
func WriteMetrics(w io.Writer, m logstore.LogMetrics, entries []logstore.Entry, format string) error {
	switch format {
	case "", "table":
		writeMetricsTable(w, m)
		if len(entries) > 0 {
			writeEntriesTable(w, entries)
		}
		return nil
	case "json":
		out := struct {
			Metrics logstore.LogMetrics `json:"logMetrics"`
			Entries []string            `json:"entries,omitempty"`
		}{Metrics: m}
		for _, e := range entries {
			out.Entries = append(out.Entries, e.Raw)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeMetricsTable(w io.Writer, m logstore.LogMetrics) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignCenter},
	})

	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Lines scanned", m.TotalLines},
		{"Errors", m.ErrorCount},
		{"Health checks", m.HealthChecks},
		{"Requests", m.RecentRequests},
		{"Last activity", m.LastActivity()},
	})
	tw.Render()
}

func writeEntriesTable(w io.Writer, entries []logstore.Entry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 100},
	})

	tw.AppendHeader(table.Row{"Timestamp", "Tag", "Payload"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Timestamp, string(e.Tag), e.Payload})
	}
	tw.Render()
}

var tagColors = map[logstore.Tag]text.Colors{
	logstore.TagError:          {text.FgRed, text.Bold},
	logstore.TagHealthCheck:    {text.FgHiBlack},
	logstore.TagRequest:        {text.FgCyan},
	logstore.TagResponse:       {text.FgGreen},
	logstore.TagThreadStart:    {text.FgBlue},
	logstore.TagLogCheck:       {text.FgHiBlack},
	logstore.TagServerStart:    {text.FgYellow},
	logstore.TagServerShutdown: {text.FgYellow},
}

// FormatEntry renders one entry as a line, with the tag colored when color
// is set.
func FormatEntry(e logstore.Entry, color bool) string {
	if !color || e.Timestamp == "" {
		return e.Raw
	}
	tag := string(e.Tag)
	if c, ok := tagColors[e.Tag]; ok {
		tag = c.Sprint(tag)
	}
	if e.Payload == "" {
		return e.Timestamp + " " + tag
	}
	return e.Timestamp + " " + tag + " " + e.Payload
}
