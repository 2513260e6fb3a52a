package logstore

import "fmt"

// LogMetrics summarizes a window of log entries.
type LogMetrics struct {
	TotalLines     int     `json:"totalLines"`
	ErrorCount     int     `json:"errorCount"`
	HealthChecks   int     `json:"healthChecks"`
	RecentRequests int     `json:"recentRequests"`
	LastLogTime    *string `json:"lastLogTime"`
}

// ComputeMetrics scans entries once. Classification uses the parsed tag,
// so payload text that merely mentions a tag name is not counted.
func ComputeMetrics(entries []Entry) LogMetrics {
	m := LogMetrics{TotalLines: len(entries)}
	for _, e := range entries {
		switch e.Tag {
		case TagError:
			m.ErrorCount++
		case TagHealthCheck:
			m.HealthChecks++
		case TagRequest:
			m.RecentRequests++
		}
	}

	if len(entries) > 0 {
		last := entries[len(entries)-1]
		if last.Timestamp != "" {
			ts := last.Timestamp
			m.LastLogTime = &ts
		}
	}
	return m
}

// LastActivity returns the last log time, or "none" when the window is empty.
func (m LogMetrics) LastActivity() string {
	if m.LastLogTime == nil {
		return "none"
	}
	return *m.LastLogTime
}

// Summary is the compact single-line form written into LOG_CHECK and RES entries.
func (m LogMetrics) Summary() string {
	return fmt.Sprintf("lines=%d errors=%d health_checks=%d requests=%d last=%s",
		m.TotalLines, m.ErrorCount, m.HealthChecks, m.RecentRequests, m.LastActivity())
}
