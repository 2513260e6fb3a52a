package logstore

import "strings"

// Tag classifies a log entry.
type Tag string

const (
	TagHealthCheck    Tag = "HEALTH_CHECK"
	TagThreadStart    Tag = "THREAD_START"
	TagLogCheck       Tag = "LOG_CHECK"
	TagRequest        Tag = "REQ"
	TagResponse       Tag = "RES"
	TagError          Tag = "ERROR"
	TagServerStart    Tag = "SERVER_START"
	TagServerShutdown Tag = "SERVER_SHUTDOWN"
)

// TimestampLayout is the fixed-width prefix of every line.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// timestampWidth is len(TimestampLayout) once formatted.
const timestampWidth = 24

// Entry is one parsed log line.
type Entry struct {
	Timestamp string
	Tag       Tag
	Payload   string
	Raw       string
}

// ParseEntry splits a raw line into timestamp, tag and payload. Lines that
// were not written by Store still parse; their tag is whatever token follows
// the timestamp.
func ParseEntry(line string) Entry {
	e := Entry{Raw: line}
	if len(line) < timestampWidth {
		e.Payload = line
		return e
	}

	e.Timestamp = line[:timestampWidth]
	rest := strings.TrimPrefix(line[timestampWidth:], " ")
	tag, payload, _ := strings.Cut(rest, " ")
	e.Tag = Tag(tag)
	e.Payload = payload
	return e
}

// formatLine renders a single line without the trailing newline.
func formatLine(ts string, tag Tag, payload string) string {
	var b strings.Builder
	b.Grow(len(ts) + len(tag) + len(payload) + 2)
	b.WriteString(ts)
	b.WriteByte(' ')
	b.WriteString(string(tag))
	if payload != "" {
		b.WriteByte(' ')
		b.WriteString(escapePayload(payload))
	}
	return b.String()
}

var payloadEscaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\n`)

func escapePayload(s string) string {
	return payloadEscaper.Replace(s)
}
