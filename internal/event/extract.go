package event

import "strings"

// Context identifies where an extracted message came from.
type Context struct {
	User      string `json:"user,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Team      string `json:"team,omitempty"`
}

// Extraction is the effective payload of a delivery.
type Extraction struct {
	Source  string
	Text    string
	Context Context
}

// Extractor pulls text out of one event shape. ok is false when the shape
// is absent or carries no text.
type Extractor func(ev *InboundEvent) (x Extraction, ok bool)

// DefaultExtractors is the lookup order: event.text, then top-level text,
// then message.text.
var DefaultExtractors = []Extractor{
	FromEvent,
	FromTopLevel,
	FromMessage,
}

// Extract returns the first non-empty payload found by extractors, in order.
func Extract(ev *InboundEvent, extractors []Extractor) (Extraction, bool) {
	if ev == nil {
		return Extraction{}, false
	}
	for _, fn := range extractors {
		if x, ok := fn(ev); ok {
			return x, true
		}
	}
	return Extraction{}, false
}

// FromEvent reads event.text.
func FromEvent(ev *InboundEvent) (Extraction, bool) {
	return fromMessage("event", ev.Event, ev)
}

// FromMessage reads message.text.
func FromMessage(ev *InboundEvent) (Extraction, bool) {
	return fromMessage("message", ev.Message, ev)
}

// FromTopLevel reads the top-level text field.
func FromTopLevel(ev *InboundEvent) (Extraction, bool) {
	if strings.TrimSpace(ev.Text) == "" {
		return Extraction{}, false
	}
	return Extraction{
		Source: "text",
		Text:   ev.Text,
		Context: Context{
			User:      string(ev.User),
			Channel:   string(ev.Channel),
			Timestamp: ev.TS,
			Team:      teamOf(ev, ""),
		},
	}, true
}

func fromMessage(source string, m *Message, ev *InboundEvent) (Extraction, bool) {
	if m == nil || strings.TrimSpace(m.Text) == "" {
		return Extraction{}, false
	}

	user := string(m.User)
	if user == "" {
		user = string(ev.User)
	}
	channel := string(m.Channel)
	if channel == "" {
		channel = string(ev.Channel)
	}

	return Extraction{
		Source: source,
		Text:   m.Text,
		Context: Context{
			User:      user,
			Channel:   channel,
			Timestamp: m.TS,
			Team:      teamOf(ev, string(m.Team)),
		},
	}, true
}

func teamOf(ev *InboundEvent, nested string) string {
	if nested != "" {
		return nested
	}
	if ev.Team != "" {
		return string(ev.Team)
	}
	return ev.TeamID
}
