// Package event models inbound chat-platform deliveries and extracts the
// user-facing text the relay forwards.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Type is the kind of inbound delivery.
type Type string

const (
	TypeURLVerification Type = "url_verification"
	TypeEventCallback   Type = "event_callback"
	TypeSlashCommand    Type = "slash_command"
	TypeInteractive     Type = "interactive"
)

// ErrEmptyBody is returned when there is nothing to decode.
var ErrEmptyBody = errors.New("event: empty body")

// Ref is an identifier that platforms send either as a bare string or as an
// object with an "id" field (interactive payloads use the latter).
type Ref string

// UnmarshalJSON accepts both "U123" and {"id":"U123",...}.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Ref(s)
		return nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("event: identifier must be a string or object: %w", err)
	}
	*r = Ref(obj.ID)
	return nil
}

// Message is the nested "event" or "message" object of a delivery.
type Message struct {
	Type    string `json:"type,omitempty"`
	Text    string `json:"text,omitempty"`
	User    Ref    `json:"user,omitempty"`
	Channel Ref    `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
	Team    Ref    `json:"team,omitempty"`
}

// InboundEvent is one decoded delivery. It is never mutated after Decode.
type InboundEvent struct {
	Type      Type   `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	TeamID    string `json:"team_id,omitempty"`

	Event   *Message `json:"event,omitempty"`
	Message *Message `json:"message,omitempty"`

	// Top-level fields, used by slash commands and some interactive shapes.
	Text    string `json:"text,omitempty"`
	User    Ref    `json:"user,omitempty"`
	Channel Ref    `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
	Team    Ref    `json:"team,omitempty"`
}

// IsChallenge reports whether the delivery is an endpoint-ownership handshake.
func (e *InboundEvent) IsChallenge() bool {
	return e.Type == TypeURLVerification
}

// Decode parses a raw request body. Form-encoded bodies are treated as slash
// commands, or as interactive payloads when they carry a "payload" field.
func Decode(contentType string, body []byte) (*InboundEvent, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrEmptyBody
	}

	if strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		return decodeForm(body)
	}
	return decodeJSON(body)
}

func decodeJSON(body []byte) (*InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("event: decode json: %w", err)
	}
	if ev.Team == "" {
		ev.Team = Ref(ev.TeamID)
	}
	return &ev, nil
}

func decodeForm(body []byte) (*InboundEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("event: decode form: %w", err)
	}

	if payload := values.Get("payload"); payload != "" {
		ev, err := decodeJSON([]byte(payload))
		if err != nil {
			return nil, err
		}
		ev.Type = TypeInteractive
		return ev, nil
	}

	return &InboundEvent{
		Type:    TypeSlashCommand,
		Text:    values.Get("text"),
		User:    Ref(values.Get("user_id")),
		Channel: Ref(values.Get("channel_id")),
		Team:    Ref(values.Get("team_id")),
		TeamID:  values.Get("team_id"),
	}, nil
}
