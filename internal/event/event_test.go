package event

import (
	"errors"
	"testing"
)

func TestDecodeJSONShapes(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantType    Type
		wantText    string
		wantSource  string
		wantContext Context
		wantOK      bool
	}{
		{
			name:       "event callback",
			body:       `{"type":"event_callback","team_id":"T9","event":{"type":"app_mention","text":"ping","user":"U1","channel":"C1","ts":"1700000000.0001"}}`,
			wantType:   TypeEventCallback,
			wantText:   "ping",
			wantSource: "event",
			wantContext: Context{
				User: "U1", Channel: "C1", Timestamp: "1700000000.0001", Team: "T9",
			},
			wantOK: true,
		},
		{
			name:        "top level text",
			body:        `{"type":"slash_command","text":"status","user":"U2","channel":"C2","team":"T2"}`,
			wantType:    TypeSlashCommand,
			wantText:    "status",
			wantSource:  "text",
			wantContext: Context{User: "U2", Channel: "C2", Team: "T2"},
			wantOK:      true,
		},
		{
			name:        "interactive message with object identifiers",
			body:        `{"type":"interactive","user":{"id":"U3","name":"sam"},"channel":{"id":"C3"},"team":{"id":"T3"},"message":{"text":"clicked","ts":"1.2"}}`,
			wantType:    TypeInteractive,
			wantText:    "clicked",
			wantSource:  "message",
			wantContext: Context{User: "U3", Channel: "C3", Timestamp: "1.2", Team: "T3"},
			wantOK:      true,
		},
		{
			name:       "event text wins over top level",
			body:       `{"type":"event_callback","text":"outer","event":{"text":"inner","user":"U1"},"message":{"text":"last"}}`,
			wantType:   TypeEventCallback,
			wantText:   "inner",
			wantSource: "event",
			wantContext: Context{
				User: "U1",
			},
			wantOK: true,
		},
		{
			name:       "blank event text falls through",
			body:       `{"type":"event_callback","event":{"text":"   "},"message":{"text":"fallback","user":"U5"}}`,
			wantType:   TypeEventCallback,
			wantText:   "fallback",
			wantSource: "message",
			wantContext: Context{
				User: "U5",
			},
			wantOK: true,
		},
		{
			name:     "reaction without text",
			body:     `{"type":"event_callback","event":{"type":"reaction_added","user":"U1"}}`,
			wantType: TypeEventCallback,
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode("application/json", []byte(tt.body))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if ev.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", ev.Type, tt.wantType)
			}

			x, ok := Extract(ev, DefaultExtractors)
			if ok != tt.wantOK {
				t.Fatalf("Extract() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if x.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", x.Text, tt.wantText)
			}
			if x.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", x.Source, tt.wantSource)
			}
			if x.Context != tt.wantContext {
				t.Errorf("Context = %+v, want %+v", x.Context, tt.wantContext)
			}
		})
	}
}

func TestDecodeChallenge(t *testing.T) {
	ev, err := Decode("application/json", []byte(`{"type":"url_verification","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !ev.IsChallenge() {
		t.Fatal("IsChallenge() = false, want true")
	}
	if ev.Challenge != "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P" {
		t.Errorf("Challenge = %q", ev.Challenge)
	}
}

func TestDecodeSlashCommandForm(t *testing.T) {
	body := "command=%2Fask&text=how+are+things&user_id=U7&channel_id=C7&team_id=T7"
	ev, err := Decode("application/x-www-form-urlencoded; charset=utf-8", []byte(body))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Type != TypeSlashCommand {
		t.Fatalf("Type = %q, want %q", ev.Type, TypeSlashCommand)
	}

	x, ok := Extract(ev, DefaultExtractors)
	if !ok {
		t.Fatal("Extract() ok = false")
	}
	want := Context{User: "U7", Channel: "C7", Team: "T7"}
	if x.Text != "how are things" || x.Context != want {
		t.Errorf("got %q %+v, want %q %+v", x.Text, x.Context, "how are things", want)
	}
}

func TestDecodeInteractiveForm(t *testing.T) {
	body := "payload=%7B%22type%22%3A%22block_actions%22%2C%22user%22%3A%7B%22id%22%3A%22U8%22%7D%2C%22message%22%3A%7B%22text%22%3A%22approve%22%7D%7D"
	ev, err := Decode("application/x-www-form-urlencoded", []byte(body))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Type != TypeInteractive {
		t.Fatalf("Type = %q, want %q", ev.Type, TypeInteractive)
	}
	x, ok := Extract(ev, DefaultExtractors)
	if !ok || x.Text != "approve" || x.Context.User != "U8" {
		t.Fatalf("Extract() = %+v, %v", x, ok)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode("application/json", []byte("  ")); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("empty body error = %v, want ErrEmptyBody", err)
	}
	if _, err := Decode("application/json", []byte("{not json")); err == nil {
		t.Error("expected error for malformed json")
	}
	if _, err := Decode("application/json", []byte(`{"type":"event_callback","user":42}`)); err == nil {
		t.Error("expected error for numeric user")
	}
}

func TestExtractCustomOrder(t *testing.T) {
	ev := &InboundEvent{
		Text:    "top",
		Message: &Message{Text: "nested"},
	}
	x, ok := Extract(ev, []Extractor{FromMessage, FromTopLevel})
	if !ok || x.Text != "nested" {
		t.Fatalf("Extract() = %+v, %v; want nested", x, ok)
	}

	if _, ok := Extract(nil, DefaultExtractors); ok {
		t.Fatal("Extract(nil) ok = true")
	}
}
