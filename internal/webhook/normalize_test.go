package webhook

import (
	"net/url"
	"testing"
)

func TestCalendlyNormalizer(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantType   string
		wantExtID  string
		wantErr    bool
	}{
		{
			name: "created",
			body: `{"event":"invitee.created","created_at":"2026-01-20T10:00:00Z","payload":{"event":{"uuid":"EV1","start_time":"2026-01-22T09:00:00Z","end_time":"2026-01-22T09:30:00Z","name":"Intro Call"},"invitee":{"uuid":"INV1","email":"a@example.com","name":"Ada"}}}`,
			wantType:  EventBookingCreated,
			wantExtID: "invitee.created:INV1",
		},
		{
			name: "canceled",
			body: `{"event":"invitee.canceled","created_at":"2026-01-20T10:00:00Z","payload":{"event":{"uuid":"EV1"},"invitee":{"uuid":"INV2"}}}`,
			wantType:  EventBookingCanceled,
			wantExtID: "invitee.canceled:INV2",
		},
		{
			name: "rescheduled",
			body: `{"event":"invitee.created","created_at":"2026-01-20T10:00:00Z","payload":{"event":{"uuid":"EV1","start_time":"2026-01-23T09:00:00Z"},"invitee":{"uuid":"INV3"},"rescheduled":true}}`,
			wantType:  EventBookingRescheduled,
			wantExtID: "invitee.created:INV3",
		},
		{
			name:    "unsupported event",
			body:    `{"event":"routing_form.submitted","payload":{"event":{"uuid":"EV1"},"invitee":{"uuid":"INV4"}}}`,
			wantErr: true,
		},
		{
			name:    "missing invitee",
			body:    `{"event":"invitee.created","payload":{"event":{"uuid":"EV1"}}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `<xml/>`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt, err := (CalendlyNormalizer{}).Normalize([]byte(tc.body), nil)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if evt.EventType != tc.wantType {
				t.Errorf("event type = %q, want %q", evt.EventType, tc.wantType)
			}
			if evt.ExternalID != tc.wantExtID {
				t.Errorf("external id = %q, want %q", evt.ExternalID, tc.wantExtID)
			}
			if evt.Provider != ProviderCalendly {
				t.Errorf("provider = %q", evt.Provider)
			}
		})
	}
}

func TestTranscriptNormalizer(t *testing.T) {
	body := `{"meeting_id":"M-42","event_type":"transcription.completed","transcript":[{"speaker":"Ada","text":"Hello"}]}`
	evt, err := (TranscriptNormalizer{}).Normalize([]byte(body), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.EventType != EventTranscriptReady {
		t.Errorf("event type = %q", evt.EventType)
	}
	if evt.ExternalID != "M-42" {
		t.Errorf("external id = %q", evt.ExternalID)
	}

	if _, err := (TranscriptNormalizer{}).Normalize([]byte(`{"transcript":[]}`), nil); err == nil {
		t.Fatal("payload without meeting_id accepted")
	}
}

func TestInteractionNormalizerFormEncoded(t *testing.T) {
	inner := `{"type":"block_actions","trigger_id":"TR-9","actions":[{"action_id":"approve_0d9f"}],"user":{"username":"operator"}}`
	form := url.Values{"payload": {inner}}
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

	evt, err := (InteractionNormalizer{}).Normalize([]byte(form.Encode()), headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.EventType != EventInteractionAction {
		t.Errorf("event type = %q", evt.EventType)
	}
	if evt.ExternalID != "TR-9" {
		t.Errorf("external id = %q", evt.ExternalID)
	}
	if string(evt.Payload) != inner {
		t.Errorf("payload not unwrapped from form: %s", evt.Payload)
	}
}

func TestInteractionNormalizerRawJSON(t *testing.T) {
	body := `{"type":"block_actions","trigger_id":"TR-10","actions":[{"action_id":"reject_0d9f"}]}`
	evt, err := (InteractionNormalizer{}).Normalize([]byte(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.ExternalID != "TR-10" {
		t.Errorf("external id = %q", evt.ExternalID)
	}

	if _, err := (InteractionNormalizer{}).Normalize([]byte(`{"type":"block_actions","trigger_id":"TR-11","actions":[]}`), nil); err == nil {
		t.Fatal("payload without actions accepted")
	}
}

func TestReplyNormalizer(t *testing.T) {
	body := `{"message_id":"MSG-1","thread_id":"TH-1","from":"prospect@example.com","text":"Sounds interesting, tell me more"}`
	evt, err := (ReplyNormalizer{}).Normalize([]byte(body), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.EventType != EventReplyReceived {
		t.Errorf("event type = %q", evt.EventType)
	}
	if evt.ExternalID != "MSG-1" {
		t.Errorf("external id = %q", evt.ExternalID)
	}

	if _, err := (ReplyNormalizer{}).Normalize([]byte(`{"thread_id":"TH-1"}`), nil); err == nil {
		t.Fatal("payload without message_id accepted")
	}
}
