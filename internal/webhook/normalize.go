package webhook

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"outreach_backend/platform/apperr"
)

// Normalizer turns a verified raw delivery into a canonical Event.
// The returned event carries no ID or status; the router fills those.
type Normalizer interface {
	Normalize(body []byte, headers map[string]string) (Event, error)
}

const opNormalize = "webhook.normalizer.normalize"

// CalendlyNormalizer maps booking lifecycle callbacks. The invitee
// URI is the dedupe key: Calendly issues a fresh invitee per
// delivery, so created, canceled and rescheduled callbacks for the
// same meeting never collide.
type CalendlyNormalizer struct{}

type calendlyDelivery struct {
	Event     string    `json:"event"`
	CreatedAt time.Time `json:"created_at"`
	Payload   struct {
		Event struct {
			UUID      string    `json:"uuid"`
			Name      string    `json:"name"`
			StartTime time.Time `json:"start_time"`
			EndTime   time.Time `json:"end_time"`
		} `json:"event"`
		Invitee struct {
			UUID  string `json:"uuid"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"invitee"`
		Rescheduled bool `json:"rescheduled"`
	} `json:"payload"`
}

func (CalendlyNormalizer) Normalize(body []byte, _ map[string]string) (Event, error) {
	var d calendlyDelivery
	if err := json.Unmarshal(body, &d); err != nil {
		return Event{}, apperr.Validation("malformed booking payload").WithOp(opNormalize)
	}
	if d.Payload.Event.UUID == "" || d.Payload.Invitee.UUID == "" {
		return Event{}, apperr.Validation("booking payload missing event or invitee id").WithOp(opNormalize)
	}
	var eventType string
	switch d.Event {
	case "invitee.created":
		eventType = EventBookingCreated
		if d.Payload.Rescheduled {
			eventType = EventBookingRescheduled
		}
	case "invitee.canceled":
		eventType = EventBookingCanceled
	default:
		return Event{}, apperr.Validation(fmt.Sprintf("unsupported booking event %q", d.Event)).WithOp(opNormalize)
	}
	occurred := d.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return Event{
		Provider:   ProviderCalendly,
		EventType:  eventType,
		ExternalID: d.Event + ":" + d.Payload.Invitee.UUID,
		OccurredAt: occurred,
		Payload:    json.RawMessage(body),
	}, nil
}

// TranscriptNormalizer maps transcript-ready callbacks keyed by the
// provider's meeting id.
type TranscriptNormalizer struct{}

type transcriptDelivery struct {
	MeetingID   string    `json:"meeting_id"`
	EventType   string    `json:"event_type"`
	CompletedAt time.Time `json:"completed_at"`
}

func (TranscriptNormalizer) Normalize(body []byte, _ map[string]string) (Event, error) {
	var d transcriptDelivery
	if err := json.Unmarshal(body, &d); err != nil {
		return Event{}, apperr.Validation("malformed transcript payload").WithOp(opNormalize)
	}
	if d.MeetingID == "" {
		return Event{}, apperr.Validation("transcript payload missing meeting_id").WithOp(opNormalize)
	}
	occurred := d.CompletedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return Event{
		Provider:   ProviderTranscript,
		EventType:  EventTranscriptReady,
		ExternalID: d.MeetingID,
		OccurredAt: occurred,
		Payload:    json.RawMessage(body),
	}, nil
}

// InteractionNormalizer maps interactive button callbacks. The
// delivery is form-encoded with the JSON document under the "payload"
// field; the trigger id keys deduplication because every button press
// gets its own trigger.
type InteractionNormalizer struct{}

type interactionDelivery struct {
	Type      string `json:"type"`
	TriggerID string `json:"trigger_id"`
	Actions   []struct {
		ActionID string `json:"action_id"`
	} `json:"actions"`
}

func (InteractionNormalizer) Normalize(body []byte, headers map[string]string) (Event, error) {
	raw := body
	if headers["Content-Type"] == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return Event{}, apperr.Validation("malformed interaction form").WithOp(opNormalize)
		}
		raw = []byte(form.Get("payload"))
	}
	var d interactionDelivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return Event{}, apperr.Validation("malformed interaction payload").WithOp(opNormalize)
	}
	if d.TriggerID == "" {
		return Event{}, apperr.Validation("interaction payload missing trigger_id").WithOp(opNormalize)
	}
	if len(d.Actions) == 0 {
		return Event{}, apperr.Validation("interaction payload has no actions").WithOp(opNormalize)
	}
	return Event{
		Provider:   ProviderInteraction,
		EventType:  EventInteractionAction,
		ExternalID: d.TriggerID,
		OccurredAt: time.Now().UTC(),
		Payload:    json.RawMessage(raw),
	}, nil
}

// ReplyNormalizer maps inbound reply callbacks keyed by message id.
type ReplyNormalizer struct{}

type replyDelivery struct {
	MessageID  string    `json:"message_id"`
	ThreadID   string    `json:"thread_id"`
	ReceivedAt time.Time `json:"received_at"`
}

func (ReplyNormalizer) Normalize(body []byte, _ map[string]string) (Event, error) {
	var d replyDelivery
	if err := json.Unmarshal(body, &d); err != nil {
		return Event{}, apperr.Validation("malformed reply payload").WithOp(opNormalize)
	}
	if d.MessageID == "" {
		return Event{}, apperr.Validation("reply payload missing message_id").WithOp(opNormalize)
	}
	occurred := d.ReceivedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return Event{
		Provider:   ProviderReply,
		EventType:  EventReplyReceived,
		ExternalID: d.MessageID,
		OccurredAt: occurred,
		Payload:    json.RawMessage(body),
	}, nil
}
