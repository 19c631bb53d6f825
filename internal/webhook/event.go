// Package webhook receives provider callbacks, verifies their
// authenticity, normalizes them into canonical events and dispatches
// each event to its registered handler exactly once.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Provider names as they appear in the ingest URL and dedupe key.
const (
	ProviderCalendly    = "calendly"
	ProviderTranscript  = "transcript"
	ProviderInteraction = "interaction"
	ProviderReply       = "reply"
)

// Canonical event types produced by the normalizers.
const (
	EventBookingCreated     = "booking.created"
	EventBookingCanceled    = "booking.canceled"
	EventBookingRescheduled = "booking.rescheduled"
	EventTranscriptReady    = "transcript.ready"
	EventReplyReceived      = "reply.received"
	EventInteractionAction  = "interaction.action"
)

// Event statuses stored alongside the event row.
const (
	StatusReceived  = "received"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Event is the canonical shape every provider payload is normalized
// into before dispatch. ExternalID together with Provider forms the
// dedupe key.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Provider   string          `json:"provider"`
	EventType  string          `json:"eventType"`
	ExternalID string          `json:"externalId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *string         `json:"error,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}
