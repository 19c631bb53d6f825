// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"outreach_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Outreach Domain Events
// =============================================================================

// OutreachStaged is published when an outreach item is staged and awaits
// a human approval decision.
type OutreachStaged struct {
	BaseEvent
	OutreachID uuid.UUID `json:"outreachId"`
	Channel    string    `json:"channel"`
	ActionKind string    `json:"actionKind"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject,omitempty"`
	Preview    string    `json:"preview"`
}

func (e OutreachStaged) EventName() string { return "outreach.staged" }

// OutreachSent is published after an external channel call succeeded and the
// action was recorded against the channel's daily consumption.
type OutreachSent struct {
	BaseEvent
	OutreachID uuid.UUID `json:"outreachId"`
	Channel    string    `json:"channel"`
	ActionKind string    `json:"actionKind"`
	ExternalID string    `json:"externalId"`
}

func (e OutreachSent) EventName() string { return "outreach.sent" }

// ApprovalDecided is published when a pending approval transitions to
// approved or rejected.
type ApprovalDecided struct {
	BaseEvent
	OutreachID uuid.UUID `json:"outreachId"`
	Status     string    `json:"status"`
	DecidedBy  string    `json:"decidedBy"`
}

func (e ApprovalDecided) EventName() string { return "approvals.decided" }

// =============================================================================
// Inbound Event-Handler Events
// =============================================================================

// MeetingBooked is published when a booking-created webhook has been applied.
type MeetingBooked struct {
	BaseEvent
	EventID     string    `json:"eventId"`
	Invitee     string    `json:"invitee"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	MeetingType string    `json:"meetingType"`
}

func (e MeetingBooked) EventName() string { return "meetings.booked" }

// ReplyClassified is published when an inbound reply has been classified.
type ReplyClassified struct {
	BaseEvent
	MessageID      string   `json:"messageId"`
	ThreadID       string   `json:"threadId"`
	From           string   `json:"from"`
	Classification string   `json:"classification"`
	Signals        []string `json:"signals,omitempty"`
	Snippet        string   `json:"snippet,omitempty"`
}

func (e ReplyClassified) EventName() string { return "replies.classified" }

// TranscriptAnalyzed is published when a call transcript has been processed
// and its extraction stored.
type TranscriptAnalyzed struct {
	BaseEvent
	MeetingID  string `json:"meetingId"`
	NewPhrases int    `json:"newPhrases"`
}

func (e TranscriptAnalyzed) EventName() string { return "transcripts.analyzed" }
