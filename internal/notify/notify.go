// Package notify posts operator notifications to the configured
// approval-channel webhook.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Kind selects the notification template.
type Kind string

const (
	KindApprovalRequested Kind = "approval_requested"
	KindPositiveResponse  Kind = "positive_response"
	KindMeetingBooked     Kind = "meeting_booked"
	KindDailyDigest       Kind = "daily_digest"
)

// envelope is the fixed outer shape of every posted notification.
type envelope struct {
	Kind   Kind      `json:"kind"`
	SentAt time.Time `json:"sentAt"`
	Data   any       `json:"data"`
}

// ActionButton is one interactive button an operator can press. Its
// ID round-trips through the interaction webhook.
type ActionButton struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ApprovalRequestData asks an operator to decide on a staged outreach
// item.
type ApprovalRequestData struct {
	OutreachID uuid.UUID      `json:"outreachId"`
	Channel    string         `json:"channel"`
	ActionKind string         `json:"actionKind"`
	Recipient  string         `json:"recipient"`
	Subject    string         `json:"subject,omitempty"`
	Preview    string         `json:"preview"`
	Actions    []ActionButton `json:"actions"`
}

// PositiveResponseData announces a positively classified reply.
type PositiveResponseData struct {
	MessageID string   `json:"messageId"`
	ThreadID  string   `json:"threadId"`
	From      string   `json:"from"`
	Signals   []string `json:"signals,omitempty"`
	Snippet   string   `json:"snippet,omitempty"`
}

// MeetingBookedData announces a fresh booking.
type MeetingBookedData struct {
	EventID     string    `json:"eventId"`
	Invitee     string    `json:"invitee"`
	MeetingType string    `json:"meetingType"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// DigestData is the end-of-day summary. Built from a fresh snapshot
// on every send.
type DigestData struct {
	Date             string         `json:"date"`
	SentByChannel    map[string]int `json:"sentByChannel"`
	MeetingsBooked   int            `json:"meetingsBooked"`
	RepliesByOutcome map[string]int `json:"repliesByOutcome"`
	PendingApprovals int            `json:"pendingApprovals"`
}
