// Package outreach stages outbound messages, walks them through
// approval and admission, and sends them over their channel.
package outreach

import (
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/admission"
)

// Item statuses.
const (
	StatusStaged    = "staged"    // awaiting approval
	StatusScheduled = "scheduled" // admission denied, retry queued
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// OutreachItem is one staged outbound message.
type OutreachItem struct {
	ID           uuid.UUID            `json:"id"`
	Channel      admission.Channel    `json:"channel"`
	Kind         admission.ActionKind `json:"kind"`
	Recipient    string               `json:"recipient"`
	Subject      string               `json:"subject,omitempty"`
	Body         string               `json:"body"`
	Status       string               `json:"status"`
	ExternalID   string               `json:"externalId,omitempty"`
	ScheduledFor *time.Time           `json:"scheduledFor,omitempty"`
	SentAt       *time.Time           `json:"sentAt,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// SendOutcome reports what happened to one send attempt. A denial is
// not an error: Success is false and ScheduledFor carries the retry
// hint.
type SendOutcome struct {
	OutreachID   uuid.UUID `json:"outreachId"`
	Success      bool      `json:"success"`
	Reason       string    `json:"reason,omitempty"`
	ScheduledFor time.Time `json:"scheduledFor,omitempty"`
	MessageID    string    `json:"messageId,omitempty"`
}

// BatchResult reports a batch run. When admission denies mid-batch the
// remainder is left untouched and rescheduled as a whole.
type BatchResult struct {
	Sent         []uuid.UUID `json:"sent"`
	Halted       bool        `json:"halted"`
	Reason       string      `json:"reason,omitempty"`
	ScheduledFor time.Time   `json:"scheduledFor,omitempty"`
	Remaining    []uuid.UUID `json:"remaining,omitempty"`
}
