// Package meetings applies booking lifecycle events to meeting
// records and enriches fresh bookings with prospect research.
package meetings

import (
	"encoding/json"
	"time"
)

// Meeting statuses.
const (
	StatusScheduled = "scheduled"
	StatusCanceled  = "canceled"
)

// MeetingRecord is one meeting keyed by the booking provider's event
// id. Reschedules update the same record; they never create a second
// one.
type MeetingRecord struct {
	EventID      string          `json:"eventId"`
	Status       string          `json:"status"`
	MeetingType  string          `json:"meetingType"`
	InviteeEmail string          `json:"inviteeEmail"`
	InviteeName  string          `json:"inviteeName"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      time.Time       `json:"endTime"`
	Research     json.RawMessage `json:"research,omitempty"`
	OccurredAt   time.Time       `json:"occurredAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
