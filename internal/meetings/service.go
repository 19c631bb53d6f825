package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/internal/agent"
	"outreach_backend/internal/events"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

// Repository is the persistence interface the service depends on.
type Repository interface {
	Upsert(ctx context.Context, rec MeetingRecord) error
	Get(ctx context.Context, eventID string) (MeetingRecord, error)
	SetResearch(ctx context.Context, eventID string, research json.RawMessage) error
	CountBookedSince(ctx context.Context, since time.Time) (int, error)
}

const opHandleBooking = "meetings.service.handle_booking"

// Service applies booking lifecycle events.
type Service struct {
	repo  Repository
	bus   events.Bus
	agent agent.Invoker
	log   *logger.Logger
}

// NewService creates the meetings service. The agent invoker may be
// nil; research is then skipped.
func NewService(repo Repository, bus events.Bus, invoker agent.Invoker, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, agent: invoker, log: log}
}

type bookingPayload struct {
	CreatedAt time.Time `json:"created_at"`
	Payload   struct {
		Event struct {
			UUID      string    `json:"uuid"`
			Name      string    `json:"name"`
			StartTime time.Time `json:"start_time"`
			EndTime   time.Time `json:"end_time"`
		} `json:"event"`
		Invitee struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"invitee"`
	} `json:"payload"`
}

type bookingResult struct {
	MeetingID string `json:"meetingId"`
	Status    string `json:"status"`
}

// HandleBooking is the webhook handler for all three booking
// lifecycle event types.
func (s *Service) HandleBooking(ctx context.Context, evt webhook.Event) (json.RawMessage, error) {
	var p bookingPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return nil, apperr.Validation("malformed booking payload").WithOp(opHandleBooking)
	}
	if p.Payload.Event.UUID == "" {
		return nil, apperr.Validation("booking payload missing event uuid").WithOp(opHandleBooking)
	}

	status := StatusScheduled
	if evt.EventType == webhook.EventBookingCanceled {
		status = StatusCanceled
	}

	rec := MeetingRecord{
		EventID:      p.Payload.Event.UUID,
		Status:       status,
		MeetingType:  p.Payload.Event.Name,
		InviteeEmail: p.Payload.Invitee.Email,
		InviteeName:  p.Payload.Invitee.Name,
		StartTime:    p.Payload.Event.StartTime,
		EndTime:      p.Payload.Event.EndTime,
		OccurredAt:   evt.OccurredAt,
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	if evt.EventType == webhook.EventBookingCreated {
		s.bus.Publish(ctx, events.MeetingBooked{
			BaseEvent:   events.NewBaseEvent(),
			EventID:     rec.EventID,
			Invitee:     rec.InviteeEmail,
			StartTime:   rec.StartTime,
			EndTime:     rec.EndTime,
			MeetingType: rec.MeetingType,
		})
		s.research(ctx, rec)
	}

	return json.Marshal(bookingResult{MeetingID: rec.EventID, Status: status})
}

// research asks the agent for background on the invitee's company.
// Failures are logged and swallowed; the booking itself already stuck.
func (s *Service) research(ctx context.Context, rec MeetingRecord) {
	if s.agent == nil {
		return
	}
	domain := inviteeDomain(rec.InviteeEmail)
	if domain == "" {
		return
	}

	prompt := fmt.Sprintf(
		"Research the company behind the domain %q ahead of a meeting titled %q. Respond with JSON {company, industry, size, talking_points}.",
		domain, rec.MeetingType,
	)
	result, err := s.agent.Invoke(ctx, agent.RoleResearcher, prompt)
	if err != nil {
		if !errors.Is(err, agent.ErrAgentDisabled) {
			s.log.Warn("meeting research failed", "eventId", rec.EventID, "error", err)
		}
		return
	}

	var doc json.RawMessage
	if err := agent.DecodeJSON(result, &doc); err != nil {
		s.log.Warn("meeting research returned no usable document", "eventId", rec.EventID, "error", err)
		return
	}
	if err := s.repo.SetResearch(ctx, rec.EventID, doc); err != nil {
		s.log.Warn("failed to store meeting research", "eventId", rec.EventID, "error", err)
	}
}

// Get loads one meeting record.
func (s *Service) Get(ctx context.Context, eventID string) (MeetingRecord, error) {
	return s.repo.Get(ctx, eventID)
}

// BookedSince counts still-scheduled meetings created since the cutoff.
func (s *Service) BookedSince(ctx context.Context, since time.Time) (int, error) {
	return s.repo.CountBookedSince(ctx, since)
}

func inviteeDomain(email string) string {
	_, domain, found := strings.Cut(email, "@")
	if !found || domain == "" {
		return ""
	}
	return strings.ToLower(domain)
}
