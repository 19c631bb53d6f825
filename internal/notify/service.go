package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/approvals"
	"outreach_backend/internal/events"
	"outreach_backend/internal/replies"
	"outreach_backend/platform/logger"
)

// OutreachStats supplies send counts for the digest.
type OutreachStats interface {
	SentCountsSince(ctx context.Context, since time.Time) (map[string]int, error)
}

// MeetingStats supplies booking counts for the digest.
type MeetingStats interface {
	BookedSince(ctx context.Context, since time.Time) (int, error)
}

// ReplyStats supplies classification counts for the digest.
type ReplyStats interface {
	CountsSince(ctx context.Context, since time.Time) (map[string]int, error)
}

// ApprovalStats supplies the pending backlog for the digest.
type ApprovalStats interface {
	PendingCount(ctx context.Context) (int, error)
}

// DigestSources bundles the repositories the digest reads. Each send
// takes a fresh snapshot, which is what makes a re-sent digest
// harmless.
type DigestSources struct {
	Outreach  OutreachStats
	Meetings  MeetingStats
	Replies   ReplyStats
	Approvals ApprovalStats
}

// Dispatcher renders and posts notifications, and tracks which
// approval requests are still outstanding.
type Dispatcher struct {
	client  Poster
	sources DigestSources
	now     func() time.Time
	log     *logger.Logger

	mu          sync.Mutex
	outstanding map[uuid.UUID]time.Time
}

func NewDispatcher(client Poster, sources DigestSources, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		client:      client,
		sources:     sources,
		now:         time.Now,
		log:         log,
		outstanding: make(map[uuid.UUID]time.Time),
	}
}

// Notify posts one notification of the given kind.
func (d *Dispatcher) Notify(ctx context.Context, kind Kind, data any) error {
	return d.client.Post(ctx, envelope{
		Kind:   kind,
		SentAt: d.now().UTC(),
		Data:   data,
	})
}

// SubscribeTo wires the dispatcher onto the domain event bus.
func (d *Dispatcher) SubscribeTo(bus events.Bus) {
	bus.Subscribe(events.OutreachStaged{}.EventName(), events.HandlerFunc(d.onOutreachStaged))
	bus.Subscribe(events.ReplyClassified{}.EventName(), events.HandlerFunc(d.onReplyClassified))
	bus.Subscribe(events.MeetingBooked{}.EventName(), events.HandlerFunc(d.onMeetingBooked))
	bus.Subscribe(events.ApprovalDecided{}.EventName(), events.HandlerFunc(d.onApprovalDecided))
}

func (d *Dispatcher) onOutreachStaged(ctx context.Context, evt events.Event) error {
	staged, ok := evt.(events.OutreachStaged)
	if !ok {
		return nil
	}

	approve, reject, edit := approvals.ActionIDs(staged.OutreachID)
	err := d.Notify(ctx, KindApprovalRequested, ApprovalRequestData{
		OutreachID: staged.OutreachID,
		Channel:    staged.Channel,
		ActionKind: staged.ActionKind,
		Recipient:  staged.Recipient,
		Subject:    staged.Subject,
		Preview:    staged.Preview,
		Actions: []ActionButton{
			{ID: approve, Label: "Approve"},
			{ID: reject, Label: "Reject"},
			{ID: edit, Label: "Edit"},
		},
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.outstanding[staged.OutreachID] = d.now().UTC()
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) onReplyClassified(ctx context.Context, evt events.Event) error {
	classified, ok := evt.(events.ReplyClassified)
	if !ok {
		return nil
	}
	// Only positive replies interrupt an operator.
	if classified.Classification != replies.CategoryPositive {
		return nil
	}
	return d.Notify(ctx, KindPositiveResponse, PositiveResponseData{
		MessageID: classified.MessageID,
		ThreadID:  classified.ThreadID,
		From:      classified.From,
		Signals:   classified.Signals,
		Snippet:   classified.Snippet,
	})
}

func (d *Dispatcher) onMeetingBooked(ctx context.Context, evt events.Event) error {
	booked, ok := evt.(events.MeetingBooked)
	if !ok {
		return nil
	}
	return d.Notify(ctx, KindMeetingBooked, MeetingBookedData{
		EventID:     booked.EventID,
		Invitee:     booked.Invitee,
		MeetingType: booked.MeetingType,
		StartTime:   booked.StartTime,
		EndTime:     booked.EndTime,
	})
}

func (d *Dispatcher) onApprovalDecided(_ context.Context, evt events.Event) error {
	decided, ok := evt.(events.ApprovalDecided)
	if !ok {
		return nil
	}
	d.mu.Lock()
	delete(d.outstanding, decided.OutreachID)
	d.mu.Unlock()
	return nil
}

// Outstanding lists outreach ids whose approval request has been sent
// but not yet decided.
func (d *Dispatcher) Outstanding() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(d.outstanding))
	for id := range d.outstanding {
		ids = append(ids, id)
	}
	return ids
}

// SendDailyDigest aggregates today's counts and posts the digest.
// Every call rebuilds the snapshot from the repositories, so sending
// it twice just reports the same day twice.
func (d *Dispatcher) SendDailyDigest(ctx context.Context) error {
	now := d.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	data := DigestData{
		Date:             dayStart.Format("2006-01-02"),
		SentByChannel:    map[string]int{},
		RepliesByOutcome: map[string]int{},
	}

	if d.sources.Outreach != nil {
		sent, err := d.sources.Outreach.SentCountsSince(ctx, dayStart)
		if err != nil {
			return err
		}
		data.SentByChannel = sent
	}
	if d.sources.Meetings != nil {
		booked, err := d.sources.Meetings.BookedSince(ctx, dayStart)
		if err != nil {
			return err
		}
		data.MeetingsBooked = booked
	}
	if d.sources.Replies != nil {
		counts, err := d.sources.Replies.CountsSince(ctx, dayStart)
		if err != nil {
			return err
		}
		data.RepliesByOutcome = counts
	}
	if d.sources.Approvals != nil {
		pending, err := d.sources.Approvals.PendingCount(ctx)
		if err != nil {
			return err
		}
		data.PendingApprovals = pending
	}

	return d.Notify(ctx, KindDailyDigest, data)
}
