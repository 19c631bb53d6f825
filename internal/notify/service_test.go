package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/internal/replies"
	"outreach_backend/platform/logger"
)

type capturingPoster struct {
	mu     sync.Mutex
	posted []envelope
}

func (p *capturingPoster) Post(_ context.Context, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, payload.(envelope))
	return nil
}

func (p *capturingPoster) all() []envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]envelope(nil), p.posted...)
}

type fixedOutreachStats struct{ counts map[string]int }

func (s fixedOutreachStats) SentCountsSince(context.Context, time.Time) (map[string]int, error) {
	return s.counts, nil
}

type fixedMeetingStats struct{ booked int }

func (s fixedMeetingStats) BookedSince(context.Context, time.Time) (int, error) {
	return s.booked, nil
}

type fixedReplyStats struct{ counts map[string]int }

func (s fixedReplyStats) CountsSince(context.Context, time.Time) (map[string]int, error) {
	return s.counts, nil
}

type fixedApprovalStats struct{ pending int }

func (s fixedApprovalStats) PendingCount(context.Context) (int, error) {
	return s.pending, nil
}

func newTestDispatcher() (*Dispatcher, *capturingPoster) {
	poster := &capturingPoster{}
	d := NewDispatcher(poster, DigestSources{
		Outreach:  fixedOutreachStats{counts: map[string]int{"email": 12, "professional_network": 4}},
		Meetings:  fixedMeetingStats{booked: 2},
		Replies:   fixedReplyStats{counts: map[string]int{"positive": 3, "neutral": 5}},
		Approvals: fixedApprovalStats{pending: 7},
	}, logger.New("development"))
	return d, poster
}

func TestApprovalRequestedEmbedsActionIDs(t *testing.T) {
	d, poster := newTestDispatcher()
	id := uuid.New()

	err := d.onOutreachStaged(context.Background(), events.OutreachStaged{
		BaseEvent:  events.NewBaseEvent(),
		OutreachID: id,
		Channel:    "email",
		ActionKind: "email",
		Recipient:  "ada@acme.com",
		Subject:    "Quick question",
		Preview:    "Hi Ada, saw your team is scaling...",
	})
	if err != nil {
		t.Fatalf("staged handler failed: %v", err)
	}

	posted := poster.all()
	if len(posted) != 1 {
		t.Fatalf("posted %d notifications, want 1", len(posted))
	}
	if posted[0].Kind != KindApprovalRequested {
		t.Errorf("kind = %q", posted[0].Kind)
	}
	data := posted[0].Data.(ApprovalRequestData)
	if len(data.Actions) != 3 {
		t.Fatalf("actions = %d, want 3", len(data.Actions))
	}
	wantIDs := []string{"approve_" + id.String(), "reject_" + id.String(), "edit_" + id.String()}
	for i, want := range wantIDs {
		if data.Actions[i].ID != want {
			t.Errorf("action[%d] id = %q, want %q", i, data.Actions[i].ID, want)
		}
	}

	outstanding := d.Outstanding()
	if len(outstanding) != 1 || outstanding[0] != id {
		t.Errorf("outstanding = %v", outstanding)
	}
}

func TestApprovalDecisionClearsOutstanding(t *testing.T) {
	d, _ := newTestDispatcher()
	id := uuid.New()

	if err := d.onOutreachStaged(context.Background(), events.OutreachStaged{
		BaseEvent: events.NewBaseEvent(), OutreachID: id, Channel: "email", ActionKind: "email",
	}); err != nil {
		t.Fatalf("staged handler failed: %v", err)
	}
	if err := d.onApprovalDecided(context.Background(), events.ApprovalDecided{
		BaseEvent: events.NewBaseEvent(), OutreachID: id, Status: "approved",
	}); err != nil {
		t.Fatalf("decided handler failed: %v", err)
	}

	if got := d.Outstanding(); len(got) != 0 {
		t.Errorf("outstanding after decision = %v", got)
	}
}

func TestPositiveReplyNotifiesExactlyOnce(t *testing.T) {
	d, poster := newTestDispatcher()

	evt := events.ReplyClassified{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      "MSG-1",
		From:           "prospect@example.com",
		Classification: replies.CategoryPositive,
		Snippet:        "Sounds great, send the contract",
	}
	if err := d.onReplyClassified(context.Background(), evt); err != nil {
		t.Fatalf("classified handler failed: %v", err)
	}

	posted := poster.all()
	if len(posted) != 1 {
		t.Fatalf("posted %d notifications, want 1", len(posted))
	}
	if posted[0].Kind != KindPositiveResponse {
		t.Errorf("kind = %q", posted[0].Kind)
	}
}

func TestNeutralReplyNotifiesNobody(t *testing.T) {
	d, poster := newTestDispatcher()

	evt := events.ReplyClassified{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      "MSG-2",
		Classification: replies.CategoryNeutral,
	}
	if err := d.onReplyClassified(context.Background(), evt); err != nil {
		t.Fatalf("classified handler failed: %v", err)
	}
	if got := poster.all(); len(got) != 0 {
		t.Errorf("posted %d notifications, want 0", len(got))
	}
}

func TestMeetingBookedNotification(t *testing.T) {
	d, poster := newTestDispatcher()

	start := time.Date(2026, 1, 22, 9, 0, 0, 0, time.UTC)
	err := d.onMeetingBooked(context.Background(), events.MeetingBooked{
		BaseEvent: events.NewBaseEvent(),
		EventID:   "EV1",
		Invitee:   "ada@acme.com",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("booked handler failed: %v", err)
	}

	posted := poster.all()
	if len(posted) != 1 || posted[0].Kind != KindMeetingBooked {
		t.Fatalf("posted = %+v", posted)
	}
	data := posted[0].Data.(MeetingBookedData)
	if data.EventID != "EV1" || !data.StartTime.Equal(start) {
		t.Errorf("data = %+v", data)
	}
}

func TestDailyDigestSnapshotsFreshCounts(t *testing.T) {
	d, poster := newTestDispatcher()

	if err := d.SendDailyDigest(context.Background()); err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	if err := d.SendDailyDigest(context.Background()); err != nil {
		t.Fatalf("second digest failed: %v", err)
	}

	posted := poster.all()
	if len(posted) != 2 {
		t.Fatalf("posted %d digests, want 2", len(posted))
	}
	for _, env := range posted {
		data := env.Data.(DigestData)
		if data.SentByChannel["email"] != 12 {
			t.Errorf("sent email = %d", data.SentByChannel["email"])
		}
		if data.MeetingsBooked != 2 || data.PendingApprovals != 7 {
			t.Errorf("digest = %+v", data)
		}
		if data.RepliesByOutcome["positive"] != 3 {
			t.Errorf("replies = %v", data.RepliesByOutcome)
		}
	}
}
