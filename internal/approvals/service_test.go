package approvals

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

type fakeApprovalRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*ApprovalRecord
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{records: make(map[uuid.UUID]*ApprovalRecord)}
}

func (r *fakeApprovalRepo) Create(_ context.Context, rec ApprovalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.OutreachID]; exists {
		return apperr.Conflict("approval already exists")
	}
	stored := rec
	r.records[rec.OutreachID] = &stored
	return nil
}

func (r *fakeApprovalRepo) Get(_ context.Context, id uuid.UUID) (ApprovalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ApprovalRecord{}, ErrApprovalNotFound
	}
	return *rec, nil
}

func (r *fakeApprovalRepo) Decide(_ context.Context, id uuid.UUID, status Status, decidedBy string, decidedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status != StatusPending {
		return false, nil
	}
	rec.Status = status
	rec.DecidedBy = decidedBy
	rec.DecidedAt = &decidedAt
	return true, nil
}

func (r *fakeApprovalRepo) ListPending(_ context.Context) ([]ApprovalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ApprovalRecord
	for _, rec := range r.records {
		if rec.Status == StatusPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, evt events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, evt)
}

func (b *recordingBus) PublishSync(ctx context.Context, evt events.Event) error {
	b.Publish(ctx, evt)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) events() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.published...)
}

func newTestService() (*Service, *fakeApprovalRepo, *recordingBus) {
	repo := newFakeApprovalRepo()
	bus := &recordingBus{}
	svc := NewService(repo, bus, "https://app.example.com", logger.New("development"))
	return svc, repo, bus
}

func TestApproveMovesPendingToApproved(t *testing.T) {
	svc, _, bus := newTestService()
	id := uuid.New()

	if _, err := svc.RequestApproval(context.Background(), id); err != nil {
		t.Fatalf("request approval failed: %v", err)
	}
	if err := svc.Approve(context.Background(), id, "operator"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	rec, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.Status != StatusApproved {
		t.Errorf("status = %q, want %q", rec.Status, StatusApproved)
	}
	if rec.DecidedBy != "operator" {
		t.Errorf("decidedBy = %q", rec.DecidedBy)
	}

	published := bus.events()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	decided, ok := published[0].(events.ApprovalDecided)
	if !ok {
		t.Fatalf("published event type %T", published[0])
	}
	if decided.Status != string(StatusApproved) {
		t.Errorf("event status = %q", decided.Status)
	}
}

func TestSecondDecisionIsConflict(t *testing.T) {
	svc, _, _ := newTestService()
	id := uuid.New()

	if _, err := svc.RequestApproval(context.Background(), id); err != nil {
		t.Fatalf("request approval failed: %v", err)
	}
	if err := svc.Reject(context.Background(), id, "operator"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	err := svc.Approve(context.Background(), id, "second-operator")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second decision err = %v, want conflict", err)
	}

	rec, _ := svc.Get(context.Background(), id)
	if rec.Status != StatusRejected {
		t.Errorf("status after conflicting decision = %q, want %q", rec.Status, StatusRejected)
	}
}

func TestDecideUnknownOutreachIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.Approve(context.Background(), uuid.New(), "operator")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestParseActionID(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		actionID string
		wantVerb string
		wantErr  bool
	}{
		{fmt.Sprintf("approve_%s", id), VerbApprove, false},
		{fmt.Sprintf("reject_%s", id), VerbReject, false},
		{fmt.Sprintf("edit_%s", id), VerbEdit, false},
		{fmt.Sprintf("delete_%s", id), "", true},
		{"approve_not-a-uuid", "", true},
		{"nounderscore", "", true},
	}

	for _, tc := range tests {
		action, err := ParseActionID(tc.actionID)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseActionID(%q) succeeded, want error", tc.actionID)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseActionID(%q) failed: %v", tc.actionID, err)
			continue
		}
		if action.Verb != tc.wantVerb || action.OutreachID != id {
			t.Errorf("ParseActionID(%q) = %+v", tc.actionID, action)
		}
	}
}

func interactionEvent(actionID, username string) webhook.Event {
	payload := fmt.Sprintf(`{"type":"block_actions","trigger_id":"TR-1","actions":[{"action_id":"%s"}],"user":{"username":"%s"}}`, actionID, username)
	return webhook.Event{
		Provider:   webhook.ProviderInteraction,
		EventType:  webhook.EventInteractionAction,
		ExternalID: "TR-1",
		Payload:    json.RawMessage(payload),
	}
}

func TestHandleInteractionApprove(t *testing.T) {
	svc, _, _ := newTestService()
	id := uuid.New()
	if _, err := svc.RequestApproval(context.Background(), id); err != nil {
		t.Fatalf("request approval failed: %v", err)
	}

	raw, err := svc.HandleInteraction(context.Background(), interactionEvent("approve_"+id.String(), "operator"))
	if err != nil {
		t.Fatalf("handle interaction failed: %v", err)
	}

	var result interactionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result not json: %v", err)
	}
	if result.Action != VerbApprove || result.Status != string(StatusApproved) {
		t.Errorf("result = %+v", result)
	}

	rec, _ := svc.Get(context.Background(), id)
	if rec.Status != StatusApproved {
		t.Errorf("status = %q", rec.Status)
	}
}

func TestHandleInteractionEditMutatesNothing(t *testing.T) {
	svc, _, bus := newTestService()
	id := uuid.New()
	if _, err := svc.RequestApproval(context.Background(), id); err != nil {
		t.Fatalf("request approval failed: %v", err)
	}

	raw, err := svc.HandleInteraction(context.Background(), interactionEvent("edit_"+id.String(), "operator"))
	if err != nil {
		t.Fatalf("handle interaction failed: %v", err)
	}

	var result interactionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result not json: %v", err)
	}
	if result.RedirectURL != "https://app.example.com/outreach/"+id.String() {
		t.Errorf("redirect url = %q", result.RedirectURL)
	}

	rec, _ := svc.Get(context.Background(), id)
	if rec.Status != StatusPending {
		t.Errorf("edit changed status to %q", rec.Status)
	}
	if len(bus.events()) != 0 {
		t.Errorf("edit published %d events", len(bus.events()))
	}
}
