package replies

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"outreach_backend/internal/agent"
	"outreach_backend/internal/events"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

type fakeReplyRepo struct {
	mu      sync.Mutex
	records map[string]ClassificationRecord
}

func newFakeReplyRepo() *fakeReplyRepo {
	return &fakeReplyRepo{records: make(map[string]ClassificationRecord)}
}

func (r *fakeReplyRepo) Save(_ context.Context, rec ClassificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.MessageID]; !exists {
		r.records[rec.MessageID] = rec
	}
	return nil
}

func (r *fakeReplyRepo) Get(_ context.Context, messageID string) (ClassificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[messageID]
	if !ok {
		return ClassificationRecord{}, ErrClassificationNotFound
	}
	return rec, nil
}

func (r *fakeReplyRepo) CountByCategorySince(_ context.Context, since time.Time) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, rec := range r.records {
		if !rec.CreatedAt.Before(since) {
			counts[rec.Category]++
		}
	}
	return counts, nil
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

type fixedInvoker struct {
	result agent.Result
	err    error
}

func (f *fixedInvoker) Invoke(context.Context, agent.Role, string) (agent.Result, error) {
	return f.result, f.err
}

func replyEvent(messageID, text string) webhook.Event {
	payload, _ := json.Marshal(map[string]string{
		"message_id": messageID,
		"thread_id":  "TH-1",
		"from":       "prospect@example.com",
		"subject":    "Re: quick question",
		"text":       text,
	})
	return webhook.Event{
		Provider:   webhook.ProviderReply,
		EventType:  webhook.EventReplyReceived,
		ExternalID: messageID,
		Payload:    payload,
	}
}

func TestHandleReplyClassifiesAndPublishes(t *testing.T) {
	repo := newFakeReplyRepo()
	bus := &recordingBus{}
	invoker := &fixedInvoker{result: agent.Result{
		Status: agent.StatusSuccess,
		Text:   `{"category":"positive","signals":["asked for pricing","suggested a call"]}`,
	}}
	svc := NewService(repo, bus, invoker, logger.New("development"))

	raw, err := svc.HandleReply(context.Background(), replyEvent("MSG-1", "This looks great, can you send pricing?"))
	if err != nil {
		t.Fatalf("handle reply failed: %v", err)
	}

	var result replyResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result not json: %v", err)
	}
	if result.Category != CategoryPositive {
		t.Errorf("category = %q", result.Category)
	}

	rec, err := repo.Get(context.Background(), "MSG-1")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.ThreadID != "TH-1" || len(rec.Signals) != 2 {
		t.Errorf("record = %+v", rec)
	}

	published := bus.events()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	classified, ok := published[0].(events.ReplyClassified)
	if !ok {
		t.Fatalf("published event type %T", published[0])
	}
	if classified.Classification != CategoryPositive || classified.MessageID != "MSG-1" {
		t.Errorf("event = %+v", classified)
	}
}

func TestHandleReplyUnknownCategoryFallsBackToNeutral(t *testing.T) {
	repo := newFakeReplyRepo()
	invoker := &fixedInvoker{result: agent.Result{
		Status: agent.StatusSuccess,
		Text:   `{"category":"enthusiastic","signals":[]}`,
	}}
	svc := NewService(repo, &recordingBus{}, invoker, logger.New("development"))

	if _, err := svc.HandleReply(context.Background(), replyEvent("MSG-2", "wow!")); err != nil {
		t.Fatalf("handle reply failed: %v", err)
	}

	rec, _ := repo.Get(context.Background(), "MSG-2")
	if rec.Category != CategoryNeutral {
		t.Errorf("category = %q, want %q", rec.Category, CategoryNeutral)
	}
	found := false
	for _, s := range rec.Signals {
		if strings.HasPrefix(s, "unrecognized_category:") {
			found = true
		}
	}
	if !found {
		t.Errorf("signals = %v, want unrecognized_category marker", rec.Signals)
	}
}

func TestHandleReplyAgentFailureIsDownstream(t *testing.T) {
	svc := NewService(newFakeReplyRepo(), &recordingBus{}, &fixedInvoker{err: apperr.Downstream("model overloaded")}, logger.New("development"))

	_, err := svc.HandleReply(context.Background(), replyEvent("MSG-3", "hello"))
	if !apperr.Is(err, apperr.KindDownstream) {
		t.Fatalf("err = %v, want downstream", err)
	}
}

func TestHandleReplyRejectsMissingFields(t *testing.T) {
	svc := NewService(newFakeReplyRepo(), &recordingBus{}, &fixedInvoker{}, logger.New("development"))

	evt := webhook.Event{Payload: json.RawMessage(`{"thread_id":"TH-1"}`)}
	_, err := svc.HandleReply(context.Background(), evt)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestSnippetTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	if got := snippet(long); len([]rune(got)) != snippetLimit {
		t.Errorf("snippet length = %d, want %d", len([]rune(got)), snippetLimit)
	}
	if got := snippet("short"); got != "short" {
		t.Errorf("snippet = %q", got)
	}
}
