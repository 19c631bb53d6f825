package transcripts

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"outreach_backend/internal/agent"
	"outreach_backend/internal/events"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

func TestNormalizeTranscript(t *testing.T) {
	flat := json.RawMessage(`"We discussed pricing and next steps."`)
	text, err := NormalizeTranscript(flat)
	if err != nil {
		t.Fatalf("flat transcript failed: %v", err)
	}
	if text != "Unknown: We discussed pricing and next steps." {
		t.Errorf("flat = %q", text)
	}

	tagged := json.RawMessage(`[{"speaker":"Ada","text":"Budget is tight."},{"speaker":"Rep","text":"Understood."},{"text":"inaudible"}]`)
	text, err = NormalizeTranscript(tagged)
	if err != nil {
		t.Fatalf("tagged transcript failed: %v", err)
	}
	want := "Ada: Budget is tight.\nRep: Understood.\nUnknown: inaudible"
	if text != want {
		t.Errorf("tagged = %q, want %q", text, want)
	}

	if _, err := NormalizeTranscript(json.RawMessage(`""`)); err == nil {
		t.Error("empty flat transcript accepted")
	}
	if _, err := NormalizeTranscript(json.RawMessage(`[]`)); err == nil {
		t.Error("empty segment list accepted")
	}
	if _, err := NormalizeTranscript(json.RawMessage(`42`)); err == nil {
		t.Error("numeric transcript accepted")
	}
}

type fakeExtractionRepo struct {
	mu      sync.Mutex
	records map[string]*ExtractionRecord
	phrases map[string]bool
}

func newFakeExtractionRepo() *fakeExtractionRepo {
	return &fakeExtractionRepo{
		records: make(map[string]*ExtractionRecord),
		phrases: make(map[string]bool),
	}
}

func (r *fakeExtractionRepo) Upsert(_ context.Context, rec ExtractionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := rec
	r.records[rec.MeetingID] = &stored
	return nil
}

func (r *fakeExtractionRepo) Get(_ context.Context, meetingID string) (ExtractionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[meetingID]
	if !ok {
		return ExtractionRecord{}, ErrExtractionNotFound
	}
	return *rec, nil
}

func (r *fakeExtractionRepo) AddPhrases(_ context.Context, _ string, phrases []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, p := range phrases {
		if p == "" || r.phrases[p] {
			continue
		}
		r.phrases[p] = true
		added++
	}
	return added, nil
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

type scriptedInvoker struct {
	results []agent.Result
	errs    []error
	calls   int
}

func (f *scriptedInvoker) Invoke(context.Context, agent.Role, string) (agent.Result, error) {
	i := f.calls
	f.calls++
	var result agent.Result
	var err error
	if i < len(f.results) {
		result = f.results[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return result, err
}

type fakeRetries struct {
	enqueued []string
}

func (f *fakeRetries) EnqueueEnrichmentRetry(_ context.Context, meetingID string, _ time.Duration) error {
	f.enqueued = append(f.enqueued, meetingID)
	return nil
}

func transcriptEvent(meetingID, transcript string) webhook.Event {
	payload := `{"meeting_id":"` + meetingID + `","transcript":` + transcript + `}`
	return webhook.Event{
		Provider:   webhook.ProviderTranscript,
		EventType:  webhook.EventTranscriptReady,
		ExternalID: meetingID,
		OccurredAt: time.Now(),
		Payload:    json.RawMessage(payload),
	}
}

const extractionJSON = `{"objections":["too expensive"],"champions":["Ada"],"blockers":[],"phrases":["land and expand","routine phrase"],"next_steps":["send proposal"],"budget":"50k","timeline":"Q2"}`

func TestHandleTranscriptStoresExtraction(t *testing.T) {
	repo := newFakeExtractionRepo()
	repo.phrases["routine phrase"] = true
	bus := &recordingBus{}
	invoker := &scriptedInvoker{results: []agent.Result{{Status: agent.StatusSuccess, Text: extractionJSON}}}
	svc := NewService(repo, bus, invoker, nil, logger.New("development"))

	raw, err := svc.HandleTranscript(context.Background(), transcriptEvent("M-1", `[{"speaker":"Ada","text":"Too expensive for us."}]`))
	if err != nil {
		t.Fatalf("handle transcript failed: %v", err)
	}

	var result transcriptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result not json: %v", err)
	}
	if result.Status != StatusProcessed {
		t.Errorf("status = %q", result.Status)
	}
	if result.NewPhrases != 1 {
		t.Errorf("newPhrases = %d, want 1 (exact duplicates skipped)", result.NewPhrases)
	}

	rec, err := repo.Get(context.Background(), "M-1")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.Status != StatusProcessed {
		t.Errorf("stored status = %q", rec.Status)
	}
	var extraction Extraction
	if err := json.Unmarshal(rec.Extraction, &extraction); err != nil {
		t.Fatalf("stored extraction not json: %v", err)
	}
	if len(extraction.Objections) != 1 || extraction.Objections[0] != "too expensive" {
		t.Errorf("objections = %v", extraction.Objections)
	}

	published := bus.events()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	analyzed, ok := published[0].(events.TranscriptAnalyzed)
	if !ok {
		t.Fatalf("published event type %T", published[0])
	}
	if analyzed.MeetingID != "M-1" || analyzed.NewPhrases != 1 {
		t.Errorf("event = %+v", analyzed)
	}
}

func TestHandleTranscriptAgentTimeoutParksRecord(t *testing.T) {
	repo := newFakeExtractionRepo()
	retries := &fakeRetries{}
	invoker := &scriptedInvoker{errs: []error{apperr.Downstream("agent request timed out")}}
	svc := NewService(repo, &recordingBus{}, invoker, retries, logger.New("development"))

	raw, err := svc.HandleTranscript(context.Background(), transcriptEvent("M-2", `"short call"`))
	if err != nil {
		t.Fatalf("delivery should succeed despite agent timeout: %v", err)
	}

	var result transcriptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result not json: %v", err)
	}
	if result.Status != StatusEnrichmentPending {
		t.Errorf("status = %q, want %q", result.Status, StatusEnrichmentPending)
	}

	rec, err := repo.Get(context.Background(), "M-2")
	if err != nil {
		t.Fatalf("parked record missing: %v", err)
	}
	if rec.Status != StatusEnrichmentPending {
		t.Errorf("stored status = %q", rec.Status)
	}
	if rec.Transcript == "" {
		t.Error("parked record lost the transcript")
	}
	if len(retries.enqueued) != 1 || retries.enqueued[0] != "M-2" {
		t.Errorf("retry enqueued = %v", retries.enqueued)
	}
}

func TestRetryEnrichmentCompletesParkedRecord(t *testing.T) {
	repo := newFakeExtractionRepo()
	bus := &recordingBus{}
	invoker := &scriptedInvoker{
		results: []agent.Result{{}, {Status: agent.StatusSuccess, Text: extractionJSON}},
		errs:    []error{apperr.Downstream("agent request timed out"), nil},
	}
	svc := NewService(repo, bus, invoker, &fakeRetries{}, logger.New("development"))

	if _, err := svc.HandleTranscript(context.Background(), transcriptEvent("M-3", `"short call"`)); err != nil {
		t.Fatalf("initial delivery failed: %v", err)
	}
	if err := svc.RetryEnrichment(context.Background(), "M-3"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	rec, _ := repo.Get(context.Background(), "M-3")
	if rec.Status != StatusProcessed {
		t.Errorf("status after retry = %q, want %q", rec.Status, StatusProcessed)
	}
}

func TestRetryEnrichmentIsNoOpWhenProcessed(t *testing.T) {
	repo := newFakeExtractionRepo()
	invoker := &scriptedInvoker{results: []agent.Result{{Status: agent.StatusSuccess, Text: extractionJSON}}}
	svc := NewService(repo, &recordingBus{}, invoker, nil, logger.New("development"))

	if _, err := svc.HandleTranscript(context.Background(), transcriptEvent("M-4", `"done deal"`)); err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	if err := svc.RetryEnrichment(context.Background(), "M-4"); err != nil {
		t.Fatalf("retry on processed record errored: %v", err)
	}
	if invoker.calls != 1 {
		t.Errorf("agent invoked %d times, want 1", invoker.calls)
	}
}
