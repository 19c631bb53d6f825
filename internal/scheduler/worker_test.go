package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"outreach_backend/internal/admission"
	"outreach_backend/internal/outreach"
	"outreach_backend/platform/logger"
)

type fakeSender struct {
	sentIDs      []uuid.UUID
	batchChannel admission.Channel
	batchIDs     []uuid.UUID
	outcome      outreach.SendOutcome
	batchResult  outreach.BatchResult
}

func (f *fakeSender) SendApproved(_ context.Context, id uuid.UUID) (outreach.SendOutcome, error) {
	f.sentIDs = append(f.sentIDs, id)
	return f.outcome, nil
}

func (f *fakeSender) SendBatch(_ context.Context, channel admission.Channel, ids []uuid.UUID) (outreach.BatchResult, error) {
	f.batchChannel = channel
	f.batchIDs = ids
	return f.batchResult, nil
}

type fakeEnricher struct {
	meetingIDs []string
}

func (f *fakeEnricher) RetryEnrichment(_ context.Context, meetingID string) error {
	f.meetingIDs = append(f.meetingIDs, meetingID)
	return nil
}

type fakeDigest struct {
	calls int
}

func (f *fakeDigest) SendDailyDigest(_ context.Context) error {
	f.calls++
	return nil
}

func testWorker(sender *fakeSender, enricher *fakeEnricher, digest *fakeDigest) *Worker {
	return &Worker{
		sender:   sender,
		enricher: enricher,
		digest:   digest,
		log:      logger.New("development"),
	}
}

func TestHandleRetryItemSendsStoredItem(t *testing.T) {
	sender := &fakeSender{outcome: outreach.SendOutcome{Success: true}}
	w := testWorker(sender, &fakeEnricher{}, &fakeDigest{})

	id := uuid.New()
	task, err := NewRetryItemTask(RetryItemPayload{OutreachID: id.String()})
	if err != nil {
		t.Fatalf("NewRetryItemTask: %v", err)
	}

	if err := w.handleRetryItem(context.Background(), task); err != nil {
		t.Fatalf("handleRetryItem: %v", err)
	}
	if len(sender.sentIDs) != 1 || sender.sentIDs[0] != id {
		t.Fatalf("expected SendApproved for %s, got %v", id, sender.sentIDs)
	}
}

func TestHandleRetryItemRejectsBadID(t *testing.T) {
	sender := &fakeSender{}
	w := testWorker(sender, &fakeEnricher{}, &fakeDigest{})

	task, err := NewRetryItemTask(RetryItemPayload{OutreachID: "not-a-uuid"})
	if err != nil {
		t.Fatalf("NewRetryItemTask: %v", err)
	}

	if err := w.handleRetryItem(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed id")
	}
	if len(sender.sentIDs) != 0 {
		t.Fatalf("expected no sends, got %v", sender.sentIDs)
	}
}

func TestHandleSendBatchPassesChannelAndIDs(t *testing.T) {
	sender := &fakeSender{}
	w := testWorker(sender, &fakeEnricher{}, &fakeDigest{})

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	task, err := NewSendBatchTask(SendBatchPayload{
		Channel:     string(admission.ChannelEmail),
		OutreachIDs: []string{ids[0].String(), ids[1].String()},
	})
	if err != nil {
		t.Fatalf("NewSendBatchTask: %v", err)
	}

	if err := w.handleSendBatch(context.Background(), task); err != nil {
		t.Fatalf("handleSendBatch: %v", err)
	}
	if sender.batchChannel != admission.ChannelEmail {
		t.Fatalf("expected channel %q, got %q", admission.ChannelEmail, sender.batchChannel)
	}
	if len(sender.batchIDs) != 2 || sender.batchIDs[0] != ids[0] || sender.batchIDs[1] != ids[1] {
		t.Fatalf("expected batch ids %v, got %v", ids, sender.batchIDs)
	}
}

func TestHandleEnrichmentRetry(t *testing.T) {
	enricher := &fakeEnricher{}
	w := testWorker(&fakeSender{}, enricher, &fakeDigest{})

	task, err := NewEnrichmentRetryTask(EnrichmentRetryPayload{MeetingID: "meet-42"})
	if err != nil {
		t.Fatalf("NewEnrichmentRetryTask: %v", err)
	}

	if err := w.handleEnrichmentRetry(context.Background(), task); err != nil {
		t.Fatalf("handleEnrichmentRetry: %v", err)
	}
	if len(enricher.meetingIDs) != 1 || enricher.meetingIDs[0] != "meet-42" {
		t.Fatalf("expected retry for meet-42, got %v", enricher.meetingIDs)
	}
}

func TestHandleDailyDigest(t *testing.T) {
	digest := &fakeDigest{}
	w := testWorker(&fakeSender{}, &fakeEnricher{}, digest)

	if err := w.handleDailyDigest(context.Background(), asynq.NewTask(TaskDailyDigest, nil)); err != nil {
		t.Fatalf("handleDailyDigest: %v", err)
	}
	if digest.calls != 1 {
		t.Fatalf("expected one digest send, got %d", digest.calls)
	}
}
