package transcripts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"outreach_backend/internal/agent"
	"outreach_backend/internal/events"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

// Repository is the persistence interface the service depends on.
type Repository interface {
	Upsert(ctx context.Context, rec ExtractionRecord) error
	Get(ctx context.Context, meetingID string) (ExtractionRecord, error)
	AddPhrases(ctx context.Context, meetingID string, phrases []string) (int, error)
}

// RetryScheduler enqueues a deferred extraction retry when the agent
// is unavailable. Implemented by the scheduler client.
type RetryScheduler interface {
	EnqueueEnrichmentRetry(ctx context.Context, meetingID string, delay time.Duration) error
}

const (
	opHandleTranscript = "transcripts.service.handle_transcript"
	opRetryEnrichment  = "transcripts.service.retry_enrichment"

	retryDelay = 5 * time.Minute
)

// Service extracts insights from delivered transcripts.
type Service struct {
	repo    Repository
	bus     events.Bus
	agent   agent.Invoker
	retries RetryScheduler
	log     *logger.Logger
}

// NewService creates the transcripts service. Both the invoker and
// the retry scheduler may be nil.
func NewService(repo Repository, bus events.Bus, invoker agent.Invoker, retries RetryScheduler, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, agent: invoker, retries: retries, log: log}
}

type transcriptPayload struct {
	MeetingID  string          `json:"meeting_id"`
	Transcript json.RawMessage `json:"transcript"`
}

type transcriptResult struct {
	MeetingID  string `json:"meetingId"`
	Status     string `json:"status"`
	NewPhrases int    `json:"newPhrases"`
}

// HandleTranscript is the webhook handler for transcript deliveries.
// When the agent times out or is down, the normalized transcript is
// parked as enrichment_pending and a retry task is enqueued; the
// delivery itself still succeeds.
func (s *Service) HandleTranscript(ctx context.Context, evt webhook.Event) (json.RawMessage, error) {
	var p transcriptPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return nil, apperr.Validation("malformed transcript payload").WithOp(opHandleTranscript)
	}
	if p.MeetingID == "" {
		return nil, apperr.Validation("transcript payload missing meeting_id").WithOp(opHandleTranscript)
	}

	text, err := NormalizeTranscript(p.Transcript)
	if err != nil {
		return nil, apperr.Validation(err.Error()).WithOp(opHandleTranscript)
	}

	result, err := s.extract(ctx, p.MeetingID, text)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// RetryEnrichment re-runs extraction for a parked record. Called from
// the worker.
func (s *Service) RetryEnrichment(ctx context.Context, meetingID string) error {
	rec, err := s.repo.Get(ctx, meetingID)
	if err != nil {
		return apperr.NotFound(fmt.Sprintf("no extraction record for meeting %s", meetingID)).WithOp(opRetryEnrichment)
	}
	if rec.Status == StatusProcessed {
		return nil
	}
	_, err = s.extract(ctx, meetingID, rec.Transcript)
	return err
}

func (s *Service) extract(ctx context.Context, meetingID, text string) (transcriptResult, error) {
	prompt := fmt.Sprintf(
		"Extract sales insights from this call transcript. Respond with JSON {objections, champions, blockers, phrases, next_steps, budget, timeline}; list fields are string arrays.\n\nTranscript:\n%s",
		text,
	)

	invoked, err := s.invoke(ctx, prompt)
	if err != nil {
		if !apperr.Is(err, apperr.KindDownstream) {
			return transcriptResult{}, err
		}
		// Park the transcript; the retry task picks it up later.
		if upsertErr := s.repo.Upsert(ctx, ExtractionRecord{
			MeetingID:  meetingID,
			Status:     StatusEnrichmentPending,
			Transcript: text,
		}); upsertErr != nil {
			return transcriptResult{}, upsertErr
		}
		if s.retries != nil {
			if enqErr := s.retries.EnqueueEnrichmentRetry(ctx, meetingID, retryDelay); enqErr != nil {
				s.log.Error("failed to enqueue enrichment retry", "meetingId", meetingID, "error", enqErr)
			}
		}
		s.log.Warn("extraction deferred, agent unavailable", "meetingId", meetingID, "error", err)
		return transcriptResult{MeetingID: meetingID, Status: StatusEnrichmentPending}, nil
	}

	var extraction Extraction
	if err := agent.DecodeJSON(invoked, &extraction); err != nil {
		return transcriptResult{}, apperr.Downstream(fmt.Sprintf("agent returned unusable extraction: %v", err)).WithOp(opHandleTranscript)
	}

	doc, err := json.Marshal(extraction)
	if err != nil {
		return transcriptResult{}, apperr.Internal("encode extraction failed").WithOp(opHandleTranscript)
	}
	if err := s.repo.Upsert(ctx, ExtractionRecord{
		MeetingID:  meetingID,
		Status:     StatusProcessed,
		Transcript: text,
		Extraction: doc,
	}); err != nil {
		return transcriptResult{}, err
	}

	added, err := s.repo.AddPhrases(ctx, meetingID, extraction.Phrases)
	if err != nil {
		return transcriptResult{}, err
	}

	s.bus.Publish(ctx, events.TranscriptAnalyzed{
		BaseEvent:  events.NewBaseEvent(),
		MeetingID:  meetingID,
		NewPhrases: added,
	})

	return transcriptResult{MeetingID: meetingID, Status: StatusProcessed, NewPhrases: added}, nil
}

func (s *Service) invoke(ctx context.Context, prompt string) (agent.Result, error) {
	if s.agent == nil {
		return agent.Result{}, apperr.Downstream("agent service not configured")
	}
	result, err := s.agent.Invoke(ctx, agent.RoleExtractor, prompt)
	if err != nil {
		if apperr.Is(err, apperr.KindDownstream) {
			return agent.Result{}, err
		}
		return agent.Result{}, apperr.Downstream(err.Error()).WithOp(opHandleTranscript)
	}
	return result, nil
}

// Get loads one extraction record.
func (s *Service) Get(ctx context.Context, meetingID string) (ExtractionRecord, error) {
	return s.repo.Get(ctx, meetingID)
}
