package replies

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
	Save(ctx context.Context, rec ClassificationRecord) error
	Get(ctx context.Context, messageID string) (ClassificationRecord, error)
	CountByCategorySince(ctx context.Context, since time.Time) (map[string]int, error)
}

const (
	opHandleReply = "replies.service.handle_reply"

	snippetLimit = 200
)

// Service classifies inbound replies.
type Service struct {
	repo  Repository
	bus   events.Bus
	agent agent.Invoker
	log   *logger.Logger
}

func NewService(repo Repository, bus events.Bus, invoker agent.Invoker, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, agent: invoker, log: log}
}

type replyPayload struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
}

type classifierVerdict struct {
	Category string   `json:"category"`
	Signals  []string `json:"signals"`
}

type replyResult struct {
	MessageID string   `json:"messageId"`
	Category  string   `json:"category"`
	Signals   []string `json:"signals,omitempty"`
}

// HandleReply is the webhook handler for inbound reply deliveries.
// Agent failures surface as downstream errors so the provider retries
// the delivery.
func (s *Service) HandleReply(ctx context.Context, evt webhook.Event) (json.RawMessage, error) {
	var p replyPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return nil, apperr.Validation("malformed reply payload").WithOp(opHandleReply)
	}
	if p.MessageID == "" || p.Text == "" {
		return nil, apperr.Validation("reply payload missing message_id or text").WithOp(opHandleReply)
	}

	verdict, err := s.classify(ctx, p)
	if err != nil {
		return nil, err
	}

	rec := ClassificationRecord{
		MessageID: p.MessageID,
		ThreadID:  p.ThreadID,
		From:      p.From,
		Subject:   p.Subject,
		Snippet:   snippet(p.Text),
		Category:  verdict.Category,
		Signals:   verdict.Signals,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.ReplyClassified{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      rec.MessageID,
		ThreadID:       rec.ThreadID,
		From:           rec.From,
		Classification: rec.Category,
		Signals:        rec.Signals,
		Snippet:        rec.Snippet,
	})

	return json.Marshal(replyResult{MessageID: rec.MessageID, Category: rec.Category, Signals: rec.Signals})
}

func (s *Service) classify(ctx context.Context, p replyPayload) (classifierVerdict, error) {
	if s.agent == nil {
		return classifierVerdict{}, apperr.Downstream("agent service not configured").WithOp(opHandleReply)
	}

	prompt := fmt.Sprintf(
		"Classify this reply to a sales outreach message. Categories: positive, neutral, objection, not_interested, out_of_office. Respond with JSON {category, signals}.\n\nFrom: %s\nSubject: %s\n\n%s",
		p.From, p.Subject, p.Text,
	)
	result, err := s.agent.Invoke(ctx, agent.RoleClassifier, prompt)
	if err != nil {
		if apperr.Is(err, apperr.KindDownstream) {
			return classifierVerdict{}, err
		}
		return classifierVerdict{}, apperr.Downstream(err.Error()).WithOp(opHandleReply)
	}

	var verdict classifierVerdict
	if err := agent.DecodeJSON(result, &verdict); err != nil {
		return classifierVerdict{}, apperr.Downstream(fmt.Sprintf("classifier returned unusable verdict: %v", err)).WithOp(opHandleReply)
	}
	if !validCategory(verdict.Category) {
		s.log.Warn("classifier returned unknown category", "category", verdict.Category)
		verdict.Signals = append(verdict.Signals, "unrecognized_category:"+verdict.Category)
		verdict.Category = CategoryNeutral
	}
	return verdict, nil
}

// Get loads the classification for a message id.
func (s *Service) Get(ctx context.Context, messageID string) (ClassificationRecord, error) {
	return s.repo.Get(ctx, messageID)
}

// CountsSince aggregates classification counts for the digest.
func (s *Service) CountsSince(ctx context.Context, since time.Time) (map[string]int, error) {
	return s.repo.CountByCategorySince(ctx, since)
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLimit {
		return text
	}
	return string(runes[:snippetLimit])
}
