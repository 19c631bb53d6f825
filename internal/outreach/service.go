package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/admission"
	"outreach_backend/internal/approvals"
	"outreach_backend/internal/events"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

// Repository is the persistence interface the service depends on.
type Repository interface {
	Create(ctx context.Context, item OutreachItem) error
	Get(ctx context.Context, id uuid.UUID) (OutreachItem, error)
	MarkSent(ctx context.Context, id uuid.UUID, externalID string, sentAt time.Time) error
	MarkScheduled(ctx context.Context, id uuid.UUID, retryAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	MarkRejected(ctx context.Context, id uuid.UUID) error
	SentCountsSince(ctx context.Context, since time.Time) (map[string]int, error)
	ListByChannelAndStatus(ctx context.Context, channel admission.Channel, status string) ([]uuid.UUID, error)
}

// ApprovalGate is the slice of the approvals service the pipeline
// needs.
type ApprovalGate interface {
	RequestApproval(ctx context.Context, outreachID uuid.UUID) (approvals.ApprovalRecord, error)
	Get(ctx context.Context, outreachID uuid.UUID) (approvals.ApprovalRecord, error)
}

// AdmissionGate is the slice of the admission controller the pipeline
// needs.
type AdmissionGate interface {
	CheckAdmission(ctx context.Context, channel admission.Channel, kind admission.ActionKind) (admission.Decision, error)
	RecordAction(ctx context.Context, channel admission.Channel, kind admission.ActionKind) error
	Config(ctx context.Context, channel admission.Channel) (admission.ChannelConfig, error)
	WithChannelLock(channel admission.Channel, fn func() error) error
}

// ChannelSender delivers one item over its channel.
type ChannelSender interface {
	Send(ctx context.Context, item OutreachItem) (externalID string, err error)
}

// RetryScheduler enqueues deferred sends. Implemented by the
// scheduler client.
type RetryScheduler interface {
	EnqueueSendRetry(ctx context.Context, outreachID uuid.UUID, at time.Time) error
	EnqueueBatch(ctx context.Context, channel admission.Channel, ids []uuid.UUID, at time.Time) error
}

const (
	opStage        = "outreach.service.stage"
	opSendApproved = "outreach.service.send_approved"

	previewLimit = 120
)

// StageRequest describes a new outreach item.
type StageRequest struct {
	Channel   admission.Channel
	Kind      admission.ActionKind
	Recipient string
	Subject   string
	Body      string
}

// Service runs the staging and send pipeline.
type Service struct {
	repo      Repository
	approvals ApprovalGate
	ctrl      AdmissionGate
	senders   map[admission.Channel]ChannelSender
	delay     admission.DelayPolicy
	retries   RetryScheduler
	bus       events.Bus
	sleep     func(ctx context.Context, d time.Duration) error
	log       *logger.Logger
}

func NewService(repo Repository, gate ApprovalGate, ctrl AdmissionGate, senders map[admission.Channel]ChannelSender, delay admission.DelayPolicy, retries RetryScheduler, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		approvals: gate,
		ctrl:      ctrl,
		senders:   senders,
		delay:     delay,
		retries:   retries,
		bus:       bus,
		sleep:     contextSleep,
		log:       log,
	}
}

// Stage creates an item, opens its pending approval and announces it
// for review.
func (s *Service) Stage(ctx context.Context, req StageRequest) (OutreachItem, error) {
	if !req.Channel.Valid() {
		return OutreachItem{}, apperr.Validation(fmt.Sprintf("unknown channel %q", req.Channel)).WithOp(opStage)
	}
	if req.Recipient == "" || req.Body == "" {
		return OutreachItem{}, apperr.Validation("recipient and body are required").WithOp(opStage)
	}
	if _, ok := s.senders[req.Channel]; !ok {
		return OutreachItem{}, apperr.Validation(fmt.Sprintf("channel %q has no sender configured", req.Channel)).WithOp(opStage)
	}

	item := OutreachItem{
		ID:        uuid.New(),
		Channel:   req.Channel,
		Kind:      req.Kind,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
		Status:    StatusStaged,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return OutreachItem{}, err
	}
	if _, err := s.approvals.RequestApproval(ctx, item.ID); err != nil {
		return OutreachItem{}, err
	}

	s.bus.Publish(ctx, events.OutreachStaged{
		BaseEvent:  events.NewBaseEvent(),
		OutreachID: item.ID,
		Channel:    string(item.Channel),
		ActionKind: string(item.Kind),
		Recipient:  item.Recipient,
		Subject:    item.Subject,
		Preview:    preview(item.Body),
	})
	return item, nil
}

// SendApproved runs the full pipeline for one item: approval gate,
// admission check, channel send, consumption record, durable status.
// A denial is returned as an unsuccessful outcome, not an error, and
// a retry is enqueued for the admission controller's hint. The whole
// check/send/record sequence holds the channel lock so concurrent
// sends on one channel serialize and cannot race past the daily cap.
func (s *Service) SendApproved(ctx context.Context, id uuid.UUID) (SendOutcome, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return SendOutcome{}, apperr.NotFound(fmt.Sprintf("outreach item %s not found", id)).WithOp(opSendApproved)
		}
		return SendOutcome{}, err
	}

	var outcome SendOutcome
	lockErr := s.ctrl.WithChannelLock(item.Channel, func() error {
		var err error
		outcome, err = s.sendApproved(ctx, id)
		return err
	})
	if lockErr != nil {
		return SendOutcome{}, lockErr
	}
	return outcome, nil
}

// sendApproved is the pipeline body. Callers hold the channel lock;
// the batch sender invokes it directly under its own lock.
func (s *Service) sendApproved(ctx context.Context, id uuid.UUID) (SendOutcome, error) {
	// Re-read under the lock so a send completed by a concurrent
	// caller is observed as a no-op, not re-delivered.
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return SendOutcome{}, apperr.NotFound(fmt.Sprintf("outreach item %s not found", id)).WithOp(opSendApproved)
		}
		return SendOutcome{}, err
	}

	// Re-running a completed send is a no-op.
	if item.Status == StatusSent {
		return SendOutcome{OutreachID: id, Success: true, MessageID: item.ExternalID}, nil
	}

	approval, err := s.approvals.Get(ctx, id)
	if err != nil {
		return SendOutcome{}, err
	}
	switch approval.Status {
	case approvals.StatusApproved:
	case approvals.StatusPending:
		return SendOutcome{}, apperr.Forbidden(fmt.Sprintf("outreach %s is awaiting approval", id)).WithOp(opSendApproved)
	case approvals.StatusRejected:
		if err := s.repo.MarkRejected(ctx, id); err != nil {
			s.log.Error("failed to mark rejected item", "outreachId", id, "error", err)
		}
		return SendOutcome{}, apperr.Forbidden(fmt.Sprintf("outreach %s was rejected", id)).WithOp(opSendApproved)
	}

	decision, err := s.ctrl.CheckAdmission(ctx, item.Channel, item.Kind)
	if err != nil {
		return SendOutcome{}, err
	}
	if !decision.Allowed {
		return s.deferSend(ctx, item, decision)
	}

	return s.deliver(ctx, item)
}

// deliver performs the external call and records the action. Called
// with admission already granted.
func (s *Service) deliver(ctx context.Context, item OutreachItem) (SendOutcome, error) {
	sender, ok := s.senders[item.Channel]
	if !ok {
		return SendOutcome{}, apperr.Internal(fmt.Sprintf("channel %q has no sender", item.Channel)).WithOp(opSendApproved)
	}

	externalID, err := sender.Send(ctx, item)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, item.ID); markErr != nil {
			s.log.Error("failed to mark failed item", "outreachId", item.ID, "error", markErr)
		}
		return SendOutcome{}, err
	}

	sentAt := time.Now().UTC()
	if err := s.ctrl.RecordAction(ctx, item.Channel, item.Kind); err != nil {
		s.log.Error("send succeeded but action not recorded", "outreachId", item.ID, "error", err)
	}
	if err := s.repo.MarkSent(ctx, item.ID, externalID, sentAt); err != nil {
		return SendOutcome{}, err
	}

	s.bus.Publish(ctx, events.OutreachSent{
		BaseEvent:  events.NewBaseEvent(),
		OutreachID: item.ID,
		Channel:    string(item.Channel),
		ActionKind: string(item.Kind),
		ExternalID: externalID,
	})
	return SendOutcome{OutreachID: item.ID, Success: true, MessageID: externalID}, nil
}

func (s *Service) deferSend(ctx context.Context, item OutreachItem, decision admission.Decision) (SendOutcome, error) {
	if err := s.repo.MarkScheduled(ctx, item.ID, decision.RetryAt); err != nil {
		return SendOutcome{}, err
	}
	if s.retries != nil {
		if err := s.retries.EnqueueSendRetry(ctx, item.ID, decision.RetryAt); err != nil {
			s.log.Error("failed to enqueue send retry", "outreachId", item.ID, "error", err)
		}
	}
	return SendOutcome{
		OutreachID:   item.ID,
		Success:      false,
		Reason:       string(decision.Reason),
		ScheduledFor: decision.RetryAt,
	}, nil
}

// SendBatch sends approved items for one channel sequentially under
// the channel lock, re-checking admission before every item. The
// first denial halts the batch; the remainder is parked and enqueued
// as one retry batch at the denial's retry hint. Between network
// items the delay policy paces the loop.
func (s *Service) SendBatch(ctx context.Context, channel admission.Channel, ids []uuid.UUID) (BatchResult, error) {
	if !channel.Valid() {
		return BatchResult{}, apperr.Validation(fmt.Sprintf("unknown channel %q", channel)).WithOp(opSendApproved)
	}

	var result BatchResult
	err := s.ctrl.WithChannelLock(channel, func() error {
		cfg, err := s.ctrl.Config(ctx, channel)
		if err != nil {
			return err
		}

		for i, id := range ids {
			item, err := s.repo.Get(ctx, id)
			if err != nil {
				s.log.Error("batch item missing, skipping", "outreachId", id, "error", err)
				continue
			}
			if item.Channel != channel {
				s.log.Warn("batch item on wrong channel, skipping", "outreachId", id, "channel", item.Channel)
				continue
			}

			outcome, err := s.sendApproved(ctx, id)
			if err != nil {
				// Per-item failures (rejected, external call failed) do
				// not halt the rest of the batch.
				s.log.Warn("batch item not sent", "outreachId", id, "error", err)
				continue
			}
			if !outcome.Success {
				result.Halted = true
				result.Reason = outcome.Reason
				result.ScheduledFor = outcome.ScheduledFor
				result.Remaining = append([]uuid.UUID(nil), ids[i:]...)
				return nil
			}
			result.Sent = append(result.Sent, id)

			if channel == admission.ChannelNetwork && i < len(ids)-1 {
				if err := s.sleep(ctx, s.delay.NextDelay(cfg.ActionDelay)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	if result.Halted && s.retries != nil && len(result.Remaining) > 0 {
		// The halted item already has its own retry task; requeue the
		// untouched tail as a batch.
		tail := result.Remaining[1:]
		if len(tail) > 0 {
			if err := s.retries.EnqueueBatch(ctx, channel, tail, result.ScheduledFor); err != nil {
				s.log.Error("failed to enqueue batch remainder", "channel", channel, "error", err)
			}
		}
	}
	return result, nil
}

// Get loads one item.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (OutreachItem, error) {
	return s.repo.Get(ctx, id)
}

// SentCountsSince aggregates successful sends for the digest.
func (s *Service) SentCountsSince(ctx context.Context, since time.Time) (map[string]int, error) {
	return s.repo.SentCountsSince(ctx, since)
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLimit {
		return body
	}
	return string(runes[:previewLimit]) + "…"
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
