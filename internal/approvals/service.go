package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

// Repository is the persistence interface the service depends on.
type Repository interface {
	Create(ctx context.Context, rec ApprovalRecord) error
	Get(ctx context.Context, outreachID uuid.UUID) (ApprovalRecord, error)
	Decide(ctx context.Context, outreachID uuid.UUID, status Status, decidedBy string, decidedAt time.Time) (bool, error)
	ListPending(ctx context.Context) ([]ApprovalRecord, error)
}

const opDecideSvc = "approvals.service.decide"

// Service applies the approval state machine and handles interactive
// decision callbacks.
type Service struct {
	repo    Repository
	bus     events.Bus
	baseURL string
	now     func() time.Time
	log     *logger.Logger
}

func NewService(repo Repository, bus events.Bus, baseURL string, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		bus:     bus,
		baseURL: baseURL,
		now:     time.Now,
		log:     log,
	}
}

// RequestApproval creates the pending record for a freshly staged
// outreach item.
func (s *Service) RequestApproval(ctx context.Context, outreachID uuid.UUID) (ApprovalRecord, error) {
	rec := ApprovalRecord{
		OutreachID:  outreachID,
		Status:      StatusPending,
		RequestedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return ApprovalRecord{}, err
	}
	return rec, nil
}

// Get loads the approval record for an outreach item.
func (s *Service) Get(ctx context.Context, outreachID uuid.UUID) (ApprovalRecord, error) {
	return s.repo.Get(ctx, outreachID)
}

// ListPending returns records still awaiting a decision.
func (s *Service) ListPending(ctx context.Context) ([]ApprovalRecord, error) {
	return s.repo.ListPending(ctx)
}

// PendingCount reports the size of the undecided backlog.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	recs, err := s.repo.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Approve moves a pending approval to approved.
func (s *Service) Approve(ctx context.Context, outreachID uuid.UUID, decidedBy string) error {
	return s.decide(ctx, outreachID, StatusApproved, decidedBy)
}

// Reject moves a pending approval to rejected.
func (s *Service) Reject(ctx context.Context, outreachID uuid.UUID, decidedBy string) error {
	return s.decide(ctx, outreachID, StatusRejected, decidedBy)
}

func (s *Service) decide(ctx context.Context, outreachID uuid.UUID, status Status, decidedBy string) error {
	updated, err := s.repo.Decide(ctx, outreachID, status, decidedBy, s.now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		rec, err := s.repo.Get(ctx, outreachID)
		if errors.Is(err, ErrApprovalNotFound) {
			return apperr.NotFound(fmt.Sprintf("no approval for outreach %s", outreachID)).WithOp(opDecideSvc)
		}
		if err != nil {
			return err
		}
		return apperr.Conflict(fmt.Sprintf("outreach %s already %s", outreachID, rec.Status)).WithOp(opDecideSvc)
	}

	s.bus.Publish(ctx, events.ApprovalDecided{
		BaseEvent:  events.NewBaseEvent(),
		OutreachID: outreachID,
		Status:     string(status),
		DecidedBy:  decidedBy,
	})
	return nil
}

type interactionPayload struct {
	Type    string `json:"type"`
	Actions []struct {
		ActionID string `json:"action_id"`
	} `json:"actions"`
	User struct {
		Username string `json:"username"`
	} `json:"user"`
}

type interactionResult struct {
	Action      string `json:"action"`
	OutreachID  string `json:"outreachId"`
	Status      string `json:"status,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// HandleInteraction processes one interactive button press. Approve
// and reject drive the state machine; edit mutates nothing and hands
// back a redirect to the review page.
func (s *Service) HandleInteraction(ctx context.Context, evt webhook.Event) (json.RawMessage, error) {
	var p interactionPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return nil, apperr.Validation("malformed interaction payload").WithOp(opDecideSvc)
	}
	if len(p.Actions) == 0 {
		return nil, apperr.Validation("interaction has no actions").WithOp(opDecideSvc)
	}

	action, err := ParseActionID(p.Actions[0].ActionID)
	if err != nil {
		return nil, err
	}

	result := interactionResult{Action: action.Verb, OutreachID: action.OutreachID.String()}
	switch action.Verb {
	case VerbApprove:
		if err := s.Approve(ctx, action.OutreachID, p.User.Username); err != nil {
			return nil, err
		}
		result.Status = string(StatusApproved)
	case VerbReject:
		if err := s.Reject(ctx, action.OutreachID, p.User.Username); err != nil {
			return nil, err
		}
		result.Status = string(StatusRejected)
	case VerbEdit:
		result.RedirectURL = s.baseURL + "/outreach/" + action.OutreachID.String()
	}
	return json.Marshal(result)
}
