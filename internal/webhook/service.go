package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

// EventHandler processes one canonical event. The returned document is
// stored with the event and replayed verbatim on duplicate delivery.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt Event) (json.RawMessage, error)
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, evt Event) (json.RawMessage, error)

func (f EventHandlerFunc) HandleEvent(ctx context.Context, evt Event) (json.RawMessage, error) {
	return f(ctx, evt)
}

// Repository is the event store used by the router.
type Repository interface {
	InsertEvent(ctx context.Context, evt Event) (bool, error)
	GetEvent(ctx context.Context, provider, externalID string) (Event, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	MarkFailed(ctx context.Context, id uuid.UUID, handlerErr error) error
}

// Provider pairs a verifier with a normalizer for one ingest endpoint.
type Provider struct {
	Name       string
	Verifier   Verifier
	Normalizer Normalizer
}

// IngestResult is what the transport layer returns to the caller.
type IngestResult struct {
	EventID   uuid.UUID       `json:"eventId"`
	EventType string          `json:"eventType"`
	Duplicate bool            `json:"duplicate"`
	Result    json.RawMessage `json:"result,omitempty"`
}

const opIngest = "webhook.router.ingest"

// Router runs the verify, normalize, dedupe, dispatch pipeline. Each
// event type has at most one handler; a second Register for the same
// type replaces the first.
type Router struct {
	providers map[string]Provider
	handlers  map[string]EventHandler
	repo      Repository
	locker    Locker
	log       *logger.Logger
}

func NewRouter(repo Repository, locker Locker, log *logger.Logger) *Router {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Router{
		providers: make(map[string]Provider),
		handlers:  make(map[string]EventHandler),
		repo:      repo,
		locker:    locker,
		log:       log,
	}
}

// AddProvider mounts a provider on the router.
func (rt *Router) AddProvider(p Provider) {
	rt.providers[p.Name] = p
}

// Register binds a handler to a canonical event type.
func (rt *Router) Register(eventType string, h EventHandler) {
	rt.handlers[eventType] = h
}

// RegisterFunc binds a handler function to a canonical event type.
func (rt *Router) RegisterFunc(eventType string, f EventHandlerFunc) {
	rt.Register(eventType, f)
}

// Ingest processes one raw delivery. Verification failures come back
// as unauthorized errors, malformed payloads as validation errors.
// A duplicate delivery returns the stored result without invoking the
// handler again; a delivery whose earlier dispatch failed is
// re-dispatched.
func (rt *Router) Ingest(ctx context.Context, providerName string, body []byte, headers map[string]string, clientIP string) (IngestResult, error) {
	p, ok := rt.providers[providerName]
	if !ok {
		return IngestResult{}, apperr.NotFound(fmt.Sprintf("unknown webhook provider %q", providerName)).WithOp(opIngest)
	}

	if err := p.Verifier.Verify(body, headers); err != nil {
		rt.log.WebhookRejected(providerName, err.Error(), clientIP)
		return IngestResult{}, err
	}

	evt, err := p.Normalizer.Normalize(body, headers)
	if err != nil {
		rt.log.WebhookRejected(providerName, err.Error(), clientIP)
		return IngestResult{}, err
	}

	release, err := rt.locker.Acquire(ctx, evt.Provider+":"+evt.ExternalID)
	if err != nil {
		return IngestResult{}, apperr.Internal("dedupe lock unavailable").WithOp(opIngest)
	}
	defer release()

	stored, err := rt.repo.GetEvent(ctx, evt.Provider, evt.ExternalID)
	switch {
	case err == nil:
		if stored.Status == StatusProcessed {
			return IngestResult{
				EventID:   stored.ID,
				EventType: stored.EventType,
				Duplicate: true,
				Result:    stored.Result,
			}, nil
		}
		// A prior dispatch failed or was interrupted; retry it with
		// the payload recorded on first delivery. This is the first
		// successful processing, not a duplicate.
		return rt.dispatch(ctx, stored)
	case errors.Is(err, ErrEventNotFound):
		// first delivery
	default:
		return IngestResult{}, err
	}

	evt.ID = uuid.New()
	evt.Status = StatusReceived
	evt.ReceivedAt = time.Now().UTC()
	inserted, err := rt.repo.InsertEvent(ctx, evt)
	if err != nil {
		return IngestResult{}, err
	}
	if !inserted {
		stored, err := rt.repo.GetEvent(ctx, evt.Provider, evt.ExternalID)
		if err != nil {
			return IngestResult{}, err
		}
		return IngestResult{
			EventID:   stored.ID,
			EventType: stored.EventType,
			Duplicate: true,
			Result:    stored.Result,
		}, nil
	}

	return rt.dispatch(ctx, evt)
}

// dispatch runs the handler for evt and records the outcome. Results
// never carry the duplicate flag here; that is reserved for replays of
// an already processed event.
func (rt *Router) dispatch(ctx context.Context, evt Event) (IngestResult, error) {
	h, ok := rt.handlers[evt.EventType]
	if !ok {
		// Acknowledged and ignored; nothing is registered for it.
		result := json.RawMessage(`{"handled":false}`)
		if err := rt.repo.MarkProcessed(ctx, evt.ID, result); err != nil {
			return IngestResult{}, err
		}
		return IngestResult{EventID: evt.ID, EventType: evt.EventType, Result: result}, nil
	}

	result, handlerErr := rt.safeHandle(ctx, h, evt)
	if handlerErr != nil {
		if err := rt.repo.MarkFailed(ctx, evt.ID, handlerErr); err != nil {
			rt.log.Error("failed to record handler error", "eventId", evt.ID, "error", err)
		}
		if _, ok := handlerErr.(*apperr.Error); ok {
			return IngestResult{}, handlerErr
		}
		return IngestResult{}, apperr.Wrap(apperr.KindInternal, "event handler failed", handlerErr).WithOp(opIngest)
	}

	if err := rt.repo.MarkProcessed(ctx, evt.ID, result); err != nil {
		return IngestResult{}, err
	}
	return IngestResult{EventID: evt.ID, EventType: evt.EventType, Result: result}, nil
}

// safeHandle shields the router from a panicking handler.
func (rt *Router) safeHandle(ctx context.Context, h EventHandler, evt Event) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.HandleEvent(ctx, evt)
}
