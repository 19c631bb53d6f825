package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/platform/apperr"
)

const (
	opInsertEvent = "webhook.repository.insert_event"
	opGetEvent    = "webhook.repository.get_event"
	opStoreResult = "webhook.repository.store_result"
)

// ErrEventNotFound is returned when no event matches the dedupe key.
var ErrEventNotFound = errors.New("webhook event not found")

// PostgresRepository stores every accepted event together with its
// processing outcome. The unique (provider, external_id) index is the
// durable half of deduplication.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// InsertEvent records a newly received event. It returns false without
// error when an event with the same (provider, external_id) already
// exists.
func (r *PostgresRepository) InsertEvent(ctx context.Context, evt Event) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events (id, provider, event_type, external_id, occurred_at, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, external_id) DO NOTHING`,
		evt.ID, evt.Provider, evt.EventType, evt.ExternalID, evt.OccurredAt, evt.Payload, evt.Status, evt.ReceivedAt,
	)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("insert webhook event failed: %v", err)).WithOp(opInsertEvent)
	}
	return tag.RowsAffected() > 0, nil
}

// GetEvent loads the stored event for a dedupe key, including the
// result of a previous dispatch if one completed.
func (r *PostgresRepository) GetEvent(ctx context.Context, provider, externalID string) (Event, error) {
	var evt Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, provider, event_type, external_id, occurred_at, payload, status, result, error, received_at
		FROM webhook_events
		WHERE provider = $1 AND external_id = $2`,
		provider, externalID,
	).Scan(&evt.ID, &evt.Provider, &evt.EventType, &evt.ExternalID, &evt.OccurredAt,
		&evt.Payload, &evt.Status, &evt.Result, &evt.Error, &evt.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		return Event{}, apperr.Internal(fmt.Sprintf("load webhook event failed: %v", err)).WithOp(opGetEvent)
	}
	return evt, nil
}

// MarkProcessed stores the handler result and flips the event to its
// terminal processed state.
func (r *PostgresRepository) MarkProcessed(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = $2, result = $3, processed_at = $4, error = NULL
		WHERE id = $1`,
		id, StatusProcessed, result, time.Now().UTC(),
	)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark event processed failed: %v", err)).WithOp(opStoreResult)
	}
	return nil
}

// MarkFailed records the handler error. The event row stays in place
// so a redelivery can retry the dispatch.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, handlerErr error) error {
	msg := handlerErr.Error()
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = $2, error = $3
		WHERE id = $1`,
		id, StatusFailed, msg,
	)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark event failed failed: %v", err)).WithOp(opStoreResult)
	}
	return nil
}
