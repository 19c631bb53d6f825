package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/internal/admission"
	"outreach_backend/platform/apperr"
)

const (
	opCreateItem = "outreach.repository.create"
	opGetItem    = "outreach.repository.get"
	opUpdateItem = "outreach.repository.update"
	opCountSent  = "outreach.repository.count_sent"
)

// ErrItemNotFound is returned when no item matches the id.
var ErrItemNotFound = errors.New("outreach item not found")

// PostgresRepository persists outreach items.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a staged item.
func (r *PostgresRepository) Create(ctx context.Context, item OutreachItem) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO outreach_items (id, channel, kind, recipient, subject, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		item.ID, item.Channel, item.Kind, item.Recipient, item.Subject, item.Body, item.Status, now,
	)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("create outreach item failed: %v", err)).WithOp(opCreateItem)
	}
	return nil
}

// Get loads one item.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (OutreachItem, error) {
	var item OutreachItem
	err := r.pool.QueryRow(ctx, `
		SELECT id, channel, kind, recipient, COALESCE(subject, ''), body, status, COALESCE(external_id, ''), scheduled_for, sent_at, created_at, updated_at
		FROM outreach_items
		WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.Channel, &item.Kind, &item.Recipient, &item.Subject, &item.Body,
		&item.Status, &item.ExternalID, &item.ScheduledFor, &item.SentAt, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutreachItem{}, ErrItemNotFound
	}
	if err != nil {
		return OutreachItem{}, apperr.Internal(fmt.Sprintf("load outreach item failed: %v", err)).WithOp(opGetItem)
	}
	return item, nil
}

// MarkSent records a successful send.
func (r *PostgresRepository) MarkSent(ctx context.Context, id uuid.UUID, externalID string, sentAt time.Time) error {
	return r.update(ctx, `
		UPDATE outreach_items
		SET status = $2, external_id = $3, sent_at = $4, scheduled_for = NULL, updated_at = $5
		WHERE id = $1`,
		id, StatusSent, externalID, sentAt, time.Now().UTC())
}

// MarkScheduled parks a denied item until its retry time.
func (r *PostgresRepository) MarkScheduled(ctx context.Context, id uuid.UUID, retryAt time.Time) error {
	return r.update(ctx, `
		UPDATE outreach_items
		SET status = $2, scheduled_for = $3, updated_at = $4
		WHERE id = $1`,
		id, StatusScheduled, retryAt, time.Now().UTC())
}

// MarkFailed records a failed external call.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, `
		UPDATE outreach_items SET status = $2, updated_at = $3 WHERE id = $1`,
		id, StatusFailed, time.Now().UTC())
}

// MarkRejected records an operator rejection.
func (r *PostgresRepository) MarkRejected(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, `
		UPDATE outreach_items SET status = $2, updated_at = $3 WHERE id = $1`,
		id, StatusRejected, time.Now().UTC())
}

func (r *PostgresRepository) update(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("update outreach item failed: %v", err)).WithOp(opUpdateItem)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// SentCountsSince aggregates successful sends per channel from the
// cutoff onward. Used by the daily digest.
func (r *PostgresRepository) SentCountsSince(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT channel, COUNT(*)
		FROM outreach_items
		WHERE status = $1 AND sent_at >= $2
		GROUP BY channel`,
		StatusSent, since,
	)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("count sent items failed: %v", err)).WithOp(opCountSent)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var channel string
		var n int
		if err := rows.Scan(&channel, &n); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan sent count failed: %v", err)).WithOp(opCountSent)
		}
		counts[channel] = n
	}
	return counts, rows.Err()
}

// ListByChannelAndStatus returns item ids for a channel in a status,
// oldest first. The worker uses it to build batches.
func (r *PostgresRepository) ListByChannelAndStatus(ctx context.Context, channel admission.Channel, status string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM outreach_items
		WHERE channel = $1 AND status = $2
		ORDER BY created_at`,
		channel, status,
	)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list outreach items failed: %v", err)).WithOp(opGetItem)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan outreach id failed: %v", err)).WithOp(opGetItem)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
