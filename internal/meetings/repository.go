package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/platform/apperr"
)

const (
	opUpsertMeeting = "meetings.repository.upsert"
	opGetMeeting    = "meetings.repository.get"
	opSetResearch   = "meetings.repository.set_research"
	opCountBooked   = "meetings.repository.count_booked"
)

// ErrMeetingNotFound is returned when no record exists for an event id.
var ErrMeetingNotFound = errors.New("meeting record not found")

// PostgresRepository persists meeting records.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Upsert applies a lifecycle event to the record for its event id.
// The occurred_at guard makes application order-independent: a stale
// delivery arriving after a newer one changes nothing.
func (r *PostgresRepository) Upsert(ctx context.Context, rec MeetingRecord) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO meeting_records (event_id, status, meeting_type, invitee_email, invitee_name, start_time, end_time, occurred_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (event_id) DO UPDATE
		SET status = EXCLUDED.status,
		    meeting_type = EXCLUDED.meeting_type,
		    invitee_email = EXCLUDED.invitee_email,
		    invitee_name = EXCLUDED.invitee_name,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    occurred_at = EXCLUDED.occurred_at,
		    updated_at = EXCLUDED.updated_at
		WHERE meeting_records.occurred_at <= EXCLUDED.occurred_at`,
		rec.EventID, rec.Status, rec.MeetingType, rec.InviteeEmail, rec.InviteeName,
		rec.StartTime, rec.EndTime, rec.OccurredAt, now,
	)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("upsert meeting failed: %v", err)).WithOp(opUpsertMeeting)
	}
	return nil
}

// Get loads the meeting record for a provider event id.
func (r *PostgresRepository) Get(ctx context.Context, eventID string) (MeetingRecord, error) {
	var rec MeetingRecord
	err := r.pool.QueryRow(ctx, `
		SELECT event_id, status, meeting_type, invitee_email, invitee_name, start_time, end_time, research, occurred_at, created_at, updated_at
		FROM meeting_records
		WHERE event_id = $1`,
		eventID,
	).Scan(&rec.EventID, &rec.Status, &rec.MeetingType, &rec.InviteeEmail, &rec.InviteeName,
		&rec.StartTime, &rec.EndTime, &rec.Research, &rec.OccurredAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MeetingRecord{}, ErrMeetingNotFound
	}
	if err != nil {
		return MeetingRecord{}, apperr.Internal(fmt.Sprintf("load meeting failed: %v", err)).WithOp(opGetMeeting)
	}
	return rec, nil
}

// SetResearch attaches the agent research document to a meeting.
func (r *PostgresRepository) SetResearch(ctx context.Context, eventID string, research json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE meeting_records SET research = $2, updated_at = $3 WHERE event_id = $1`,
		eventID, research, time.Now().UTC(),
	)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("set meeting research failed: %v", err)).WithOp(opSetResearch)
	}
	return nil
}

// CountBookedSince counts meetings created on or after the cutoff that
// are still scheduled. Used by the daily digest.
func (r *PostgresRepository) CountBookedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM meeting_records WHERE status = $1 AND created_at >= $2`,
		StatusScheduled, since,
	).Scan(&n)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("count booked meetings failed: %v", err)).WithOp(opCountBooked)
	}
	return n, nil
}
