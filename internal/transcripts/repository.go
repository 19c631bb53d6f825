package transcripts

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
	opUpsertExtraction = "transcripts.repository.upsert"
	opGetExtraction    = "transcripts.repository.get"
	opAddPhrases       = "transcripts.repository.add_phrases"
)

// ErrExtractionNotFound is returned when no record exists for a
// meeting id.
var ErrExtractionNotFound = errors.New("extraction record not found")

// PostgresRepository persists extraction records and the phrase
// library.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Upsert stores or replaces the extraction record for a meeting.
func (r *PostgresRepository) Upsert(ctx context.Context, rec ExtractionRecord) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transcript_extractions (meeting_id, status, transcript, extraction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (meeting_id) DO UPDATE
		SET status = EXCLUDED.status,
		    transcript = EXCLUDED.transcript,
		    extraction = EXCLUDED.extraction,
		    updated_at = EXCLUDED.updated_at`,
		rec.MeetingID, rec.Status, rec.Transcript, rec.Extraction, now,
	)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("upsert extraction failed: %v", err)).WithOp(opUpsertExtraction)
	}
	return nil
}

// Get loads the extraction record for a meeting id.
func (r *PostgresRepository) Get(ctx context.Context, meetingID string) (ExtractionRecord, error) {
	var rec ExtractionRecord
	var extraction *json.RawMessage
	err := r.pool.QueryRow(ctx, `
		SELECT meeting_id, status, transcript, extraction, created_at, updated_at
		FROM transcript_extractions
		WHERE meeting_id = $1`,
		meetingID,
	).Scan(&rec.MeetingID, &rec.Status, &rec.Transcript, &extraction, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExtractionRecord{}, ErrExtractionNotFound
	}
	if err != nil {
		return ExtractionRecord{}, apperr.Internal(fmt.Sprintf("load extraction failed: %v", err)).WithOp(opGetExtraction)
	}
	if extraction != nil {
		rec.Extraction = *extraction
	}
	return rec, nil
}

// AddPhrases appends phrases to the library, skipping exact texts that
// are already present. Returns how many were new.
func (r *PostgresRepository) AddPhrases(ctx context.Context, meetingID string, phrases []string) (int, error) {
	added := 0
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO phrase_library (text, meeting_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (text) DO NOTHING`,
			phrase, meetingID, time.Now().UTC(),
		)
		if err != nil {
			return added, apperr.Internal(fmt.Sprintf("add phrase failed: %v", err)).WithOp(opAddPhrases)
		}
		if tag.RowsAffected() > 0 {
			added++
		}
	}
	return added, nil
}
