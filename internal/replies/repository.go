package replies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/platform/apperr"
)

const (
	opSaveClassification = "replies.repository.save"
	opGetClassification  = "replies.repository.get"
	opCountByCategory    = "replies.repository.count_by_category"
)

// ErrClassificationNotFound is returned when no record exists for a
// message id.
var ErrClassificationNotFound = errors.New("classification record not found")

// PostgresRepository persists classification records.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save stores the classification for a message. A redelivered message
// keeps its original classification.
func (r *PostgresRepository) Save(ctx context.Context, rec ClassificationRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO classification_records (message_id, thread_id, from_address, subject, snippet, category, signals, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO NOTHING`,
		rec.MessageID, rec.ThreadID, rec.From, rec.Subject, rec.Snippet, rec.Category, rec.Signals, rec.CreatedAt,
	)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("save classification failed: %v", err)).WithOp(opSaveClassification)
	}
	return nil
}

// Get loads the classification for a message id.
func (r *PostgresRepository) Get(ctx context.Context, messageID string) (ClassificationRecord, error) {
	var rec ClassificationRecord
	err := r.pool.QueryRow(ctx, `
		SELECT message_id, thread_id, from_address, COALESCE(subject, ''), COALESCE(snippet, ''), category, signals, created_at
		FROM classification_records
		WHERE message_id = $1`,
		messageID,
	).Scan(&rec.MessageID, &rec.ThreadID, &rec.From, &rec.Subject, &rec.Snippet, &rec.Category, &rec.Signals, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClassificationRecord{}, ErrClassificationNotFound
	}
	if err != nil {
		return ClassificationRecord{}, apperr.Internal(fmt.Sprintf("load classification failed: %v", err)).WithOp(opGetClassification)
	}
	return rec, nil
}

// CountByCategorySince aggregates classification counts from the
// cutoff onward. Used by the daily digest.
func (r *PostgresRepository) CountByCategorySince(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT category, COUNT(*)
		FROM classification_records
		WHERE created_at >= $1
		GROUP BY category`,
		since,
	)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("count classifications failed: %v", err)).WithOp(opCountByCategory)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan classification count failed: %v", err)).WithOp(opCountByCategory)
		}
		counts[category] = n
	}
	return counts, rows.Err()
}
