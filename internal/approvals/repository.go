package approvals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/platform/apperr"
)

const (
	opCreateApproval = "approvals.repository.create"
	opGetApproval    = "approvals.repository.get"
	opDecide         = "approvals.repository.decide"
	opListPending    = "approvals.repository.list_pending"
)

// ErrApprovalNotFound is returned when no record exists for an
// outreach id.
var ErrApprovalNotFound = errors.New("approval record not found")

// PostgresRepository persists approval records.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a pending record for the outreach item. Creating one
// that already exists is a conflict; staging is not idempotent.
func (r *PostgresRepository) Create(ctx context.Context, rec ApprovalRecord) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO approval_records (outreach_id, status, requested_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (outreach_id) DO NOTHING`,
		rec.OutreachID, rec.Status, rec.RequestedAt,
	)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("create approval failed: %v", err)).WithOp(opCreateApproval)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict(fmt.Sprintf("approval for outreach %s already exists", rec.OutreachID)).WithOp(opCreateApproval)
	}
	return nil
}

// Get loads the record for one outreach item.
func (r *PostgresRepository) Get(ctx context.Context, outreachID uuid.UUID) (ApprovalRecord, error) {
	var rec ApprovalRecord
	err := r.pool.QueryRow(ctx, `
		SELECT outreach_id, status, requested_at, decided_at, COALESCE(decided_by, '')
		FROM approval_records
		WHERE outreach_id = $1`,
		outreachID,
	).Scan(&rec.OutreachID, &rec.Status, &rec.RequestedAt, &rec.DecidedAt, &rec.DecidedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return ApprovalRecord{}, ErrApprovalNotFound
	}
	if err != nil {
		return ApprovalRecord{}, apperr.Internal(fmt.Sprintf("load approval failed: %v", err)).WithOp(opGetApproval)
	}
	return rec, nil
}

// Decide moves a pending record to its terminal status. The WHERE
// guard makes the transition atomic; zero rows means the record was
// already decided or never existed.
func (r *PostgresRepository) Decide(ctx context.Context, outreachID uuid.UUID, status Status, decidedBy string, decidedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE approval_records
		SET status = $2, decided_by = $3, decided_at = $4
		WHERE outreach_id = $1 AND status = $5`,
		outreachID, status, decidedBy, decidedAt, StatusPending,
	)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("decide approval failed: %v", err)).WithOp(opDecide)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPending returns outreach ids still awaiting a decision, oldest
// first. Used by the daily digest.
func (r *PostgresRepository) ListPending(ctx context.Context) ([]ApprovalRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT outreach_id, status, requested_at, decided_at, COALESCE(decided_by, '')
		FROM approval_records
		WHERE status = $1
		ORDER BY requested_at`,
		StatusPending,
	)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list pending approvals failed: %v", err)).WithOp(opListPending)
	}
	defer rows.Close()

	var recs []ApprovalRecord
	for rows.Next() {
		var rec ApprovalRecord
		if err := rows.Scan(&rec.OutreachID, &rec.Status, &rec.RequestedAt, &rec.DecidedAt, &rec.DecidedBy); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan pending approval failed: %v", err)).WithOp(opListPending)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
