package repositories

import (
	"context"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AttemptRepository handles database operations for the attempt ledger.
// Records are insert-only; nothing here updates an existing row.
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) querier(q database.Querier) database.Querier {
	if q == nil {
		return r.db.Pool
	}
	return q
}

// Record appends an attempt to the ledger and fills in the generated ID and
// server-side timestamp.
func (r *AttemptRepository) Record(ctx context.Context, attempt *models.AttemptRecord) error {
	query := `
		INSERT INTO attempt_records (id, phone_number, attempt_type, result, ip_address, user_agent, device_id, failure_reason, related_block_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING attempted_at
	`

	attempt.ID = uuid.New().String()
	err := r.db.Pool.QueryRow(ctx, query,
		attempt.ID,
		attempt.PhoneNumber,
		attempt.AttemptType,
		attempt.Result,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.DeviceID,
		attempt.FailureReason,
		attempt.RelatedBlockID,
	).Scan(&attempt.AttemptedAt)

	return database.MapPostgresError(err)
}

// CountFailedSince returns the number of failed attempts of one type for a
// phone number since the given lower bound. Runs on the caller's Querier so
// block creation can count inside its serializing transaction.
func (r *AttemptRepository) CountFailedSince(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, since time.Time) (int, error) {
	q = r.querier(q)
	query := `
		SELECT COUNT(*) FROM attempt_records
		WHERE phone_number = $1 AND attempt_type = $2 AND result = 'failed' AND attempted_at >= $3
	`

	var count int
	err := q.QueryRow(ctx, query, phoneNumber, attemptType, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// RecentFailed returns the most recent failed attempts for a phone number and
// type, newest first. Used to snapshot evidence onto a new block.
func (r *AttemptRepository) RecentFailed(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, limit int) ([]models.AttemptRecord, error) {
	q = r.querier(q)
	query := `
		SELECT id, phone_number, attempt_type, result, attempted_at, ip_address, user_agent, device_id, failure_reason, related_block_id
		FROM attempt_records
		WHERE phone_number = $1 AND attempt_type = $2 AND result = 'failed'
		ORDER BY attempted_at DESC
		LIMIT $3
	`

	rows, err := q.Query(ctx, query, phoneNumber, attemptType, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// List returns ledger entries matching the operator filter, newest first.
func (r *AttemptRepository) List(ctx context.Context, filter models.AttemptFilter) ([]models.AttemptRecord, error) {
	query := `
		SELECT id, phone_number, attempt_type, result, attempted_at, ip_address, user_agent, device_id, failure_reason, related_block_id
		FROM attempt_records
		WHERE ($1 = '' OR phone_number = $1)
		  AND ($2 = '' OR attempt_type = $2)
		  AND ($3 = '' OR result = $3)
		  AND ($4::timestamptz IS NULL OR attempted_at >= $4)
		  AND ($5::timestamptz IS NULL OR attempted_at < $5)
		ORDER BY attempted_at DESC
		LIMIT $6 OFFSET $7
	`

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.db.Pool.Query(ctx, query,
		filter.PhoneNumber,
		string(filter.AttemptType),
		string(filter.Result),
		filter.Since,
		filter.Until,
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// DeleteOlderThan purges ledger entries past the retention horizon.
func (r *AttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM attempt_records WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

func scanAttempts(rows pgx.Rows) ([]models.AttemptRecord, error) {
	var attempts []models.AttemptRecord
	for rows.Next() {
		var a models.AttemptRecord
		if err := rows.Scan(
			&a.ID,
			&a.PhoneNumber,
			&a.AttemptType,
			&a.Result,
			&a.AttemptedAt,
			&a.IPAddress,
			&a.UserAgent,
			&a.DeviceID,
			&a.FailureReason,
			&a.RelatedBlockID,
		); err != nil {
			return nil, database.MapPostgresError(err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
