package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ResetCodeRepository stores pending password reset codes (hashes only).
type ResetCodeRepository struct {
	db *database.DB
}

// NewResetCodeRepository creates a new ResetCodeRepository
func NewResetCodeRepository(db *database.DB) *ResetCodeRepository {
	return &ResetCodeRepository{db: db}
}

// Replace removes any pending code for the phone number and stores a new one.
// A phone number has at most one outstanding reset code.
func (r *ResetCodeRepository) Replace(ctx context.Context, code *models.PasswordResetCode) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM password_reset_codes WHERE phone_number = $1`, code.PhoneNumber); err != nil {
			return database.MapPostgresError(err)
		}

		code.ID = uuid.New().String()
		err := tx.QueryRow(ctx, `
			INSERT INTO password_reset_codes (id, phone_number, code_hash, expires_at)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, code.ID, code.PhoneNumber, code.CodeHash, code.ExpiresAt).Scan(&code.CreatedAt)
		return database.MapPostgresError(err)
	})
}

// GetPending returns the outstanding, unexpired code for a phone number.
func (r *ResetCodeRepository) GetPending(ctx context.Context, phoneNumber string) (*models.PasswordResetCode, error) {
	query := `
		SELECT id, phone_number, code_hash, created_at, expires_at
		FROM password_reset_codes
		WHERE phone_number = $1 AND expires_at > NOW()
	`

	var c models.PasswordResetCode
	err := r.db.Pool.QueryRow(ctx, query, phoneNumber).Scan(
		&c.ID, &c.PhoneNumber, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &c, nil
}

// Delete removes a consumed code.
func (r *ResetCodeRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM password_reset_codes WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

// DeleteExpired purges expired codes.
func (r *ResetCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM password_reset_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
