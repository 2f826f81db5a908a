package repositories

import (
	"context"

	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// UserRepository handles the account fields this subsystem reads and writes.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, phone_number, name, password_hash, user_type, max_allowed_devices, created_at, updated_at
`

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone_number = $1`
	return scanUser(r.db.Pool.QueryRow(ctx, query, phoneNumber))
}

// UpdatePassword replaces the stored credential hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		userID, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetMaxAllowedDevices adjusts the per-user device cap.
func (r *UserRepository) SetMaxAllowedDevices(ctx context.Context, userID string, maxDevices int) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET max_allowed_devices = $2, updated_at = NOW() WHERE id = $1`,
		userID, maxDevices)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.PhoneNumber,
		&u.Name,
		&u.PasswordHash,
		&u.UserType,
		&u.MaxAllowedDevices,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &u, nil
}
