package repositories

import (
	"context"
	"errors"

	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionRepository handles database operations for device sessions.
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) querier(q database.Querier) database.Querier {
	if q == nil {
		return r.db.Pool
	}
	return q
}

// WithUserLock runs fn inside a transaction holding a per-user advisory lock,
// serializing the count-then-evict-then-insert sequence at login.
func (r *SessionRepository) WithUserLock(ctx context.Context, userID string, fn func(q database.Querier) error) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := database.AcquireAdvisoryLock(ctx, tx, "device_sessions:"+userID); err != nil {
			return err
		}
		return fn(tx)
	})
}

const sessionColumns = `
	id, user_id, session_token, device_id, device_name, ip_address, user_agent, logged_in_at, last_used_at, is_active
`

// Create inserts a new device session.
func (r *SessionRepository) Create(ctx context.Context, q database.Querier, session *models.DeviceSession) error {
	q = r.querier(q)
	query := `
		INSERT INTO device_sessions (id, user_id, session_token, device_id, device_name, ip_address, user_agent, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING logged_in_at, last_used_at
	`

	session.ID = uuid.New().String()
	err := q.QueryRow(ctx, query,
		session.ID,
		session.UserID,
		session.SessionToken,
		session.DeviceID,
		session.DeviceName,
		session.IPAddress,
		session.UserAgent,
		session.IsActive,
	).Scan(&session.LoggedInAt, &session.LastUsedAt)

	return database.MapPostgresError(err)
}

// GetActiveByToken finds the active session for a user carrying this token.
func (r *SessionRepository) GetActiveByToken(ctx context.Context, userID, sessionToken string) (*models.DeviceSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM device_sessions
		WHERE user_id = $1 AND session_token = $2 AND is_active = true
	`

	return scanSession(r.db.Pool.QueryRow(ctx, query, userID, sessionToken))
}

// FindActiveByIdentity looks up an active session by resolved device identity:
// the device id when present, otherwise the IP address of rows that have no
// device id (matching the identity resolution used at login).
func (r *SessionRepository) FindActiveByIdentity(ctx context.Context, q database.Querier, userID string, deviceID *string, ipAddress string) (*models.DeviceSession, error) {
	q = r.querier(q)
	var row pgx.Row
	if deviceID != nil && *deviceID != "" {
		query := `
			SELECT ` + sessionColumns + `
			FROM device_sessions
			WHERE user_id = $1 AND device_id = $2 AND is_active = true
			ORDER BY last_used_at DESC
			LIMIT 1
		`
		row = q.QueryRow(ctx, query, userID, *deviceID)
	} else {
		query := `
			SELECT ` + sessionColumns + `
			FROM device_sessions
			WHERE user_id = $1 AND device_id IS NULL AND ip_address = $2 AND is_active = true
			ORDER BY last_used_at DESC
			LIMIT 1
		`
		row = q.QueryRow(ctx, query, userID, ipAddress)
	}

	session, err := scanSession(row)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return session, err
}

// CountActive returns the number of active sessions for a user.
func (r *SessionRepository) CountActive(ctx context.Context, q database.Querier, userID string) (int, error) {
	q = r.querier(q)
	var count int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM device_sessions WHERE user_id = $1 AND is_active = true`, userID).Scan(&count)
	return count, database.MapPostgresError(err)
}

// DeactivateOldest marks the n least-recently-used active sessions inactive
// and returns their ids. Used for LRU eviction at the cap and when an admin
// lowers a user's cap below the current active count.
func (r *SessionRepository) DeactivateOldest(ctx context.Context, q database.Querier, userID string, n int) ([]string, error) {
	q = r.querier(q)
	query := `
		UPDATE device_sessions
		SET is_active = false
		WHERE id IN (
			SELECT id FROM device_sessions
			WHERE user_id = $1 AND is_active = true
			ORDER BY last_used_at ASC
			LIMIT $2
		)
		RETURNING id
	`

	rows, err := q.Query(ctx, query, userID, n)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, database.MapPostgresError(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Refresh bumps last_used_at and updates mutable device metadata on reuse of
// an existing session row at login.
func (r *SessionRepository) Refresh(ctx context.Context, q database.Querier, sessionID, deviceName, ipAddress, userAgent string, deviceID *string) error {
	q = r.querier(q)
	query := `
		UPDATE device_sessions
		SET last_used_at = NOW(),
		    device_name = $2,
		    ip_address = $3,
		    user_agent = $4,
		    device_id = COALESCE(device_id, $5)
		WHERE id = $1
	`

	_, err := q.Exec(ctx, query, sessionID, deviceName, ipAddress, userAgent, deviceID)
	return database.MapPostgresError(err)
}

// Touch bumps last_used_at for the session carrying this token.
func (r *SessionRepository) Touch(ctx context.Context, sessionToken string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE device_sessions SET last_used_at = NOW() WHERE session_token = $1`, sessionToken)
	return database.MapPostgresError(err)
}

// DeactivateByToken marks the session carrying this token inactive. Used at
// logout, where the caller only holds the token claim.
func (r *SessionRepository) DeactivateByToken(ctx context.Context, userID, sessionToken string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE device_sessions SET is_active = false WHERE user_id = $1 AND session_token = $2 AND is_active = true`,
		userID, sessionToken)
	return database.MapPostgresError(err)
}

// Deactivate marks one of the user's sessions inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, userID, sessionID string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE device_sessions SET is_active = false WHERE id = $1 AND user_id = $2 AND is_active = true`,
		sessionID, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeactivateAll marks every active session for a user inactive and returns
// how many were affected.
func (r *SessionRepository) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE device_sessions SET is_active = false WHERE user_id = $1 AND is_active = true`, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// ListByUser returns all of a user's sessions, most recently used first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.DeviceSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM device_sessions
		WHERE user_id = $1
		ORDER BY last_used_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var sessions []models.DeviceSession
	for rows.Next() {
		var s models.DeviceSession
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.SessionToken,
			&s.DeviceID,
			&s.DeviceName,
			&s.IPAddress,
			&s.UserAgent,
			&s.LoggedInAt,
			&s.LastUsedAt,
			&s.IsActive,
		); err != nil {
			return nil, database.MapPostgresError(err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*models.DeviceSession, error) {
	var s models.DeviceSession
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.SessionToken,
		&s.DeviceID,
		&s.DeviceName,
		&s.IPAddress,
		&s.UserAgent,
		&s.LoggedInAt,
		&s.LastUsedAt,
		&s.IsActive,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}
