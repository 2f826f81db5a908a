package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// BlockRepository handles database operations for progressive blocks.
type BlockRepository struct {
	db *database.DB
}

// NewBlockRepository creates a new BlockRepository
func NewBlockRepository(db *database.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

func (r *BlockRepository) querier(q database.Querier) database.Querier {
	if q == nil {
		return r.db.Pool
	}
	return q
}

// WithPhoneLock runs fn inside a transaction holding a per-key advisory lock.
// The block engine uses it to serialize threshold evaluation and block
// creation for one (phone number, attempt type) pair.
func (r *BlockRepository) WithPhoneLock(ctx context.Context, key string, fn func(q database.Querier) error) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := database.AcquireAdvisoryLock(ctx, tx, key); err != nil {
			return err
		}
		return fn(tx)
	})
}

const blockColumns = `
	id, phone_number, block_type, blocked_at, blocked_until, block_level, consecutive_blocks,
	is_active, manually_unblocked, unblocked_by, unblocked_at, unblock_reason,
	failed_attempts, ip_addresses, user_agents, device_ids
`

// Create persists a new block with its evidence snapshot.
func (r *BlockRepository) Create(ctx context.Context, q database.Querier, block *models.Block) error {
	q = r.querier(q)
	query := `
		INSERT INTO blocks (id, phone_number, block_type, blocked_at, blocked_until, block_level, consecutive_blocks, is_active, failed_attempts, ip_addresses, user_agents, device_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	block.ID = uuid.New().String()

	evidence, err := json.Marshal(block.FailedAttempts)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, query,
		block.ID,
		block.PhoneNumber,
		block.BlockType,
		block.BlockedAt,
		block.BlockedUntil,
		block.BlockLevel,
		block.ConsecutiveBlocks,
		block.IsActive,
		evidence,
		pq.Array(block.IPAddresses),
		pq.Array(block.UserAgents),
		pq.Array(block.DeviceIDs),
	)

	return database.MapPostgresError(err)
}

// GetActive returns the most recent active block covering the attempt type
// (exact type or combined), regardless of natural expiry; the service layer
// is responsible for lazily deactivating expired blocks it reads.
// An empty attemptType matches any block type.
func (r *BlockRepository) GetActive(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType) (*models.Block, error) {
	q = r.querier(q)
	query := `
		SELECT ` + blockColumns + `
		FROM blocks
		WHERE phone_number = $1 AND is_active = true
		  AND ($2 = '' OR block_type = $2 OR block_type = 'combined')
		ORDER BY blocked_at DESC
		LIMIT 1
	`

	row := q.QueryRow(ctx, query, phoneNumber, string(attemptType))
	block, err := scanBlock(row)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return block, err
}

// LatestInStreak returns the most recent block (active or not) of the given
// type created since the reset horizon, used to derive the next block level.
func (r *BlockRepository) LatestInStreak(ctx context.Context, q database.Querier, phoneNumber string, blockType models.BlockType, since time.Time) (*models.Block, error) {
	q = r.querier(q)
	query := `
		SELECT ` + blockColumns + `
		FROM blocks
		WHERE phone_number = $1 AND block_type = $2 AND blocked_at >= $3
		ORDER BY blocked_at DESC
		LIMIT 1
	`

	row := q.QueryRow(ctx, query, phoneNumber, blockType, since)
	block, err := scanBlock(row)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return block, err
}

// LastManualUnblockAt returns when the phone number was most recently
// manually unblocked, or nil. Counting windows never reach past this point.
func (r *BlockRepository) LastManualUnblockAt(ctx context.Context, q database.Querier, phoneNumber string) (*time.Time, error) {
	q = r.querier(q)
	query := `
		SELECT unblocked_at FROM blocks
		WHERE phone_number = $1 AND manually_unblocked = true AND unblocked_at IS NOT NULL
		ORDER BY unblocked_at DESC
		LIMIT 1
	`

	var unblockedAt time.Time
	err := q.QueryRow(ctx, query, phoneNumber).Scan(&unblockedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &unblockedAt, nil
}

// Deactivate marks a block inactive after natural expiry was observed on read.
func (r *BlockRepository) Deactivate(ctx context.Context, q database.Querier, blockID string) error {
	q = r.querier(q)
	_, err := q.Exec(ctx, `UPDATE blocks SET is_active = false WHERE id = $1`, blockID)
	return database.MapPostgresError(err)
}

// ManuallyUnblockAll lifts every active block for a phone number and stamps
// the operator action. Returns how many blocks were lifted.
func (r *BlockRepository) ManuallyUnblockAll(ctx context.Context, phoneNumber, operatorID, reason string) (int64, error) {
	query := `
		UPDATE blocks
		SET is_active = false, manually_unblocked = true, unblocked_by = $2, unblocked_at = NOW(), unblock_reason = $3
		WHERE phone_number = $1 AND is_active = true
	`

	result, err := r.db.Pool.Exec(ctx, query, phoneNumber, operatorID, reason)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// ManuallyUnblockByID lifts a single block by id.
func (r *BlockRepository) ManuallyUnblockByID(ctx context.Context, blockID, operatorID, reason string) error {
	query := `
		UPDATE blocks
		SET is_active = false, manually_unblocked = true, unblocked_by = $2, unblocked_at = NOW(), unblock_reason = $3
		WHERE id = $1 AND is_active = true
	`

	result, err := r.db.Pool.Exec(ctx, query, blockID, operatorID, reason)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetByID fetches one block.
func (r *BlockRepository) GetByID(ctx context.Context, blockID string) (*models.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE id = $1`
	return scanBlock(r.db.Pool.QueryRow(ctx, query, blockID))
}

// List returns blocks matching the operator filter, newest first.
func (r *BlockRepository) List(ctx context.Context, filter models.BlockFilter) ([]models.Block, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM blocks
		WHERE ($1 = '' OR phone_number = $1)
		  AND ($2 = '' OR block_type = $2)
		  AND ($3::boolean IS NULL OR is_active = $3)
		ORDER BY blocked_at DESC
		LIMIT $4 OFFSET $5
	`

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.db.Pool.Query(ctx, query,
		filter.PhoneNumber,
		string(filter.BlockType),
		filter.IsActive,
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var blocks []models.Block
	for rows.Next() {
		block, err := scanBlockFromRow(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *block)
	}
	return blocks, rows.Err()
}

// DeleteInactiveOlderThan purges stale inactive blocks past the retention horizon.
func (r *BlockRepository) DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM blocks WHERE is_active = false AND blocked_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

func scanBlock(row pgx.Row) (*models.Block, error) {
	return scanBlockFrom(row.Scan)
}

func scanBlockFromRow(rows pgx.Rows) (*models.Block, error) {
	return scanBlockFrom(rows.Scan)
}

func scanBlockFrom(scan func(dest ...any) error) (*models.Block, error) {
	var b models.Block
	var evidence []byte

	err := scan(
		&b.ID,
		&b.PhoneNumber,
		&b.BlockType,
		&b.BlockedAt,
		&b.BlockedUntil,
		&b.BlockLevel,
		&b.ConsecutiveBlocks,
		&b.IsActive,
		&b.ManuallyUnblocked,
		&b.UnblockedBy,
		&b.UnblockedAt,
		&b.UnblockReason,
		&evidence,
		pq.Array(&b.IPAddresses),
		pq.Array(&b.UserAgents),
		pq.Array(&b.DeviceIDs),
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &b.FailedAttempts); err != nil {
			return nil, err
		}
	}

	return &b, nil
}
