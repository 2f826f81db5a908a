package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/config"
	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/metrics"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/Ahmed3117/silverbook-authguard/pkg/logger"
)

// AttemptStore defines the interface for attempt ledger database operations
type AttemptStore interface {
	Record(ctx context.Context, attempt *models.AttemptRecord) error
	CountFailedSince(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, since time.Time) (int, error)
	RecentFailed(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, limit int) ([]models.AttemptRecord, error)
	List(ctx context.Context, filter models.AttemptFilter) ([]models.AttemptRecord, error)
}

// BlockStore defines the interface for block database operations
type BlockStore interface {
	WithPhoneLock(ctx context.Context, key string, fn func(q database.Querier) error) error
	Create(ctx context.Context, q database.Querier, block *models.Block) error
	GetActive(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType) (*models.Block, error)
	LatestInStreak(ctx context.Context, q database.Querier, phoneNumber string, blockType models.BlockType, since time.Time) (*models.Block, error)
	LastManualUnblockAt(ctx context.Context, q database.Querier, phoneNumber string) (*time.Time, error)
	Deactivate(ctx context.Context, q database.Querier, blockID string) error
	ManuallyUnblockAll(ctx context.Context, phoneNumber, operatorID, reason string) (int64, error)
	ManuallyUnblockByID(ctx context.Context, blockID, operatorID, reason string) error
	GetByID(ctx context.Context, blockID string) (*models.Block, error)
	List(ctx context.Context, filter models.BlockFilter) ([]models.Block, error)
}

// BlockAlerter is notified when a new block is created. Implementations must
// not block the caller.
type BlockAlerter interface {
	BlockCreated(ctx context.Context, block *models.Block)
}

// AttemptMeta carries the request context recorded alongside every attempt.
type AttemptMeta struct {
	IPAddress string
	UserAgent string
	DeviceID  *string
}

// Decision is the outcome of consulting the block engine about an attempt.
// Exactly one of the two shapes applies: allowed (with the number of failures
// left before a block) or blocked (with the active block's details).
type Decision struct {
	Allowed           bool
	RemainingAttempts int
	Block             *models.BlockInfo
}

// BlockService implements the progressive block engine: a sliding window over
// the attempt ledger, escalating block durations, and operator unblocking.
//
// All security decisions fail closed: a database error denies the attempt
// rather than letting a brute-force run continue unchecked.
type BlockService struct {
	attempts AttemptStore
	blocks   BlockStore
	config   config.SecurityConfig
	alerter  BlockAlerter
	logger   *slog.Logger
	audit    *logger.AuditLogger
	now      func() time.Time
}

// NewBlockService creates a new BlockService. alerter may be nil.
func NewBlockService(attempts AttemptStore, blocks BlockStore, cfg config.SecurityConfig, alerter BlockAlerter, log *slog.Logger, audit *logger.AuditLogger) *BlockService {
	return &BlockService{
		attempts: attempts,
		blocks:   blocks,
		config:   cfg,
		alerter:  alerter,
		logger:   log,
		audit:    audit,
		now:      time.Now,
	}
}

// CheckAttempt is the gate consulted before credentials are verified. If the
// phone number is under an active block covering the attempt type, the attempt
// is recorded as blocked (it never reaches credential verification) and a
// blocked Decision is returned.
func (s *BlockService) CheckAttempt(ctx context.Context, phoneNumber string, attemptType models.AttemptType, meta AttemptMeta) (*Decision, error) {
	now := s.now()

	block, err := s.activeBlock(ctx, nil, phoneNumber, attemptType, now)
	if err != nil {
		return nil, err
	}

	if block != nil {
		blocked := &models.AttemptRecord{
			PhoneNumber:    phoneNumber,
			AttemptType:    attemptType,
			Result:         models.AttemptResultBlocked,
			IPAddress:      meta.IPAddress,
			UserAgent:      meta.UserAgent,
			DeviceID:       meta.DeviceID,
			RelatedBlockID: &block.ID,
		}
		if err := s.attempts.Record(ctx, blocked); err != nil {
			s.logger.Error("failed to record blocked attempt", slog.Any("error", err))
		}
		metrics.AttemptsRecorded.WithLabelValues(string(attemptType), string(models.AttemptResultBlocked)).Inc()

		return &Decision{Allowed: false, Block: block.Info(now)}, nil
	}

	remaining, err := s.remainingAttempts(ctx, nil, phoneNumber, attemptType, now)
	if err != nil {
		return nil, err
	}

	return &Decision{Allowed: true, RemainingAttempts: remaining}, nil
}

// RecordAttempt appends the verified outcome of an attempt to the ledger and,
// on failure, evaluates the sliding window. Crossing the threshold creates a
// new block at the next escalation level and the returned Decision carries it;
// otherwise the Decision reports how many failures remain before a block.
func (s *BlockService) RecordAttempt(ctx context.Context, phoneNumber string, attemptType models.AttemptType, result models.AttemptResult, failureReason string, meta AttemptMeta) (*Decision, error) {
	attempt := &models.AttemptRecord{
		PhoneNumber: phoneNumber,
		AttemptType: attemptType,
		Result:      result,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		DeviceID:    meta.DeviceID,
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := s.attempts.Record(ctx, attempt); err != nil {
		return nil, err
	}
	metrics.AttemptsRecorded.WithLabelValues(string(attemptType), string(result)).Inc()

	if result != models.AttemptResultFailed {
		return &Decision{Allowed: true, RemainingAttempts: s.config.MaxFailedAttempts}, nil
	}

	var decision *Decision
	err := s.blocks.WithPhoneLock(ctx, lockKey(phoneNumber, attemptType), func(q database.Querier) error {
		now := s.now()

		// Another request may have crossed the threshold while we waited for
		// the lock. Return its block instead of creating a second one.
		existing, err := s.activeBlock(ctx, q, phoneNumber, attemptType, now)
		if err != nil {
			return err
		}
		if existing != nil {
			decision = &Decision{Allowed: false, Block: existing.Info(now)}
			return nil
		}

		since, err := s.countingHorizon(ctx, q, phoneNumber, now)
		if err != nil {
			return err
		}

		failedCount, err := s.attempts.CountFailedSince(ctx, q, phoneNumber, attemptType, since)
		if err != nil {
			return err
		}

		if failedCount < s.config.MaxFailedAttempts {
			decision = &Decision{Allowed: true, RemainingAttempts: s.config.MaxFailedAttempts - failedCount}
			return nil
		}

		block, err := s.createBlock(ctx, q, phoneNumber, attemptType, now)
		if err != nil {
			return err
		}
		decision = &Decision{Allowed: false, Block: block.Info(now)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return decision, nil
}

// GetBlockStatus returns the active block for a phone number across all
// operation types, or nil when the number is not blocked.
func (s *BlockService) GetBlockStatus(ctx context.Context, phoneNumber string) (*models.BlockInfo, error) {
	now := s.now()
	block, err := s.activeBlock(ctx, nil, phoneNumber, "", now)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}
	return block.Info(now), nil
}

// ManuallyUnblock lifts every active block for a phone number and returns how
// many were lifted. The unblock timestamp becomes the new counting horizon, so
// pre-unblock failures no longer count and the escalation streak restarts.
func (s *BlockService) ManuallyUnblock(ctx context.Context, phoneNumber, operatorID, reason string) (int64, error) {
	count, err := s.blocks.ManuallyUnblockAll(ctx, phoneNumber, operatorID, reason)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		metrics.BlocksLifted.WithLabelValues("manual").Add(float64(count))
		s.audit.LogBlockEvent("block_manually_lifted", phoneNumber, 0, map[string]string{
			"operator_id": operatorID,
			"reason":      reason,
			"lifted":      strconv.FormatInt(count, 10),
		})
	}

	return count, nil
}

// DeactivateBlock lifts a single block by id as an operator action.
// Returns models.ErrNotFound when the block does not exist or is not active.
func (s *BlockService) DeactivateBlock(ctx context.Context, blockID, operatorID, reason string) error {
	if err := s.blocks.ManuallyUnblockByID(ctx, blockID, operatorID, reason); err != nil {
		return err
	}

	metrics.BlocksLifted.WithLabelValues("manual").Inc()
	s.logger.Info("block deactivated",
		slog.String("block_id", blockID),
		slog.String("operator_id", operatorID))
	return nil
}

// GetBlock fetches one block by id for operator inspection.
func (s *BlockService) GetBlock(ctx context.Context, blockID string) (*models.Block, error) {
	return s.blocks.GetByID(ctx, blockID)
}

// ListBlocks returns blocks matching the operator filter.
func (s *BlockService) ListBlocks(ctx context.Context, filter models.BlockFilter) ([]models.Block, error) {
	return s.blocks.List(ctx, filter)
}

// ListAttempts returns ledger entries matching the operator filter.
func (s *BlockService) ListAttempts(ctx context.Context, filter models.AttemptFilter) ([]models.AttemptRecord, error) {
	return s.attempts.List(ctx, filter)
}

// activeBlock returns the block currently restricting the attempt type, or nil.
// A block past its blocked_until is deactivated here, on read, rather than by
// a background sweep.
func (s *BlockService) activeBlock(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, now time.Time) (*models.Block, error) {
	block, err := s.blocks.GetActive(ctx, q, phoneNumber, attemptType)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	if block.IsExpired(now) {
		if err := s.blocks.Deactivate(ctx, q, block.ID); err != nil {
			return nil, err
		}
		metrics.BlocksLifted.WithLabelValues("expired").Inc()
		s.audit.LogBlockEvent("block_expired", phoneNumber, block.BlockLevel, map[string]string{
			"block_id": block.ID,
		})
		return nil, nil
	}

	return block, nil
}

// countingHorizon returns the lower bound for counting failures: the start of
// the sliding window, pulled forward to the last manual unblock if an operator
// intervened more recently.
func (s *BlockService) countingHorizon(ctx context.Context, q database.Querier, phoneNumber string, now time.Time) (time.Time, error) {
	since := now.Add(-s.config.AttemptWindow)

	unblockedAt, err := s.blocks.LastManualUnblockAt(ctx, q, phoneNumber)
	if err != nil {
		return time.Time{}, err
	}
	if unblockedAt != nil && unblockedAt.After(since) {
		since = *unblockedAt
	}

	return since, nil
}

// createBlock builds and persists a block at the next escalation level,
// snapshotting the failures that triggered it as evidence.
func (s *BlockService) createBlock(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, now time.Time) (*models.Block, error) {
	blockType := models.BlockType(attemptType)

	level := 1
	consecutive := 1
	prior, err := s.blocks.LatestInStreak(ctx, q, phoneNumber, blockType, now.Add(-s.config.ResetAfter))
	if err != nil {
		return nil, err
	}
	// The streak follows the latest block of this type: an operator lifting
	// it forgives the escalation, while a manual unblock of another type
	// leaves this type's streak intact.
	if prior != nil && !prior.ManuallyUnblocked {
		level = prior.BlockLevel + 1
		if level > len(s.config.BlockDurations) {
			level = len(s.config.BlockDurations)
		}
		consecutive = prior.ConsecutiveBlocks + 1
	}

	evidence, err := s.attempts.RecentFailed(ctx, q, phoneNumber, attemptType, s.config.MaxFailedAttempts)
	if err != nil {
		return nil, err
	}

	block := &models.Block{
		PhoneNumber:       phoneNumber,
		BlockType:         blockType,
		BlockedAt:         now,
		BlockedUntil:      now.Add(s.config.BlockDurations[level-1]),
		BlockLevel:        level,
		ConsecutiveBlocks: consecutive,
		IsActive:          true,
	}
	attachEvidence(block, evidence)

	if err := s.blocks.Create(ctx, q, block); err != nil {
		return nil, err
	}

	metrics.BlocksCreated.WithLabelValues(string(blockType), strconv.Itoa(level)).Inc()
	s.audit.LogBlockEvent("block_created", phoneNumber, level, map[string]string{
		"block_id":      block.ID,
		"block_type":    string(blockType),
		"blocked_until": block.BlockedUntil.UTC().Format(time.RFC3339),
	})

	if s.alerter != nil {
		s.alerter.BlockCreated(ctx, block)
	}

	return block, nil
}

// remainingAttempts counts failures inside the current window and returns how
// many more are tolerated before a block.
func (s *BlockService) remainingAttempts(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, now time.Time) (int, error) {
	since, err := s.countingHorizon(ctx, q, phoneNumber, now)
	if err != nil {
		return 0, err
	}

	failedCount, err := s.attempts.CountFailedSince(ctx, q, phoneNumber, attemptType, since)
	if err != nil {
		return 0, err
	}

	remaining := s.config.MaxFailedAttempts - failedCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func lockKey(phoneNumber string, attemptType models.AttemptType) string {
	return "blocks:" + phoneNumber + ":" + string(attemptType)
}

func attachEvidence(block *models.Block, attempts []models.AttemptRecord) {
	seenIP := make(map[string]bool)
	seenUA := make(map[string]bool)
	seenDevice := make(map[string]bool)

	for _, a := range attempts {
		block.FailedAttempts = append(block.FailedAttempts, models.AttemptEvidence{
			Timestamp:     a.AttemptedAt,
			IPAddress:     a.IPAddress,
			DeviceID:      a.DeviceID,
			FailureReason: a.FailureReason,
		})
		if a.IPAddress != "" && !seenIP[a.IPAddress] {
			seenIP[a.IPAddress] = true
			block.IPAddresses = append(block.IPAddresses, a.IPAddress)
		}
		if a.UserAgent != "" && !seenUA[a.UserAgent] {
			seenUA[a.UserAgent] = true
			block.UserAgents = append(block.UserAgents, a.UserAgent)
		}
		if a.DeviceID != nil && *a.DeviceID != "" && !seenDevice[*a.DeviceID] {
			seenDevice[*a.DeviceID] = true
			block.DeviceIDs = append(block.DeviceIDs, *a.DeviceID)
		}
	}
}
