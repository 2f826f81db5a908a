package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	pkgauth "github.com/Ahmed3117/silverbook-authguard/pkg/auth"
	"github.com/Ahmed3117/silverbook-authguard/pkg/logger"
)

// ResetNotifier delivers a reset code to a phone number. The SMS/WhatsApp
// transport lives behind this interface; the service never sees delivery
// details.
type ResetNotifier interface {
	SendResetCode(ctx context.Context, phoneNumber, code string) error
}

// ResetCodeStore defines the interface for reset code database operations
type ResetCodeStore interface {
	Replace(ctx context.Context, code *models.PasswordResetCode) error
	GetPending(ctx context.Context, phoneNumber string) (*models.PasswordResetCode, error)
	Delete(ctx context.Context, id string) error
}

// ResetUserStore is the slice of user storage password reset needs.
type ResetUserStore interface {
	GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// ResetSessionRevoker revokes every device session after a password change.
type ResetSessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

// PasswordResetService implements phone-based password reset with short-lived
// numeric codes. Reset traffic runs through the same block engine as logins,
// under its own attempt type, so code requests cannot be used as a free
// brute-force or SMS-flooding channel.
type PasswordResetService struct {
	users      ResetUserStore
	codes      ResetCodeStore
	gate       AttemptGate
	sessions   ResetSessionRevoker
	notifier   ResetNotifier
	codeExpiry time.Duration
	timing     *auth.TimingDelay
	logger     *slog.Logger
	audit      *logger.AuditLogger
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(users ResetUserStore, codes ResetCodeStore, gate AttemptGate, sessions ResetSessionRevoker, notifier ResetNotifier, codeExpiry time.Duration, timing *auth.TimingDelay, log *slog.Logger, audit *logger.AuditLogger) *PasswordResetService {
	return &PasswordResetService{
		users:      users,
		codes:      codes,
		gate:       gate,
		sessions:   sessions,
		notifier:   notifier,
		codeExpiry: codeExpiry,
		timing:     timing,
		logger:     log,
		audit:      audit,
	}
}

// RequestReset issues and delivers a reset code for a phone number.
//
// Every request is the counted unit for the password_reset block type, so
// repeated requests trip a progressive block regardless of whether they would
// have succeeded. Unknown phone numbers get the same nil response as known
// ones; only delivery is skipped.
func (s *PasswordResetService) RequestReset(ctx context.Context, phoneNumber string, meta AttemptMeta) error {
	decision, err := s.gate.CheckAttempt(ctx, phoneNumber, models.AttemptTypePasswordReset, meta)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &BlockedError{Info: decision.Block}
	}

	decision, err = s.gate.RecordAttempt(ctx, phoneNumber, models.AttemptTypePasswordReset, models.AttemptResultFailed, "reset_requested", meta)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &BlockedError{Info: decision.Block}
	}

	user, err := s.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Indistinguishable from the real thing to the caller.
			return nil
		}
		return err
	}

	code, err := pkgauth.GenerateResetCode()
	if err != nil {
		return err
	}
	codeHash, err := pkgauth.HashPassword(code)
	if err != nil {
		return err
	}

	if err := s.codes.Replace(ctx, &models.PasswordResetCode{
		PhoneNumber: phoneNumber,
		CodeHash:    codeHash,
		ExpiresAt:   time.Now().Add(s.codeExpiry),
	}); err != nil {
		return err
	}

	if err := s.notifier.SendResetCode(ctx, phoneNumber, code); err != nil {
		// Delivery failures stay server-side; surfacing them would confirm
		// the number exists.
		s.logger.Error("failed to deliver reset code",
			slog.String("phone_number", logger.SanitizePhone(phoneNumber)),
			slog.Any("error", err))
		return nil
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:   "password_reset_requested",
		PhoneNumber: phoneNumber,
		UserID:      user.ID,
		IPAddress:   meta.IPAddress,
		Success:     true,
	})

	return nil
}

// ConfirmReset verifies a delivered code and sets the new password. A wrong
// code counts as a failed attempt against the password_reset block type. On
// success the code is consumed and every device session is revoked, so stolen
// credentials die with the old password.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, phoneNumber, code, newPassword string, meta AttemptMeta) error {
	start := time.Now()

	decision, err := s.gate.CheckAttempt(ctx, phoneNumber, models.AttemptTypePasswordReset, meta)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &BlockedError{Info: decision.Block}
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrBadRequest
	}

	user, err := s.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.failConfirm(ctx, phoneNumber, meta, start, "user_not_found")
		}
		return err
	}

	pending, err := s.codes.GetPending(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.failConfirm(ctx, phoneNumber, meta, start, "no_pending_code")
		}
		return err
	}

	if err := pkgauth.ComparePassword(pending.CodeHash, code); err != nil {
		return s.failConfirm(ctx, phoneNumber, meta, start, "invalid_reset_code")
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return err
	}
	if err := s.codes.Delete(ctx, pending.ID); err != nil {
		s.logger.Error("failed to consume reset code", slog.Any("error", err))
	}

	if _, err := s.gate.RecordAttempt(ctx, phoneNumber, models.AttemptTypePasswordReset, models.AttemptResultSuccess, "", meta); err != nil {
		s.logger.Error("failed to record reset success", slog.Any("error", err))
	}

	revoked, err := s.sessions.RevokeAll(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to revoke sessions after password reset",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:   "password_reset_completed",
		PhoneNumber: phoneNumber,
		UserID:      user.ID,
		IPAddress:   meta.IPAddress,
		Success:     true,
		Metadata:    map[string]string{"sessions_revoked": strconv.FormatInt(revoked, 10)},
	})

	return nil
}

// failConfirm records the failed confirmation, equalizes timing and returns
// either a freshly created block or the generic rejection.
func (s *PasswordResetService) failConfirm(ctx context.Context, phoneNumber string, meta AttemptMeta, start time.Time, reason string) error {
	decision, err := s.gate.RecordAttempt(ctx, phoneNumber, models.AttemptTypePasswordReset, models.AttemptResultFailed, reason, meta)
	if err != nil {
		s.logger.Error("failed to record reset failure", slog.Any("error", err))
	}

	s.timing.WaitFrom(start, false)

	if err == nil && !decision.Allowed {
		return &BlockedError{Info: decision.Block}
	}
	return models.ErrUnauthorized
}
