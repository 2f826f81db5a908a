package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/config"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	pkgauth "github.com/Ahmed3117/silverbook-authguard/pkg/auth"
	"github.com/Ahmed3117/silverbook-authguard/pkg/logger"
)

// AttemptGate is the block engine as seen by the authentication gateway.
type AttemptGate interface {
	CheckAttempt(ctx context.Context, phoneNumber string, attemptType models.AttemptType, meta AttemptMeta) (*Decision, error)
	RecordAttempt(ctx context.Context, phoneNumber string, attemptType models.AttemptType, result models.AttemptResult, failureReason string, meta AttemptMeta) (*Decision, error)
}

// SessionRegistrar is the session governor as seen by the gateway.
type SessionRegistrar interface {
	RegisterSession(ctx context.Context, user *models.User, meta DeviceMeta) (*models.DeviceSession, error)
	RevokeByToken(ctx context.Context, userID, sessionToken string) error
	ValidateSession(ctx context.Context, userID, sessionToken string) error
}

// TokenIssuer mints and validates the JWT credentials issued at login.
type TokenIssuer interface {
	GenerateAccessToken(user *models.User, sessionToken string) (string, error)
	GenerateRefreshToken(user *models.User, sessionToken string) (string, error)
	ValidateToken(tokenString string) (*models.TokenClaims, error)
}

// AuthUserStore is the slice of user storage the gateway needs.
type AuthUserStore interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error)
}

// BlockedError rejects an operation because the phone number is under an
// active block. Handlers render Info verbatim for the mobile clients.
type BlockedError struct {
	Info *models.BlockInfo
}

func (e *BlockedError) Error() string {
	return models.ErrRateLimited.Error()
}

func (e *BlockedError) Unwrap() error {
	return models.ErrRateLimited
}

// InvalidCredentialsError rejects a login without revealing whether the phone
// number exists; the message is identical either way. Remaining tells the
// client how many failures are left before a block.
type InvalidCredentialsError struct {
	Remaining int
}

func (e *InvalidCredentialsError) Error() string {
	return "invalid phone number or password"
}

func (e *InvalidCredentialsError) Unwrap() error {
	return models.ErrUnauthorized
}

// LoginInput carries everything the gateway needs to decide a login.
type LoginInput struct {
	PhoneNumber string
	Password    string
	Device      DeviceMeta
}

// LoginResult is a successful login: the issued token pair plus the device
// session registered for capped user classes (nil for uncapped ones).
type LoginResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	Session      *models.DeviceSession
}

// AuthService is the authentication gateway. Every login passes through the
// block engine first, then credential verification, then the session governor.
type AuthService struct {
	users    AuthUserStore
	gate     AttemptGate
	sessions SessionRegistrar
	tokens   TokenIssuer
	timing   *auth.TimingDelay
	devices  config.DeviceConfig
	logger   *slog.Logger
	audit    *logger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(users AuthUserStore, gate AttemptGate, sessions SessionRegistrar, tokens TokenIssuer, timing *auth.TimingDelay, devices config.DeviceConfig, log *slog.Logger, audit *logger.AuditLogger) *AuthService {
	return &AuthService{
		users:    users,
		gate:     gate,
		sessions: sessions,
		tokens:   tokens,
		timing:   timing,
		devices:  devices,
		logger:   log,
		audit:    audit,
	}
}

// Login authenticates a phone number and password.
//
// Order matters: the block check runs before any credential work, so a blocked
// number learns nothing about whether its password was right. Failed
// verifications are recorded and may trip a new block, in which case the
// rejection carries the block rather than the generic credentials message.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	start := time.Now()
	meta := AttemptMeta{
		IPAddress: input.Device.IPAddress,
		UserAgent: input.Device.UserAgent,
		DeviceID:  input.Device.DeviceID,
	}

	decision, err := s.gate.CheckAttempt(ctx, input.PhoneNumber, models.AttemptTypeLogin, meta)
	if err != nil {
		// Fail closed: an unavailable block engine denies the login.
		return nil, fmt.Errorf("block check failed: %w", err)
	}
	if !decision.Allowed {
		s.logAttempt(input, meta, false, "blocked")
		return nil, &BlockedError{Info: decision.Block}
	}

	user, err := s.users.GetByPhone(ctx, input.PhoneNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.failLogin(ctx, input, meta, start, "user_not_found")
		}
		return nil, err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return nil, s.failLogin(ctx, input, meta, start, "invalid_password")
	}

	if _, err := s.gate.RecordAttempt(ctx, input.PhoneNumber, models.AttemptTypeLogin, models.AttemptResultSuccess, "", meta); err != nil {
		s.logger.Error("failed to record successful login", slog.Any("error", err))
	}

	session, err := s.sessions.RegisterSession(ctx, user, input.Device)
	if err != nil {
		return nil, fmt.Errorf("session registration failed: %w", err)
	}

	sessionToken := ""
	if session != nil {
		sessionToken = session.SessionToken
	}

	accessToken, err := s.tokens.GenerateAccessToken(user, sessionToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(user, sessionToken)
	if err != nil {
		return nil, err
	}

	s.logAttempt(input, meta, true, "")

	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Session:      session,
	}, nil
}

// failLogin records the failure, equalizes response timing and returns either
// the block created by this failure or the enumeration-safe credentials error.
func (s *AuthService) failLogin(ctx context.Context, input LoginInput, meta AttemptMeta, start time.Time, reason string) error {
	decision, err := s.gate.RecordAttempt(ctx, input.PhoneNumber, models.AttemptTypeLogin, models.AttemptResultFailed, reason, meta)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
	}

	s.logAttempt(input, meta, false, reason)
	s.timing.WaitFrom(start, false)

	if err == nil && !decision.Allowed {
		return &BlockedError{Info: decision.Block}
	}

	remaining := 0
	if err == nil {
		remaining = decision.RemainingAttempts
	}
	return &InvalidCredentialsError{Remaining: remaining}
}

// Refresh exchanges a valid refresh token for a new token pair. The session
// token travels unchanged, so the new credentials stay bound to the same
// device session, and a revoked session refuses to refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tokens.ValidateToken(refreshToken)
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	if claims.Type != "refresh" {
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}

	if user.DeviceCapped() {
		if claims.SessionToken == "" {
			// Refresh tokens issued before device sessions carry no session
			// claim; once the migration window closes they stop minting
			// fresh credentials.
			if !s.devices.AllowLegacyTokens {
				return nil, models.ErrUnauthorized
			}
		} else if err := s.sessions.ValidateSession(ctx, user.ID, claims.SessionToken); err != nil {
			if errors.Is(err, models.ErrSessionInvalid) {
				return nil, models.ErrSessionInvalid
			}
			return nil, err
		}
	}

	accessToken, err := s.tokens.GenerateAccessToken(user, claims.SessionToken)
	if err != nil {
		return nil, err
	}
	newRefreshToken, err := s.tokens.GenerateRefreshToken(user, claims.SessionToken)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

// Logout frees the device session behind the presented credential. Tokens
// without a session claim have nothing to release.
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if claims.SessionToken == "" {
		return nil
	}
	return s.sessions.RevokeByToken(ctx, claims.UserID, claims.SessionToken)
}

func (s *AuthService) logAttempt(input LoginInput, meta AttemptMeta, success bool, reason string) {
	deviceID := ""
	if meta.DeviceID != nil {
		deviceID = *meta.DeviceID
	}
	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "login",
		PhoneNumber:   input.PhoneNumber,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		DeviceID:      deviceID,
		Success:       success,
		FailureReason: reason,
	})
}
