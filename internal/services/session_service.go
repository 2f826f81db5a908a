package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/config"
	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/metrics"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/Ahmed3117/silverbook-authguard/pkg/auth"
	"github.com/Ahmed3117/silverbook-authguard/pkg/logger"
)

// SessionStore defines the interface for device session database operations
type SessionStore interface {
	WithUserLock(ctx context.Context, userID string, fn func(q database.Querier) error) error
	Create(ctx context.Context, q database.Querier, session *models.DeviceSession) error
	GetActiveByToken(ctx context.Context, userID, sessionToken string) (*models.DeviceSession, error)
	FindActiveByIdentity(ctx context.Context, q database.Querier, userID string, deviceID *string, ipAddress string) (*models.DeviceSession, error)
	CountActive(ctx context.Context, q database.Querier, userID string) (int, error)
	DeactivateOldest(ctx context.Context, q database.Querier, userID string, n int) ([]string, error)
	Refresh(ctx context.Context, q database.Querier, sessionID, deviceName, ipAddress, userAgent string, deviceID *string) error
	Touch(ctx context.Context, sessionToken string) error
	Deactivate(ctx context.Context, userID, sessionID string) error
	DeactivateByToken(ctx context.Context, userID, sessionToken string) error
	DeactivateAll(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]models.DeviceSession, error)
}

// SessionUserStore is the slice of user storage the session governor needs.
type SessionUserStore interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	SetMaxAllowedDevices(ctx context.Context, userID string, max int) error
}

// DeviceMeta identifies the device behind a login. DeviceID is the
// client-declared identifier when the app supplies one; the IP address serves
// as a fallback identity when it does not.
type DeviceMeta struct {
	DeviceID   *string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

// SessionService implements the device session governor: a per-user cap on
// concurrent device sessions with least-recently-used eviction at the cap.
type SessionService struct {
	sessions SessionStore
	users    SessionUserStore
	config   config.DeviceConfig
	logger   *slog.Logger
	audit    *logger.AuditLogger
}

// NewSessionService creates a new SessionService
func NewSessionService(sessions SessionStore, users SessionUserStore, cfg config.DeviceConfig, log *slog.Logger, audit *logger.AuditLogger) *SessionService {
	return &SessionService{
		sessions: sessions,
		users:    users,
		config:   cfg,
		logger:   log,
		audit:    audit,
	}
}

// RegisterSession establishes the device session for a successful login.
// Uncapped user classes get no session row and a nil result.
//
// For capped users, a login from an already-registered device reuses that
// session (same session token, refreshed metadata) rather than consuming a
// slot. A login from a new device at the cap evicts the least recently used
// session so the new device always gets in.
func (s *SessionService) RegisterSession(ctx context.Context, user *models.User, meta DeviceMeta) (*models.DeviceSession, error) {
	if !user.DeviceCapped() {
		return nil, nil
	}

	maxDevices := user.MaxAllowedDevices
	if maxDevices < 1 {
		maxDevices = s.config.DefaultMaxDevices
	}

	var session *models.DeviceSession
	err := s.sessions.WithUserLock(ctx, user.ID, func(q database.Querier) error {
		existing, err := s.sessions.FindActiveByIdentity(ctx, q, user.ID, meta.DeviceID, meta.IPAddress)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := s.sessions.Refresh(ctx, q, existing.ID, meta.DeviceName, meta.IPAddress, meta.UserAgent, meta.DeviceID); err != nil {
				return err
			}
			session = existing
			return nil
		}

		count, err := s.sessions.CountActive(ctx, q, user.ID)
		if err != nil {
			return err
		}
		if count >= maxDevices {
			if err := s.evictOldest(ctx, q, user.ID, count-maxDevices+1); err != nil {
				return err
			}
		}

		token, err := auth.GenerateTokenKey()
		if err != nil {
			return err
		}

		session = &models.DeviceSession{
			UserID:       user.ID,
			SessionToken: token,
			DeviceID:     meta.DeviceID,
			DeviceName:   meta.DeviceName,
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
			IsActive:     true,
		}
		if err := s.sessions.Create(ctx, q, session); err != nil {
			return err
		}
		// Counts sessions created, not same-device logins reusing one.
		metrics.SessionsRegistered.Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogSessionEvent("session_registered", user.ID, session.ID, map[string]string{
		"device_name": meta.DeviceName,
	})

	return session, nil
}

// ValidateSession checks that the session token presented on a request still
// maps to an active session. A missing or deactivated session returns
// models.ErrSessionInvalid; the caller must reject the request so a device
// evicted elsewhere is logged out on its next call.
func (s *SessionService) ValidateSession(ctx context.Context, userID, sessionToken string) error {
	_, err := s.sessions.GetActiveByToken(ctx, userID, sessionToken)
	if err != nil {
		metrics.SessionValidations.WithLabelValues("rejected").Inc()
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrSessionInvalid
		}
		return err
	}
	metrics.SessionValidations.WithLabelValues("ok").Inc()

	// Bump last_used_at off the request path. LRU ordering tolerates a lost
	// update; request latency should not pay for it.
	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sessions.Touch(touchCtx, sessionToken); err != nil {
			s.logger.Error("failed to touch session", slog.Any("error", err))
		}
	}()

	return nil
}

// Revoke deactivates one of the user's sessions. The device holding it is
// rejected on its next authenticated request.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID string) error {
	if err := s.sessions.Deactivate(ctx, userID, sessionID); err != nil {
		return err
	}
	s.audit.LogSessionEvent("session_revoked", userID, sessionID, nil)
	return nil
}

// RevokeByToken deactivates the session behind a presented credential. Used at
// logout so the device's slot frees up immediately.
func (s *SessionService) RevokeByToken(ctx context.Context, userID, sessionToken string) error {
	if err := s.sessions.DeactivateByToken(ctx, userID, sessionToken); err != nil {
		return err
	}
	s.audit.LogSessionEvent("session_logged_out", userID, "", nil)
	return nil
}

// RevokeAll deactivates every active session for a user and returns how many
// were revoked. Used on password reset and by operators.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	count, err := s.sessions.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.audit.LogSessionEvent("sessions_revoked_all", userID, "", map[string]string{
			"revoked": strconv.FormatInt(count, 10),
		})
	}
	return count, nil
}

// SetDeviceCap updates a user's device cap. Lowering the cap below the current
// active session count immediately evicts the least recently used surplus.
func (s *SessionService) SetDeviceCap(ctx context.Context, userID string, max int) error {
	if max < 1 {
		return models.ErrBadRequest
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.users.SetMaxAllowedDevices(ctx, userID, max); err != nil {
		return err
	}

	if !user.DeviceCapped() {
		return nil
	}

	return s.sessions.WithUserLock(ctx, userID, func(q database.Querier) error {
		count, err := s.sessions.CountActive(ctx, q, userID)
		if err != nil {
			return err
		}
		if count > max {
			return s.evictOldest(ctx, q, userID, count-max)
		}
		return nil
	})
}

// ListSessions returns all of a user's device sessions, most recently used
// first, for the device management screens.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]models.DeviceSession, error) {
	return s.sessions.ListByUser(ctx, userID)
}

func (s *SessionService) evictOldest(ctx context.Context, q database.Querier, userID string, n int) error {
	evicted, err := s.sessions.DeactivateOldest(ctx, q, userID, n)
	if err != nil {
		return err
	}

	metrics.SessionsEvicted.Add(float64(len(evicted)))
	for _, id := range evicted {
		s.audit.LogSessionEvent("session_evicted", userID, id, nil)
	}
	return nil
}
