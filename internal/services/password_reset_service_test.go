package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/config"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/Ahmed3117/silverbook-authguard/internal/services"
	pkgauth "github.com/Ahmed3117/silverbook-authguard/pkg/auth"
	"github.com/Ahmed3117/silverbook-authguard/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resetFixture struct {
	svc      *services.PasswordResetService
	codes    *services.MockResetCodeStore
	notifier *services.MockNotifier
	sessions *services.MockSessionStore
	attempts *services.MockAttemptStore
	user     *models.User
	updated  *string
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	audit := logger.NewAuditLogger(log)

	attempts := services.NewMockAttemptStore()
	blocks := services.NewMockBlockStore()
	gate := services.NewBlockService(attempts, blocks, testSecurityConfig(), nil, log, audit)

	f := &resetFixture{
		codes:    services.NewMockResetCodeStore(),
		notifier: services.NewMockNotifier(),
		sessions: services.NewMockSessionStore(),
		attempts: attempts,
		user: &models.User{
			ID:          "user-1",
			PhoneNumber: "+201001234567",
			UserType:    models.UserTypeStudent,
		},
	}

	users := &services.MockUserStore{
		GetByPhoneFunc: func(ctx context.Context, phoneNumber string) (*models.User, error) {
			if phoneNumber == f.user.PhoneNumber {
				return f.user, nil
			}
			return nil, models.ErrNotFound
		},
		UpdatePasswordFunc: func(ctx context.Context, userID, passwordHash string) error {
			f.updated = &passwordHash
			return nil
		},
	}

	sessionSvc := services.NewSessionService(f.sessions, users, config.DeviceConfig{DefaultMaxDevices: 2}, log, audit)

	f.svc = services.NewPasswordResetService(users, f.codes, gate, sessionSvc, f.notifier,
		10*time.Minute, auth.NewTimingDelay(0, 0), log, audit)
	return f
}

func resetMeta() services.AttemptMeta {
	return services.AttemptMeta{IPAddress: "10.0.0.1", UserAgent: "app/1.0"}
}

func TestPasswordResetRequest_DeliversCode(t *testing.T) {
	f := newResetFixture(t)

	err := f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta())

	require.NoError(t, err)
	code, ok := f.notifier.Sent[f.user.PhoneNumber]
	require.True(t, ok)
	assert.Len(t, code, pkgauth.ResetCodeDigits)

	// Only the hash is stored, and it matches the delivered code.
	stored, err := f.codes.GetPending(context.Background(), f.user.PhoneNumber)
	require.NoError(t, err)
	assert.NotEqual(t, code, stored.CodeHash)
	assert.NoError(t, pkgauth.ComparePassword(stored.CodeHash, code))
}

func TestPasswordResetRequest_UnknownPhoneLooksIdentical(t *testing.T) {
	f := newResetFixture(t)

	err := f.svc.RequestReset(context.Background(), "+209999999999", resetMeta())

	require.NoError(t, err)
	assert.Empty(t, f.notifier.Sent)
	// The request still counts toward the reset block window.
	count, err := f.attempts.CountFailedSince(context.Background(), nil, "+209999999999",
		models.AttemptTypePasswordReset, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPasswordResetRequest_ThirdRequestBlocked(t *testing.T) {
	f := newResetFixture(t)

	require.NoError(t, f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta()))
	require.NoError(t, f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta()))

	err := f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta())

	var blockedErr *services.BlockedError
	require.ErrorAs(t, err, &blockedErr)
	assert.Equal(t, models.BlockTypePasswordReset, blockedErr.Info.BlockType)

	// Further requests are rejected up front.
	err = f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta())
	require.ErrorAs(t, err, &blockedErr)
}

func TestPasswordResetConfirm_Success(t *testing.T) {
	f := newResetFixture(t)

	require.NoError(t, f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta()))
	code := f.notifier.Sent[f.user.PhoneNumber]

	// An active device that must die with the old password.
	session := &models.DeviceSession{UserID: f.user.ID, SessionToken: "tok", IsActive: true}
	require.NoError(t, f.sessions.Create(context.Background(), nil, session))

	err := f.svc.ConfirmReset(context.Background(), f.user.PhoneNumber, code, "N3w!password", resetMeta())

	require.NoError(t, err)
	require.NotNil(t, f.updated)
	assert.NoError(t, pkgauth.ComparePassword(*f.updated, "N3w!password"))

	// Code is consumed and sessions are gone.
	_, err = f.codes.GetPending(context.Background(), f.user.PhoneNumber)
	assert.ErrorIs(t, err, models.ErrNotFound)
	count, err := f.sessions.CountActive(context.Background(), nil, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPasswordResetConfirm_WrongCodeCountsAsFailure(t *testing.T) {
	f := newResetFixture(t)

	require.NoError(t, f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta()))

	err := f.svc.ConfirmReset(context.Background(), f.user.PhoneNumber, "000000", "N3w!password", resetMeta())

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, f.updated)

	last := f.attempts.Records[len(f.attempts.Records)-1]
	assert.Equal(t, models.AttemptResultFailed, last.Result)
	require.NotNil(t, last.FailureReason)
	assert.Equal(t, "invalid_reset_code", *last.FailureReason)
}

func TestPasswordResetConfirm_WeakPasswordRejected(t *testing.T) {
	f := newResetFixture(t)

	require.NoError(t, f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta()))
	code := f.notifier.Sent[f.user.PhoneNumber]

	err := f.svc.ConfirmReset(context.Background(), f.user.PhoneNumber, code, "short", resetMeta())

	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.Nil(t, f.updated)
}

func TestPasswordResetConfirm_ExpiredCode(t *testing.T) {
	f := newResetFixture(t)

	require.NoError(t, f.svc.RequestReset(context.Background(), f.user.PhoneNumber, resetMeta()))
	code := f.notifier.Sent[f.user.PhoneNumber]
	f.codes.Codes[f.user.PhoneNumber].ExpiresAt = time.Now().Add(-time.Minute)

	err := f.svc.ConfirmReset(context.Background(), f.user.PhoneNumber, code, "N3w!password", resetMeta())

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
