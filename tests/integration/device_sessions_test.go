package integration

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/Ahmed3117/silverbook-authguard/internal/config"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/Ahmed3117/silverbook-authguard/internal/services"
	pkglogger "github.com/Ahmed3117/silverbook-authguard/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionServiceFor(db *TestDB) *services.SessionService {
	userRepo, _, _, sessionRepo, _ := InitializeRepositories(db.DB)
	log := slog.Default()
	cfg := config.DeviceConfig{DefaultMaxDevices: 2, AllowLegacyTokens: false}
	return services.NewSessionService(sessionRepo, userRepo, cfg, log, pkglogger.NewAuditLogger(log))
}

func deviceFor(n int) services.DeviceMeta {
	deviceID := fmt.Sprintf("device-%d", n)
	return services.DeviceMeta{
		DeviceID:   &deviceID,
		DeviceName: fmt.Sprintf("Phone %d", n),
		IPAddress:  fmt.Sprintf("10.0.0.%d", n),
		UserAgent:  "integration-test",
	}
}

func TestDeviceSessions_CapEvictsOldest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer db.Teardown(ctx)

	svc := newSessionServiceFor(db)
	student, err := SeedUser(ctx, db.Pool, "+201001234567", "correct-password", models.UserTypeStudent, 2)
	require.NoError(t, err)

	first, err := svc.RegisterSession(ctx, student, deviceFor(1))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.RegisterSession(ctx, student, deviceFor(2))
	require.NoError(t, err)

	// Third device evicts the least recently used session.
	third, err := svc.RegisterSession(ctx, student, deviceFor(3))
	require.NoError(t, err)

	assert.Error(t, svc.ValidateSession(ctx, student.ID, first.SessionToken), "oldest session should be evicted")
	assert.NoError(t, svc.ValidateSession(ctx, student.ID, second.SessionToken))
	assert.NoError(t, svc.ValidateSession(ctx, student.ID, third.SessionToken))

	active, err := svc.ListSessions(ctx, student.ID)
	require.NoError(t, err)

	activeCount := 0
	for _, s := range active {
		if s.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 2, activeCount, "device cap must never be exceeded")
}

func TestDeviceSessions_SameDeviceReusesSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer db.Teardown(ctx)

	svc := newSessionServiceFor(db)
	student, err := SeedUser(ctx, db.Pool, "+201001234567", "correct-password", models.UserTypeStudent, 2)
	require.NoError(t, err)

	first, err := svc.RegisterSession(ctx, student, deviceFor(1))
	require.NoError(t, err)

	again, err := svc.RegisterSession(ctx, student, deviceFor(1))
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID, "same device logs into its existing session")
	assert.Equal(t, first.SessionToken, again.SessionToken)
}

func TestDeviceSessions_TeacherUncapped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer db.Teardown(ctx)

	svc := newSessionServiceFor(db)
	teacher, err := SeedUser(ctx, db.Pool, "+201009999999", "correct-password", models.UserTypeTeacher, 2)
	require.NoError(t, err)

	session, err := svc.RegisterSession(ctx, teacher, deviceFor(1))
	require.NoError(t, err)
	assert.Nil(t, session, "uncapped user classes get no device session")
}

func TestDeviceSessions_LoweringCapEvictsSurplus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer db.Teardown(ctx)

	svc := newSessionServiceFor(db)
	student, err := SeedUser(ctx, db.Pool, "+201001234567", "correct-password", models.UserTypeStudent, 3)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := svc.RegisterSession(ctx, student, deviceFor(i))
		require.NoError(t, err)
	}

	require.NoError(t, svc.SetDeviceCap(ctx, student.ID, 1))

	active, err := svc.ListSessions(ctx, student.ID)
	require.NoError(t, err)

	activeCount := 0
	for _, s := range active {
		if s.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}
