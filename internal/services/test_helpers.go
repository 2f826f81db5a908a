package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/database"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
)

// MockAttemptStore is an in-memory AttemptStore for testing
type MockAttemptStore struct {
	Records []models.AttemptRecord
}

func NewMockAttemptStore() *MockAttemptStore {
	return &MockAttemptStore{}
}

func (m *MockAttemptStore) Record(ctx context.Context, attempt *models.AttemptRecord) error {
	attempt.ID = fmt.Sprintf("attempt-%d", len(m.Records)+1)
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	m.Records = append(m.Records, *attempt)
	return nil
}

func (m *MockAttemptStore) CountFailedSince(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, since time.Time) (int, error) {
	count := 0
	for _, a := range m.Records {
		if a.PhoneNumber == phoneNumber && a.AttemptType == attemptType &&
			a.Result == models.AttemptResultFailed && !a.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockAttemptStore) RecentFailed(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType, limit int) ([]models.AttemptRecord, error) {
	var failed []models.AttemptRecord
	for i := len(m.Records) - 1; i >= 0 && len(failed) < limit; i-- {
		a := m.Records[i]
		if a.PhoneNumber == phoneNumber && a.AttemptType == attemptType && a.Result == models.AttemptResultFailed {
			failed = append(failed, a)
		}
	}
	return failed, nil
}

func (m *MockAttemptStore) List(ctx context.Context, filter models.AttemptFilter) ([]models.AttemptRecord, error) {
	var out []models.AttemptRecord
	for i := len(m.Records) - 1; i >= 0; i-- {
		a := m.Records[i]
		if filter.PhoneNumber != "" && a.PhoneNumber != filter.PhoneNumber {
			continue
		}
		if filter.AttemptType != "" && a.AttemptType != filter.AttemptType {
			continue
		}
		if filter.Result != "" && a.Result != filter.Result {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// MockBlockStore is an in-memory BlockStore for testing. WithPhoneLock runs
// fn directly with a nil Querier.
type MockBlockStore struct {
	Blocks []*models.Block
}

func NewMockBlockStore() *MockBlockStore {
	return &MockBlockStore{}
}

func (m *MockBlockStore) WithPhoneLock(ctx context.Context, key string, fn func(q database.Querier) error) error {
	return fn(nil)
}

func (m *MockBlockStore) Create(ctx context.Context, q database.Querier, block *models.Block) error {
	block.ID = fmt.Sprintf("block-%d", len(m.Blocks)+1)
	m.Blocks = append(m.Blocks, block)
	return nil
}

func (m *MockBlockStore) GetActive(ctx context.Context, q database.Querier, phoneNumber string, attemptType models.AttemptType) (*models.Block, error) {
	var latest *models.Block
	for _, b := range m.Blocks {
		if b.PhoneNumber != phoneNumber || !b.IsActive {
			continue
		}
		if attemptType != "" && !b.BlockType.Covers(attemptType) {
			continue
		}
		if latest == nil || b.BlockedAt.After(latest.BlockedAt) {
			latest = b
		}
	}
	return latest, nil
}

func (m *MockBlockStore) LatestInStreak(ctx context.Context, q database.Querier, phoneNumber string, blockType models.BlockType, since time.Time) (*models.Block, error) {
	var latest *models.Block
	for _, b := range m.Blocks {
		if b.PhoneNumber != phoneNumber || b.BlockType != blockType || b.BlockedAt.Before(since) {
			continue
		}
		if latest == nil || b.BlockedAt.After(latest.BlockedAt) {
			latest = b
		}
	}
	return latest, nil
}

func (m *MockBlockStore) LastManualUnblockAt(ctx context.Context, q database.Querier, phoneNumber string) (*time.Time, error) {
	var latest *time.Time
	for _, b := range m.Blocks {
		if b.PhoneNumber != phoneNumber || !b.ManuallyUnblocked || b.UnblockedAt == nil {
			continue
		}
		if latest == nil || b.UnblockedAt.After(*latest) {
			latest = b.UnblockedAt
		}
	}
	return latest, nil
}

func (m *MockBlockStore) Deactivate(ctx context.Context, q database.Querier, blockID string) error {
	for _, b := range m.Blocks {
		if b.ID == blockID {
			b.IsActive = false
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *MockBlockStore) ManuallyUnblockAll(ctx context.Context, phoneNumber, operatorID, reason string) (int64, error) {
	now := time.Now()
	var count int64
	for _, b := range m.Blocks {
		if b.PhoneNumber == phoneNumber && b.IsActive {
			b.IsActive = false
			b.ManuallyUnblocked = true
			b.UnblockedBy = &operatorID
			b.UnblockedAt = &now
			b.UnblockReason = &reason
			count++
		}
	}
	return count, nil
}

func (m *MockBlockStore) ManuallyUnblockByID(ctx context.Context, blockID, operatorID, reason string) error {
	now := time.Now()
	for _, b := range m.Blocks {
		if b.ID == blockID && b.IsActive {
			b.IsActive = false
			b.ManuallyUnblocked = true
			b.UnblockedBy = &operatorID
			b.UnblockedAt = &now
			b.UnblockReason = &reason
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *MockBlockStore) GetByID(ctx context.Context, blockID string) (*models.Block, error) {
	for _, b := range m.Blocks {
		if b.ID == blockID {
			return b, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockBlockStore) List(ctx context.Context, filter models.BlockFilter) ([]models.Block, error) {
	var out []models.Block
	for i := len(m.Blocks) - 1; i >= 0; i-- {
		b := m.Blocks[i]
		if filter.PhoneNumber != "" && b.PhoneNumber != filter.PhoneNumber {
			continue
		}
		if filter.BlockType != "" && b.BlockType != filter.BlockType {
			continue
		}
		if filter.IsActive != nil && b.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

// MockSessionStore is an in-memory SessionStore for testing. WithUserLock runs
// fn directly with a nil Querier.
type MockSessionStore struct {
	Sessions []*models.DeviceSession
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{}
}

func (m *MockSessionStore) WithUserLock(ctx context.Context, userID string, fn func(q database.Querier) error) error {
	return fn(nil)
}

func (m *MockSessionStore) Create(ctx context.Context, q database.Querier, session *models.DeviceSession) error {
	session.ID = fmt.Sprintf("session-%d", len(m.Sessions)+1)
	now := time.Now()
	session.LoggedInAt = now
	session.LastUsedAt = now
	copied := *session
	m.Sessions = append(m.Sessions, &copied)
	return nil
}

func (m *MockSessionStore) GetActiveByToken(ctx context.Context, userID, sessionToken string) (*models.DeviceSession, error) {
	for _, s := range m.Sessions {
		if s.UserID == userID && s.SessionToken == sessionToken && s.IsActive {
			return s, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionStore) FindActiveByIdentity(ctx context.Context, q database.Querier, userID string, deviceID *string, ipAddress string) (*models.DeviceSession, error) {
	for _, s := range m.Sessions {
		if s.UserID != userID || !s.IsActive {
			continue
		}
		if deviceID != nil && *deviceID != "" {
			if s.DeviceID != nil && *s.DeviceID == *deviceID {
				return s, nil
			}
			continue
		}
		if s.DeviceID == nil && s.IPAddress == ipAddress {
			return s, nil
		}
	}
	return nil, nil
}

func (m *MockSessionStore) CountActive(ctx context.Context, q database.Querier, userID string) (int, error) {
	count := 0
	for _, s := range m.Sessions {
		if s.UserID == userID && s.IsActive {
			count++
		}
	}
	return count, nil
}

func (m *MockSessionStore) DeactivateOldest(ctx context.Context, q database.Querier, userID string, n int) ([]string, error) {
	var ids []string
	for i := 0; i < n; i++ {
		var oldest *models.DeviceSession
		for _, s := range m.Sessions {
			if s.UserID != userID || !s.IsActive {
				continue
			}
			if oldest == nil || s.LastUsedAt.Before(oldest.LastUsedAt) {
				oldest = s
			}
		}
		if oldest == nil {
			break
		}
		oldest.IsActive = false
		ids = append(ids, oldest.ID)
	}
	return ids, nil
}

func (m *MockSessionStore) Refresh(ctx context.Context, q database.Querier, sessionID, deviceName, ipAddress, userAgent string, deviceID *string) error {
	for _, s := range m.Sessions {
		if s.ID == sessionID {
			s.LastUsedAt = time.Now()
			s.DeviceName = deviceName
			s.IPAddress = ipAddress
			s.UserAgent = userAgent
			if s.DeviceID == nil {
				s.DeviceID = deviceID
			}
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *MockSessionStore) Touch(ctx context.Context, sessionToken string) error {
	for _, s := range m.Sessions {
		if s.SessionToken == sessionToken {
			s.LastUsedAt = time.Now()
		}
	}
	return nil
}

func (m *MockSessionStore) Deactivate(ctx context.Context, userID, sessionID string) error {
	for _, s := range m.Sessions {
		if s.ID == sessionID && s.UserID == userID && s.IsActive {
			s.IsActive = false
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *MockSessionStore) DeactivateByToken(ctx context.Context, userID, sessionToken string) error {
	for _, s := range m.Sessions {
		if s.UserID == userID && s.SessionToken == sessionToken && s.IsActive {
			s.IsActive = false
		}
	}
	return nil
}

func (m *MockSessionStore) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	var count int64
	for _, s := range m.Sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			count++
		}
	}
	return count, nil
}

func (m *MockSessionStore) ListByUser(ctx context.Context, userID string) ([]models.DeviceSession, error) {
	var out []models.DeviceSession
	for _, s := range m.Sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

// MockUserStore implements the user store interfaces for testing
type MockUserStore struct {
	GetByIDFunc              func(ctx context.Context, userID string) (*models.User, error)
	GetByPhoneFunc           func(ctx context.Context, phoneNumber string) (*models.User, error)
	UpdatePasswordFunc       func(ctx context.Context, userID, passwordHash string) error
	SetMaxAllowedDevicesFunc func(ctx context.Context, userID string, max int) error
}

func (m *MockUserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserStore) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	if m.GetByPhoneFunc != nil {
		return m.GetByPhoneFunc(ctx, phoneNumber)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, userID, passwordHash)
	}
	return nil
}

func (m *MockUserStore) SetMaxAllowedDevices(ctx context.Context, userID string, max int) error {
	if m.SetMaxAllowedDevicesFunc != nil {
		return m.SetMaxAllowedDevicesFunc(ctx, userID, max)
	}
	return nil
}

// MockResetCodeStore is an in-memory ResetCodeStore for testing
type MockResetCodeStore struct {
	Codes map[string]*models.PasswordResetCode
}

func NewMockResetCodeStore() *MockResetCodeStore {
	return &MockResetCodeStore{Codes: make(map[string]*models.PasswordResetCode)}
}

func (m *MockResetCodeStore) Replace(ctx context.Context, code *models.PasswordResetCode) error {
	code.ID = fmt.Sprintf("code-%d", len(m.Codes)+1)
	code.CreatedAt = time.Now()
	m.Codes[code.PhoneNumber] = code
	return nil
}

func (m *MockResetCodeStore) GetPending(ctx context.Context, phoneNumber string) (*models.PasswordResetCode, error) {
	code, ok := m.Codes[phoneNumber]
	if !ok || time.Now().After(code.ExpiresAt) {
		return nil, models.ErrNotFound
	}
	return code, nil
}

func (m *MockResetCodeStore) Delete(ctx context.Context, id string) error {
	for phone, code := range m.Codes {
		if code.ID == id {
			delete(m.Codes, phone)
			return nil
		}
	}
	return models.ErrNotFound
}

// MockNotifier captures reset codes instead of delivering them
type MockNotifier struct {
	Sent map[string]string
	Err  error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Sent: make(map[string]string)}
}

func (m *MockNotifier) SendResetCode(ctx context.Context, phoneNumber, code string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent[phoneNumber] = code
	return nil
}
