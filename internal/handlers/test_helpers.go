package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/Ahmed3117/silverbook-authguard/internal/services"
	pkghttp "github.com/Ahmed3117/silverbook-authguard/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, userType, sessionToken string) *http.Request {
	claims := &models.TokenClaims{
		Type:         "access",
		UserID:       userID,
		UserType:     userType,
		SessionToken: sessionToken,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc   func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	RefreshFunc func(ctx context.Context, refreshToken string) (*services.LoginResult, error)
	LogoutFunc  func(ctx context.Context, claims *models.TokenClaims) error
}

func (m *MockAuthService) Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, input)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*services.LoginResult, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, claims)
}

// MockResetService implements PasswordResetServiceInterface for testing
type MockResetService struct {
	RequestResetFunc func(ctx context.Context, phoneNumber string, meta services.AttemptMeta) error
	ConfirmResetFunc func(ctx context.Context, phoneNumber, code, newPassword string, meta services.AttemptMeta) error
}

func (m *MockResetService) RequestReset(ctx context.Context, phoneNumber string, meta services.AttemptMeta) error {
	if m.RequestResetFunc == nil {
		return nil
	}
	return m.RequestResetFunc(ctx, phoneNumber, meta)
}

func (m *MockResetService) ConfirmReset(ctx context.Context, phoneNumber, code, newPassword string, meta services.AttemptMeta) error {
	if m.ConfirmResetFunc == nil {
		return nil
	}
	return m.ConfirmResetFunc(ctx, phoneNumber, code, newPassword, meta)
}

// MockSecurityService implements SecurityServiceInterface for testing
type MockSecurityService struct {
	GetBlockStatusFunc  func(ctx context.Context, phoneNumber string) (*models.BlockInfo, error)
	ManuallyUnblockFunc func(ctx context.Context, phoneNumber, operatorID, reason string) (int64, error)
	DeactivateBlockFunc func(ctx context.Context, blockID, operatorID, reason string) error
	GetBlockFunc        func(ctx context.Context, blockID string) (*models.Block, error)
	ListBlocksFunc      func(ctx context.Context, filter models.BlockFilter) ([]models.Block, error)
	ListAttemptsFunc    func(ctx context.Context, filter models.AttemptFilter) ([]models.AttemptRecord, error)
}

func (m *MockSecurityService) GetBlockStatus(ctx context.Context, phoneNumber string) (*models.BlockInfo, error) {
	if m.GetBlockStatusFunc == nil {
		return nil, nil
	}
	return m.GetBlockStatusFunc(ctx, phoneNumber)
}

func (m *MockSecurityService) ManuallyUnblock(ctx context.Context, phoneNumber, operatorID, reason string) (int64, error) {
	if m.ManuallyUnblockFunc == nil {
		return 0, nil
	}
	return m.ManuallyUnblockFunc(ctx, phoneNumber, operatorID, reason)
}

func (m *MockSecurityService) DeactivateBlock(ctx context.Context, blockID, operatorID, reason string) error {
	if m.DeactivateBlockFunc == nil {
		return models.ErrNotFound
	}
	return m.DeactivateBlockFunc(ctx, blockID, operatorID, reason)
}

func (m *MockSecurityService) GetBlock(ctx context.Context, blockID string) (*models.Block, error) {
	if m.GetBlockFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetBlockFunc(ctx, blockID)
}

func (m *MockSecurityService) ListBlocks(ctx context.Context, filter models.BlockFilter) ([]models.Block, error) {
	if m.ListBlocksFunc == nil {
		return nil, nil
	}
	return m.ListBlocksFunc(ctx, filter)
}

func (m *MockSecurityService) ListAttempts(ctx context.Context, filter models.AttemptFilter) ([]models.AttemptRecord, error) {
	if m.ListAttemptsFunc == nil {
		return nil, nil
	}
	return m.ListAttemptsFunc(ctx, filter)
}

// MockDeviceService implements DeviceServiceInterface for testing
type MockDeviceService struct {
	ListSessionsFunc func(ctx context.Context, userID string) ([]models.DeviceSession, error)
	RevokeFunc       func(ctx context.Context, userID, sessionID string) error
	RevokeAllFunc    func(ctx context.Context, userID string) (int64, error)
	SetDeviceCapFunc func(ctx context.Context, userID string, max int) error
}

func (m *MockDeviceService) ListSessions(ctx context.Context, userID string) ([]models.DeviceSession, error) {
	if m.ListSessionsFunc == nil {
		return nil, nil
	}
	return m.ListSessionsFunc(ctx, userID)
}

func (m *MockDeviceService) Revoke(ctx context.Context, userID, sessionID string) error {
	if m.RevokeFunc == nil {
		return models.ErrNotFound
	}
	return m.RevokeFunc(ctx, userID, sessionID)
}

func (m *MockDeviceService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	if m.RevokeAllFunc == nil {
		return 0, nil
	}
	return m.RevokeAllFunc(ctx, userID)
}

func (m *MockDeviceService) SetDeviceCap(ctx context.Context, userID string, max int) error {
	if m.SetDeviceCapFunc == nil {
		return nil
	}
	return m.SetDeviceCapFunc(ctx, userID, max)
}
