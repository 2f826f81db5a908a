package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/handlers"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/Ahmed3117/silverbook-authguard/internal/services"
	"github.com/stretchr/testify/assert"
)

func newAuthHandler(auth *handlers.MockAuthService, resets *handlers.MockResetService) *handlers.AuthHandler {
	if auth == nil {
		auth = &handlers.MockAuthService{}
	}
	if resets == nil {
		resets = &handlers.MockResetService{}
	}
	return handlers.NewAuthHandler(auth, resets, nil)
}

func loginBody() map[string]string {
	return map[string]string{
		"phone_number": "+201001234567",
		"password":     "correct-password",
		"device_id":    "device-abc",
		"device_name":  "Pixel 7",
	}
}

func TestLogin_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
			assert.Equal(t, "+201001234567", input.PhoneNumber)
			assert.Equal(t, "correct-password", input.Password)
			if assert.NotNil(t, input.Device.DeviceID) {
				assert.Equal(t, "device-abc", *input.Device.DeviceID)
			}
			return &services.LoginResult{
				User:         &models.User{ID: "user-1", UserType: models.UserTypeStudent},
				AccessToken:  "access-token",
				RefreshToken: "refresh-token",
				Session: &models.DeviceSession{
					ID:         "session-1",
					DeviceName: "Pixel 7",
					LoggedInAt: time.Now(),
				},
			}, nil
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", loginBody())
	w := httptest.NewRecorder()

	handler.Login(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "access-token", resp.AccessToken)
	assert.Equal(t, "refresh-token", resp.RefreshToken)
	assert.Equal(t, "user-1", resp.UserID)
	if assert.NotNil(t, resp.Session) {
		assert.Equal(t, "session-1", resp.Session.ID)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
			return nil, &services.InvalidCredentialsError{Remaining: 2}
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", loginBody())
	w := httptest.NewRecorder()

	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	assert.Contains(t, w.Body.String(), `"remaining_attempts":2`)
}

func TestLogin_Blocked(t *testing.T) {
	blockedUntil := time.Now().Add(15 * time.Minute)
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
			return nil, &services.BlockedError{Info: &models.BlockInfo{
				BlockID:          "block-1",
				BlockType:        models.BlockTypeLogin,
				BlockedUntil:     blockedUntil,
				RemainingSeconds: 900,
				BlockLevel:       1,
				MessageEn:        "Too many failed attempts. Try again in 15 minutes.",
				MessageAr:        "محاولات فاشلة كثيرة. حاول مرة أخرى بعد 15 دقيقة.",
			}}
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", loginBody())
	w := httptest.NewRecorder()

	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusTooManyRequests, "blocked")
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"block_id":"block-1"`)
	assert.Contains(t, w.Body.String(), "message_ar")
}

func TestLogin_MissingPassword(t *testing.T) {
	handler := newAuthHandler(nil, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"phone_number": "+201001234567",
	})
	w := httptest.NewRecorder()

	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestLogin_ServiceFailureIsOpaque(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
			return nil, assert.AnError
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", loginBody())
	w := httptest.NewRecorder()

	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestRefresh_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*services.LoginResult, error) {
			assert.Equal(t, "old-refresh", refreshToken)
			return &services.LoginResult{
				User:         &models.User{ID: "user-1", UserType: models.UserTypeStudent},
				AccessToken:  "new-access",
				RefreshToken: "new-refresh",
			}, nil
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": "old-refresh",
	})
	w := httptest.NewRecorder()

	handler.Refresh(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "new-access", resp.AccessToken)
}

func TestRefresh_RevokedSession(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*services.LoginResult, error) {
			return nil, models.ErrSessionInvalid
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": "revoked",
	})
	w := httptest.NewRecorder()

	handler.Refresh(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestLogout_Success(t *testing.T) {
	var gotClaims *models.TokenClaims
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, claims *models.TokenClaims) error {
			gotClaims = claims
			return nil
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/logout", nil)
	req = handlers.WithAuthContext(req, "user-1", models.UserTypeStudent, "session-token-1")
	w := httptest.NewRecorder()

	handler.Logout(w, req)

	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
	if assert.NotNil(t, gotClaims) {
		assert.Equal(t, "user-1", gotClaims.UserID)
		assert.Equal(t, "session-token-1", gotClaims.SessionToken)
	}
}

func TestLogout_RequiresAuth(t *testing.T) {
	handler := newAuthHandler(nil, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/logout", nil)
	w := httptest.NewRecorder()

	handler.Logout(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestRequestPasswordReset_AlwaysGeneric(t *testing.T) {
	mockResets := &handlers.MockResetService{
		RequestResetFunc: func(ctx context.Context, phoneNumber string, meta services.AttemptMeta) error {
			// Unknown phone: the service swallows it.
			return nil
		},
	}

	handler := newAuthHandler(nil, mockResets)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/password-reset/request", map[string]string{
		"phone_number": "+209999999999",
	})
	w := httptest.NewRecorder()

	handler.RequestPasswordReset(w, req)

	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Contains(t, w.Body.String(), "If this phone number is registered")
}

func TestRequestPasswordReset_Blocked(t *testing.T) {
	mockResets := &handlers.MockResetService{
		RequestResetFunc: func(ctx context.Context, phoneNumber string, meta services.AttemptMeta) error {
			return &services.BlockedError{Info: &models.BlockInfo{
				BlockID:          "block-2",
				BlockType:        models.BlockTypePasswordReset,
				RemainingSeconds: 3600,
				MessageEn:        "Too many reset requests.",
			}}
		},
	}

	handler := newAuthHandler(nil, mockResets)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/password-reset/request", map[string]string{
		"phone_number": "+201001234567",
	})
	w := httptest.NewRecorder()

	handler.RequestPasswordReset(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusTooManyRequests, "blocked")
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
}

func TestConfirmPasswordReset_Success(t *testing.T) {
	mockResets := &handlers.MockResetService{
		ConfirmResetFunc: func(ctx context.Context, phoneNumber, code, newPassword string, meta services.AttemptMeta) error {
			assert.Equal(t, "+201001234567", phoneNumber)
			assert.Equal(t, "123456", code)
			assert.Equal(t, "new-password-1", newPassword)
			return nil
		},
	}

	handler := newAuthHandler(nil, mockResets)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/password-reset/confirm", map[string]string{
		"phone_number": "+201001234567",
		"code":         "123456",
		"new_password": "new-password-1",
	})
	w := httptest.NewRecorder()

	handler.ConfirmPasswordReset(w, req)

	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
}

func TestConfirmPasswordReset_WrongCode(t *testing.T) {
	mockResets := &handlers.MockResetService{
		ConfirmResetFunc: func(ctx context.Context, phoneNumber, code, newPassword string, meta services.AttemptMeta) error {
			return models.ErrUnauthorized
		},
	}

	handler := newAuthHandler(nil, mockResets)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/password-reset/confirm", map[string]string{
		"phone_number": "+201001234567",
		"code":         "000000",
		"new_password": "new-password-1",
	})
	w := httptest.NewRecorder()

	handler.ConfirmPasswordReset(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestConfirmPasswordReset_CodeMustBeSixDigits(t *testing.T) {
	handler := newAuthHandler(nil, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/password-reset/confirm", map[string]string{
		"phone_number": "+201001234567",
		"code":         "12ab56",
		"new_password": "new-password-1",
	})
	w := httptest.NewRecorder()

	handler.ConfirmPasswordReset(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
