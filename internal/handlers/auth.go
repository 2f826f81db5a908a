package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/Ahmed3117/silverbook-authguard/internal/services"
	pkghttp "github.com/Ahmed3117/silverbook-authguard/pkg/http"
)

// AuthServiceInterface defines the interface for the authentication gateway
type AuthServiceInterface interface {
	Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.LoginResult, error)
	Logout(ctx context.Context, claims *models.TokenClaims) error
}

// PasswordResetServiceInterface defines the interface for password reset flows
type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, phoneNumber string, meta services.AttemptMeta) error
	ConfirmReset(ctx context.Context, phoneNumber, code, newPassword string, meta services.AttemptMeta) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	resets   PasswordResetServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, resets PasswordResetServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		resets:   resets,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Password    string `json:"password" validate:"required"`
	DeviceID    string `json:"device_id,omitempty"`
	DeviceName  string `json:"device_name,omitempty" validate:"max=120"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ResetRequestRequest represents the request body for requesting a reset code
type ResetRequestRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
}

// ResetConfirmRequest represents the request body for confirming a reset code
type ResetConfirmRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// Response DTOs

// SessionResponse is the device session view returned to clients
type SessionResponse struct {
	ID         string `json:"id"`
	DeviceName string `json:"device_name,omitempty"`
	LoggedInAt string `json:"logged_in_at"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	UserID       string           `json:"user_id"`
	UserType     string           `json:"user_type"`
	Session      *SessionResponse `json:"session,omitempty"`
}

// Login handles phone number + password login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	input := services.LoginInput{
		PhoneNumber: normalizePhone(req.PhoneNumber),
		Password:    req.Password,
		Device:      h.deviceMeta(r, req.DeviceID, req.DeviceName),
	}

	result, err := h.service.Login(r.Context(), input)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, loginResponse(result))
}

// Refresh exchanges a refresh token for a new token pair
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionInvalid):
			pkghttp.WriteUnauthorized(w, models.ErrSessionInvalid.Error())
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
		default:
			pkghttp.WriteInternalError(w, "Failed to refresh token")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, loginResponse(result))
}

// Logout releases the device session behind the presented credential
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		pkghttp.WriteInternalError(w, "Failed to logout")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// RequestPasswordReset issues a reset code. The response is identical whether
// or not the phone number exists.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.resets.RequestReset(r.Context(), normalizePhone(req.PhoneNumber), h.attemptMeta(r))
	if err != nil {
		if writeIfBlocked(w, err) {
			return
		}
		pkghttp.WriteInternalError(w, "Failed to process reset request")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "If this phone number is registered, a reset code has been sent",
	})
}

// ConfirmPasswordReset verifies the delivered code and sets the new password
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.resets.ConfirmReset(r.Context(), normalizePhone(req.PhoneNumber), req.Code, req.NewPassword, h.attemptMeta(r))
	if err != nil {
		switch {
		case writeIfBlocked(w, err):
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "New password does not meet requirements")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid or expired reset code")
		default:
			pkghttp.WriteInternalError(w, "Failed to reset password")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	if writeIfBlocked(w, err) {
		return
	}

	var credErr *services.InvalidCredentialsError
	if errors.As(err, &credErr) {
		pkghttp.WriteErrorWithDetails(w, http.StatusUnauthorized, "unauthorized", credErr.Error(),
			map[string]int{"remaining_attempts": credErr.Remaining})
		return
	}

	pkghttp.WriteInternalError(w, "Authentication temporarily unavailable")
}

// writeIfBlocked renders the 429 block payload when err carries a block.
func writeIfBlocked(w http.ResponseWriter, err error) bool {
	var blockedErr *services.BlockedError
	if !errors.As(err, &blockedErr) {
		return false
	}
	info := blockedErr.Info
	pkghttp.WriteBlocked(w, info.MessageEn, info.RemainingSeconds, info)
	return true
}

func (h *AuthHandler) deviceMeta(r *http.Request, deviceID, deviceName string) services.DeviceMeta {
	meta := services.DeviceMeta{
		DeviceName: deviceName,
		IPAddress:  pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:  r.Header.Get("User-Agent"),
	}
	if deviceID != "" {
		meta.DeviceID = &deviceID
	}
	return meta
}

func (h *AuthHandler) attemptMeta(r *http.Request) services.AttemptMeta {
	return services.AttemptMeta{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

func normalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

func loginResponse(result *services.LoginResult) LoginResponse {
	resp := LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		UserID:       result.User.ID,
		UserType:     result.User.UserType,
	}
	if result.Session != nil {
		resp.Session = &SessionResponse{
			ID:         result.Session.ID,
			DeviceName: result.Session.DeviceName,
			LoggedInAt: result.Session.LoggedInAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}
