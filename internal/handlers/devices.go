package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	pkghttp "github.com/Ahmed3117/silverbook-authguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// DeviceServiceInterface defines the interface for device session management
type DeviceServiceInterface interface {
	ListSessions(ctx context.Context, userID string) ([]models.DeviceSession, error)
	Revoke(ctx context.Context, userID, sessionID string) error
	RevokeAll(ctx context.Context, userID string) (int64, error)
	SetDeviceCap(ctx context.Context, userID string, max int) error
}

// DeviceHandler handles device session endpoints for users and operators
type DeviceHandler struct {
	service DeviceServiceInterface
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(service DeviceServiceInterface) *DeviceHandler {
	return &DeviceHandler{service: service}
}

// SetDeviceCapRequest represents the request body for changing a user's cap
type SetDeviceCapRequest struct {
	MaxDevices int `json:"max_devices" validate:"required,gte=1,lte=20"`
}

// DeviceSessionView is the session representation returned to clients
type DeviceSessionView struct {
	ID         string  `json:"id"`
	DeviceID   *string `json:"device_id,omitempty"`
	DeviceName string  `json:"device_name,omitempty"`
	IPAddress  string  `json:"ip_address"`
	LoggedInAt string  `json:"logged_in_at"`
	LastUsedAt string  `json:"last_used_at"`
	IsActive   bool    `json:"is_active"`
}

// MyDevices lists the calling user's device sessions
func (h *DeviceHandler) MyDevices(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	h.listSessions(w, r, claims.UserID)
}

// LogoutDevice revokes one of the calling user's sessions
func (h *DeviceHandler) LogoutDevice(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	h.revokeSession(w, r, claims.UserID, chi.URLParam(r, "id"))
}

// ListUserDevices lists a user's device sessions for operators
func (h *DeviceHandler) ListUserDevices(w http.ResponseWriter, r *http.Request) {
	h.listSessions(w, r, chi.URLParam(r, "userID"))
}

// RevokeUserDevice revokes one of a user's sessions as an operator action
func (h *DeviceHandler) RevokeUserDevice(w http.ResponseWriter, r *http.Request) {
	h.revokeSession(w, r, chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
}

// RevokeAllUserDevices revokes every session a user holds
func (h *DeviceHandler) RevokeAllUserDevices(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.RevokeAll(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to revoke sessions")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int64{"revoked_count": count})
}

// SetDeviceCap changes a user's concurrent device limit
func (h *DeviceHandler) SetDeviceCap(w http.ResponseWriter, r *http.Request) {
	var req SetDeviceCapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.SetDeviceCap(r.Context(), chi.URLParam(r, "userID"), req.MaxDevices)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid device cap")
		default:
			pkghttp.WriteInternalError(w, "Failed to update device cap")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"max_devices": req.MaxDevices})
}

func (h *DeviceHandler) listSessions(w http.ResponseWriter, r *http.Request, userID string) {
	sessions, err := h.service.ListSessions(r.Context(), userID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list devices")
		return
	}

	views := make([]DeviceSessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, DeviceSessionView{
			ID:         s.ID,
			DeviceID:   s.DeviceID,
			DeviceName: s.DeviceName,
			IPAddress:  s.IPAddress,
			LoggedInAt: s.LoggedInAt.UTC().Format(time.RFC3339),
			LastUsedAt: s.LastUsedAt.UTC().Format(time.RFC3339),
			IsActive:   s.IsActive,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"devices": views})
}

func (h *DeviceHandler) revokeSession(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	if err := h.service.Revoke(r.Context(), userID, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No active session with this id")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to revoke session")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "session revoked"})
}
