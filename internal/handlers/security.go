package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	pkghttp "github.com/Ahmed3117/silverbook-authguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// SecurityServiceInterface defines the operator surface of the block engine
type SecurityServiceInterface interface {
	GetBlockStatus(ctx context.Context, phoneNumber string) (*models.BlockInfo, error)
	ManuallyUnblock(ctx context.Context, phoneNumber, operatorID, reason string) (int64, error)
	DeactivateBlock(ctx context.Context, blockID, operatorID, reason string) error
	GetBlock(ctx context.Context, blockID string) (*models.Block, error)
	ListBlocks(ctx context.Context, filter models.BlockFilter) ([]models.Block, error)
	ListAttempts(ctx context.Context, filter models.AttemptFilter) ([]models.AttemptRecord, error)
}

// OperatorIDResolver extracts the acting operator from the request context.
type OperatorIDResolver func(r *http.Request) string

// SecurityHandler handles operator endpoints for blocks and the attempt ledger
type SecurityHandler struct {
	service    SecurityServiceInterface
	operatorID OperatorIDResolver
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(service SecurityServiceInterface, operatorID OperatorIDResolver) *SecurityHandler {
	return &SecurityHandler{
		service:    service,
		operatorID: operatorID,
	}
}

// UnblockRequest represents the request body for manually lifting blocks
type UnblockRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Reason      string `json:"reason" validate:"required,min=3,max=500"`
}

// DeactivateBlockRequest represents the request body for lifting one block
type DeactivateBlockRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// BlockStatus reports whether a phone number is currently blocked
func (h *SecurityHandler) BlockStatus(w http.ResponseWriter, r *http.Request) {
	phone := normalizePhone(r.URL.Query().Get("phone_number"))
	if phone == "" {
		pkghttp.WriteBadRequest(w, "phone_number query parameter is required")
		return
	}

	info, err := h.service.GetBlockStatus(r.Context(), phone)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to get block status")
		return
	}

	if info == nil {
		pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"blocked": false})
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"blocked": true, "block": info})
}

// Unblock lifts every active block for a phone number
func (h *SecurityHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	var req UnblockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	count, err := h.service.ManuallyUnblock(r.Context(), normalizePhone(req.PhoneNumber), h.operatorID(r), req.Reason)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to unblock")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int64{"unblocked_count": count})
}

// DeactivateBlock lifts a single block by id
func (h *SecurityHandler) DeactivateBlock(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "id")

	var req DeactivateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.DeactivateBlock(r.Context(), blockID, h.operatorID(r), req.Reason); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No active block with this id")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to deactivate block")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "block deactivated"})
}

// GetBlock returns one block with its evidence
func (h *SecurityHandler) GetBlock(w http.ResponseWriter, r *http.Request) {
	block, err := h.service.GetBlock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Block not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to get block")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, blockView(block))
}

// ListBlocks returns blocks matching the query filters
func (h *SecurityHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	filter := models.BlockFilter{
		PhoneNumber: normalizePhone(r.URL.Query().Get("phone_number")),
		BlockType:   models.BlockType(r.URL.Query().Get("block_type")),
		Limit:       queryInt(r, "limit"),
		Offset:      queryInt(r, "offset"),
	}
	if active := r.URL.Query().Get("is_active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			pkghttp.WriteBadRequest(w, "is_active must be true or false")
			return
		}
		filter.IsActive = &parsed
	}

	blocks, err := h.service.ListBlocks(r.Context(), filter)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list blocks")
		return
	}

	views := make([]map[string]any, 0, len(blocks))
	for i := range blocks {
		views = append(views, blockView(&blocks[i]))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"blocks": views})
}

// ListAttempts returns attempt ledger entries matching the query filters
func (h *SecurityHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	filter := models.AttemptFilter{
		PhoneNumber: normalizePhone(r.URL.Query().Get("phone_number")),
		AttemptType: models.AttemptType(r.URL.Query().Get("attempt_type")),
		Result:      models.AttemptResult(r.URL.Query().Get("result")),
		Limit:       queryInt(r, "limit"),
		Offset:      queryInt(r, "offset"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			pkghttp.WriteBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = &parsed
	}

	attempts, err := h.service.ListAttempts(r.Context(), filter)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list attempts")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"attempts": attemptViews(attempts)})
}

func queryInt(r *http.Request, key string) int {
	val, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return val
}

func blockView(b *models.Block) map[string]any {
	view := map[string]any{
		"id":                 b.ID,
		"phone_number":       b.PhoneNumber,
		"block_type":         b.BlockType,
		"blocked_at":         b.BlockedAt,
		"blocked_until":      b.BlockedUntil,
		"block_level":        b.BlockLevel,
		"consecutive_blocks": b.ConsecutiveBlocks,
		"is_active":          b.IsActive,
		"manually_unblocked": b.ManuallyUnblocked,
		"failed_attempts":    b.FailedAttempts,
		"ip_addresses":       b.IPAddresses,
		"user_agents":        b.UserAgents,
		"device_ids":         b.DeviceIDs,
	}
	if b.UnblockedBy != nil {
		view["unblocked_by"] = *b.UnblockedBy
	}
	if b.UnblockedAt != nil {
		view["unblocked_at"] = *b.UnblockedAt
	}
	if b.UnblockReason != nil {
		view["unblock_reason"] = *b.UnblockReason
	}
	return view
}

func attemptViews(attempts []models.AttemptRecord) []map[string]any {
	views := make([]map[string]any, 0, len(attempts))
	for _, a := range attempts {
		view := map[string]any{
			"id":           a.ID,
			"phone_number": a.PhoneNumber,
			"attempt_type": a.AttemptType,
			"result":       a.Result,
			"attempted_at": a.AttemptedAt,
			"ip_address":   a.IPAddress,
			"user_agent":   a.UserAgent,
		}
		if a.DeviceID != nil {
			view["device_id"] = *a.DeviceID
		}
		if a.FailureReason != nil {
			view["failure_reason"] = *a.FailureReason
		}
		if a.RelatedBlockID != nil {
			view["related_block_id"] = *a.RelatedBlockID
		}
		views = append(views, view)
	}
	return views
}
