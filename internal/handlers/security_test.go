package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/handlers"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func testOperatorID(r *http.Request) string {
	return "admin-1"
}

// securityRouter mounts the handler the way routes.go does so chi URL
// params resolve in tests.
func securityRouter(h *handlers.SecurityHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/security/block-status", h.BlockStatus)
	r.Post("/security/unblock", h.Unblock)
	r.Post("/security/blocks/{id}/deactivate", h.DeactivateBlock)
	r.Get("/security/blocks/{id}", h.GetBlock)
	r.Get("/security/blocks", h.ListBlocks)
	r.Get("/security/attempts", h.ListAttempts)
	return r
}

func TestBlockStatus_NotBlocked(t *testing.T) {
	mockService := &handlers.MockSecurityService{
		GetBlockStatusFunc: func(ctx context.Context, phoneNumber string) (*models.BlockInfo, error) {
			assert.Equal(t, "+201001234567", phoneNumber)
			return nil, nil
		},
	}
	router := securityRouter(handlers.NewSecurityHandler(mockService, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodGet, "/security/block-status?phone_number=%2B201001234567", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, false, resp["blocked"])
}

func TestBlockStatus_Blocked(t *testing.T) {
	mockService := &handlers.MockSecurityService{
		GetBlockStatusFunc: func(ctx context.Context, phoneNumber string) (*models.BlockInfo, error) {
			return &models.BlockInfo{
				BlockID:          "block-1",
				BlockType:        models.BlockTypeLogin,
				BlockedUntil:     time.Now().Add(time.Hour),
				RemainingSeconds: 3600,
				BlockLevel:       2,
			}, nil
		},
	}
	router := securityRouter(handlers.NewSecurityHandler(mockService, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodGet, "/security/block-status?phone_number=%2B201001234567", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, true, resp["blocked"])
	assert.Contains(t, w.Body.String(), `"block_id":"block-1"`)
}

func TestBlockStatus_RequiresPhone(t *testing.T) {
	router := securityRouter(handlers.NewSecurityHandler(&handlers.MockSecurityService{}, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodGet, "/security/block-status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestUnblock_ReturnsCount(t *testing.T) {
	var gotOperator, gotReason string
	mockService := &handlers.MockSecurityService{
		ManuallyUnblockFunc: func(ctx context.Context, phoneNumber, operatorID, reason string) (int64, error) {
			gotOperator = operatorID
			gotReason = reason
			return 2, nil
		},
	}
	router := securityRouter(handlers.NewSecurityHandler(mockService, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodPost, "/security/unblock", map[string]string{
		"phone_number": "+201001234567",
		"reason":       "verified with parent over the phone",
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]int64
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, int64(2), resp["unblocked_count"])
	assert.Equal(t, "admin-1", gotOperator)
	assert.Equal(t, "verified with parent over the phone", gotReason)
}

func TestUnblock_RequiresReason(t *testing.T) {
	router := securityRouter(handlers.NewSecurityHandler(&handlers.MockSecurityService{}, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodPost, "/security/unblock", map[string]string{
		"phone_number": "+201001234567",
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestDeactivateBlock_Success(t *testing.T) {
	var gotBlockID string
	mockService := &handlers.MockSecurityService{
		DeactivateBlockFunc: func(ctx context.Context, blockID, operatorID, reason string) error {
			gotBlockID = blockID
			return nil
		},
	}
	router := securityRouter(handlers.NewSecurityHandler(mockService, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodPost, "/security/blocks/block-9/deactivate", map[string]string{
		"reason": "false positive",
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, "block-9", gotBlockID)
}

func TestDeactivateBlock_NotFound(t *testing.T) {
	mockService := &handlers.MockSecurityService{
		DeactivateBlockFunc: func(ctx context.Context, blockID, operatorID, reason string) error {
			return models.ErrNotFound
		},
	}
	router := securityRouter(handlers.NewSecurityHandler(mockService, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodPost, "/security/blocks/missing/deactivate", map[string]string{
		"reason": "false positive",
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestGetBlock_IncludesEvidence(t *testing.T) {
	deviceID := "device-abc"
	mockService := &handlers.MockSecurityService{
		GetBlockFunc: func(ctx context.Context, blockID string) (*models.Block, error) {
			return &models.Block{
				ID:           blockID,
				PhoneNumber:  "+201001234567",
				BlockType:    models.BlockTypeLogin,
				BlockedAt:    time.Now().Add(-time.Minute),
				BlockedUntil: time.Now().Add(14 * time.Minute),
				BlockLevel:   1,
				IsActive:     true,
				FailedAttempts: []models.AttemptEvidence{
					{Timestamp: time.Now(), IPAddress: "10.0.0.1", DeviceID: &deviceID},
				},
				IPAddresses: []string{"10.0.0.1"},
				UserAgents:  []string{"okhttp/4.9"},
				DeviceIDs:   []string{"device-abc"},
			}, nil
		},
	}
	router := securityRouter(handlers.NewSecurityHandler(mockService, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodGet, "/security/blocks/block-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "block-1", resp["id"])
	assert.Contains(t, w.Body.String(), "10.0.0.1")
	assert.Contains(t, w.Body.String(), "okhttp/4.9")
}

func TestListBlocks_ParsesFilters(t *testing.T) {
	var gotFilter models.BlockFilter
	mockService := &handlers.MockSecurityService{
		ListBlocksFunc: func(ctx context.Context, filter models.BlockFilter) ([]models.Block, error) {
			gotFilter = filter
			return []models.Block{{ID: "block-1"}}, nil
		},
	}
	router := securityRouter(handlers.NewSecurityHandler(mockService, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodGet, "/security/blocks?phone_number=%2B2010&block_type=login&is_active=true&limit=10&offset=20", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, "+2010", gotFilter.PhoneNumber)
	assert.Equal(t, models.BlockTypeLogin, gotFilter.BlockType)
	if assert.NotNil(t, gotFilter.IsActive) {
		assert.True(t, *gotFilter.IsActive)
	}
	assert.Equal(t, 10, gotFilter.Limit)
	assert.Equal(t, 20, gotFilter.Offset)
}

func TestListBlocks_RejectsBadActiveFlag(t *testing.T) {
	router := securityRouter(handlers.NewSecurityHandler(&handlers.MockSecurityService{}, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodGet, "/security/blocks?is_active=maybe", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestListAttempts_ParsesSince(t *testing.T) {
	var gotFilter models.AttemptFilter
	mockService := &handlers.MockSecurityService{
		ListAttemptsFunc: func(ctx context.Context, filter models.AttemptFilter) ([]models.AttemptRecord, error) {
			gotFilter = filter
			return []models.AttemptRecord{{ID: "attempt-1", PhoneNumber: "+2010", Result: models.AttemptResultFailed}}, nil
		},
	}
	router := securityRouter(handlers.NewSecurityHandler(mockService, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodGet, "/security/attempts?result=failed&since=2026-08-01T00:00:00Z", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, models.AttemptResultFailed, gotFilter.Result)
	if assert.NotNil(t, gotFilter.Since) {
		assert.Equal(t, 2026, gotFilter.Since.Year())
	}
}

func TestListAttempts_RejectsBadSince(t *testing.T) {
	router := securityRouter(handlers.NewSecurityHandler(&handlers.MockSecurityService{}, testOperatorID))

	req := handlers.NewTestRequest(t, http.MethodGet, "/security/attempts?since=yesterday", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
