package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ahmed3117/silverbook-authguard/internal/auth"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSessionValidator struct {
	err   error
	calls int
}

func (m *mockSessionValidator) ValidateSession(ctx context.Context, userID, sessionToken string) error {
	m.calls++
	return m.err
}

func newMiddlewareFixture(t *testing.T) (*auth.TokenManager, http.Handler) {
	t.Helper()
	tm := auth.NewTokenManager("test-secret-key-for-testing", 15*time.Minute, 7*24*time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetUserFromContext(r)
		require.NotNil(t, claims)
		w.WriteHeader(http.StatusOK)
	})
	return tm, next
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tm, next := newMiddlewareFixture(t)
	tokenString, err := tm.GenerateAccessToken(testUser(), "session-token-abc")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	auth.AuthMiddleware(tm)(next).ServeHTTP(w, bearerRequest(tokenString))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	tm, next := newMiddlewareFixture(t)

	w := httptest.NewRecorder()
	auth.AuthMiddleware(tm)(next).ServeHTTP(w, bearerRequest(""))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	tm, next := newMiddlewareFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	auth.AuthMiddleware(tm)(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsRefreshToken(t *testing.T) {
	tm, next := newMiddlewareFixture(t)
	tokenString, err := tm.GenerateRefreshToken(testUser(), "session-token-abc")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	auth.AuthMiddleware(tm)(next).ServeHTTP(w, bearerRequest(tokenString))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "refresh tokens")
}

func TestSessionCheck_ActiveSessionPasses(t *testing.T) {
	tm, next := newMiddlewareFixture(t)
	tokenString, err := tm.GenerateAccessToken(testUser(), "session-token-abc")
	require.NoError(t, err)

	validator := &mockSessionValidator{}
	mw := auth.AuthMiddlewareWithSessions(tm, validator, auth.SessionConfig{})

	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, bearerRequest(tokenString))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, validator.calls)
}

func TestSessionCheck_RevokedSessionRejected(t *testing.T) {
	tm, next := newMiddlewareFixture(t)
	tokenString, err := tm.GenerateAccessToken(testUser(), "session-token-abc")
	require.NoError(t, err)

	validator := &mockSessionValidator{err: models.ErrSessionInvalid}
	mw := auth.AuthMiddlewareWithSessions(tm, validator, auth.SessionConfig{})

	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, bearerRequest(tokenString))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrSessionInvalid.Error())
}

func TestSessionCheck_LookupFailureDeniesAccess(t *testing.T) {
	tm, next := newMiddlewareFixture(t)
	tokenString, err := tm.GenerateAccessToken(testUser(), "session-token-abc")
	require.NoError(t, err)

	validator := &mockSessionValidator{err: errors.New("connection refused")}
	mw := auth.AuthMiddlewareWithSessions(tm, validator, auth.SessionConfig{})

	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, bearerRequest(tokenString))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionCheck_LegacyTokenAllowedDuringMigration(t *testing.T) {
	tm, next := newMiddlewareFixture(t)
	tokenString, err := tm.GenerateAccessToken(testUser(), "")
	require.NoError(t, err)

	validator := &mockSessionValidator{}
	mw := auth.AuthMiddlewareWithSessions(tm, validator, auth.SessionConfig{AllowLegacyTokens: true})

	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, bearerRequest(tokenString))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, validator.calls, "legacy tokens skip the session lookup")
}

func TestSessionCheck_LegacyTokenRejectedAfterMigration(t *testing.T) {
	tm, next := newMiddlewareFixture(t)
	tokenString, err := tm.GenerateAccessToken(testUser(), "")
	require.NoError(t, err)

	mw := auth.AuthMiddlewareWithSessions(tm, &mockSessionValidator{}, auth.SessionConfig{AllowLegacyTokens: false})

	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, bearerRequest(tokenString))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionCheck_UncappedUsersSkipSessionLookup(t *testing.T) {
	tm, next := newMiddlewareFixture(t)
	teacher := &models.User{ID: "user-2", PhoneNumber: "+201009999999", UserType: models.UserTypeTeacher}
	tokenString, err := tm.GenerateAccessToken(teacher, "")
	require.NoError(t, err)

	validator := &mockSessionValidator{err: models.ErrSessionInvalid}
	mw := auth.AuthMiddlewareWithSessions(tm, validator, auth.SessionConfig{})

	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, bearerRequest(tokenString))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, validator.calls)
}

type mockUserRepo struct {
	user *models.User
	err  error
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func TestRequireUserType_AllowsMatchingRole(t *testing.T) {
	repo := &mockUserRepo{user: &models.User{ID: "user-1", UserType: models.UserTypeAdmin}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	claims := &models.TokenClaims{Type: "access", UserID: "user-1", UserType: models.UserTypeAdmin}
	req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))

	w := httptest.NewRecorder()
	auth.RequireUserType(repo, models.UserTypeAdmin)(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireUserType_CurrentRoleWins(t *testing.T) {
	// Token says admin, database says student: the demotion applies now.
	repo := &mockUserRepo{user: &models.User{ID: "user-1", UserType: models.UserTypeStudent}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	claims := &models.TokenClaims{Type: "access", UserID: "user-1", UserType: models.UserTypeAdmin}
	req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))

	w := httptest.NewRecorder()
	auth.RequireUserType(repo, models.UserTypeAdmin)(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireUserType_NoClaims(t *testing.T) {
	repo := &mockUserRepo{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	auth.RequireUserType(repo, models.UserTypeAdmin)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
