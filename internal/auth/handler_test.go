package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-service/internal/socials"
)

func newTestHandler(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.service, socials.NewRegistry()), f
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandlerRegister(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"login":"alice@example.com","password":"secret-123"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Same login again conflicts.
	rec = doJSON(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"login":"alice@example.com","password":"secret-123"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrDuplicateUser.Error(), decodeBody(t, rec)["error"])
}

func TestHandlerRegisterValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"not an email", `{"login":"not-an-email","password":"secret-123"}`},
		{"short password", `{"login":"alice@example.com","password":"short"}`},
		{"unknown field", `{"login":"alice@example.com","password":"secret-123","admin":true}`},
		{"broken json", `{"login":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h.Register, http.MethodPost, "/v1/auth/register", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlerLogin(t *testing.T) {
	h, f := newTestHandler(t)
	f.register(t, "alice@example.com", "secret-123")

	rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"login":"alice@example.com","password":"secret-123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])

	rec = doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"login":"alice@example.com","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrInvalidCredentials.Error(), decodeBody(t, rec)["error"])
}

func TestHandlerRefresh(t *testing.T) {
	ctx := context.Background()
	h, f := newTestHandler(t)
	f.register(t, "alice@example.com", "secret-123")

	pair, err := f.service.Login(ctx, "alice@example.com", "secret-123", "test")
	require.NoError(t, err)

	rec := doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+pair.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The original token was consumed by rotation.
	rec = doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+pair.RefreshToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrSessionExpired.Error(), decodeBody(t, rec)["error"])

	rec = doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerLogoutAndValidate(t *testing.T) {
	ctx := context.Background()
	h, f := newTestHandler(t)
	f.register(t, "alice@example.com", "secret-123")

	pair, err := f.service.Login(ctx, "alice@example.com", "secret-123", "test")
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + pair.AccessToken}

	rec := doJSON(t, h.Validate, http.MethodGet, "/v1/auth/validate", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["valid"])

	rec = doJSON(t, h.Logout, http.MethodPost, "/v1/auth/logout", "", auth)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// A revoked token is a 401, not a valid:false.
	rec = doJSON(t, h.Validate, http.MethodGet, "/v1/auth/validate", "", auth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrTokenRevoked.Error(), decodeBody(t, rec)["error"])
}

func TestHandlerBearerTokenRequired(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.Logout, http.MethodPost, "/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h.Logout, http.MethodPost, "/v1/auth/logout", "",
		map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerLogoutAll(t *testing.T) {
	ctx := context.Background()
	h, f := newTestHandler(t)
	f.register(t, "alice@example.com", "secret-123")

	first, err := f.service.Login(ctx, "alice@example.com", "secret-123", "laptop")
	require.NoError(t, err)
	_, err = f.service.Login(ctx, "alice@example.com", "secret-123", "phone")
	require.NoError(t, err)

	rec := doJSON(t, h.LogoutAll, http.MethodPost, "/v1/auth/logout_all", "",
		map[string]string{"Authorization": "Bearer " + first.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["sessions_terminated"])
}

func TestHandlerHistory(t *testing.T) {
	ctx := context.Background()
	h, f := newTestHandler(t)
	f.register(t, "alice@example.com", "secret-123")

	_, err := f.service.Login(ctx, "alice@example.com", "secret-123", "laptop")
	require.NoError(t, err)
	pair, err := f.service.Login(ctx, "alice@example.com", "secret-123", "phone")
	require.NoError(t, err)

	rec := doJSON(t, h.History, http.MethodGet, "/v1/auth/history", "",
		map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)

	history, ok := decodeBody(t, rec)["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 2)
	newest, ok := history[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "phone", newest["user_agent"])
}

func TestHandlerPasswordChange(t *testing.T) {
	h, f := newTestHandler(t)
	f.register(t, "alice@example.com", "secret-123")

	rec := doJSON(t, h.PasswordChange, http.MethodPatch, "/v1/auth/password",
		`{"login":"alice@example.com","old_password":"secret-123","new_password":"secret-456"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h.PasswordChange, http.MethodPatch, "/v1/auth/password",
		`{"login":"alice@example.com","old_password":"secret-123","new_password":"secret-789"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h.PasswordChange, http.MethodPatch, "/v1/auth/password",
		`{"login":"alice@example.com","old_password":"secret-456","new_password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAuthorizeProviderUnknown(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/authorize/unknown", nil)
	req.SetPathValue("provider", "unknown")
	rec := httptest.NewRecorder()
	h.AuthorizeProvider(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
