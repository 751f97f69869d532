package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
)

func testAdminConfig() config.AdminConfig {
	return config.AdminConfig{
		Enabled:   true,
		Username:  "admin",
		Password:  "secret",
		JWTSecret: "test-jwt-secret",
		TokenTTL:  time.Hour,
	}
}

func doLogin(t *testing.T, h *AuthHandler, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	h.HandleLogin(w, r)
	return w
}

// =============================================================================
// 🧪 AuthHandler 测试
// =============================================================================

func TestAuthHandler_LoginSuccess(t *testing.T) {
	h := NewAuthHandler(testAdminConfig(), zap.NewNop())

	w := doLogin(t, h, "admin", "secret")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	token, _ := data["token"].(string)
	assert.NotEmpty(t, token)
}

func TestAuthHandler_LoginRejected(t *testing.T) {
	h := NewAuthHandler(testAdminConfig(), zap.NewNop())

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "admin", "nope"},
		{"wrong username", "root", "secret"},
		{"empty credentials", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doLogin(t, h, tt.username, tt.password)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthHandler_LoginMethodNotAllowed(t *testing.T) {
	h := NewAuthHandler(testAdminConfig(), zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)
	h.HandleLogin(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAuthHandler_Middleware(t *testing.T) {
	h := NewAuthHandler(testAdminConfig(), zap.NewNop())

	protected := h.Middleware([]string{"/health"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("skip path passes without token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		protected.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
		protected.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")
		protected.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token passes via header", func(t *testing.T) {
		token := loginToken(t, h)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		protected.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("valid token passes via query param", func(t *testing.T) {
		token := loginToken(t, h)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/events?token="+token, nil)
		protected.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("token signed with other secret rejected", func(t *testing.T) {
		other := NewAuthHandler(config.AdminConfig{
			Username:  "admin",
			Password:  "secret",
			JWTSecret: "a-different-secret",
			TokenTTL:  time.Hour,
		}, zap.NewNop())
		token := loginToken(t, other)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		protected.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func loginToken(t *testing.T, h *AuthHandler) string {
	t.Helper()
	w := doLogin(t, h, "admin", "secret")
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)
	return token
}
