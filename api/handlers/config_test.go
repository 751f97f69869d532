package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
)

// =============================================================================
// 🧪 ConfigHandler 测试
// =============================================================================

func TestConfigHandler_GetSanitized(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.APIKey = "super-secret-api-key"
	h := NewConfigHandler(cfg, config.NewThreshold(cfg.Buffer.FlushThreshold), "", zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	h.HandleGet(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "super-secret-api-key")
	// 原始配置不受脱敏影响
	assert.Equal(t, "super-secret-api-key", cfg.Gateway.APIKey)
}

func TestConfigHandler_ThresholdGet(t *testing.T) {
	cfg := config.DefaultConfig()
	th := config.NewThreshold(3)
	h := NewConfigHandler(cfg, th, "", zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/config/threshold", nil)
	h.HandleThreshold(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	raw, _ := json.Marshal(resp.Data)
	var tr ThresholdResponse
	require.NoError(t, json.Unmarshal(raw, &tr))
	assert.Equal(t, 3, tr.Threshold)
}

func putThreshold(t *testing.T, h *ConfigHandler, n int) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(ThresholdRequest{Threshold: n})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/api/v1/config/threshold", bytes.NewReader(body))
	h.HandleThreshold(w, r)
	return w
}

func TestConfigHandler_ThresholdUpdate(t *testing.T) {
	cfg := config.DefaultConfig()
	th := config.NewThreshold(1)
	h := NewConfigHandler(cfg, th, "", zap.NewNop())

	w := putThreshold(t, h, 5)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 5, th.Get())
	assert.Equal(t, 5, cfg.Buffer.FlushThreshold)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	raw, _ := json.Marshal(resp.Data)
	var tr ThresholdResponse
	require.NoError(t, json.Unmarshal(raw, &tr))
	assert.Equal(t, 5, tr.Threshold)
	assert.False(t, tr.Persisted)
}

func TestConfigHandler_ThresholdUpdatePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memflow.yaml")

	cfg := config.DefaultConfig()
	th := config.NewThreshold(1)
	h := NewConfigHandler(cfg, th, path, zap.NewNop())

	w := putThreshold(t, h, 4)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	raw, _ := json.Marshal(resp.Data)
	var tr ThresholdResponse
	require.NoError(t, json.Unmarshal(raw, &tr))
	assert.True(t, tr.Persisted)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "flush_threshold: 4"), "saved config should carry new threshold:\n%s", data)
}

func TestConfigHandler_ThresholdRejectsInvalid(t *testing.T) {
	cfg := config.DefaultConfig()
	th := config.NewThreshold(2)
	h := NewConfigHandler(cfg, th, "", zap.NewNop())

	for _, n := range []int{0, -1} {
		w := putThreshold(t, h, n)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Equal(t, 2, th.Get())
}

func TestConfigHandler_ThresholdMethodNotAllowed(t *testing.T) {
	cfg := config.DefaultConfig()
	h := NewConfigHandler(cfg, config.NewThreshold(1), "", zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/api/v1/config/threshold", nil)
	h.HandleThreshold(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
