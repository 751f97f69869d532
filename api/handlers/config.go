package handlers

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// ⚙️ 配置管理 Handler
// =============================================================================

// ConfigHandler 配置查看与运行时阈值调整
type ConfigHandler struct {
	cfg       *config.Config
	threshold *config.Threshold
	// 配置文件路径，空表示不落盘
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewConfigHandler 创建配置处理器
func NewConfigHandler(cfg *config.Config, threshold *config.Threshold, path string, logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{
		cfg:       cfg,
		threshold: threshold,
		path:      path,
		logger:    logger.With(zap.String("component", "config_handler")),
	}
}

// HandleGet 处理 GET /api/v1/config，敏感字段已脱敏
func (h *ConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	h.mu.Lock()
	sanitized := h.cfg.Sanitized()
	h.mu.Unlock()

	WriteSuccess(w, sanitized)
}

// ThresholdRequest 阈值调整请求
type ThresholdRequest struct {
	Threshold int `json:"threshold"`
}

// ThresholdResponse 阈值响应
type ThresholdResponse struct {
	Threshold int  `json:"threshold"`
	Persisted bool `json:"persisted"`
}

// HandleThreshold 处理 GET/PUT /api/v1/config/threshold。
// PUT 立即生效（下一个完成轮次即按新值判定），配置了文件路径时同步落盘。
func (h *ConfigHandler) HandleThreshold(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, ThresholdResponse{Threshold: h.threshold.Get()})

	case http.MethodPut:
		var req ThresholdRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		if req.Threshold < 1 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "threshold must be >= 1", nil)
			return
		}

		h.threshold.Set(req.Threshold)

		persisted := false
		h.mu.Lock()
		h.cfg.Buffer.FlushThreshold = req.Threshold
		if h.path != "" {
			if err := h.cfg.Save(h.path); err != nil {
				h.logger.Error("failed to persist config", zap.Error(err))
			} else {
				persisted = true
			}
		}
		h.mu.Unlock()

		h.logger.Info("flush threshold updated",
			zap.Int("threshold", req.Threshold),
			zap.Bool("persisted", persisted))
		WriteSuccess(w, ThresholdResponse{Threshold: h.threshold.Get(), Persisted: persisted})

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}
