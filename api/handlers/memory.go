package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/gateway"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🧠 记忆查询 Handler
// =============================================================================

// MemorySearcher 远端记忆检索接口
type MemorySearcher interface {
	SearchMemory(ctx context.Context, query, userID, conversationID string) (*gateway.SearchData, error)
}

// BufferStatus 单个会话的缓冲状态
type BufferStatus interface {
	BufferedRounds(ctx context.Context, conversationID string) (int64, error)
}

// ThresholdView 当前阈值的读取接口
type ThresholdView interface {
	Get() int
}

// MemoryHandler 记忆查询与缓冲状态处理器
type MemoryHandler struct {
	searcher  MemorySearcher
	buffer    BufferStatus
	threshold ThresholdView
	logger    *zap.Logger
}

// NewMemoryHandler 创建记忆查询处理器
func NewMemoryHandler(searcher MemorySearcher, buffer BufferStatus, threshold ThresholdView, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{
		searcher:  searcher,
		buffer:    buffer,
		threshold: threshold,
		logger:    logger.With(zap.String("component", "memory_handler")),
	}
}

// SearchRequest 记忆检索请求
type SearchRequest struct {
	Query          string `json:"query"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	// Format 为 "markdown" 时返回报告文本，否则返回结构化数据
	Format string `json:"format,omitempty"`
	// UserProfile 为真时 Markdown 报告使用用户画像标题
	UserProfile bool `json:"user_profile,omitempty"`
}

// SearchMarkdownResponse Markdown 报告响应
type SearchMarkdownResponse struct {
	Report string `json:"report"`
}

// HandleSearch 处理 POST /api/v1/memory/search
func (h *MemoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	var req SearchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Query == "" || req.UserID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "query and user_id are required", nil)
		return
	}

	data, err := h.searcher.SearchMemory(r.Context(), req.Query, req.UserID, req.ConversationID)
	if err != nil {
		if apiErr, ok := err.(*types.Error); ok {
			WriteError(w, apiErr, h.logger)
			return
		}
		WriteError(w, types.NewError(types.ErrInternalError, "memory search failed").WithCause(err), h.logger)
		return
	}

	if req.Format == "markdown" {
		WriteSuccess(w, SearchMarkdownResponse{Report: memory.FormatReport(data, req.UserProfile)})
		return
	}
	WriteSuccess(w, data)
}

// BufferStatusResponse 缓冲状态响应
type BufferStatusResponse struct {
	ConversationID string `json:"conversation_id"`
	BufferedRounds int64  `json:"buffered_rounds"`
	FlushThreshold int    `json:"flush_threshold"`
}

// HandleBufferStatus 处理 GET /api/v1/buffer/status?conversation_id=...
func (h *MemoryHandler) HandleBufferStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "conversation_id is required", nil)
		return
	}

	rounds, err := h.buffer.BufferedRounds(r.Context(), conversationID)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStoreIO, "failed to read buffer state").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, BufferStatusResponse{
		ConversationID: conversationID,
		BufferedRounds: rounds,
		FlushThreshold: h.threshold.Get(),
	})
}
