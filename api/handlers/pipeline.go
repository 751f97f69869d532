package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 💬 对话回合管道 Handler
// =============================================================================

// MemoryPipeline 是宿主机器人使用的记忆管道入口
type MemoryPipeline interface {
	RetrieveRelevant(ctx context.Context, query, userID, conversationID string) []memory.Memory
	InjectMemories(prompt string, memories []memory.Memory, lang memory.Language, injType memory.InjectionType) string
	SaveRound(ctx context.Context, userMessage, aiResponse, userID, conversationID string)
}

// PipelineHandler 处理回合入账与提示词注入
type PipelineHandler struct {
	pipeline MemoryPipeline
	// 配置中的默认语言与注入位置
	defaultLanguage  string
	defaultInjection string
	logger           *zap.Logger
}

// NewPipelineHandler 创建管道处理器
func NewPipelineHandler(pipeline MemoryPipeline, defaultLanguage, defaultInjection string, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipeline:         pipeline,
		defaultLanguage:  defaultLanguage,
		defaultInjection: defaultInjection,
		logger:           logger.With(zap.String("component", "pipeline_handler")),
	}
}

// RecordRoundRequest 回合入账请求
type RecordRoundRequest struct {
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
	UserID           string `json:"user_id"`
	ConversationID   string `json:"conversation_id"`
}

// RecordRoundResponse 回合入账响应
type RecordRoundResponse struct {
	Recorded bool `json:"recorded"`
}

// HandleRecordRound 处理 POST /api/v1/rounds。
// 入账是尽力而为的：存储故障不会反映为请求失败，只在日志中可见。
func (h *PipelineHandler) HandleRecordRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	var req RecordRoundRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.UserID == "" || req.ConversationID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "user_id and conversation_id are required", nil)
		return
	}

	h.pipeline.SaveRound(r.Context(), req.UserMessage, req.AssistantMessage, req.UserID, req.ConversationID)
	WriteSuccess(w, RecordRoundResponse{Recorded: true})
}

// InjectRequest 提示词注入请求
type InjectRequest struct {
	// Prompt 是注入记忆前的原始提示词
	Prompt         string `json:"prompt"`
	// Query 为空时用 Prompt 作为检索查询
	Query          string `json:"query,omitempty"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	// Language 覆盖配置的提示词语言: auto, zh, en
	Language string `json:"language,omitempty"`
	// InjectionType 覆盖配置的注入位置: user, system
	InjectionType string `json:"injection_type,omitempty"`
}

// InjectResponse 提示词注入响应
type InjectResponse struct {
	Prompt   string `json:"prompt"`
	Memories int    `json:"memories"`
}

// HandleInject 处理 POST /api/v1/memory/inject：检索相关记忆并渲染注入后的提示词。
// 检索失败时返回原始提示词（记忆不可用不能阻断对话）。
func (h *PipelineHandler) HandleInject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	var req InjectRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Prompt == "" || req.UserID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "prompt and user_id are required", nil)
		return
	}

	query := req.Query
	if query == "" {
		query = req.Prompt
	}

	langValue := req.Language
	if langValue == "" {
		langValue = h.defaultLanguage
	}
	injValue := req.InjectionType
	if injValue == "" {
		injValue = h.defaultInjection
	}
	lang := memory.ParseLanguage(langValue, query)
	injType := memory.InjectUser
	if injValue == string(memory.InjectSystem) {
		injType = memory.InjectSystem
	}

	memories := h.pipeline.RetrieveRelevant(r.Context(), query, req.UserID, req.ConversationID)
	prompt := h.pipeline.InjectMemories(req.Prompt, memories, lang, injType)

	WriteSuccess(w, InjectResponse{Prompt: prompt, Memories: len(memories)})
}
