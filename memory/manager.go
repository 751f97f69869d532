package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/memflow/gateway"
	"github.com/BaSui01/memflow/types"
)

// Kind 区分事实记忆与偏好记忆。
type Kind string

const (
	KindFact       Kind = "fact"
	KindPreference Kind = "preference"
)

// Memory 是一条归一化后的记忆条目，供注入模板渲染。
type Memory struct {
	Kind           Kind
	Content        string
	Timestamp      string // YYYY-MM-DD，空表示无时间信息
	UpdateTime     float64
	MemoryType     string // 事实记忆
	PreferenceType string // 偏好记忆
}

// Searcher 是检索远端记忆所需的最小网关接口。
type Searcher interface {
	SearchMemory(ctx context.Context, query, userID, conversationID string) (*gateway.SearchData, error)
}

// RoundRecorder 接收完成的对话轮次。
type RoundRecorder interface {
	RecordRound(ctx context.Context, round types.Round, userID, conversationID string)
}

// SearchCache 缓存网关检索响应。任何读取错误都按未命中处理。
type SearchCache interface {
	GetSearch(ctx context.Context, userID, conversationID, query string, dest interface{}) error
	SetSearch(ctx context.Context, userID, conversationID, query string, value interface{}) error
}

// ManagerConfig 控制检索与注入行为。
type ManagerConfig struct {
	// Limit 限制注入的事实记忆条数，偏好记忆全部保留。
	Limit int
	// TokenLimit 大于 0 时限制记忆块的 token 数，超限时丢弃末尾事实。
	TokenLimit int
	// Encoding 为 token 统计使用的 tiktoken 编码，默认 cl100k_base。
	Encoding string
}

// Manager ties memory retrieval, prompt injection and round persistence
// together. It is safe for concurrent use.
type Manager struct {
	cfg      ManagerConfig
	searcher Searcher
	recorder RoundRecorder
	cache    SearchCache
	logger   *zap.Logger

	group singleflight.Group

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
}

// NewManager 创建记忆管理器。recorder 可为 nil，此时 SaveRound 只做丢弃判定。
func NewManager(cfg ManagerConfig, searcher Searcher, recorder RoundRecorder, logger *zap.Logger) *Manager {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		searcher: searcher,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "memory_manager")),
	}
}

// WithCache attaches a search result cache. Nil is allowed and disables caching.
func (m *Manager) WithCache(c SearchCache) *Manager {
	m.cache = c
	return m
}

// RetrieveRelevant 向网关检索与 query 相关的记忆，归一化时间戳并按配置
// 截断事实条数。检索失败返回空列表，绝不向调用方抛错。并发的相同检索通过
// singleflight 合并为一次网关调用。
func (m *Manager) RetrieveRelevant(ctx context.Context, query, userID, conversationID string) []Memory {
	key := userID + "\x00" + conversationID + "\x00" + query
	v, err, _ := m.group.Do(key, func() (any, error) {
		if m.cache != nil {
			var cached gateway.SearchData
			if err := m.cache.GetSearch(ctx, userID, conversationID, query, &cached); err == nil {
				m.logger.Debug("memory search served from cache",
					zap.String("user_id", userID))
				return &cached, nil
			}
		}
		data, err := m.searcher.SearchMemory(ctx, query, userID, conversationID)
		if err != nil {
			return nil, err
		}
		if m.cache != nil {
			if err := m.cache.SetSearch(ctx, userID, conversationID, query, data); err != nil {
				m.logger.Debug("failed to cache search result", zap.Error(err))
			}
		}
		return data, nil
	})
	if err != nil {
		m.logger.Error("memory search failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}

	data, ok := v.(*gateway.SearchData)
	if !ok || data == nil {
		return nil
	}

	var facts, prefs []Memory
	for _, f := range data.MemoryDetailList {
		if f.MemoryValue == "" {
			continue
		}
		ut := normalizeTimestamp(f.UpdateTime)
		facts = append(facts, Memory{
			Kind:       KindFact,
			Content:    f.MemoryValue,
			Timestamp:  formatDay(ut),
			UpdateTime: ut,
			MemoryType: f.MemoryType,
		})
	}
	for _, p := range data.PreferenceDetailList {
		if p.Preference == "" {
			continue
		}
		ut := normalizeTimestamp(p.UpdateTime)
		prefs = append(prefs, Memory{
			Kind:           KindPreference,
			Content:        p.Preference,
			Timestamp:      formatDay(ut),
			UpdateTime:     ut,
			PreferenceType: p.PreferenceType,
		})
	}

	// 条数限制只作用于事实记忆。
	if len(facts) > m.cfg.Limit {
		facts = facts[:m.cfg.Limit]
	}

	m.logger.Info("memories retrieved",
		zap.String("user_id", userID),
		zap.Int("facts", len(facts)),
		zap.Int("preferences", len(prefs)))
	return append(facts, prefs...)
}

// InjectMemories 将记忆块注入原始提示词。没有记忆时原样返回。配置了
// TokenLimit 时，从末尾开始丢弃事实记忆直到记忆块不超限。
func (m *Manager) InjectMemories(prompt string, memories []Memory, lang Language, injType InjectionType) string {
	if len(memories) == 0 {
		return prompt
	}

	kept := memories
	content := FormatMemoryContent(kept, lang)
	if m.cfg.TokenLimit > 0 {
		for m.countTokens(content) > m.cfg.TokenLimit {
			idx := lastFactIndex(kept)
			if idx < 0 {
				break
			}
			kept = append(kept[:idx:idx], kept[idx+1:]...)
			content = FormatMemoryContent(kept, lang)
		}
		if len(kept) < len(memories) {
			m.logger.Debug("memory block truncated",
				zap.Int("dropped_facts", len(memories)-len(kept)),
				zap.Int("token_limit", m.cfg.TokenLimit))
		}
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	return BuildInjectionPrompt(prompt, content, now, lang, injType)
}

// SaveRound 是机器人在每轮对话结束后的入口：残缺轮次直接丢弃，完整轮次
// 交给缓冲控制器。
func (m *Manager) SaveRound(ctx context.Context, userMessage, aiResponse, userID, conversationID string) {
	round := types.Round{User: userMessage, Assistant: aiResponse}
	if !round.Complete() {
		m.logger.Debug("incomplete round discarded",
			zap.String("conversation_id", conversationID))
		return
	}
	if m.recorder == nil {
		return
	}
	m.recorder.RecordRound(ctx, round, userID, conversationID)
}

func (m *Manager) countTokens(text string) int {
	m.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(m.cfg.Encoding)
		if err != nil {
			m.encErr = fmt.Errorf("init tiktoken encoding %s: %w", m.cfg.Encoding, err)
			m.logger.Warn("tiktoken unavailable, token limit disabled", zap.Error(m.encErr))
			return
		}
		m.enc = enc
	})
	if m.enc == nil {
		return 0
	}
	return len(m.enc.Encode(text, nil, nil))
}

func lastFactIndex(memories []Memory) int {
	for i := len(memories) - 1; i >= 0; i-- {
		if memories[i].Kind == KindFact {
			return i
		}
	}
	return -1
}

// normalizeTimestamp 将毫秒时间戳归一化为秒。
func normalizeTimestamp(ts float64) float64 {
	if ts > 1_000_000_000_000 {
		return ts / 1000
	}
	return ts
}

func formatDay(ts float64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(int64(ts), 0).Format("2006-01-02")
}

// DetectLanguage 根据是否包含 CJK 字符判断提示词语言。
func DetectLanguage(s string) Language {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return LangZH
		}
	}
	return LangEN
}

// ParseLanguage 解析配置中的语言值，"auto" 或未知值按 probe 自动判断。
func ParseLanguage(v, probe string) Language {
	switch strings.ToLower(v) {
	case "zh":
		return LangZH
	case "en":
		return LangEN
	default:
		return DetectLanguage(probe)
	}
}
