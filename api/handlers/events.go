package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/dispatch"
)

// =============================================================================
// 📡 上传事件推送 Handler (WebSocket)
// =============================================================================

const (
	// 连接时回放的历史事件条数上限
	eventHistorySize = 100
	// 订阅者发送缓冲，满了直接丢事件而不是阻塞广播
	subscriberBuffer = 32
)

// EventEntry 推送给客户端的上传事件
type EventEntry struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Turns          int       `json:"turns"`
	Rounds         int       `json:"rounds"`
	Outcome        string    `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventsHandler 将上传事件广播给 WebSocket 订阅者
type EventsHandler struct {
	logger *zap.Logger

	mu      sync.Mutex
	history []EventEntry
	subs    map[chan EventEntry]struct{}
}

// NewEventsHandler 创建事件推送处理器
func NewEventsHandler(logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		logger: logger.With(zap.String("component", "events_handler")),
		subs:   make(map[chan EventEntry]struct{}),
	}
}

// Publish 实现调度器观察者，可直接通过 AddObserver 注册。
func (h *EventsHandler) Publish(evt dispatch.UploadEvent) {
	entry := EventEntry{
		ConversationID: evt.ConversationID,
		UserID:         evt.UserID,
		Turns:          evt.Turns,
		Rounds:         evt.Rounds,
		Outcome:        string(evt.Outcome),
		Error:          evt.Error,
		DurationMS:     evt.Duration.Milliseconds(),
		Timestamp:      evt.Timestamp,
	}

	h.mu.Lock()
	h.history = append(h.history, entry)
	if len(h.history) > eventHistorySize {
		h.history = h.history[len(h.history)-eventHistorySize:]
	}
	for ch := range h.subs {
		select {
		case ch <- entry:
		default:
			// 慢订阅者丢弃事件
		}
	}
	h.mu.Unlock()
}

// HandleEvents 处理 GET /api/v1/events 的 WebSocket 升级
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := r.Context()

	ch := make(chan EventEntry, subscriberBuffer)
	h.mu.Lock()
	replay := make([]EventEntry, len(h.history))
	copy(replay, h.history)
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}()

	h.logger.Info("event subscriber connected", zap.String("remote_addr", r.RemoteAddr))

	// 先回放历史事件
	for _, entry := range replay {
		if err := h.write(ctx, conn, entry); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case entry := <-ch:
			if err := h.write(ctx, conn, entry); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, entry EventEntry) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, entry); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

// Subscribers 返回当前订阅者数量
func (h *EventsHandler) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
