// Package gateway implements the HTTP client for the remote memory service
// (MemOS-style openmem API). The service durably stores long-term memories;
// this client only adds conversation messages and searches memories.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/memflow/types"
)

// Config configures the gateway client.
type Config struct {
	// APIKey authenticates against the remote service ("Token <key>").
	APIKey string
	// BaseURL is the API base, e.g. https://memos.memtensor.cn/api/openmem/v1
	BaseURL string
	// Timeout bounds one HTTP request. Defaults to 30s.
	Timeout time.Duration
	// RateLimitRPS caps outgoing requests per second. 0 disables limiting.
	RateLimitRPS float64
	// RateLimitBurst is the burst size for the limiter.
	RateLimitBurst int
}

// Metrics receives per-request observations. status is "ok" or the
// error code of the failure.
type Metrics interface {
	RecordGatewayRequest(endpoint, status string, duration time.Duration)
}

// Client is the memory gateway HTTP client.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// NewClient creates a gateway client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger.With(zap.String("component", "memory_gateway")),
		tracer:  otel.Tracer("github.com/BaSui01/memflow/gateway"),
	}
}

// WithMetrics attaches a request metrics sink. Nil disables recording.
func (c *Client) WithMetrics(m Metrics) *Client {
	c.metrics = m
	return c
}

// envelope is the remote API response shape: {"code": 0, "message": "...",
// "data": {...}}. code==0 means success; anything else is an error.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// addMessagesRequest is the /add/message request body.
type addMessagesRequest struct {
	UserID         string          `json:"user_id"`
	ConversationID string          `json:"conversation_id"`
	Messages       []types.Message `json:"messages"`
}

// searchMemoryRequest is the /search/memory request body.
type searchMemoryRequest struct {
	Query          string `json:"query"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// FactDetail is one fact memory returned by /search/memory.
type FactDetail struct {
	MemoryKey   string   `json:"memory_key"`
	MemoryValue string   `json:"memory_value"`
	MemoryType  string   `json:"memory_type"`
	Tags        []string `json:"tags"`
	Confidence  float64  `json:"confidence"`
	Relativity  float64  `json:"relativity"`
	CreateTime  float64  `json:"create_time"`
	UpdateTime  float64  `json:"update_time"`
}

// PreferenceDetail is one inferred preference returned by /search/memory.
type PreferenceDetail struct {
	Preference     string  `json:"preference"`
	PreferenceType string  `json:"preference_type"`
	Reasoning      string  `json:"reasoning"`
	CreateTime     float64 `json:"create_time"`
	UpdateTime     float64 `json:"update_time"`
}

// SearchData is the payload of a successful /search/memory call.
type SearchData struct {
	MemoryDetailList     []FactDetail       `json:"memory_detail_list"`
	PreferenceDetailList []PreferenceDetail `json:"preference_detail_list"`
	PreferenceNote       string             `json:"preference_note,omitempty"`
}

// AddMessages uploads an ordered batch of conversation messages. The remote
// service treats a repeated call with the same batch as a new, independent
// write; there is no idempotency key.
func (c *Client) AddMessages(ctx context.Context, messages []types.Message, userID, conversationID string) types.Result {
	if _, err := c.post(ctx, "/add/message", addMessagesRequest{
		UserID:         userID,
		ConversationID: conversationID,
		Messages:       messages,
	}); err != nil {
		return types.Fail(err)
	}

	c.logger.Info("messages added to memory service",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID),
		zap.Int("messages", len(messages)))
	return types.OK()
}

// SearchMemory retrieves fact and preference memories relevant to the query.
func (c *Client) SearchMemory(ctx context.Context, query, userID, conversationID string) (*SearchData, error) {
	data, err := c.post(ctx, "/search/memory", searchMemoryRequest{
		Query:          query,
		UserID:         userID,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, err
	}

	out := &SearchData{}
	if len(data) > 0 {
		if jsonErr := json.Unmarshal(data, out); jsonErr != nil {
			return nil, types.NewError(types.ErrGatewayDecode, "unexpected search payload").WithCause(jsonErr)
		}
	}

	c.logger.Info("memory search completed",
		zap.String("user_id", userID),
		zap.Int("facts", len(out.MemoryDetailList)),
		zap.Int("preferences", len(out.PreferenceDetailList)))
	return out, nil
}

// post sends one API request, unwraps the response envelope and records
// the outcome to the attached metrics sink.
func (c *Client) post(ctx context.Context, endpoint string, body any) (json.RawMessage, *types.Error) {
	start := time.Now()
	data, err := c.doPost(ctx, endpoint, body)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = string(err.Code)
		}
		c.metrics.RecordGatewayRequest(endpoint, status, time.Since(start))
	}
	return data, err
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any) (json.RawMessage, *types.Error) {
	ctx, span := c.tracer.Start(ctx, "gateway.post",
		trace.WithAttributes(attribute.String("gateway.endpoint", endpoint)))
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "rate limit wait aborted")
			return nil, types.NewError(types.ErrRateLimited, "rate limit wait aborted").WithCause(err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to encode request").WithCause(err)
	}

	url := c.cfg.BaseURL + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to build request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, "transport error")
		c.logger.Error("gateway request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, types.NewError(types.ErrGatewayTransport, "gateway request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		span.SetStatus(codes.Error, fmt.Sprintf("http %d", resp.StatusCode))
		c.logger.Error("gateway returned non-200 status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", msg))
		return nil, types.NewError(types.ErrGatewayStatus,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(msg))).
			WithHTTPStatus(resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		span.SetStatus(codes.Error, "decode error")
		return nil, types.NewError(types.ErrGatewayDecode, "failed to decode response").WithCause(err)
	}

	if env.Code != 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("api code %d", env.Code))
		c.logger.Error("gateway returned error code",
			zap.String("endpoint", endpoint),
			zap.Int("code", env.Code),
			zap.String("message", env.Message))
		return nil, types.NewError(types.ErrGatewayCode,
			fmt.Sprintf("API error (code=%d): %s", env.Code, env.Message))
	}

	span.SetStatus(codes.Ok, "")
	return env.Data, nil
}
