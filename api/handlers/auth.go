package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🔐 管理面板认证 Handler
// =============================================================================

// AuthHandler 管理面板登录与 JWT 校验
type AuthHandler struct {
	cfg    config.AdminConfig
	logger *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg config.AdminConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "auth_handler")),
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleLogin 处理 POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	var req LoginRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 常数时间比较，避免时序侧信道
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Password)) == 1
	if !userOK || !passOK {
		h.logger.Warn("login rejected", zap.String("username", req.Username))
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "invalid credentials", nil)
		return
	}

	ttl := h.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	expiresAt := time.Now().Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  req.Username,
		"type": "access",
		"iat":  time.Now().Unix(),
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to sign token").WithCause(err), h.logger)
		return
	}

	h.logger.Info("admin login", zap.String("username", req.Username))
	WriteSuccess(w, LoginResponse{Token: signed, ExpiresAt: expiresAt})
}

// Middleware 返回校验 Bearer JWT 的中间件。skipPaths 中的路径放行。
func (h *AuthHandler) Middleware(skipPaths []string) func(http.Handler) http.Handler {
	skipSet := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = struct{}{}
	}

	keyFunc := func(token *jwt.Token) (any, error) {
		return []byte(h.cfg.JWTSecret), nil
	}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := skipSet[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr := bearerToken(r)
			if tokenStr == "" {
				WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "missing or malformed Authorization header", nil)
				return
			}

			token, err := jwt.Parse(tokenStr, keyFunc, parserOpts...)
			if err != nil || !token.Valid {
				h.logger.Debug("JWT validation failed", zap.Error(err))
				WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "invalid or expired token", nil)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || claims["type"] != "access" {
				WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "invalid token claims", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken 从 Authorization 头或 token query 参数取出令牌。
// query 参数用于 WebSocket 客户端（浏览器无法设置请求头）。
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
