package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/memflow/api/handlers"
	"github.com/BaSui01/memflow/buffer"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/dispatch"
	"github.com/BaSui01/memflow/gateway"
	"github.com/BaSui01/memflow/internal/cache"
	"github.com/BaSui01/memflow/internal/database"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/internal/server"
	"github.com/BaSui01/memflow/internal/telemetry"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/store"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 MemFlow 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers
	db         *gorm.DB

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 管道组件
	threshold     *config.Threshold
	turnStore     store.TurnStore
	gatewayClient *gateway.Client
	dispatcher    *dispatch.Dispatcher
	controller    *buffer.Controller
	memoryManager *memory.Manager
	poolManager   *database.PoolManager
	searchCache   *cache.Manager

	// Handlers
	healthHandler   *handlers.HealthHandler
	authHandler     *handlers.AuthHandler
	pipelineHandler *handlers.PipelineHandler
	memoryHandler   *handlers.MemoryHandler
	configHandler   *handlers.ConfigHandler
	eventsHandler   *handlers.EventsHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otel *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otel,
		db:         db,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("memflow", s.logger)

	// 2. 组装上传管道
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store_type", s.cfg.Buffer.StoreType),
		zap.Int("flush_threshold", s.threshold.Get()),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initPipeline 组装缓冲、调度、检索管道
func (s *Server) initPipeline() error {
	s.threshold = config.NewThreshold(s.cfg.Buffer.FlushThreshold)

	// 数据库连接池（gorm 后端）
	if s.db != nil {
		poolCfg := database.DefaultPoolConfig()
		if s.cfg.Database.MaxOpenConns > 0 {
			poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
		}
		if s.cfg.Database.MaxIdleConns > 0 {
			poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
		}
		if s.cfg.Database.ConnMaxLifetime > 0 {
			poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
		}

		pm, err := database.NewPoolManager(s.db, poolCfg, s.logger)
		if err != nil {
			return fmt.Errorf("failed to init database pool: %w", err)
		}
		s.poolManager = pm.WithMetrics(s.metricsCollector)
	}

	// 回合存储
	turnStore, err := store.NewTurnStore(store.Config{
		Type: store.Type(s.cfg.Buffer.StoreType),
		Redis: store.RedisOptions{
			Addr:      s.cfg.Redis.Addr,
			Password:  s.cfg.Redis.Password,
			DB:        s.cfg.Redis.DB,
			PoolSize:  s.cfg.Redis.PoolSize,
			KeyPrefix: s.cfg.Redis.KeyPrefix,
		},
	}, s.db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init turn store: %w", err)
	}
	s.turnStore = turnStore

	// 记忆网关客户端
	s.gatewayClient = gateway.NewClient(gateway.Config{
		APIKey:         s.cfg.Gateway.APIKey,
		BaseURL:        s.cfg.Gateway.BaseURL,
		Timeout:        s.cfg.Gateway.Timeout,
		RateLimitRPS:   s.cfg.Gateway.RateLimitRPS,
		RateLimitBurst: s.cfg.Gateway.RateLimitBurst,
	}, s.logger).WithMetrics(s.metricsCollector)

	// 上传调度器 + 观察者
	s.dispatcher = dispatch.NewDispatcher(s.gatewayClient, dispatch.Config{
		Workers:   s.cfg.Upload.Workers,
		QueueSize: s.cfg.Upload.QueueSize,
	}, s.logger)

	s.eventsHandler = handlers.NewEventsHandler(s.logger)
	s.dispatcher.AddObserver(s.eventsHandler.Publish)
	s.dispatcher.AddObserver(func(evt dispatch.UploadEvent) {
		s.metricsCollector.RecordUpload(string(evt.Outcome), evt.Duration)
		s.metricsCollector.SetUploadQueueDepth(s.dispatcher.Stats().Queued)
	})

	// 缓冲控制器
	s.controller = buffer.NewController(s.turnStore, s.dispatcher, s.threshold, s.logger).
		WithMetrics(s.metricsCollector)

	// 记忆检索与注入
	s.memoryManager = memory.NewManager(memory.ManagerConfig{
		Limit:      s.cfg.Memory.Limit,
		TokenLimit: s.cfg.Memory.TokenLimit,
	}, s.gatewayClient, s.controller, s.logger)

	// 可选的检索结果缓存：上传成功即失效对应会话的缓存
	if s.cfg.Memory.CacheTTL > 0 {
		sc, err := cache.NewManager(cache.Config{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			PoolSize: s.cfg.Redis.PoolSize,
			TTL:      s.cfg.Memory.CacheTTL,
		}, s.logger)
		if err != nil {
			s.logger.Warn("search cache unavailable, continuing without it", zap.Error(err))
		} else {
			s.searchCache = sc
			s.memoryManager.WithCache(sc)
			s.dispatcher.AddObserver(func(evt dispatch.UploadEvent) {
				if evt.Outcome != dispatch.OutcomeSuccess {
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := sc.InvalidateConversation(ctx, evt.UserID, evt.ConversationID); err != nil {
					s.logger.Debug("cache invalidation failed", zap.Error(err))
				}
			})
		}
	}

	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.poolManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.poolManager.Ping))
	}
	if s.searchCache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("search_cache", s.searchCache.Ping))
	}

	s.pipelineHandler = handlers.NewPipelineHandler(
		s.memoryManager,
		s.cfg.Memory.PromptLanguage,
		s.cfg.Memory.InjectionType,
		s.logger,
	)
	s.memoryHandler = handlers.NewMemoryHandler(s.gatewayClient, s.controller, s.threshold, s.logger)
	s.configHandler = handlers.NewConfigHandler(s.cfg, s.threshold, s.configPath, s.logger)

	if s.cfg.Admin.Enabled {
		s.authHandler = handlers.NewAuthHandler(s.cfg.Admin, s.logger)
	}

	s.logger.Info("Handlers initialized", zap.Bool("admin_enabled", s.cfg.Admin.Enabled))
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 管道 API（宿主机器人调用）
	// ========================================
	mux.HandleFunc("/api/v1/rounds", s.pipelineHandler.HandleRecordRound)
	mux.HandleFunc("/api/v1/memory/inject", s.pipelineHandler.HandleInject)

	// ========================================
	// 管理面板 API
	// ========================================
	mux.HandleFunc("/api/v1/memory/search", s.memoryHandler.HandleSearch)
	mux.HandleFunc("/api/v1/buffer/status", s.memoryHandler.HandleBufferStatus)
	mux.HandleFunc("/api/v1/config", s.configHandler.HandleGet)
	mux.HandleFunc("/api/v1/config/threshold", s.configHandler.HandleThreshold)
	mux.HandleFunc("/api/v1/events/uploads", s.eventsHandler.HandleEvents)
	if s.authHandler != nil {
		mux.HandleFunc("/api/v1/auth/login", s.authHandler.HandleLogin)
	}

	// ========================================
	// 构建中间件链
	// ========================================
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.authHandler != nil {
		skipAuthPaths := []string{
			"/health", "/healthz", "/ready", "/readyz", "/version",
			"/api/v1/auth/login",
		}
		middlewares = append(middlewares, s.authHandler.Middleware(skipAuthPaths))
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器（停止接收新回合）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 等待在途上传完成
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}

	// 3. 关闭存储与连接池
	if s.turnStore != nil {
		if err := s.turnStore.Close(); err != nil {
			s.logger.Error("Turn store close error", zap.Error(err))
		}
	}
	if s.poolManager != nil {
		if err := s.poolManager.Close(); err != nil {
			s.logger.Error("Database pool close error", zap.Error(err))
		}
	}
	if s.searchCache != nil {
		if err := s.searchCache.Close(); err != nil {
			s.logger.Error("Search cache close error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭遥测
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
