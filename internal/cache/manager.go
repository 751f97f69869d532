// Package cache provides a Redis-backed cache for gateway search results.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 检索结果缓存
// =============================================================================

// Manager 缓存远端记忆检索结果。键按 (user, conversation, query) 构造，
// 并带上会话代数：上传成功后递增代数即可让旧结果整体失效，无需 SCAN。
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// Config 缓存配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 键前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 检索结果过期时间
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		KeyPrefix:           "memflow:search",
		TTL:                 5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 创建缓存管理器
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "memflow:search"
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
		PoolSize:   config.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "search_cache")),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	logger.Info("search cache initialized",
		zap.String("addr", config.Addr),
		zap.Duration("ttl", config.TTL),
	)

	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// GetSearch 读取缓存的检索结果，未命中返回 ErrCacheMiss。
// dest 为反序列化目标（*gateway.SearchData）。
func (m *Manager) GetSearch(ctx context.Context, userID, conversationID, query string, dest interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("search cache is closed")
	}

	key, err := m.searchKey(ctx, userID, conversationID, query)
	if err != nil {
		return err
	}

	val, err := m.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached search result: %w", err)
	}
	return nil
}

// SetSearch 缓存一次检索结果
func (m *Manager) SetSearch(ctx context.Context, userID, conversationID, query string, value interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("search cache is closed")
	}

	key, err := m.searchKey(ctx, userID, conversationID, query)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal search result: %w", err)
	}

	if err := m.redis.Set(ctx, key, data, m.config.TTL).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// InvalidateConversation 递增会话代数，使该会话缓存的所有检索结果失效。
// 上传成功后调用：远端记忆刚刚变化，旧结果不可再用。
func (m *Manager) InvalidateConversation(ctx context.Context, userID, conversationID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("search cache is closed")
	}

	if err := m.redis.Incr(ctx, m.genKey(userID, conversationID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate failed: %w", err)
	}
	return nil
}

// searchKey 构造带会话代数的检索键。代数键不存在按 0 处理。
func (m *Manager) searchKey(ctx context.Context, userID, conversationID, query string) (string, error) {
	gen, err := m.redis.Get(ctx, m.genKey(userID, conversationID)).Result()
	if err == redis.Nil {
		gen = "0"
	} else if err != nil {
		return "", fmt.Errorf("cache generation read failed: %w", err)
	}

	sum := sha256.Sum256([]byte(userID + "\x00" + conversationID + "\x00" + query))
	return fmt.Sprintf("%s:%s:%s", m.config.KeyPrefix, gen, hex.EncodeToString(sum[:16])), nil
}

func (m *Manager) genKey(userID, conversationID string) string {
	return fmt.Sprintf("%s:gen:%s:%s", m.config.KeyPrefix, userID, conversationID)
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("search cache is closed")
	}

	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	m.logger.Info("closing search cache")

	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// healthCheckLoop 健康检查循环
func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			return
		}
		m.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil {
			m.logger.Error("cache health check failed", zap.Error(err))
		} else {
			m.logger.Debug("cache health check passed")
		}
		cancel()
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}
