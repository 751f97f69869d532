// =============================================================================
// 📦 MemFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Gateway:   DefaultGatewayConfig(),
		Buffer:    DefaultBufferConfig(),
		Upload:    DefaultUploadConfig(),
		Memory:    DefaultMemoryConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Admin:     DefaultAdminConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultGatewayConfig 返回默认记忆服务配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseURL:        "https://memos.memtensor.cn/api/openmem/v1",
		Timeout:        30 * time.Second,
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

// DefaultBufferConfig 返回默认缓冲配置
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		StoreType:      "gorm",
		FlushThreshold: 1,
	}
}

// DefaultUploadConfig 返回默认上传配置
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		Workers:   8,
		QueueSize: 256,
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Limit:          5,
		TokenLimit:     0,
		PromptLanguage: "auto",
		InjectionType:  "user",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "memflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "memflow:",
	}
}

// DefaultAdminConfig 返回默认管理面板配置
func DefaultAdminConfig() AdminConfig {
	return AdminConfig{
		Enabled:  false,
		Username: "admin",
		TokenTTL: 12 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "memflow",
		SampleRate:   1.0,
	}
}
