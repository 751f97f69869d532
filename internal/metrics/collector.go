// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 缓冲指标
	roundsBuffered  prometheus.Counter
	roundsDiscarded prometheus.Counter
	flushesTotal    prometheus.Counter
	turnsFlushed    prometheus.Counter

	// 上传指标
	uploadsTotal   *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	uploadQueue    prometheus.Gauge

	// 网关指标
	gatewayRequestsTotal   *prometheus.CounterVec
	gatewayRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 缓冲指标
	c.roundsBuffered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_buffered_total",
		Help:      "Total number of completed rounds accepted into the buffer",
	})

	c.roundsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_discarded_total",
		Help:      "Total number of partial rounds discarded",
	})

	c.flushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "buffer_flushes_total",
		Help:      "Total number of buffer flushes",
	})

	c.turnsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_flushed_total",
		Help:      "Total number of turns drained from the buffer",
	})

	// 上传指标
	c.uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of batch uploads by outcome",
		},
		[]string{"outcome"}, // success, failure, rejected
	)

	c.uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_duration_seconds",
		Help:      "Batch upload duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	c.uploadQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upload_queue_depth",
		Help:      "Number of batches waiting in the upload queue",
	})

	// 网关指标
	c.gatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Total number of memory gateway requests",
		},
		[]string{"endpoint", "status"},
	)

	c.gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Memory gateway request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 📥 缓冲指标记录
// =============================================================================

// RecordRoundBuffered 记录被接受的完整轮次
func (c *Collector) RecordRoundBuffered() {
	c.roundsBuffered.Inc()
}

// RecordRoundDiscarded 记录被丢弃的残缺轮次
func (c *Collector) RecordRoundDiscarded() {
	c.roundsDiscarded.Inc()
}

// RecordFlush 记录一次缓冲排空
func (c *Collector) RecordFlush(turns int) {
	c.flushesTotal.Inc()
	c.turnsFlushed.Add(float64(turns))
}

// =============================================================================
// 📤 上传指标记录
// =============================================================================

// RecordUpload 记录一次批量上传结果
func (c *Collector) RecordUpload(outcome string, duration time.Duration) {
	c.uploadsTotal.WithLabelValues(outcome).Inc()
	if outcome != "rejected" {
		c.uploadDuration.Observe(duration.Seconds())
	}
}

// SetUploadQueueDepth 更新上传队列深度
func (c *Collector) SetUploadQueueDepth(depth int) {
	c.uploadQueue.Set(float64(depth))
}

// =============================================================================
// 🌐 网关指标记录
// =============================================================================

// RecordGatewayRequest 记录网关请求
func (c *Collector) RecordGatewayRequest(endpoint, status string, duration time.Duration) {
	c.gatewayRequestsTotal.WithLabelValues(endpoint, status).Inc()
	c.gatewayRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
