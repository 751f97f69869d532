package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.uploadsTotal)
	assert.NotNil(t, collector.gatewayRequestsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录请求
	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond)

	// 验证指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	// 再记录一次相同的请求
	collector.RecordHTTPRequest("GET", "/test", 200, 50*time.Millisecond)

	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordBufferActivity(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordRoundBuffered()
	collector.RecordRoundDiscarded()
	collector.RecordFlush(6)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.roundsBuffered))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.roundsDiscarded))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.flushesTotal))
	assert.Equal(t, float64(6), testutil.ToFloat64(collector.turnsFlushed))
}

func TestCollector_RecordUpload(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordUpload("success", 500*time.Millisecond)
	collector.RecordUpload("failure", time.Second)
	collector.RecordUpload("rejected", 0)

	count := testutil.CollectAndCount(collector.uploadsTotal)
	assert.Equal(t, 3, count)

	assert.Equal(t, 1, testutil.CollectAndCount(collector.uploadDuration))
}

func TestCollector_SetUploadQueueDepth(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.SetUploadQueueDepth(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(collector.uploadQueue))

	collector.SetUploadQueueDepth(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.uploadQueue))
}

func TestCollector_RecordGatewayRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordGatewayRequest("/add/message", "success", 300*time.Millisecond)
	collector.RecordGatewayRequest("/search/memory", "error", 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.gatewayRequestsTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 更新连接池状态
	collector.RecordDBConnections("postgres", 10, 5)

	openCount := testutil.CollectAndCount(collector.dbConnectionsOpen)
	assert.Greater(t, openCount, 0)

	idleCount := testutil.CollectAndCount(collector.dbConnectionsIdle)
	assert.Greater(t, idleCount, 0)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 并发记录多个指标
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond)
			collector.RecordUpload("success", 200*time.Millisecond)
			collector.RecordRoundBuffered()
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	httpCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, httpCount, 0)

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.roundsBuffered))
}
