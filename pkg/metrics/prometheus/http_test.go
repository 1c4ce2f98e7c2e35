package prometheus

import (
	"testing"
	"time"

	"github.com/marmos91/rawhttpd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWith(reg).(*httpMetrics)

	m.RecordRequest("GET", 200, 3*time.Millisecond)
	m.RecordRequest("GET", 200, 4*time.Millisecond)
	m.RecordRequest("POST", 413, time.Millisecond)
	m.RecordRequest("", 408, 5*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "413")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("none", "408")))

	m.RecordBytesTransferred(metrics.DirectionRead, 100)
	m.RecordBytesTransferred(metrics.DirectionRead, 28)
	m.RecordBytesTransferred(metrics.DirectionWrite, 64)
	assert.Equal(t, 128.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues(metrics.DirectionRead)))
	assert.Equal(t, 64.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues(metrics.DirectionWrite)))

	m.SetActiveConnections(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeConnections))
	m.SetActiveConnections(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeConnections))

	m.RecordConnectionAccepted()
	m.RecordConnectionRejected(metrics.RejectCeiling)
	m.RecordConnectionRejected(metrics.RejectCeiling)
	m.RecordConnectionRejected(metrics.RejectRateLimit)
	m.RecordConnectionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsAccepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionsRejected.WithLabelValues(metrics.RejectCeiling)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsRejected.WithLabelValues(metrics.RejectRateLimit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsClosed))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewHTTPMetricsDisabled(t *testing.T) {
	// The global registry is never initialized in this package's tests
	m := NewHTTPMetrics()
	_, isPrometheus := m.(*httpMetrics)
	assert.False(t, isPrometheus)
}
