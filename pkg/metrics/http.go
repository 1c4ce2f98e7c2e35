package metrics

import "time"

// Connection rejection reasons reported by the HTTP adapter.
const (
	RejectCeiling   = "ceiling"
	RejectRateLimit = "rate_limit"
)

// Transfer directions for RecordBytesTransferred.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// HTTPMetrics provides observability for the HTTP adapter.
//
// This interface is optional - if not provided to the HTTP adapter, a no-op
// implementation is used.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewHTTPMetrics()
//	adapter := http.New(config, m)
//
//	// Without metrics (no-op)
//	adapter := http.New(config, nil)
type HTTPMetrics interface {
	// RecordRequest records a completed exchange.
	//
	// Parameters:
	//   - method: request method, or "" when no request line was parsed
	//   - status: response status code sent to the client
	//   - duration: time from the first header byte wait to response write
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesTransferred records bytes read from or written to clients.
	//
	// Parameters:
	//   - direction: DirectionRead or DirectionWrite
	//   - bytes: number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the admitted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionRejected increments the rejected connections counter.
	//
	// Parameters:
	//   - reason: RejectCeiling or RejectRateLimit
	RecordConnectionRejected(reason string)

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

// noopHTTPMetrics is a no-op implementation of HTTPMetrics.
type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordBytesTransferred(direction string, bytes int64)            {}
func (noopHTTPMetrics) SetActiveConnections(count int32)                                {}
func (noopHTTPMetrics) RecordConnectionAccepted()                                       {}
func (noopHTTPMetrics) RecordConnectionRejected(reason string)                          {}
func (noopHTTPMetrics) RecordConnectionClosed()                                         {}
