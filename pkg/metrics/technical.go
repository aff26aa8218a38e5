package metrics

// TechnicalMetrics aggregates system-internals metrics: HTTP traffic on the
// admin/dashboard surface and retry behavior across the watcher and
// rollback manager.
//
// Example:
//
//	tm := NewTechnicalMetrics("bytehot")
//	tm.HTTP.RecordRequest("GET", "/api/status", 200, 0.123)
//	tm.Retry.RecordAttempt("settling_check", "success", "none", 0.01)
type TechnicalMetrics struct {
	namespace string

	// HTTP subsystem - existing metrics from prometheus.go
	HTTP *HTTPMetrics

	// Retry subsystem - retry/backoff metrics from retry.go
	Retry *RetryMetrics
}

// NewTechnicalMetrics creates a new TechnicalMetrics aggregator.
//
// Parameters:
//   - namespace: The Prometheus namespace (typically "bytehot")
//
// Returns:
//   - *TechnicalMetrics: Initialized technical metrics aggregator
func NewTechnicalMetrics(namespace string) *TechnicalMetrics {
	return &TechnicalMetrics{
		namespace: namespace,
		HTTP:      NewHTTPMetricsWithNamespace(namespace, "technical_http"),
		Retry:     NewRetryMetrics(),
	}
}
