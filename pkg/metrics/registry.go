// Package metrics provides centralized metrics management for the hot-swap
// agent's admin/dashboard surface.
//
// This package implements a unified taxonomy for Prometheus metrics:
//   - Technical metrics: admin HTTP traffic, retry/backoff behavior
//   - Infrastructure metrics: PostgreSQL connection pool, event-log queries
//
// (Pipeline-level metrics for the hot-swap state machine itself live in
// internal/metrics, not here.)
//
// All metrics follow the naming convention:
// bytehot_<category>_<subsystem>_<metric_name>_<unit>
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Infra().DB.ConnectionsActive.Set(42)
package metrics

import (
	"sync"
)

// MetricCategory represents the category of a metric.
type MetricCategory string

const (
	// CategoryTechnical represents technical metrics (HTTP, retry)
	CategoryTechnical MetricCategory = "technical"

	// CategoryInfra represents infrastructure metrics (database, repository)
	CategoryInfra MetricCategory = "infra"
)

// MetricsRegistry is the central registry for all Prometheus metrics.
// Provides organized access to metrics by category (Technical, Infra).
//
// This is a simplified registry design (vs. full validation/map approach)
// for better maintainability and performance.
//
// Usage:
//
//	registry := metrics.DefaultRegistry()
//	registry.Technical().HTTP.RecordRequest("GET", "/api/status", 200, 0.01)
//
// Thread-safe: All Prometheus metrics are thread-safe by design.
// Singleton: Use DefaultRegistry() to get the global instance.
type MetricsRegistry struct {
	namespace string

	// Category managers (lazy-initialized)
	technical *TechnicalMetrics
	infra     *InfraMetrics

	// Separate sync.Once for each category for true lazy initialization
	technicalOnce sync.Once
	infraOnce     sync.Once
}

var (
	// Global singleton registry instance
	defaultRegistry     *MetricsRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton MetricsRegistry.
// Safe for concurrent use. Initialized once on first call.
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Infra().DB.ConnectionsActive.Set(10)
func DefaultRegistry() *MetricsRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewMetricsRegistry("bytehot")
	})
	return defaultRegistry
}

// NewMetricsRegistry creates a new MetricsRegistry with the specified namespace.
// For most use cases, use DefaultRegistry() instead of calling this directly.
//
// Parameters:
//   - namespace: The Prometheus namespace for all metrics (typically "bytehot")
//
// Returns:
//   - *MetricsRegistry: A new registry instance
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "bytehot"
	}

	return &MetricsRegistry{
		namespace: namespace,
	}
}

// Technical returns the Technical metrics manager.
// Lazy-initialized on first access.
//
// Technical metrics include:
//   - HTTP requests (count, duration, size)
//   - Retry attempts and backoff delays
//
// Example:
//
//	registry.Technical().HTTP.RecordRequest("GET", "/api/status", 200, 0.123)
//	registry.Technical().Retry.RecordAttempt("settling_check", "success", "none", 0.01)
func (r *MetricsRegistry) Technical() *TechnicalMetrics {
	r.technicalOnce.Do(func() {
		r.technical = NewTechnicalMetrics(r.namespace)
	})
	return r.technical
}

// Infra returns the Infrastructure metrics manager.
// Lazy-initialized on first access.
//
// Infrastructure metrics include:
//   - Database (connections, queries, errors)
//   - Repository (query duration, errors, results)
//
// Example:
//
//	registry.Infra().DB.ConnectionsActive.Set(42)
//	registry.Infra().Repository.QueryDurationSeconds.WithLabelValues("ListEvents", "success").Observe(0.05)
func (r *MetricsRegistry) Infra() *InfraMetrics {
	r.infraOnce.Do(func() {
		r.infra = NewInfraMetrics(r.namespace)
	})
	return r.infra
}

// Namespace returns the configured namespace for this registry.
//
// Returns:
//   - string: The Prometheus namespace (e.g., "bytehot")
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}

// ValidateMetricName validates a metric name against naming conventions.
// Currently a placeholder for future validation logic.
//
// Naming convention:
// <namespace>_<category>_<subsystem>_<metric_name>_<unit>
//
// Examples:
// ✅ bytehot_technical_http_request_duration_seconds
// ✅ bytehot_infra_db_connections_active
// ❌ connections_active (missing namespace)
// ❌ bytehot_connections_active (missing category/subsystem)
//
// Parameters:
//   - name: The metric name to validate
//
// Returns:
//   - error: nil if valid, error describing the problem otherwise
func (r *MetricsRegistry) ValidateMetricName(name string) error {
	// Placeholder for future validation
	// Could check:
	// 1. Starts with namespace
	// 2. Contains category (technical/infra)
	// 3. Follows snake_case
	// 4. Has appropriate unit suffix (_total, _seconds, etc.)
	return nil
}
