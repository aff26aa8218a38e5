// Package middleware provides HTTP middleware for the admin dashboard.
package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

// PathNormalizationMiddleware normalizes URL paths to reduce cardinality in metrics.
//
// Replaces dynamic path segments (UUIDs, numeric IDs) with placeholders to prevent
// metrics explosion. This is critical for HTTP metrics that include the `path` label.
//
// Transformations:
//   - UUIDs → :id (e.g., /api/changes/123e4567-... → /api/changes/:id)
//   - Numeric IDs → :id (e.g., /api/changes/12345 → /api/changes/:id)
//   - Preserves static paths unchanged
//
// Example:
//
//	router.Use(PathNormalizationMiddleware())
type PathNormalizer struct {
	uuidPattern      *regexp.Regexp
	numericIDPattern *regexp.Regexp
}

// NewPathNormalizer creates a new path normalizer with default patterns.
//
// Returns:
//   - *PathNormalizer: Configured normalizer instance
func NewPathNormalizer() *PathNormalizer {
	return &PathNormalizer{
		// UUID pattern: 8-4-4-4-12 hex digits
		uuidPattern: regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`),

		// Numeric ID pattern: 1-20 digits (covers int32, int64)
		numericIDPattern: regexp.MustCompile(`/\d{1,20}(?:/|$)`),
	}
}

// NormalizePath normalizes a URL path by replacing dynamic segments.
//
// Parameters:
//   - path: The original URL path
//
// Returns:
//   - string: The normalized path with placeholders
//
// Examples:
//
//	"/api/changes/123e4567-e89b-12d3-a456-426614174000" → "/api/changes/:id"
//	"/api/changes/12345" → "/api/changes/:id"
//	"/api/changes/12345/events/67890" → "/api/changes/:id/events/:id"
//	"/api/health" → "/api/health" (unchanged)
func (n *PathNormalizer) NormalizePath(path string) string {
	// Handle empty or root path
	if path == "" || path == "/" {
		return path
	}

	// Replace UUIDs first (more specific pattern)
	normalized := n.uuidPattern.ReplaceAllString(path, "/:id")

	// Then replace numeric IDs
	normalized = n.numericIDPattern.ReplaceAllString(normalized, "/:id/")

	// Clean up trailing slash if added by replacement
	normalized = strings.TrimSuffix(normalized, "/")

	// Ensure root path is preserved
	if normalized == "" {
		return "/"
	}

	return normalized
}

// Middleware returns an HTTP middleware that normalizes paths.
//
// Sets the normalized path in the request's X-Normalized-Path header for
// downstream handlers; r.URL.Path and the ResponseWriter are left unchanged.
//
// Returns:
//   - func(http.Handler) http.Handler: Middleware function
//
// Example:
//
//	normalizer := NewPathNormalizer()
//	router.Use(normalizer.Middleware())
func (n *PathNormalizer) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Normalize the path
			originalPath := r.URL.Path
			normalizedPath := n.NormalizePath(originalPath)

			// r.URL.Path is not modified, so routing is unaffected. The
			// normalized path goes in a request header; the request context is
			// not used, and HTTPMetrics.Middleware labels by r.URL.Path without
			// reading this header.
			r.Header.Set("X-Normalized-Path", normalizedPath)

			// Continue to next handler
			next.ServeHTTP(w, r)
		})
	}
}

// PathNormalizationMiddleware returns a path normalization middleware.
//
// Convenience function that creates a PathNormalizer and returns its middleware.
//
// Returns:
//   - func(http.Handler) http.Handler: Middleware function
//
// Example:
//
//	router.Use(PathNormalizationMiddleware())
func PathNormalizationMiddleware() func(http.Handler) http.Handler {
	normalizer := NewPathNormalizer()
	return normalizer.Middleware()
}
