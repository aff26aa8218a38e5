package config

import (
	"encoding/json"
)

// ConfigSanitizer sanitizes sensitive configuration data
type ConfigSanitizer interface {
	// Sanitize removes or redacts sensitive fields
	Sanitize(cfg *Config) *Config
}

// DefaultConfigSanitizer implements ConfigSanitizer
type DefaultConfigSanitizer struct {
	redactionValue string // Value to use for redacted fields
}

// NewDefaultConfigSanitizer creates a new DefaultConfigSanitizer
func NewDefaultConfigSanitizer() ConfigSanitizer {
	return &DefaultConfigSanitizer{
		redactionValue: "***REDACTED***",
	}
}

// NewConfigSanitizer creates a ConfigSanitizer with custom redaction value
func NewConfigSanitizer(redactionValue string) ConfigSanitizer {
	return &DefaultConfigSanitizer{
		redactionValue: redactionValue,
	}
}

// Sanitize removes or redacts sensitive fields from configuration before
// it is logged or surfaced on the admin dashboard feed.
func (s *DefaultConfigSanitizer) Sanitize(cfg *Config) *Config {
	// Deep copy config to avoid mutating original
	sanitized := s.deepCopy(cfg)

	// Redact database password and any credentials embedded in the URL
	sanitized.Database.Password = s.redactionValue
	sanitized.Database.URL = s.sanitizeURL(sanitized.Database.URL)

	// user_identity_override may carry an email address; it identifies a
	// person rather than a secret, but is still redacted from any
	// surface that is not the identity resolver itself.
	if sanitized.Identity.Override != "" {
		sanitized.Identity.Override = s.redactionValue
	}

	return sanitized
}

// deepCopy creates a deep copy of Config using JSON serialization
func (s *DefaultConfigSanitizer) deepCopy(cfg *Config) *Config {
	// Use JSON serialization for deep copy
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		// Fallback: return original (should not happen with valid config)
		return cfg
	}

	var configCopy Config
	if err := json.Unmarshal(configJSON, &configCopy); err != nil {
		// Fallback: return original
		return cfg
	}

	return &configCopy
}

// sanitizeURL redacts credentials from database URL
func (s *DefaultConfigSanitizer) sanitizeURL(url string) string {
	if url == "" {
		return url
	}

	// The URL is not parsed: any non-empty URL is replaced in full by the
	// redaction value, whether or not it carries credentials.
	// In practice, Database.URL is usually empty if using separate fields
	if len(url) > 0 {
		return s.redactionValue
	}

	return url
}
