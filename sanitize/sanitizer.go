// Package sanitize redacts personally identifiable information from
// telemetry data before it leaves the process.
package sanitize

import (
	"regexp"
)

// DefaultRedaction replaces matched PII when no custom value is given.
const DefaultRedaction = "[REDACTED]"

// defaultPatterns cover the common PII shapes: emails, US SSNs, 16-digit
// card numbers, and IPv4 addresses.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{16}\b`),
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

// PIISanitizer redacts string values that match any of its patterns. It is
// pure and safe for concurrent use; the pattern list is fixed at creation.
type PIISanitizer struct {
	patterns []*regexp.Regexp
	redact   string
}

// Option configures a PIISanitizer.
type Option func(*PIISanitizer)

// WithPatterns replaces the default pattern set.
func WithPatterns(patterns ...*regexp.Regexp) Option {
	return func(s *PIISanitizer) {
		s.patterns = patterns
	}
}

// WithRedaction sets the replacement value for matched PII.
func WithRedaction(value string) Option {
	return func(s *PIISanitizer) {
		s.redact = value
	}
}

// New creates a PIISanitizer with the default patterns and redaction value
// unless overridden by options.
func New(opts ...Option) *PIISanitizer {
	s := &PIISanitizer{
		patterns: defaultPatterns,
		redact:   DefaultRedaction,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sanitize returns a copy of data with PII redacted from string values.
// Nested maps and slices are sanitized recursively; non-string leaves pass
// through unchanged. The input map is never mutated.
func (s *PIISanitizer) Sanitize(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	sanitized := make(map[string]any, len(data))
	for key, value := range data {
		sanitized[key] = s.sanitizeValue(value)
	}
	return sanitized
}

// SanitizeString redacts PII from a single string.
func (s *PIISanitizer) SanitizeString(value string) string {
	for _, pattern := range s.patterns {
		value = pattern.ReplaceAllString(value, s.redact)
	}
	return value
}

func (s *PIISanitizer) sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return s.SanitizeString(v)
	case map[string]any:
		return s.Sanitize(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.sanitizeValue(item)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = s.SanitizeString(item)
		}
		return out
	default:
		return value
	}
}
