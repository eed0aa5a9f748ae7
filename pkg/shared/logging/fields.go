// Package logging builds the service's zap loggers and provides a small
// fluent helper for standard structured fields.
package logging

import (
	"time"

	"go.uber.org/zap"
)

// Fields is a fluent builder for standard structured log fields.
type Fields map[string]interface{}

// NewFields creates an empty field set.
func NewFields() Fields {
	return Fields{}
}

// Component tags the emitting component.
func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

// Operation tags the operation being performed.
func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

// Upstream tags the external provider involved.
func (f Fields) Upstream(name string) Fields {
	f["upstream"] = name
	return f
}

// Keyword tags the keyword being processed, when set.
func (f Fields) Keyword(keyword string) Fields {
	if keyword != "" {
		f["keyword"] = keyword
	}
	return f
}

// Count records a generic element count.
func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

// Duration records elapsed time in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error records a non-nil error.
func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// StatusCode records an HTTP status code.
func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

// Method records an HTTP method.
func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

// Path records an HTTP request path.
func (f Fields) Path(path string) Fields {
	f["path"] = path
	return f
}

// ClientIP records the caller's address, when known.
func (f Fields) ClientIP(ip string) Fields {
	if ip != "" {
		f["client_ip"] = ip
	}
	return f
}

// Custom sets an arbitrary key.
func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToZap converts the field set to zap fields.
func (f Fields) ToZap() []zap.Field {
	zapFields := make([]zap.Field, 0, len(f))
	for key, value := range f {
		zapFields = append(zapFields, zap.Any(key, value))
	}
	return zapFields
}
