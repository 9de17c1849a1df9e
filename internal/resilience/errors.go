package resilience

import "net/http"

// Class is the retry category of one request outcome.
type Class int

const (
	// ClassSuccess is a 2xx response with a schema-valid body.
	ClassSuccess Class = iota
	// ClassThrottled is a 429 or a transient 5xx (500, 502, 503, 504).
	ClassThrottled
	// ClassRejected is any other non-2xx status.
	ClassRejected
	// ClassMalformed is a 2xx response whose body fails schema validation.
	ClassMalformed
	// ClassNetwork is a transport failure: refused connection, timeout,
	// reset, or a body that is not JSON at all.
	ClassNetwork
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassThrottled:
		return "throttled"
	case ClassRejected:
		return "rejected"
	case ClassMalformed:
		return "malformed"
	case ClassNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Retryable reports whether the outcome calls for another attempt. Every
// failure class is retried; only the delay differs.
func (c Class) Retryable() bool {
	return c != ClassSuccess
}

// Outcome describes a single request attempt.
type Outcome struct {
	// StatusCode is the HTTP status, 0 when no response arrived.
	StatusCode int
	// Malformed is set when a 2xx body failed schema validation.
	Malformed bool
	// Err is a transport-level failure. It takes precedence over StatusCode.
	Err error
}

// Classify maps an attempt outcome to its retry class.
func Classify(o Outcome) Class {
	if o.Err != nil {
		return ClassNetwork
	}
	if IsTransientHTTPStatus(o.StatusCode) {
		return ClassThrottled
	}
	if o.StatusCode < http.StatusOK || o.StatusCode >= http.StatusMultipleChoices {
		return ClassRejected
	}
	if o.Malformed {
		return ClassMalformed
	}
	return ClassSuccess
}

// IsTransientHTTPStatus returns true for rate limiting and the 5xx statuses
// that are retried with escalating backoff.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
