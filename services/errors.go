package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sony/gobreaker/v2"
)

// Failure classes of every upstream call. Call sites test them with errors.Is.
var (
	// ErrTransport means the request never produced an HTTP response
	ErrTransport = errors.New("transport failure")

	// ErrHTTPStatus means the upstream answered with a non-2xx status
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrMalformedResponse means the body could not be decoded
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUpstream means the body decoded but reported success=false
	ErrUpstream = errors.New("upstream reported failure")

	// ErrMissingAPIKey means an operation that requires the internal API key
	// was attempted without one
	ErrMissingAPIKey = errors.New("internal API key is not set")
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Message    string // the body's "error" field, when there is one
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

// UpstreamError carries the message of a success=false response
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string { return e.Message }

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// upstreamError builds an UpstreamError, substituting fallback for an empty message
func upstreamError(message, fallback string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = fallback
	}
	return &UpstreamError{Message: message}
}

// countsAsBreakerSuccess reports whether err says nothing about the health
// of the upstream service
func countsAsBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrMissingAPIKey) ||
		errors.Is(err, context.Canceled)
}

// categorizeAPIError categorizes an error for metrics purposes
func categorizeAPIError(err error) string {
	if err == nil {
		return "none"
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrMissingAPIKey):
		return "missing_key"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 429:
			return "rate_limit"
		case statusErr.StatusCode == 401 || statusErr.StatusCode == 403:
			return "auth_error"
		default:
			return "http_status"
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, "timeout", "deadline"):
		return "timeout"
	case containsAny(errStr, "rate limit", "429"):
		return "rate_limit"
	case containsAny(errStr, "unauthorized", "401"):
		return "auth_error"
	case errors.Is(err, ErrTransport), containsAny(errStr, "connection", "network"):
		return "connection_error"
	default:
		return "unknown"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
