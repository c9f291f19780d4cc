package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Kind separates failures worth retrying from those that are not.
type Kind int

const (
	// Transient failures (network, timeout, 429, 5xx, unparseable reply)
	// are retried under the call's RetryPolicy.
	Transient Kind = iota
	// Permanent failures (bad credentials, rejected input) fail at once.
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// ServiceError is the only error type DescribeImage and ComposeArtifact return.
type ServiceError struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	msg := e.Op + ": " + e.Message
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a permanent ServiceError.
func IsPermanent(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == Permanent
}

// HTTPStatusError is returned by the REST backends for non-2xx replies.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ErrMalformedReply marks a reply that arrived but could not be used.
var ErrMalformedReply = errors.New("malformed reply")

// ErrInvalidInput marks a request that can never succeed as sent.
var ErrInvalidInput = errors.New("invalid input")

// Classify converts any backend error into a ServiceError.
func Classify(op string, err error) *ServiceError {
	if err == nil {
		return nil
	}

	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(op, apiErr.Code, err)
	}
	var apiVal genai.APIError
	if errors.As(err, &apiVal) {
		return classifyStatus(op, apiVal.Code, err)
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return classifyStatus(op, httpErr.StatusCode, err)
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return &ServiceError{Kind: Permanent, Op: op, Message: "request rejected before sending", Err: err}
	case errors.Is(err, ErrMalformedReply):
		return &ServiceError{Kind: Transient, Op: op, Message: "service reply could not be parsed", Err: err}
	case errors.Is(err, context.Canceled):
		return &ServiceError{Kind: Permanent, Op: op, Message: "call cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ServiceError{Kind: Transient, Op: op, Message: "call timed out", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ServiceError{Kind: Transient, Op: op, Message: "network error", Err: err}
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied"):
		log.Error().Err(err).Str("op", op).Msg("Invalid API key")
		return &ServiceError{Kind: Permanent, Op: op, Message: "API key is invalid or has been revoked", Err: err}

	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return &ServiceError{Kind: Transient, Op: op, Message: "quota exceeded or rate limited", Err: err}

	default:
		// Unknown failures are treated like network errors; the retry
		// budget bounds the cost.
		return &ServiceError{Kind: Transient, Op: op, Message: "service call failed", Err: err}
	}
}

func classifyStatus(op string, code int, err error) *ServiceError {
	switch {
	case code == 400:
		return &ServiceError{Kind: Permanent, Op: op, Message: "bad request", Err: err}
	case code == 401 || code == 403:
		log.Error().Int("code", code).Str("op", op).Msg("Service rejected credentials")
		return &ServiceError{Kind: Permanent, Op: op, Message: "API key is invalid or lacks permission", Err: err}
	case code == 404:
		return &ServiceError{Kind: Permanent, Op: op, Message: "model or endpoint not found", Err: err}
	case code == 408 || code == 429:
		return &ServiceError{Kind: Transient, Op: op, Message: "rate limited or timed out", Err: err}
	case code >= 500:
		return &ServiceError{Kind: Transient, Op: op, Message: "service unavailable", Err: err}
	default:
		return &ServiceError{Kind: Permanent, Op: op, Message: fmt.Sprintf("unexpected status %d", code), Err: err}
	}
}
