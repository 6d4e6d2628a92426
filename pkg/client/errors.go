package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorKind is the closed taxonomy of fetch failures.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindNotFound    ErrorKind = "not_found"
	KindValidation  ErrorKind = "validation"
	KindAuth        ErrorKind = "auth"
	KindServer      ErrorKind = "server"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindProtocol    ErrorKind = "protocol"
	KindUnknown     ErrorKind = "unknown"
)

// Retryable reports whether failures of this kind are transient.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServer, KindTimeout, KindNetwork, KindProtocol:
		return true
	default:
		// not_found, validation, auth and unknown are permanent
		return false
	}
}

// APIError is a classified fetch failure.
// Kind and Retryable are always set together by NewAPIError.
type APIError struct {
	Kind       ErrorKind
	Retryable  bool
	StatusCode int // 0 when the failure happened below HTTP
	Message    string
	Err        error
}

// NewAPIError builds an APIError whose Retryable flag is derived from kind.
func NewAPIError(kind ErrorKind, statusCode int, message string, err error) *APIError {
	return &APIError{
		Kind:       kind,
		Retryable:  kind.Retryable(),
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("FEC %s error (status %d): %s: %v", e.Kind, e.StatusCode, e.Message, e.Err)
		}
		return fmt.Sprintf("FEC %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("FEC %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("FEC %s error: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx HTTP response, prior to classification.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s from %s", e.Status, e.URL)
}

// ProtocolError is a response whose body could not be decoded as a page envelope.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed response envelope: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Classify maps an error to the fetch error taxonomy.
//
// Status checks run before transport checks: some transports surface status
// failures as generic errors, and the status code is the stronger signal.
func Classify(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, err)
	}

	switch {
	case isTimeout(err):
		return NewAPIError(KindTimeout, 0, "request timed out", err)
	case isNetwork(err):
		return NewAPIError(KindNetwork, 0, "connection failed", err)
	case isProtocol(err):
		return NewAPIError(KindProtocol, 0, "malformed response", err)
	default:
		return NewAPIError(KindUnknown, 0, "request failed", err)
	}
}

func classifyStatus(code int, err error) *APIError {
	msg := http.StatusText(code)
	if msg == "" {
		msg = fmt.Sprintf("status %d", code)
	}

	switch {
	case code == http.StatusTooManyRequests:
		return NewAPIError(KindRateLimited, code, msg, err)
	case code == http.StatusNotFound:
		return NewAPIError(KindNotFound, code, msg, err)
	case code == http.StatusBadRequest:
		return NewAPIError(KindValidation, code, msg, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewAPIError(KindAuth, code, msg, err)
	case code >= 500:
		return NewAPIError(KindServer, code, msg, err)
	default:
		return NewAPIError(KindUnknown, code, msg, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetwork(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	// a truncated body inside a decoded envelope is framing, not connectivity
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func isProtocol(err error) bool {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}
