package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantKind      ErrorKind
		wantRetryable bool
		wantStatus    int
	}{
		{"429 rate limited", &StatusError{StatusCode: 429}, KindRateLimited, true, 429},
		{"404 not found", &StatusError{StatusCode: 404}, KindNotFound, false, 404},
		{"400 validation", &StatusError{StatusCode: 400}, KindValidation, false, 400},
		{"401 auth", &StatusError{StatusCode: 401}, KindAuth, false, 401},
		{"403 auth", &StatusError{StatusCode: 403}, KindAuth, false, 403},
		{"500 server", &StatusError{StatusCode: 500}, KindServer, true, 500},
		{"503 server", &StatusError{StatusCode: 503}, KindServer, true, 503},
		{"418 unknown", &StatusError{StatusCode: 418}, KindUnknown, false, 418},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout, true, 0},
		{"net timeout", &net.DNSError{Err: "i/o timeout", IsTimeout: true}, KindTimeout, true, 0},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.open.fec.gov"}, KindNetwork, true, 0},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, KindNetwork, true, 0},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindNetwork, true, 0},
		{"unexpected eof", io.ErrUnexpectedEOF, KindNetwork, true, 0},
		{"protocol error", &ProtocolError{Err: errors.New("bad envelope")}, KindProtocol, true, 0},
		{"truncated envelope", &ProtocolError{Err: io.ErrUnexpectedEOF}, KindProtocol, true, 0},
		{"json syntax", &json.SyntaxError{Offset: 3}, KindProtocol, true, 0},
		{"json type", &json.UnmarshalTypeError{Value: "string"}, KindProtocol, true, 0},
		{"context canceled", context.Canceled, KindUnknown, false, 0},
		{"anything else", errors.New("boom"), KindUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
			if got.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.wantStatus)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error does not wrap the original")
			}
		})
	}
}

func TestClassify_StatusBeatsTransport(t *testing.T) {
	err := fmt.Errorf("%w: %w", &StatusError{StatusCode: 503}, context.DeadlineExceeded)

	got := Classify(err)
	if got.Kind != KindServer {
		t.Errorf("Kind = %v, want %v", got.Kind, KindServer)
	}
	if got.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", got.StatusCode)
	}
}

func TestClassify_AlreadyClassified(t *testing.T) {
	original := NewAPIError(KindAuth, 401, "Unauthorized", nil)
	wrapped := fmt.Errorf("fetch: %w", original)

	if got := Classify(wrapped); got != original {
		t.Errorf("Classify() = %v, want the wrapped *APIError", got)
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

func TestErrorKind_Retryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindRateLimited, true},
		{KindServer, true},
		{KindTimeout, true},
		{KindNetwork, true},
		{KindProtocol, true},
		{KindNotFound, false},
		{KindValidation, false},
		{KindAuth, false},
		{KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "with status and cause",
			err:  NewAPIError(KindServer, 502, "Bad Gateway", errors.New("upstream")),
			want: "FEC server error (status 502): Bad Gateway: upstream",
		},
		{
			name: "with status only",
			err:  NewAPIError(KindNotFound, 404, "Not Found", nil),
			want: "FEC not_found error (status 404): Not Found",
		},
		{
			name: "transport failure",
			err:  NewAPIError(KindNetwork, 0, "connection failed", syscall.ECONNREFUSED),
			want: "FEC network error: connection failed: connection refused",
		},
		{
			name: "message only",
			err:  NewAPIError(KindUnknown, 0, "request failed", nil),
			want: "FEC unknown error: request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewAPIError(KindServer, 500, "Internal Server Error", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the cause")
	}

	if NewAPIError(KindServer, 500, "x", nil).Unwrap() != nil {
		t.Error("Unwrap() should return nil without a cause")
	}
}
