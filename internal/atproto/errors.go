package atproto

import (
	"errors"
	"fmt"
)

// ErrRateLimited indicates the PDS rejected the request with HTTP 429.
// Retryable after backoff.
var ErrRateLimited = errors.New("PDS rate limit exceeded")

// ErrSessionExpired indicates the access token is no longer valid. The
// run must pause until a fresh session is supplied; retrying with the
// same session would fail every subsequent write.
var ErrSessionExpired = errors.New("session expired, re-authentication required")

// SchemaError is a permanent rejection: the PDS refused the record as
// invalid against the destination lexicon. The destination schema is
// versioned independently of this tool, so the verbatim reason must
// reach the operator.
type SchemaError struct {
	Code    string // XRPC error name, e.g. "InvalidRecord"
	Message string // Verbatim rejection reason from the PDS
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("record rejected by PDS (%s): %s", e.Code, e.Message)
}

// ServerError represents a 5xx response from the PDS. Retryable.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("PDS server error: HTTP %d", e.StatusCode)
}

// TransportError wraps a network-level failure. Retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("PDS request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error is worth retrying with the same
// session after a delay. Session expiry and schema rejections are not:
// the former needs re-auth, the latter will never succeed.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
