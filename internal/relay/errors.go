package relay

import (
	"errors"
	"fmt"
)

// HostNotAllowedError indicates the target hostname is outside the
// configured allow-list. Not retryable.
type HostNotAllowedError struct {
	Host string
}

func (e *HostNotAllowedError) Error() string {
	return fmt.Sprintf("host %q is not on the relay allow-list", e.Host)
}

// TransientError wraps a network failure or 5xx response that is worth
// retrying.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch failure for %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
