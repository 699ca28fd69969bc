package etherscan

import (
	"errors"
	"fmt"
)

// Definitive explorer answers. Neither is retried.
var (
	// ErrSourceNotFound means the source explorer holds no verified source
	// for the address.
	ErrSourceNotFound = errors.New("contract source not verified")

	// ErrAlreadyVerified means the target explorer already holds verified
	// source for the address.
	ErrAlreadyVerified = errors.New("contract already verified")
)

// RejectedError is a synchronous rejection of a request payload, such as a
// malformed compiler version. Definitive, never retried.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("request rejected: %s", e.Reason)
}

// TransientError wraps a network failure, server error, or explorer
// throttling response that may succeed on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
