package translator

import (
	"context"
	"errors"
	"net"

	"github.com/MimeLyc/contextual-epub-translator/internal/llm"
)

// TransientError marks a failure worth retrying: throttling, server
// errors, timeouts, connection problems.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix: rejected
// requests, invalid model, malformed responses.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// classify wraps a backend failure as transient or permanent. Context
// cancellation passes through untouched so callers can distinguish
// shutdown from backend trouble.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Retryable() {
			return &TransientError{Err: err}
		}
		return &PermanentError{Err: err}
	}

	var apiErr *llm.Error
	if errors.As(err, &apiErr) {
		return &PermanentError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: err}
	}

	// Connection resets and refused connections land here.
	return &TransientError{Err: err}
}
