package errors

import (
	"context"
	stderr "errors"
	"fmt"
	"os"
)

// Normalize well-known errors into protocol errors.
func Normalize(err error, msg string) error {
	if e, ok := err.(*Error); ok {
		return e
	}

	switch {
	case err == nil:
		return nil

	case os.IsTimeout(err), stderr.Is(err, context.DeadlineExceeded):
		return &Error{
			Message: fmt.Sprintf("%s timed out", msg),
			Kind:    Timeout,
		}

	case stderr.Is(err, context.Canceled):
		return &Error{
			Message: fmt.Sprintf("%s cancelled", msg),
			Kind:    Cancellation,
		}

	default:
		return &Error{
			Message:     fmt.Sprintf("%s error: %s", msg, err.Error()),
			Kind:        UnknownError,
			NestedError: err,
		}
	}
}

// Context extracts the timeout or cancellation error from a context. If the
// context was cancelled with a cause that is already a protocol error, it is
// returned unwrapped; any other cause is normalized.
func Context(ctx context.Context, msg string) error {
	if err := context.Cause(ctx); err != nil {
		if e, ok := err.(*Error); ok {
			return e
		}
		return Normalize(err, msg)
	}
	return Normalize(ctx.Err(), msg)
}
