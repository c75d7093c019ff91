package errutil

import (
	"context"

	"github.com/edgerpc/mqttrpc/internal/log"
	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/google/uuid"
)

type noReturn struct{ error }

// NoReturn marks an error as one that must never be sent back over RPC (for
// example, a failure encountered while trying to build an error response).
func NoReturn(err error) error {
	return noReturn{err}
}

// IsNoReturn reports whether err is marked no-return, unwrapping it either
// way.
func IsNoReturn(err error) (bool, error) {
	if e, ok := err.(noReturn); ok {
		return true, e.error
	}
	return false, err
}

// Return prepares an error for returning to the calling application: it
// strips any no-return marker (since that only matters within the RPC
// response path), applies the shallow-logging flag, and logs the error as a
// warning.
func Return(err error, logger log.Logger, shallow bool) error {
	if e, ok := err.(noReturn); ok {
		err = e.error
	}
	if e, ok := err.(*errors.Error); ok {
		e.IsShallow = shallow
	}
	if err != nil {
		logger.Warn(context.Background(), err)
	}
	return err
}

// ValidateNonNil checks that a collection of named arguments are not nil.
func ValidateNonNil(args map[string]any) error {
	for k, v := range args {
		if v == nil {
			return &errors.Error{
				Message:      "argument is nil",
				Kind:         errors.ConfigurationInvalid,
				PropertyName: k,
			}
		}
	}
	return nil
}

// NewUUID generates a correlation-ready UUIDv7 string, wrapping any failure
// (entropy exhaustion) as a protocol error.
func NewUUID() (string, error) {
	correlation, err := uuid.NewV7()
	if err != nil {
		return "", &errors.Error{
			Message:     err.Error(),
			Kind:        errors.UnknownError,
			NestedError: err,
		}
	}
	return correlation.String(), nil
}
