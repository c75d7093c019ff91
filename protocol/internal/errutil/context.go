// Package errutil provides helpers shared by the executor and invoker for
// normalizing errors, translating them to and from MQTT user properties, and
// marking errors that must never cross the wire.
package errutil

import (
	"context"

	"github.com/edgerpc/mqttrpc/protocol/errors"
)

// Normalize converts context and standard-library errors into protocol
// errors; it delegates to errors.Normalize.
func Normalize(err error, msg string) error {
	return errors.Normalize(err, msg)
}

// Context extracts the timeout or cancellation error from a context,
// delegating to errors.Context.
func Context(ctx context.Context, msg string) error {
	return errors.Context(ctx, msg)
}
