package errutil

import (
	"context"

	"github.com/edgerpc/mqttrpc/protocol/errors"
)

// Mqtt translates a transport-level publish/subscribe failure into a
// protocol error. The underlying mqtt.Client implementation is responsible
// for turning a failed PUBACK/SUBACK reason code into a returned error; this
// only needs to classify it and fold in any context cancellation.
func Mqtt(ctx context.Context, msg string, err error) error {
	if err == nil {
		return nil
	}

	// An error from the incoming context overrides any returned error.
	if ctxErr := Context(ctx, msg); ctxErr != nil {
		return ctxErr
	}

	if _, ok := err.(*errors.Error); ok {
		return Normalize(err, msg)
	}
	return &errors.Error{
		Message:     msg + ": " + err.Error(),
		Kind:        errors.MqttError,
		NestedError: err,
	}
}
