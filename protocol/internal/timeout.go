package internal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/edgerpc/mqttrpc/internal/wallclock"
	"github.com/edgerpc/mqttrpc/protocol/errors"
)

// Timeout is an optional duration with a name and description used to build
// deadline contexts and MQTT message-expiry values consistently.
type Timeout struct {
	time.Duration
	Name string
	Text string
}

// Validate reports whether the timeout is a well-formed, wire-representable
// duration.
func (to *Timeout) Validate() error {
	switch {
	case to.Duration < 0:
		return &errors.Error{
			Message:       "timeout cannot be negative",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "Timeout",
			PropertyValue: to.Duration,
		}

	case to.Seconds() > math.MaxUint32:
		return &errors.Error{
			Message:       "timeout too large",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "Timeout",
			PropertyValue: to.Duration,
		}

	default:
		return nil
	}
}

// Context derives a child context that is cancelled with a protocol Timeout
// error once this duration elapses. A zero duration yields a context with no
// deadline of its own.
func (to *Timeout) Context(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	if to.Duration == 0 {
		return context.WithCancel(ctx)
	}
	return wallclock.Instance.WithTimeoutCause(
		ctx,
		to.Duration,
		&errors.Error{
			Message:      fmt.Sprintf("%s timed out", to.Text),
			Kind:         errors.Timeout,
			TimeoutName:  to.Name,
			TimeoutValue: to.Duration,
		},
	)
}

// MessageExpiry returns this timeout as an MQTT v5 message-expiry-interval
// value, in whole seconds.
func (to *Timeout) MessageExpiry() uint32 {
	return uint32(to.Seconds())
}
