package protocol

import (
	"github.com/edgerpc/mqttrpc/protocol/hlc"
)

type (
	// Message contains the common request/response data exposed to command
	// handlers and response callbacks.
	Message[T any] struct {
		// Payload is the decoded command payload.
		Payload T

		// CorrelationData is the correlation id that identifies this
		// request uniquely, formatted as a UUID string.
		CorrelationData string

		// Timestamp is the HLC timestamp the sender stamped the message with.
		Timestamp hlc.HybridLogicalClock

		// TopicTokens are all topic tokens resolved from the incoming topic.
		TopicTokens map[string]string

		// Metadata holds any user-provided metadata values.
		Metadata map[string]string
	}

	// Option represents any of the option types, filtered and applied by the
	// Apply methods on the option structs.
	Option interface{ option() }
)
