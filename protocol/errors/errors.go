// Package errors defines the protocol-wide error taxonomy described in
// spec.md §7: a single flat error type carrying a Kind, plus the context
// fields needed to render it to an MQTT user-property response or to a
// structured log line.
package errors

import "time"

type (
	// Error represents a structured protocol error. Every error the engine
	// returns to a caller, and every error it places on the wire, is one of
	// these.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		HeaderName  string
		HeaderValue string

		TimeoutName  string
		TimeoutValue time.Duration

		PropertyName  string
		PropertyValue any

		ProtocolVersion                string
		SupportedMajorProtocolVersions []int

		CorrelationID string
		CommandName   string

		// Set automatically by the library; callers should not set these.
		InApplication  bool
		IsShallow      bool
		IsRemote       bool
		HTTPStatusCode int
	}

	// Kind defines the type of error being thrown.
	Kind int
)

// The defined error kinds, matching spec.md §7.
const (
	HeaderMissing Kind = iota
	HeaderInvalid
	PayloadInvalid
	Timeout
	Cancellation
	ConfigurationInvalid
	ArgumentInvalid
	StateInvalid
	InternalLogicError
	UnknownError
	InvocationError
	ExecutionError
	MqttError
	UnsupportedRequestVersion
	UnsupportedResponseVersion
)

// Error returns the error as a string.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the nested error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.NestedError
}
