package protocol

import (
	"encoding/json"
	stderr "errors"
	"fmt"

	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/edgerpc/mqttrpc/protocol/internal/constants"
)

type (
	// Encoding is a translation between a concrete Go type T and the wire
	// bytes carried in an MQTT payload. All methods must be thread-safe.
	Encoding[T any] interface {
		ContentType() string
		PayloadFormat() byte
		Serialize(T) ([]byte, error)
		Deserialize([]byte) (T, error)
	}

	// JSON is a simple JSON encoding of T.
	JSON[T any] struct{}

	// Empty represents a command with no request or response payload.
	Empty struct{}

	// Raw represents an uninterpreted byte stream.
	Raw struct{}
)

// ErrUnsupportedContentType should be returned from Deserialize if the
// payload's content type is not supported by this encoding.
var ErrUnsupportedContentType = stderr.New("unsupported content type")

// ContentType identifies JSON-encoded payloads.
func (JSON[T]) ContentType() string { return "application/json" }

// PayloadFormat reports that JSON payloads are UTF-8 text.
func (JSON[T]) PayloadFormat() byte { return 1 }

// Serialize translates the Go type T into JSON bytes.
func (JSON[T]) Serialize(t T) ([]byte, error) {
	return json.Marshal(t)
}

// Deserialize translates JSON bytes into the Go type T.
func (JSON[T]) Deserialize(payload []byte) (T, error) {
	var t T
	err := json.Unmarshal(payload, &t)
	return t, err
}

// ContentType reports no fixed content type for an empty payload.
func (Empty) ContentType() string { return "" }

// PayloadFormat reports that an empty payload carries no format.
func (Empty) PayloadFormat() byte { return 0 }

// Serialize ignores its argument and returns an empty payload.
func (Empty) Serialize(any) ([]byte, error) {
	return nil, nil
}

// Deserialize validates that the payload is empty.
func (Empty) Deserialize(payload []byte) (any, error) {
	if len(payload) != 0 {
		return nil, &errors.Error{
			Message: "unexpected payload for empty type",
			Kind:    errors.PayloadInvalid,
		}
	}
	return nil, nil
}

// ContentType reports the generic binary content type for raw payloads.
func (Raw) ContentType() string { return "application/octet-stream" }

// PayloadFormat reports that raw payloads are unspecified bytes.
func (Raw) PayloadFormat() byte { return 0 }

// Serialize returns the bytes unchanged.
func (Raw) Serialize(t []byte) ([]byte, error) {
	return t, nil
}

// Deserialize returns the bytes unchanged.
func (Raw) Deserialize(payload []byte) ([]byte, error) {
	return payload, nil
}

// serialize wraps Encoding.Serialize with protocol error handling, including
// recovery from a panicking user-supplied encoder.
func serialize[T any](encoding Encoding[T], value T) (data []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = payloadError("cannot serialize payload", p)
		}
	}()
	data, err = encoding.Serialize(value)
	if err != nil {
		return nil, payloadError("cannot serialize payload", err)
	}
	return data, nil
}

// deserialize wraps Encoding.Deserialize with protocol error handling.
func deserialize[T any](encoding Encoding[T], payload []byte) (value T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = payloadError("cannot deserialize payload", p)
		}
	}()
	value, err = encoding.Deserialize(payload)
	if err != nil {
		if stderr.Is(err, ErrUnsupportedContentType) {
			return value, &errors.Error{
				Message:    "content type mismatch",
				Kind:       errors.HeaderInvalid,
				HeaderName: constants.ContentType,
			}
		}
		return value, payloadError("cannot deserialize payload", err)
	}
	return value, nil
}

func payloadError(msg string, err any) error {
	switch e := err.(type) {
	case *errors.Error:
		return e
	case error:
		return &errors.Error{Message: msg, Kind: errors.PayloadInvalid, NestedError: e}
	default:
		return &errors.Error{
			Message:     msg,
			Kind:        errors.PayloadInvalid,
			NestedError: stderr.New(fmt.Sprint(e)),
		}
	}
}
