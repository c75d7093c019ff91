package errutil

import (
	"fmt"
	"strconv"

	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/edgerpc/mqttrpc/protocol/internal/constants"
	"github.com/edgerpc/mqttrpc/protocol/internal/version"
	"github.com/sosodev/duration"
)

type result struct {
	status            int
	message           string
	application       bool
	name              string
	value             any
	version           string
	supportedVersions []int
}

// ToUserProp renders an error (or nil, for success) into the set of MQTT user
// properties a response carries, per the wire mapping in spec.md §7.
func ToUserProp(err error) map[string]string {
	if err == nil {
		return (&result{status: 200}).props()
	}

	e, ok := err.(*errors.Error)
	if !ok {
		return (&result{status: 500, message: "invalid error"}).props()
	}

	switch e.Kind {
	case errors.HeaderMissing:
		return (&result{
			status:  400,
			message: e.Message,
			name:    e.HeaderName,
		}).props()

	case errors.HeaderInvalid:
		if e.HeaderName == constants.ContentType ||
			e.HeaderName == constants.FormatIndicator {
			return (&result{
				status:  415,
				message: e.Message,
				name:    e.HeaderName,
				value:   e.HeaderValue,
			}).props()
		}
		return (&result{
			status:  400,
			message: e.Message,
			name:    e.HeaderName,
			value:   e.HeaderValue,
		}).props()

	case errors.PayloadInvalid:
		return (&result{status: 400, message: e.Message}).props()

	case errors.Timeout:
		return (&result{
			status:  408,
			message: e.Message,
			name:    e.TimeoutName,
			value:   duration.Format(e.TimeoutValue),
		}).props()

	case errors.StateInvalid:
		return (&result{
			status:  503,
			message: e.Message,
			name:    e.PropertyName,
		}).props()

	case errors.InternalLogicError:
		return (&result{
			status:  500,
			message: e.Message,
			name:    e.PropertyName,
		}).props()

	case errors.UnknownError:
		return (&result{status: 500, message: e.Message}).props()

	case errors.ExecutionError:
		return (&result{
			status:      500,
			message:     e.Message,
			application: true,
		}).props()

	case errors.UnsupportedRequestVersion, errors.UnsupportedResponseVersion:
		return (&result{
			status:            505,
			message:           e.Message,
			version:           e.ProtocolVersion,
			supportedVersions: e.SupportedMajorProtocolVersions,
		}).props()

	default:
		return (&result{
			status:  500,
			message: "invalid error kind",
			name:    "Kind",
		}).props()
	}
}

// FromUserProp reconstructs the error a response carries from its MQTT user
// properties, or nil if the response indicates success.
func FromUserProp(user map[string]string) error {
	status := user[constants.Status]
	statusMessage := user[constants.StatusMessage]
	propertyName := user[constants.InvalidPropertyName]
	propertyValue := user[constants.InvalidPropertyValue]
	protocolVersion := user[constants.RequestProtocolVersion]
	supportedVersions := user[constants.SupportedProtocolMajorVersion]

	if status == "" {
		return &errors.Error{
			Message:    "status missing",
			Kind:       errors.HeaderMissing,
			HeaderName: constants.Status,
		}
	}

	code, err := strconv.ParseInt(status, 10, 32)
	if err != nil {
		return &errors.Error{
			Message:     "status is not a valid integer",
			Kind:        errors.HeaderInvalid,
			HeaderName:  constants.Status,
			HeaderValue: status,
			NestedError: err,
		}
	}

	// No error, we're done.
	if code < 400 {
		return nil
	}

	e := &errors.Error{Message: statusMessage, IsRemote: true}

	switch code {
	case 400, 415:
		switch {
		case propertyName == "" && propertyValue == "":
			e.Kind = errors.PayloadInvalid
		case propertyValue == "":
			e.Kind = errors.HeaderMissing
			e.HeaderName = propertyName
		default:
			e.Kind = errors.HeaderInvalid
			e.HeaderName = propertyName
			e.HeaderValue = propertyValue
		}

	case 408:
		to, err := duration.Parse(propertyValue)
		if err != nil {
			return &errors.Error{
				Message:     "invalid timeout value",
				Kind:        errors.HeaderInvalid,
				HeaderName:  constants.InvalidPropertyValue,
				HeaderValue: propertyValue,
				NestedError: err,
			}
		}
		e.Kind = errors.Timeout
		e.TimeoutName = propertyName
		e.TimeoutValue = to.ToTimeDuration()

	case 500:
		appErr := user[constants.IsApplicationError]
		switch {
		case appErr != "" && appErr != "false":
			e.Kind = errors.ExecutionError
		case propertyName != "":
			e.Kind = errors.InternalLogicError
			e.PropertyName = propertyName
		default:
			e.Kind = errors.UnknownError
		}

	case 503:
		e.Kind = errors.StateInvalid
		e.PropertyName = propertyName

	case 505:
		e.Kind = errors.UnsupportedResponseVersion
		e.ProtocolVersion = protocolVersion
		e.SupportedMajorProtocolVersions = version.ParseSupported(supportedVersions)

	default:
		// Treat unknown status as an unknown error, but otherwise allow them.
		e.Kind = errors.UnknownError
		e.PropertyName = propertyName
		if propertyValue != "" {
			e.PropertyValue = propertyValue
		}
	}

	return e
}

func (r *result) props() map[string]string {
	props := make(map[string]string, 5)

	props[constants.Status] = fmt.Sprint(r.status)

	props[constants.StatusMessage] = r.message
	if r.application {
		props[constants.IsApplicationError] = "true"
	}

	if r.name != "" {
		props[constants.InvalidPropertyName] = r.name
		if r.value != nil {
			props[constants.InvalidPropertyValue] = fmt.Sprint(r.value)
		}
	}

	if r.version != "" {
		props[constants.RequestProtocolVersion] = r.version
		props[constants.SupportedProtocolMajorVersion] = version.SerializeSupported(
			r.supportedVersions,
		)
	}

	return props
}
