// Package constants centralizes the wire-level names used by the protocol
// engine: MQTT user property keys and human-readable MQTT property names for
// error messages (spec.md §7).
package constants

// Protocol user property keys, carried as MQTT v5 user properties on every
// request and response.
const (
	Protocol = "__"

	InvokerClientID = Protocol + "invId"
	Timestamp       = Protocol + "ts"
	FencingToken    = Protocol + "ft"
	ProtocolVersion = Protocol + "protVer"

	Status                        = Protocol + "stat"
	StatusMessage                 = Protocol + "stMsg"
	IsApplicationError            = Protocol + "apErr"
	InvalidPropertyName           = Protocol + "propName"
	InvalidPropertyValue          = Protocol + "propVal"
	SupportedProtocolMajorVersion = Protocol + "supProtMajVer"
	RequestProtocolVersion        = Protocol + "requestProtVer"
)

// Partition is the user property, set by the invoker, used for
// shared-subscription partition affinity.
const Partition = "$partition"

// Standard names for MQTT properties, used in error messages that reference
// the offending property.
const (
	ContentType     = "Content Type"
	FormatIndicator = "Payload Format Indicator"
	CorrelationData = "Correlation Data"
	ResponseTopic   = "Response Topic"
	MessageExpiry   = "Message Expiry"
)
