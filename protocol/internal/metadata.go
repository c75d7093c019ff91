package internal

import "github.com/edgerpc/mqttrpc/protocol/internal/constants"

// PropToMetadata filters an incoming message's MQTT user properties down to
// the subset that represents user-supplied metadata, dropping protocol
// internal properties (the "__"-prefixed wire fields and the invoker-set
// partition property).
func PropToMetadata(user map[string]string) map[string]string {
	metadata := make(map[string]string, len(user))
	for k, v := range user {
		if isInternalProperty(k) {
			continue
		}
		metadata[k] = v
	}
	return metadata
}

// MetadataToProp copies user-supplied metadata into an outgoing message's
// user properties, rejecting keys that collide with protocol-internal names.
func MetadataToProp(metadata map[string]string) map[string]string {
	user := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if isInternalProperty(k) {
			continue
		}
		user[k] = v
	}
	return user
}

func isInternalProperty(key string) bool {
	return len(key) >= len(constants.Protocol) && key[:len(constants.Protocol)] == constants.Protocol ||
		key == constants.Partition
}
