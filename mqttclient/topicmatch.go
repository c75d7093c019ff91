package mqttclient

import "strings"

const sharedPrefix = "$share/"

// isTopicFilterMatch checks if a topic name matches a topic filter,
// including MQTT v5 shared-subscription filters ($share/<group>/...).
func isTopicFilterMatch(topicFilter, topicName string) bool {
	if tf, ok := strings.CutPrefix(topicFilter, sharedPrefix); ok {
		idx := strings.Index(tf, "/")
		if idx == -1 {
			return false
		}
		topicFilter = tf[idx+1:]
	}

	filters := strings.Split(topicFilter, "/")
	names := strings.Split(topicName, "/")

	for i, filter := range filters {
		if filter == "#" {
			return i == len(filters)-1
		}
		if filter == "+" {
			continue
		}
		if i >= len(names) || filter != names[i] {
			return false
		}
	}

	return len(filters) == len(names)
}
