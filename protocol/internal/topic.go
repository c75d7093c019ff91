// Package internal holds the unexported building blocks shared by the
// executor and invoker pipelines: topic pattern resolution, timeouts,
// options application, and bounded concurrency.
package internal

import (
	"maps"
	"regexp"
	"strings"

	"github.com/edgerpc/mqttrpc/protocol/errors"
)

type (
	// TopicPattern applies tokens to a named topic pattern, resolving it into
	// either a concrete publish topic or a subscription filter (spec.md §4.2).
	TopicPattern struct {
		name    string
		pattern string
		tokens  map[string]string
	}

	// TopicFilter is a resolved subscription filter that can parse named
	// tokens back out of a matching topic.
	TopicFilter struct {
		filter string
		regex  *regexp.Regexp
		names  []string
		tokens map[string]string
	}
)

const (
	topicLabel = `[^ "+#{}/]+`
	topicToken = `\{` + topicLabel + `\}`
	topicLevel = `(` + topicLabel + `|` + topicToken + `)`
	topicMatch = `(` + topicLabel + `)`
)

var (
	matchLabel = regexp.MustCompile(
		`^` + topicLabel + `$`,
	)
	matchToken = regexp.MustCompile(
		topicToken, // Lacks anchors because it is used for replacements.
	)
	matchTopic = regexp.MustCompile(
		`^` + topicLabel + `(/` + topicLabel + `)*$`,
	)
	matchPattern = regexp.MustCompile(
		`^` + topicLevel + `(/` + topicLevel + `)*$`,
	)
)

// ValidateTopicPatternComponent performs initial validation of a topic
// pattern component, such as a command name used to build a default pattern.
func ValidateTopicPatternComponent(
	name, msgOnErr, pattern string,
) error {
	if !matchPattern.MatchString(pattern) {
		return &errors.Error{
			Message:       msgOnErr,
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  name,
			PropertyValue: pattern,
		}
	}

	return nil
}

// NewTopicPattern creates a new topic pattern and performs initial
// validation, substituting any tokens that are already known at construction
// time (e.g. from command options rather than per-request arguments).
func NewTopicPattern(
	name, pattern string,
	tokens map[string]string,
	namespace string,
) (*TopicPattern, error) {
	if namespace != "" {
		if !ValidTopic(namespace) {
			return nil, &errors.Error{
				Message:       "invalid topic namespace",
				Kind:          errors.ConfigurationInvalid,
				PropertyName:  "TopicNamespace",
				PropertyValue: namespace,
			}
		}
		pattern = namespace + `/` + pattern
	}

	if !matchPattern.MatchString(pattern) {
		return nil, &errors.Error{
			Message:       "invalid topic pattern",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  name,
			PropertyValue: pattern,
		}
	}

	if err := validateTokens(errors.ConfigurationInvalid, tokens); err != nil {
		return nil, err
	}
	for token, value := range tokens {
		pattern = strings.ReplaceAll(pattern, `{`+token+`}`, value)
	}

	return &TopicPattern{name, pattern, tokens}, nil
}

// Topic fully resolves the pattern into a concrete topic for publishing,
// substituting the given per-call tokens.
func (tp *TopicPattern) Topic(tokens map[string]string) (string, error) {
	topic := tp.pattern

	if err := validateTokens(errors.ArgumentInvalid, tokens); err != nil {
		return "", err
	}
	for token, value := range tokens {
		topic = strings.ReplaceAll(topic, `{`+token+`}`, value)
	}

	if !ValidTopic(topic) {
		missingToken := matchToken.FindString(topic)
		if missingToken != "" {
			return "", &errors.Error{
				Message:      "invalid topic",
				Kind:         errors.ArgumentInvalid,
				PropertyName: missingToken[1 : len(missingToken)-1],
			}
		}

		return "", &errors.Error{
			Message:       "invalid topic",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  tp.name,
			PropertyValue: topic,
		}
	}
	return topic, nil
}

// Filter generates a subscription filter. Tokens left unresolved at this
// point are treated as "+" wildcards, per spec.md §4.2.
func (tp *TopicPattern) Filter() (*TopicFilter, error) {
	names := matchToken.FindAllString(tp.pattern, -1)
	for i, token := range names {
		names[i] = token[1 : len(token)-1]
	}

	escaped := regexp.QuoteMeta(tp.pattern)
	for _, token := range names {
		escaped = strings.ReplaceAll(escaped, `\{`+token+`\}`, topicMatch)
	}
	regex, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return nil, err
	}

	filter := matchToken.ReplaceAllString(tp.pattern, `+`)

	return &TopicFilter{filter, regex, names, tp.tokens}, nil
}

// Filter returns the MQTT topic filter string used to subscribe.
func (tf *TopicFilter) Filter() string {
	return tf.filter
}

// Tokens reports whether topic matches this filter and, if so, resolves its
// topic tokens (both the ones parsed from the topic and the ones fixed at
// construction time).
func (tf *TopicFilter) Tokens(topic string) (map[string]string, bool) {
	match := tf.regex.FindStringSubmatch(topic)
	if match == nil {
		return nil, false
	}

	tokens := make(map[string]string, len(tf.names)+len(tf.tokens))
	for i, val := range match[1:] {
		tokens[tf.names[i]] = val
	}
	maps.Copy(tokens, tf.tokens)
	return tokens, true
}

// ValidTopic reports whether the given string is a fully-resolved topic
// (no remaining tokens or wildcards).
func ValidTopic(topic string) bool {
	return matchTopic.MatchString(topic)
}

// ValidateShareName reports whether shareName is a valid MQTT shared
// subscription group name.
func ValidateShareName(shareName string) error {
	if shareName != "" && !matchLabel.MatchString(shareName) {
		return &errors.Error{
			Message:       "invalid share name",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "ShareName",
			PropertyValue: shareName,
		}
	}
	return nil
}

// validateTokens checks that all token names and values are well-formed
// topic labels, to give a more specific error than just testing the
// resulting topic would. kind varies between ConfigurationInvalid (tokens
// provided at construction) and ArgumentInvalid (tokens provided per-call).
func validateTokens(kind errors.Kind, tokens map[string]string) error {
	for k, v := range tokens {
		if !matchLabel.MatchString(k) || !matchLabel.MatchString(v) {
			return &errors.Error{
				Message:       "invalid topic token",
				Kind:          kind,
				PropertyName:  k,
				PropertyValue: v,
			}
		}
	}
	return nil
}
