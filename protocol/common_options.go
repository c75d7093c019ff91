package protocol

import (
	"log/slog"
	"maps"
	"time"
)

type (
	// WithConcurrency bounds how many handler invocations can execute in
	// parallel (spec.md §5's bounded-concurrency invariant).
	WithConcurrency uint

	// WithTimeout applies a context timeout to an invocation or handler
	// execution, as appropriate to the option target.
	WithTimeout time.Duration

	// WithShareName connects a command executor to a shared MQTT
	// subscription group, letting multiple executor processes load-balance
	// requests for the same command.
	WithShareName string

	// WithTopicTokens specifies topic token values.
	WithTopicTokens map[string]string

	// WithTopicTokenNamespace specifies a namespace prepended to all
	// previously-specified topic tokens. Tokens specified after this option
	// are not namespaced, letting it separate user tokens from system ones.
	WithTopicTokenNamespace string

	// WithMetadata specifies user-provided metadata values, carried as
	// non-protocol MQTT user properties.
	WithMetadata map[string]string

	// WithTopicNamespace specifies a namespace prepended to the topic
	// pattern itself.
	WithTopicNamespace string

	// WithFencingToken attaches a fencing token to a request, letting the
	// executor reject stale requests from a superseded invoker generation.
	WithFencingToken string

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

func (o WithConcurrency) commandExecutor(opt *CommandExecutorOptions) {
	opt.Concurrency = uint(o)
}

func (WithConcurrency) option() {}

func (o WithTimeout) commandExecutor(opt *CommandExecutorOptions) {
	opt.Timeout = time.Duration(o)
}

func (o WithTimeout) invoke(opt *InvokeOptions) {
	opt.Timeout = time.Duration(o)
}

func (WithTimeout) option() {}

func (o WithShareName) commandExecutor(opt *CommandExecutorOptions) {
	opt.ShareName = string(o)
}

func (WithShareName) option() {}

func (o WithTopicNamespace) commandExecutor(opt *CommandExecutorOptions) {
	opt.TopicNamespace = string(o)
}

func (o WithTopicNamespace) commandInvoker(opt *CommandInvokerOptions) {
	opt.TopicNamespace = string(o)
}

func (WithTopicNamespace) option() {}

func (o WithTopicTokens) apply(tokens map[string]string) map[string]string {
	if tokens == nil {
		tokens = make(map[string]string, len(o))
	}
	maps.Copy(tokens, o)
	return tokens
}

func (o WithTopicTokens) commandExecutor(opt *CommandExecutorOptions) {
	opt.TopicTokens = o.apply(opt.TopicTokens)
}

func (o WithTopicTokens) commandInvoker(opt *CommandInvokerOptions) {
	opt.TopicTokens = o.apply(opt.TopicTokens)
}

func (o WithTopicTokens) invoke(opt *InvokeOptions) {
	opt.TopicTokens = o.apply(opt.TopicTokens)
}

func (WithTopicTokens) option() {}

func (o WithTopicTokenNamespace) apply(
	tokens map[string]string,
) map[string]string {
	result := make(map[string]string, len(tokens))
	for token, value := range tokens {
		result[string(o)+token] = value
	}
	return result
}

func (o WithTopicTokenNamespace) commandExecutor(opt *CommandExecutorOptions) {
	opt.TopicTokens = o.apply(opt.TopicTokens)
}

func (o WithTopicTokenNamespace) commandInvoker(opt *CommandInvokerOptions) {
	opt.TopicTokens = o.apply(opt.TopicTokens)
}

func (o WithTopicTokenNamespace) invoke(opt *InvokeOptions) {
	opt.TopicTokens = o.apply(opt.TopicTokens)
}

func (WithTopicTokenNamespace) option() {}

func (o WithMetadata) apply(values map[string]string) map[string]string {
	if values == nil {
		values = make(map[string]string, len(o))
	}
	maps.Copy(values, o)
	return values
}

func (o WithMetadata) invoke(opt *InvokeOptions) {
	opt.Metadata = o.apply(opt.Metadata)
}

func (o WithMetadata) respond(opt *RespondOptions) {
	opt.Metadata = o.apply(opt.Metadata)
}

func (WithMetadata) option() {}

func (o WithFencingToken) invoke(opt *InvokeOptions) {
	opt.FencingToken = string(o)
}

// WithFencingToken may also be supplied at invoker construction time to set
// the default fencing token attached to every subsequent Invoke call, per
// the spec's supplemented fencing-token propagation feature. A per-call
// WithFencingToken on Invoke overrides this default.
func (o WithFencingToken) commandInvoker(opt *CommandInvokerOptions) {
	opt.FencingToken = string(o)
}

func (WithFencingToken) option() {}

// WithLogger enables structured logging with the provided slog logger.
func WithLogger(logger *slog.Logger) interface {
	Option
	ApplicationOption
	CommandExecutorOption
	CommandInvokerOption
} {
	return withLogger{logger}
}

func (o withLogger) application(opt *ApplicationOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) commandExecutor(opt *CommandExecutorOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) commandInvoker(opt *CommandInvokerOptions) {
	opt.Logger = o.Logger
}

func (withLogger) option() {}
