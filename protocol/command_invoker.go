package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgerpc/mqttrpc/internal/log"
	"github.com/edgerpc/mqttrpc/internal/wallclock"
	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/edgerpc/mqttrpc/protocol/internal"
	"github.com/edgerpc/mqttrpc/protocol/internal/constants"
	"github.com/edgerpc/mqttrpc/protocol/internal/container"
	"github.com/edgerpc/mqttrpc/protocol/internal/errutil"
	"github.com/edgerpc/mqttrpc/protocol/internal/version"
	"github.com/edgerpc/mqttrpc/protocol/mqtt"
)

type (
	// CommandInvoker provides the ability to invoke a single command over
	// MQTT, publishing a request and waiting for the matching response
	// (spec.md §5, the invoker side of the pipeline).
	CommandInvoker[Req any, Res any] struct {
		publisher     *publisher[Req]
		listener      *listener[Res]
		responseTopic *internal.TopicPattern
		log           log.Logger

		defaultFencingToken string
		pending             container.SyncMap[string, commandPending[Res]]
	}

	// CommandInvokerOption represents a single command invoker option.
	CommandInvokerOption interface{ commandInvoker(*CommandInvokerOptions) }

	// CommandInvokerOptions are the resolved command invoker options.
	CommandInvokerOptions struct {
		ResponseTopicPattern string
		ResponseTopicPrefix  string
		ResponseTopicSuffix  string
		FencingToken         string

		TopicNamespace string
		TopicTokens    map[string]string
		Logger         *slog.Logger
	}

	// InvokeOption represents a single per-invoke option.
	InvokeOption interface{ invoke(*InvokeOptions) }

	// InvokeOptions are the resolved per-invoke options.
	InvokeOptions struct {
		Timeout      time.Duration
		TopicTokens  map[string]string
		Metadata     map[string]string
		FencingToken string
	}

	// WithResponseTopicPattern specifies a custom response topic pattern.
	// This overrides any provided response topic prefix or suffix.
	WithResponseTopicPattern string

	// WithResponseTopicPrefix specifies a custom prefix for the response
	// topic. If no response topic options are given, this defaults to
	// "clients/<MQTT client ID>".
	WithResponseTopicPrefix string

	// WithResponseTopicSuffix specifies a custom suffix for the response
	// topic.
	WithResponseTopicSuffix string

	// A pair of return channel (to deliver the response on) and done channel
	// (to stop the wait once the invocation is no longer listening), plus
	// the time the invocation started, for diagnostics.
	commandPending[Res any] struct {
		ret   chan<- commandReturn[Res]
		done  <-chan struct{}
		since time.Time
	}
)

const commandInvokerErrStr = "command invocation"

// NewCommandInvoker creates a new command invoker for requestTopicPattern.
func NewCommandInvoker[Req, Res any](
	app *Application,
	client mqtt.Client,
	requestEncoding Encoding[Req],
	responseEncoding Encoding[Res],
	requestTopicPattern string,
	opt ...CommandInvokerOption,
) (ci *CommandInvoker[Req, Res], err error) {
	var opts CommandInvokerOptions
	opts.Apply(opt)
	logger := log.Wrap(opts.Logger)

	defer func() { err = errutil.Return(err, logger, true) }()

	if err := errutil.ValidateNonNil(map[string]any{
		"app":              app,
		"client":           client,
		"requestEncoding":  requestEncoding,
		"responseEncoding": responseEncoding,
	}); err != nil {
		return nil, err
	}

	responseTopicPattern := opts.ResponseTopicPattern
	if responseTopicPattern == "" {
		responseTopicPattern = requestTopicPattern

		if opts.ResponseTopicPrefix != "" {
			err = internal.ValidateTopicPatternComponent(
				"responseTopicPrefix",
				"invalid response topic prefix",
				opts.ResponseTopicPrefix,
			)
			if err != nil {
				return nil, err
			}
			responseTopicPattern = opts.ResponseTopicPrefix + "/" + responseTopicPattern
		}
		if opts.ResponseTopicSuffix != "" {
			err = internal.ValidateTopicPatternComponent(
				"responseTopicSuffix",
				"invalid response topic suffix",
				opts.ResponseTopicSuffix,
			)
			if err != nil {
				return nil, err
			}
			responseTopicPattern = responseTopicPattern + "/" + opts.ResponseTopicSuffix
		}

		// With no explicit topic options, fall back to a well-known prefix.
		// This keeps the response topic distinct from the request topic and
		// gives a fixed pattern that can be documented for auth
		// configuration. It deliberately avoids topic tokens, since their
		// presence cannot be guaranteed.
		if opts.ResponseTopicPrefix == "" && opts.ResponseTopicSuffix == "" {
			responseTopicPattern = "clients/" + client.ClientID() + "/" + requestTopicPattern
		}
	}

	reqTP, err := internal.NewTopicPattern(
		"requestTopicPattern",
		requestTopicPattern,
		opts.TopicTokens,
		opts.TopicNamespace,
	)
	if err != nil {
		return nil, err
	}

	resTP, err := internal.NewTopicPattern(
		"responseTopicPattern",
		responseTopicPattern,
		opts.TopicTokens,
		opts.TopicNamespace,
	)
	if err != nil {
		return nil, err
	}

	resTF, err := resTP.Filter()
	if err != nil {
		return nil, err
	}

	ci = &CommandInvoker[Req, Res]{
		responseTopic:       resTP,
		log:                 logger,
		defaultFencingToken: opts.FencingToken,
		pending:             container.NewSyncMap[string, commandPending[Res]](),
	}
	ci.publisher = &publisher[Req]{
		app:      app,
		client:   client,
		encoding: requestEncoding,
		topic:    reqTP,
		log:      logger,
		version:  version.ProtocolString,
	}
	ci.listener = &listener[Res]{
		app:            app,
		client:         client,
		encoding:       responseEncoding,
		topic:          resTF,
		reqCorrelation: true,
		logger:         logger,
		handler:        ci,
	}

	if err := ci.listener.register(); err != nil {
		return nil, err
	}
	return ci, nil
}

// Invoke calls the command and blocks until the response arrives or the
// invocation times out. Any parallelism between invocations is up to the
// caller; a single invoker may have many invocations in flight at once.
func (ci *CommandInvoker[Req, Res]) Invoke(
	ctx context.Context,
	req Req,
	opt ...InvokeOption,
) (res *CommandResponse[Res], err error) {
	shallow := true
	defer func() { err = errutil.Return(err, ci.log, shallow) }()

	var opts InvokeOptions
	opts.Apply(opt)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	expiry := &internal.Timeout{
		Duration: timeout,
		Name:     "MessageExpiry",
		Text:     commandInvokerErrStr,
	}
	if err := expiry.Validate(); err != nil {
		return nil, err
	}

	correlationData, err := errutil.NewUUID()
	if err != nil {
		return nil, err
	}

	fencingToken := opts.FencingToken
	if fencingToken == "" {
		fencingToken = ci.defaultFencingToken
	}

	msg := &Message[Req]{
		CorrelationData: correlationData,
		Payload:         req,
		Metadata:        opts.Metadata,
	}
	pub, err := ci.publisher.build(msg, opts.TopicTokens, expiry, fencingToken)
	if err != nil {
		return nil, err
	}

	pub.UserProperties[constants.Partition] = ci.publisher.client.ClientID()
	pub.ResponseTopic, err = ci.responseTopic.Topic(opts.TopicTokens)
	if err != nil {
		return nil, err
	}

	listen, done := ci.initPending(string(pub.CorrelationData))
	defer done()

	shallow = false
	err = ci.publisher.publish(ctx, pub)
	if err != nil {
		return nil, err
	}

	ci.log.Debug(
		ctx,
		"request sent",
		slog.String("correlation_data", correlationData),
	)

	// Time out our own wait once the request's message expiry elapses, so we
	// stop listening for a response that can no longer arrive.
	ctx, cancel := expiry.Context(ctx)
	defer cancel()

	select {
	case res := <-listen:
		return res.res, res.err
	case <-ctx.Done():
		return nil, errutil.Context(ctx, commandInvokerErrStr)
	}
}

// initPending registers a channel pair to receive the response for
// correlation, returning the receive side and a cleanup function.
func (ci *CommandInvoker[Req, Res]) initPending(
	correlation string,
) (<-chan commandReturn[Res], func()) {
	ret := make(chan commandReturn[Res])
	done := make(chan struct{})
	ci.pending.Store(correlation, commandPending[Res]{ret, done, wallclock.Instance.Now().UTC()})
	return ret, func() {
		ci.pending.Delete(correlation)
		close(done)
	}
}

// sendPending delivers a completed invocation's result to whichever
// goroutine is waiting on it, if any.
func (ci *CommandInvoker[Req, Res]) sendPending(
	ctx context.Context,
	pub *mqtt.Message,
	res *CommandResponse[Res],
	err error,
) error {
	defer ci.listener.ack(ctx, pub)

	cdata := string(pub.CorrelationData)
	if pending, ok := ci.pending.Load(cdata); ok {
		select {
		case pending.ret <- commandReturn[Res]{res, err}:
			ci.log.Debug(
				ctx,
				"request ack received",
				slog.String("correlation_data", cdata),
			)
		case <-pending.done:
		case <-ctx.Done():
		}
		ci.log.Debug(
			ctx,
			"response acked",
			slog.String("correlation_data", cdata),
		)
		return nil
	}

	ci.log.Debug(
		ctx,
		"response not for this invoker",
		slog.String("correlation_data", cdata),
	)
	return &errors.Error{
		Message:     "unrecognized correlation data",
		Kind:        errors.HeaderInvalid,
		HeaderName:  constants.CorrelationData,
		HeaderValue: cdata,
	}
}

// Start listening on the response topic. Must be called before any calls to
// Invoke.
func (ci *CommandInvoker[Req, Res]) Start(ctx context.Context) error {
	return ci.listener.listen(ctx)
}

// Close the command invoker, freeing its resources.
func (ci *CommandInvoker[Req, Res]) Close() {
	ci.listener.close()
}

func (ci *CommandInvoker[Req, Res]) onMsg(
	ctx context.Context,
	pub *mqtt.Message,
	msg *Message[Res],
) error {
	var res *CommandResponse[Res]
	err := errutil.FromUserProp(pub.UserProperties)
	if err == nil {
		msg.Payload, err = ci.listener.payload(pub)
		if err == nil {
			res = &CommandResponse[Res]{*msg}
		}
	}
	if e := ci.sendPending(ctx, pub, res, err); e != nil {
		// If sendPending fails, onErr would fail too, so just drop it.
		ci.listener.drop(ctx, pub, e)
	}
	ci.log.Debug(
		ctx,
		"response received",
		slog.Any("correlation_data", pub.CorrelationData),
	)
	return nil
}

func (ci *CommandInvoker[Req, Res]) onErr(
	ctx context.Context,
	pub *mqtt.Message,
	err error,
) error {
	if e, ok := err.(*errors.Error); ok && e.Kind == errors.UnsupportedRequestVersion {
		// A version error from the shared listener means the *response*
		// version is unsupported, from the invoker's point of view.
		e.Kind = errors.UnsupportedResponseVersion
		e.Message = "response version is not supported"
	}
	return ci.sendPending(ctx, pub, nil, err)
}

// Apply resolves the provided list of options.
func (o *CommandInvokerOptions) Apply(
	opts []CommandInvokerOption,
	rest ...CommandInvokerOption,
) {
	for opt := range internal.Apply[CommandInvokerOption](opts, rest...) {
		opt.commandInvoker(o)
	}
}

// ApplyOptions filters and resolves the provided list of generic options.
func (o *CommandInvokerOptions) ApplyOptions(opts []Option, rest ...Option) {
	for opt := range internal.Apply[CommandInvokerOption](opts, rest...) {
		opt.commandInvoker(o)
	}
}

func (o *CommandInvokerOptions) commandInvoker(opt *CommandInvokerOptions) {
	if o != nil {
		*opt = *o
	}
}

func (*CommandInvokerOptions) option() {}

func (o WithResponseTopicPattern) commandInvoker(opt *CommandInvokerOptions) {
	opt.ResponseTopicPattern = string(o)
}

func (WithResponseTopicPattern) option() {}

func (o WithResponseTopicPrefix) commandInvoker(opt *CommandInvokerOptions) {
	opt.ResponseTopicPrefix = string(o)
}

func (WithResponseTopicPrefix) option() {}

func (o WithResponseTopicSuffix) commandInvoker(opt *CommandInvokerOptions) {
	opt.ResponseTopicSuffix = string(o)
}

func (WithResponseTopicSuffix) option() {}

// Apply resolves the provided list of options.
func (o *InvokeOptions) Apply(
	opts []InvokeOption,
	rest ...InvokeOption,
) {
	for opt := range internal.Apply[InvokeOption](opts, rest...) {
		opt.invoke(o)
	}
}

func (o *InvokeOptions) invoke(opt *InvokeOptions) {
	if o != nil {
		*opt = *o
	}
}
