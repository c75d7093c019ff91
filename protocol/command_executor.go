package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/edgerpc/mqttrpc/internal/log"
	"github.com/edgerpc/mqttrpc/internal/wallclock"
	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/edgerpc/mqttrpc/protocol/internal"
	"github.com/edgerpc/mqttrpc/protocol/internal/caching"
	"github.com/edgerpc/mqttrpc/protocol/internal/constants"
	"github.com/edgerpc/mqttrpc/protocol/internal/errutil"
	"github.com/edgerpc/mqttrpc/protocol/internal/version"
	"github.com/edgerpc/mqttrpc/protocol/mqtt"
)

type (
	// CommandExecutor provides the ability to serve a single command over
	// MQTT, receiving requests on a topic and publishing a response to each
	// one (spec.md §5, the executor pipeline).
	CommandExecutor[Req any, Res any] struct {
		listener  *listener[Req]
		publisher *publisher[Res]
		handler   CommandHandler[Req, Res]
		timeout   *internal.Timeout
		cache     *caching.Cache
		log       log.Logger

		idempotent     bool
		requireFencing bool
		fencingMu      sync.Mutex
		fencing        string

		deadlineMu sync.Mutex
		deadlines  map[*mqtt.Message]time.Time
	}

	// CommandExecutorOption represents a single command executor option.
	CommandExecutorOption interface{ commandExecutor(*CommandExecutorOptions) }

	// CommandExecutorOptions are the resolved command executor options.
	CommandExecutorOptions struct {
		Idempotent bool

		Concurrency uint
		Timeout     time.Duration
		CacheTTL    time.Duration
		ShareName   string

		RequireFencingToken bool

		TopicNamespace string
		TopicTokens    map[string]string
		Logger         *slog.Logger
	}

	// CommandHandler is the user-provided implementation of a single command
	// execution. It is treated as blocking; all concurrency is managed by
	// the executor. It must be safe to call concurrently.
	CommandHandler[Req any, Res any] func(
		context.Context,
		*CommandRequest[Req],
	) (*CommandResponse[Res], error)

	// CommandRequest contains the per-message data exposed to a command
	// handler.
	CommandRequest[Req any] struct {
		Message[Req]
	}

	// CommandResponse contains the per-message data a command handler
	// returns.
	CommandResponse[Res any] struct {
		Message[Res]
	}

	// WithIdempotent marks the command as idempotent, permitting a broker or
	// operator to retry it safely without additional dedup guarantees beyond
	// the correlation-id cache.
	WithIdempotent bool

	// WithRequireFencingToken rejects requests whose fencing token does not
	// strictly increase relative to the last accepted request, guarding
	// against a superseded invoker generation racing a newer one.
	WithRequireFencingToken bool

	// RespondOption represents a single per-response option.
	RespondOption interface{ respond(*RespondOptions) }

	// RespondOptions are the resolved per-response options.
	RespondOptions struct {
		Metadata map[string]string
	}

	commandReturn[Res any] struct {
		res *CommandResponse[Res]
		err error
	}
)

const (
	commandExecutorComponentName = "command executor"
	commandExecutorErrStr        = "command execution"
)

// NewCommandExecutor creates a new command executor listening on
// requestTopicPattern and invoking handler for each accepted request.
func NewCommandExecutor[Req, Res any](
	app *Application,
	client mqtt.Client,
	requestEncoding Encoding[Req],
	responseEncoding Encoding[Res],
	requestTopicPattern string,
	handler CommandHandler[Req, Res],
	opt ...CommandExecutorOption,
) (ce *CommandExecutor[Req, Res], err error) {
	var opts CommandExecutorOptions
	opts.Apply(opt)

	logger := log.Wrap(opts.Logger)
	defer func() { err = errutil.Return(err, logger, true) }()

	if err := errutil.ValidateNonNil(map[string]any{
		"app":              app,
		"client":           client,
		"requestEncoding":  requestEncoding,
		"responseEncoding": responseEncoding,
		"handler":          handler,
	}); err != nil {
		return nil, err
	}

	to := &internal.Timeout{
		Duration: opts.Timeout,
		Name:     "ExecutionTimeout",
		Text:     commandExecutorErrStr,
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}

	if err := internal.ValidateShareName(opts.ShareName); err != nil {
		return nil, err
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

	reqTF, err := reqTP.Filter()
	if err != nil {
		return nil, err
	}

	ce = &CommandExecutor[Req, Res]{
		timeout:        to,
		cache:          caching.New(wallclock.Instance, opts.CacheTTL),
		log:            logger,
		idempotent:     opts.Idempotent,
		requireFencing: opts.RequireFencingToken,
		deadlines:      make(map[*mqtt.Message]time.Time),
	}
	ce.handler = handler
	ce.listener = &listener[Req]{
		app:            app,
		client:         client,
		encoding:       requestEncoding,
		topic:          reqTF,
		shareName:      opts.ShareName,
		concurrency:    opts.Concurrency,
		reqCorrelation: true,
		logger:         logger,
		handler:        ce,
	}
	ce.publisher = &publisher[Res]{
		app:      app,
		client:   client,
		encoding: responseEncoding,
		log:      logger,
		version:  version.ProtocolString,
	}

	if err := ce.listener.register(); err != nil {
		return nil, err
	}
	return ce, nil
}

// Start begins listening on the MQTT request topic.
func (ce *CommandExecutor[Req, Res]) Start(ctx context.Context) error {
	return ce.listener.listen(ctx)
}

// Close frees the executor's resources, unsubscribing from the request
// topic.
func (ce *CommandExecutor[Req, Res]) Close() {
	ce.listener.close()
}

func (ce *CommandExecutor[Req, Res]) onMsg(
	ctx context.Context,
	pub *mqtt.Message,
	msg *Message[Req],
) error {
	ce.log.Debug(ctx, "request received",
		slog.String("topic", pub.Topic),
		slog.Any("correlation_data", pub.CorrelationData),
	)

	if err := ignoreRequest(pub); err != nil {
		return err
	}

	if pub.MessageExpiry == 0 {
		return &errors.Error{
			Message:    "message expiry missing",
			Kind:       errors.HeaderMissing,
			HeaderName: constants.MessageExpiry,
		}
	}

	if ce.requireFencing {
		if err := ce.checkFencing(pub.UserProperties[constants.FencingToken]); err != nil {
			return err
		}
	}

	// The request's expiry starts counting down from here: however long the
	// handler takes comes out of this budget, and the response carries only
	// what's left of it (spec.md §4.5 Executed→Responded).
	ce.deadlineMu.Lock()
	ce.deadlines[pub] = wallclock.Instance.Now().Add(time.Duration(pub.MessageExpiry) * time.Second)
	ce.deadlineMu.Unlock()

	rpub, err := ce.cache.Exec(pub, func() (*mqtt.Message, error) {
		req := &CommandRequest[Req]{Message: *msg}
		var err error

		req.Payload, err = ce.listener.payload(pub)
		if err != nil {
			return nil, err
		}

		handlerCtx, cancel := ce.timeout.Context(ctx)
		defer cancel()

		handlerCtx, cancel = pubTimeout(pub).Context(handlerCtx)
		defer cancel()

		res, err := ce.handle(handlerCtx, req)
		if err != nil {
			return nil, err
		}

		return ce.build(pub, res, nil)
	})
	if err != nil {
		return err
	}

	defer ce.ack(ctx, pub)

	if rpub == nil {
		return nil
	}

	if err = ce.publisher.publish(ctx, rpub); err != nil {
		// If the publish fails, onErr would fail too, so just drop it.
		ce.listener.drop(ctx, pub, err)
	} else {
		ce.log.Debug(ctx, "response sent",
			slog.String("topic", rpub.Topic),
			slog.Any("correlation_data", rpub.CorrelationData),
		)
	}
	return nil
}

func (ce *CommandExecutor[Req, Res]) onErr(
	ctx context.Context,
	pub *mqtt.Message,
	err error,
) error {
	defer ce.ack(ctx, pub)

	if e := ignoreRequest(pub); e != nil {
		return e
	}

	if no, e := errutil.IsNoReturn(err); no {
		return e
	}

	rpub, e := ce.build(pub, nil, err)
	if e != nil {
		return e
	}
	if rpub == nil {
		return nil
	}
	if e := ce.publisher.publish(ctx, rpub); e != nil {
		return e
	}

	// The error was successfully returned in the response, so only log it as
	// a warning.
	ce.log.Warn(ctx, err)
	return nil
}

// handle calls the user handler with a panic guard, translating a panic or
// an unexpected nil response into an application error.
func (ce *CommandExecutor[Req, Res]) handle(
	ctx context.Context,
	req *CommandRequest[Req],
) (*CommandResponse[Res], error) {
	rchan := make(chan commandReturn[Res])

	go func() {
		var ret commandReturn[Res]
		defer func() {
			if p := recover(); p != nil {
				ret.err = &errors.Error{
					Message:  fmt.Sprint(p),
					Kind:     errors.ExecutionError,
					IsRemote: true,
				}
			}

			select {
			case rchan <- ret:
			case <-ctx.Done():
			}
		}()

		ret.res, ret.err = ce.handler(ctx, req)
		switch {
		case ctx.Err() != nil:
			ret.err = errutil.Context(ctx, commandExecutorErrStr)
		case ret.err != nil:
			ret.err = &errors.Error{
				Message:  ret.err.Error(),
				Kind:     errors.ExecutionError,
				IsRemote: true,
			}
		case ret.res == nil:
			ret.err = &errors.Error{
				Message:  "command handler returned no response",
				Kind:     errors.ExecutionError,
				IsRemote: true,
			}
		}
	}()

	select {
	case ret := <-rchan:
		return ret.res, ret.err
	case <-ctx.Done():
		return nil, errutil.Context(ctx, commandExecutorErrStr)
	}
}

// build assembles the response publish packet for a request, folding the
// error (if any) into its wire user properties. The response's message-expiry
// is the request's expiry remaining at this moment, not the original value;
// if that's already run out, build returns a nil message and the caller
// drops the response instead of publishing one that's already expired
// (spec.md §4.5 Executed→Responded).
func (ce *CommandExecutor[Req, Res]) build(
	pub *mqtt.Message,
	res *CommandResponse[Res],
	resErr error,
) (*mqtt.Message, error) {
	remaining, tracked := ce.remainingExpiry(pub)
	if tracked && remaining == 0 {
		return nil, nil
	}

	var msg *Message[Res]
	if res != nil {
		msg = &res.Message
	}
	rpub, err := ce.publisher.build(msg, nil, pubTimeout(pub), "")
	if err != nil {
		return nil, err
	}

	rpub.CorrelationData = pub.CorrelationData
	rpub.Topic = pub.ResponseTopic
	rpub.MessageExpiry = remaining
	maps.Copy(rpub.UserProperties, errutil.ToUserProp(resErr))

	return rpub, nil
}

// remainingExpiry reports how much of pub's message-expiry is left right
// now, and whether a deadline was actually tracked for it. A request that
// never reached the point where its deadline is recorded (one rejected by
// an earlier validation, such as a missing fencing token) has had
// negligible time elapse, so its original expiry is still current.
func (ce *CommandExecutor[Req, Res]) remainingExpiry(pub *mqtt.Message) (remaining uint32, tracked bool) {
	ce.deadlineMu.Lock()
	deadline, ok := ce.deadlines[pub]
	ce.deadlineMu.Unlock()
	if !ok {
		return pub.MessageExpiry, false
	}

	left := deadline.Sub(wallclock.Instance.Now()).Seconds()
	switch {
	case left <= 0:
		return 0, true
	case left > math.MaxUint32:
		return math.MaxUint32, true
	default:
		return uint32(left), true
	}
}

// checkFencing rejects a request whose fencing token does not strictly
// increase relative to the last accepted request's token.
func (ce *CommandExecutor[Req, Res]) checkFencing(token string) error {
	ce.fencingMu.Lock()
	defer ce.fencingMu.Unlock()

	if token == "" {
		return &errors.Error{
			Message:    "fencing token missing",
			Kind:       errors.HeaderMissing,
			HeaderName: constants.FencingToken,
		}
	}
	if ce.fencing != "" && token <= ce.fencing {
		return &errors.Error{
			Message:      "fencing token superseded by a later request",
			Kind:         errors.StateInvalid,
			PropertyName: constants.FencingToken,
		}
	}
	ce.fencing = token
	return nil
}

// ignoreRequest checks whether a request is malformed in a way that prevents
// any response, and if so why.
func ignoreRequest(pub *mqtt.Message) error {
	if pub.ResponseTopic == "" {
		return &errors.Error{
			Message:    "missing response topic",
			Kind:       errors.HeaderMissing,
			HeaderName: constants.ResponseTopic,
		}
	}
	if !internal.ValidTopic(pub.ResponseTopic) {
		return &errors.Error{
			Message:     "invalid response topic",
			Kind:        errors.HeaderInvalid,
			HeaderName:  constants.ResponseTopic,
			HeaderValue: pub.ResponseTopic,
		}
	}
	return nil
}

// ack acknowledges the request and logs it.
func (ce *CommandExecutor[Req, Res]) ack(
	ctx context.Context,
	pub *mqtt.Message,
) {
	ce.deadlineMu.Lock()
	delete(ce.deadlines, pub)
	ce.deadlineMu.Unlock()

	ce.listener.ack(ctx, pub)
	ce.log.Debug(ctx, "request acked",
		slog.String("topic", pub.Topic),
		slog.Any("correlation_data", pub.CorrelationData),
	)
}

// pubTimeout derives a timeout from the request's message expiry.
func pubTimeout(pub *mqtt.Message) *internal.Timeout {
	return &internal.Timeout{
		Duration: time.Duration(pub.MessageExpiry) * time.Second,
		Name:     "MessageExpiry",
		Text:     commandExecutorErrStr,
	}
}

// Respond is a shorthand for creating a command response with the given
// payload and options. Fields left unset here are filled in by the executor
// before the response is sent.
func Respond[Res any](
	payload Res,
	opt ...RespondOption,
) (*CommandResponse[Res], error) {
	var opts RespondOptions
	opts.Apply(opt)

	return &CommandResponse[Res]{Message[Res]{
		Payload:  payload,
		Metadata: opts.Metadata,
	}}, nil
}

// Apply resolves the provided list of options.
func (o *CommandExecutorOptions) Apply(
	opts []CommandExecutorOption,
	rest ...CommandExecutorOption,
) {
	for opt := range internal.Apply[CommandExecutorOption](opts, rest...) {
		opt.commandExecutor(o)
	}
}

// ApplyOptions filters and resolves the provided list of generic options.
func (o *CommandExecutorOptions) ApplyOptions(opts []Option, rest ...Option) {
	for opt := range internal.Apply[CommandExecutorOption](opts, rest...) {
		opt.commandExecutor(o)
	}
}

func (o *CommandExecutorOptions) commandExecutor(opt *CommandExecutorOptions) {
	if o != nil {
		*opt = *o
	}
}

func (*CommandExecutorOptions) option() {}

func (o WithIdempotent) commandExecutor(opt *CommandExecutorOptions) {
	opt.Idempotent = bool(o)
}

func (WithIdempotent) option() {}

func (o WithRequireFencingToken) commandExecutor(opt *CommandExecutorOptions) {
	opt.RequireFencingToken = bool(o)
}

func (WithRequireFencingToken) option() {}

// Apply resolves the provided list of options.
func (o *RespondOptions) Apply(
	opts []RespondOption,
	rest ...RespondOption,
) {
	for opt := range internal.Apply[RespondOption](opts, rest...) {
		opt.respond(o)
	}
}

func (o *RespondOptions) respond(opt *RespondOptions) {
	if o != nil {
		*opt = *o
	}
}
