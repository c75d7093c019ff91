package protocol

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/edgerpc/mqttrpc/internal/log"
	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/edgerpc/mqttrpc/protocol/hlc"
	"github.com/edgerpc/mqttrpc/protocol/internal"
	"github.com/edgerpc/mqttrpc/protocol/internal/constants"
	"github.com/edgerpc/mqttrpc/protocol/internal/version"
	"github.com/edgerpc/mqttrpc/protocol/mqtt"
	"github.com/google/uuid"
)

type (
	// Listener represents an object that listens on an MQTT topic filter.
	// Both CommandExecutor and CommandInvoker implement this to start and
	// stop their underlying subscriptions.
	Listener interface {
		Start(context.Context) error
		Close()
	}

	// Listeners represents a collection of MQTT listeners.
	Listeners []Listener

	// listener holds the implementation details shared by the executor's
	// request listener and the invoker's response listener.
	listener[T any] struct {
		app            *Application
		client         mqtt.Client
		encoding       Encoding[T]
		topic          *internal.TopicFilter
		shareName      string
		concurrency    uint
		reqCorrelation bool
		logger         log.Logger
		handler        interface {
			onMsg(context.Context, *mqtt.Message, *Message[T]) error
			onErr(context.Context, *mqtt.Message, error) error
		}

		sub      mqtt.Subscription
		done     func()
		active   atomic.Bool
		inFlight atomic.Int32
		acks     *ackQueue
	}

	// ackQueue releases acks strictly in receipt order, regardless of the
	// order the concurrent handlers pool finishes processing them (spec.md
	// §5: "request-acks are released strictly in receipt order — the ack
	// queue is FIFO keyed by arrival"). Each arriving message is enqueued
	// synchronously as it's received; it is released once its own handling
	// marks it ready, and every contiguous ready entry at the head is
	// flushed at that point.
	ackQueue struct {
		mu    sync.Mutex
		queue []*ackSlot
		index map[*mqtt.Message]*ackSlot
	}

	ackSlot struct {
		pub   *mqtt.Message
		ready bool
	}
)

func newAckQueue() *ackQueue {
	return &ackQueue{index: make(map[*mqtt.Message]*ackSlot)}
}

// enqueue records pub's arrival as the next entry awaiting release.
func (q *ackQueue) enqueue(pub *mqtt.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot := &ackSlot{pub: pub}
	q.queue = append(q.queue, slot)
	q.index[pub] = slot
}

// release marks pub ready to ack and flushes every contiguous ready entry
// from the head of the queue, in arrival order, handing each to ackFunc.
func (q *ackQueue) release(pub *mqtt.Message, ackFunc func(*mqtt.Message)) {
	q.mu.Lock()
	slot, ok := q.index[pub]
	if !ok {
		// Not tracked by this queue (e.g. registered outside the normal
		// receipt path): ack it directly rather than hang forever.
		q.mu.Unlock()
		ackFunc(pub)
		return
	}
	slot.ready = true

	var ready []*mqtt.Message
	for len(q.queue) > 0 && q.queue[0].ready {
		head := q.queue[0]
		q.queue = q.queue[1:]
		delete(q.index, head.pub)
		ready = append(ready, head.pub)
	}
	q.mu.Unlock()

	for _, p := range ready {
		ackFunc(p)
	}
}

func (l *listener[T]) register() error {
	l.acks = newAckQueue()
	handle, done := internal.Concurrent(l.concurrency, l.handle)

	filter := l.topic.Filter()
	if l.shareName != "" {
		filter = "$share/" + l.shareName + "/" + filter
	}

	sub, err := l.client.Register(
		filter,
		func(ctx context.Context, pub *mqtt.Message) error {
			// Enqueued here, synchronously, on the client's own delivery
			// order, before handling fans out to the (possibly concurrent,
			// possibly out-of-order-completing) handler pool.
			l.acks.enqueue(pub)
			handle(ctx, pub)
			return nil
		},
	)
	if err != nil {
		done()
		return err
	}

	l.sub = sub
	l.done = done
	return nil
}

func (l *listener[T]) listen(ctx context.Context) error {
	if l.active.CompareAndSwap(false, true) {
		return l.sub.Update(
			ctx,
			mqtt.WithQoS(1),
			mqtt.WithNoLocal(l.shareName == ""),
		)
	}
	return nil
}

func (l *listener[T]) close() {
	if l.active.CompareAndSwap(true, false) {
		ctx := context.Background()
		if err := l.sub.Unsubscribe(ctx); err != nil {
			// Returning an error from a close function that is most likely
			// to be deferred is rarely useful, so just log it.
			l.logger.Err(ctx, err)
		}
	}
	l.done()
}

// count reports how many messages this listener is currently handling, for
// diagnostics snapshots.
func (l *listener[T]) count() int32 {
	return l.inFlight.Load()
}

func (l *listener[T]) handle(ctx context.Context, pub *mqtt.Message) {
	l.inFlight.Add(1)
	defer l.inFlight.Add(-1)

	msg := &Message[T]{}

	// The protocol version must be checked first: if it's unsupported,
	// nothing else about the message can be trusted (spec.md §12).
	ver := pub.UserProperties[constants.ProtocolVersion]
	if !version.IsSupported(ver) {
		l.error(ctx, pub, &errors.Error{
			Message:                        "unsupported version",
			Kind:                           errors.UnsupportedRequestVersion,
			ProtocolVersion:                ver,
			SupportedMajorProtocolVersions: version.Supported,
		})
		return
	}

	if l.reqCorrelation && len(pub.CorrelationData) == 0 {
		l.error(ctx, pub, &errors.Error{
			Message:    "correlation data missing",
			Kind:       errors.HeaderMissing,
			HeaderName: constants.CorrelationData,
		})
		return
	}
	if len(pub.CorrelationData) != 0 {
		correlationData, err := uuid.FromBytes(pub.CorrelationData)
		if err != nil {
			l.error(ctx, pub, &errors.Error{
				Message:    "correlation data is not a valid UUID",
				Kind:       errors.HeaderInvalid,
				HeaderName: constants.CorrelationData,
			})
			return
		}
		msg.CorrelationData = correlationData.String()
	}

	ts := pub.UserProperties[constants.Timestamp]
	if ts != "" {
		var err error
		msg.Timestamp, err = hlc.Parse(constants.Timestamp, ts)
		if err != nil {
			l.error(ctx, pub, err)
			return
		}

		// Every inbound publish advances this node's clock to the
		// component-wise max with the sender's (spec.md §4.1).
		if err := l.app.SetHLC(msg.Timestamp); err != nil {
			l.error(ctx, pub, err)
			return
		}
	}

	msg.Metadata = internal.PropToMetadata(pub.UserProperties)
	msg.TopicTokens, _ = l.topic.Tokens(pub.Topic)

	if err := l.handler.onMsg(ctx, pub, msg); err != nil {
		l.error(ctx, pub, err)
		return
	}
}

// payload decodes the message body manually, since it may be skipped on
// error paths where the payload never needs to be touched.
func (l *listener[T]) payload(pub *mqtt.Message) (T, error) {
	var zero T

	switch pub.PayloadFormat {
	case 0: // Unspecified bytes: always valid.
	case 1:
		if l.encoding.PayloadFormat() == 0 {
			return zero, &errors.Error{
				Message:     "payload format indicator mismatch",
				Kind:        errors.HeaderInvalid,
				HeaderName:  constants.FormatIndicator,
				HeaderValue: fmt.Sprint(pub.PayloadFormat),
			}
		}
	default:
		return zero, &errors.Error{
			Message:     "payload format indicator invalid",
			Kind:        errors.HeaderInvalid,
			HeaderName:  constants.FormatIndicator,
			HeaderValue: fmt.Sprint(pub.PayloadFormat),
		}
	}

	if pub.ContentType != "" && l.encoding.ContentType() != "" &&
		pub.ContentType != l.encoding.ContentType() {
		return zero, &errors.Error{
			Message:     "content type mismatch",
			Kind:        errors.HeaderInvalid,
			HeaderName:  constants.ContentType,
			HeaderValue: pub.ContentType,
		}
	}

	return deserialize(l.encoding, pub.Payload)
}

func (l *listener[T]) ack(ctx context.Context, pub *mqtt.Message) {
	l.acks.release(pub, func(p *mqtt.Message) {
		// Drop rather than returning, so we don't attempt to double-ack on
		// failure.
		if err := p.Ack(); err != nil {
			l.drop(ctx, p, err)
		}
	})
}

func (l *listener[T]) error(ctx context.Context, pub *mqtt.Message, err error) {
	// Drop the message if the error handler itself fails.
	if e := l.handler.onErr(ctx, pub, err); e != nil {
		l.drop(ctx, pub, err)
	}
}

func (l *listener[T]) drop(ctx context.Context, _ *mqtt.Message, err error) {
	l.logger.Err(ctx, err)
}

// Start listening on all underlying MQTT topics.
func (ls Listeners) Start(ctx context.Context) error {
	for _, l := range ls {
		if err := l.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close all underlying MQTT topics and free resources.
func (ls Listeners) Close() {
	for _, l := range ls {
		l.Close()
	}
}
