package protocol_test

import (
	"context"
	"strings"
	"sync"

	"github.com/edgerpc/mqttrpc/protocol/mqtt"
)

// fakeBroker is a minimal in-process stand-in for an MQTT v5 broker: it
// fans out a published message to every active registration whose filter
// matches the topic, same as a real broker would for a set of clients
// sharing one connection. It exists purely to exercise the protocol engine
// end to end without a network dependency.
type fakeBroker struct {
	mu   sync.Mutex
	subs []*fakeSub

	ackMu    sync.Mutex
	ackOrder []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{}
}

// recordAck appends id (typically a request's correlation data) to the
// order acks were actually observed in, so a test can assert that order
// matches receipt order regardless of handler completion order.
func (b *fakeBroker) recordAck(id string) {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()
	b.ackOrder = append(b.ackOrder, id)
}

// ackOrderSnapshot returns a copy of the ack order observed so far.
func (b *fakeBroker) ackOrderSnapshot() []string {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()
	return append([]string(nil), b.ackOrder...)
}

func (b *fakeBroker) register(sub *fakeSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

func (b *fakeBroker) remove(sub *fakeSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *fakeBroker) publish(ctx context.Context, topic string, payload []byte, opts mqtt.PublishOptions) error {
	b.mu.Lock()
	var matched []*fakeSub
	for _, s := range b.subs {
		if s.active && filterMatch(s.filter, topic) {
			matched = append(matched, s)
		}
	}
	b.mu.Unlock()

	for _, s := range matched {
		msg := &mqtt.Message{
			Topic:          topic,
			Payload:        payload,
			PublishOptions: opts,
			Ack: func() error {
				b.recordAck(string(opts.CorrelationData))
				return nil
			},
		}
		_ = s.handler(ctx, msg)
	}
	return nil
}

// filterMatch reports whether an MQTT topic filter (supporting the "+" and
// "#" wildcards) matches a concrete topic name.
func filterMatch(filter, topic string) bool {
	fLevels := strings.Split(filter, "/")
	tLevels := strings.Split(topic, "/")

	for i, f := range fLevels {
		if f == "#" {
			return true
		}
		if i >= len(tLevels) {
			return false
		}
		if f != "+" && f != tLevels[i] {
			return false
		}
	}
	return len(fLevels) == len(tLevels)
}

type fakeSub struct {
	broker  *fakeBroker
	filter  string
	handler mqtt.MessageHandler
	active  bool
}

func (s *fakeSub) Update(context.Context, ...mqtt.SubscribeOption) error {
	s.active = true
	return nil
}

func (s *fakeSub) Unsubscribe(context.Context, ...mqtt.UnsubscribeOption) error {
	s.active = false
	s.broker.remove(s)
	return nil
}

// fakeClient implements mqtt.Client over a fakeBroker, standing in for a
// real paho-backed connection in tests.
type fakeClient struct {
	broker *fakeBroker
	id     string
}

func newFakeClient(broker *fakeBroker, id string) *fakeClient {
	return &fakeClient{broker: broker, id: id}
}

func (c *fakeClient) ClientID() string { return c.id }

func (c *fakeClient) Register(topic string, handler mqtt.MessageHandler) (mqtt.Subscription, error) {
	sub := &fakeSub{broker: c.broker, filter: topic, handler: handler}
	c.broker.register(sub)
	return sub, nil
}

func (c *fakeClient) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts ...mqtt.PublishOption,
) error {
	var resolved mqtt.PublishOptions
	resolved.Apply(opts)
	return c.broker.publish(ctx, topic, payload, resolved)
}
