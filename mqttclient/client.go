package mqttclient

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/eclipse/paho.golang/paho"
	"github.com/edgerpc/mqttrpc/internal/log"
	"github.com/edgerpc/mqttrpc/protocol/mqtt"
)

type (
	// Client is a concrete protocol/mqtt.Client backed by a single
	// paho.golang connection. It implements exactly the facade the protocol
	// engine needs (register/publish/client id) plus the diagnostics the
	// rest of an application wants (ProtocolVersion).
	//
	// Unlike a production session client, Client does not reconnect: a
	// dropped connection surfaces through the context passed to in-flight
	// calls, and the caller is expected to call Connect again and re-Register
	// its listeners. That reconnection policy is deliberately left to the
	// caller.
	Client struct {
		paho     *paho.Client
		clientID string
		log      log.Logger

		mu      sync.Mutex
		entries []*registration

		acks *pubackQueue
	}

	registration struct {
		filter  string
		handler mqtt.MessageHandler
	}

	// pubackQueue sequences the actual wire-level PUBACKs sent back to the
	// broker so they go out in the order their PUBLISHes arrived, regardless
	// of the order the per-packet handler goroutines happen to finish in.
	// This is the transport-level half of the ordered-ack invariant; the
	// protocol engine keeps its own analogous queue one layer up, over its
	// abstract *mqtt.Message values.
	pubackQueue struct {
		mu    sync.Mutex
		queue []*pubackEntry
		index map[*paho.Publish]*pubackEntry
	}

	pubackEntry struct {
		packet *paho.Publish
		ready  bool
	}
)

func newPubackQueue() *pubackQueue {
	return &pubackQueue{index: make(map[*paho.Publish]*pubackEntry)}
}

// enqueue records packet's arrival as the next entry awaiting release.
func (q *pubackQueue) enqueue(packet *paho.Publish) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &pubackEntry{packet: packet}
	q.queue = append(q.queue, e)
	q.index[packet] = e
}

// release marks packet ready to ack and flushes every contiguous ready entry
// from the head of the queue, in arrival order, handing each to ackFunc.
func (q *pubackQueue) release(packet *paho.Publish, ackFunc func(*paho.Publish)) {
	q.mu.Lock()
	e, ok := q.index[packet]
	if !ok {
		// Not tracked (e.g. QoS 0 never enqueued): ack directly.
		q.mu.Unlock()
		ackFunc(packet)
		return
	}
	e.ready = true

	var ready []*paho.Publish
	for len(q.queue) > 0 && q.queue[0].ready {
		head := q.queue[0]
		q.queue = q.queue[1:]
		delete(q.index, head.packet)
		ready = append(ready, head.packet)
	}
	q.mu.Unlock()

	for _, p := range ready {
		ackFunc(p)
	}
}

// Connect opens a network connection per settings and performs the MQTT v5
// CONNECT/CONNACK handshake. On success it returns a Client ready to
// Register subscriptions and Publish.
func Connect(
	ctx context.Context,
	settings *Settings,
	logger *slog.Logger,
) (*Client, error) {
	connCtx := ctx
	if settings.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, settings.ConnectionTimeout)
		defer cancel()
	}

	var provider connectionProvider
	if settings.UseTLS {
		provider = tlsConnection(settings.Hostname, settings.Port, settings.TLSConfig)
	} else {
		provider = tcpConnection(settings.Hostname, settings.Port)
	}

	conn, err := provider(connCtx)
	if err != nil {
		return nil, err
	}

	c := &Client{clientID: settings.ClientID, log: log.Wrap(logger), acks: newPubackQueue()}

	c.paho = paho.NewClient(paho.ClientConfig{
		ClientID: settings.ClientID,
		Conn:     conn,

		// Manual ack is required: the protocol engine sequences acks itself
		// (spec.md §5, ordered-ack invariant), so Paho must not race it.
		EnableManualAcknowledgment: true,

		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			c.onPublishReceived,
		},
		OnClientError: func(err error) {
			c.log.Err(context.Background(), err)
		},
	})

	receiveMax := uint16(math.MaxUint16)
	connect := &paho.Connect{
		ClientID:   settings.ClientID,
		CleanStart: settings.CleanStart,
		KeepAlive:  settings.KeepAlive,
		Properties: &paho.ConnectProperties{
			SessionExpiryInterval: &settings.SessionExpiryInterval,
			ReceiveMaximum:        &receiveMax,
			RequestProblemInfo:    true,
		},
	}
	if settings.Username != "" {
		connect.UsernameFlag = true
		connect.Username = settings.Username
	}
	if len(settings.Password) > 0 {
		connect.PasswordFlag = true
		connect.Password = settings.Password
	}

	connack, err := c.paho.Connect(connCtx, connect)
	switch {
	case connack == nil:
		return nil, err

	case connack.ReasonCode >= 0x80:
		return nil, &ConnackError{connack.ReasonCode}

	case !settings.CleanStart && !connack.SessionPresent:
		_ = c.paho.Disconnect(&paho.Disconnect{ReasonCode: 0x00})
		return nil, &SessionLostError{}

	default:
		return c, nil
	}
}

// ClientID returns the identifier used by this client.
func (c *Client) ClientID() string { return c.clientID }

// ProtocolVersion reports the MQTT protocol level this client negotiated.
// paho.golang is MQTT v5 only, so this is always 5.
func (c *Client) ProtocolVersion() int { return 5 }

// Disconnect closes the underlying connection cleanly.
func (c *Client) Disconnect() error {
	return c.paho.Disconnect(&paho.Disconnect{ReasonCode: 0x00})
}

// Register implements protocol/mqtt.Client. It records topic and handler so
// incoming publishes can be routed once Update is called on the returned
// Subscription; it does not itself talk to the broker.
func (c *Client) Register(
	topic string,
	handler mqtt.MessageHandler,
) (mqtt.Subscription, error) {
	reg := &registration{filter: topic, handler: handler}

	c.mu.Lock()
	c.entries = append(c.entries, reg)
	c.mu.Unlock()

	return &subscription{client: c, reg: reg}, nil
}

// Publish implements protocol/mqtt.Client.
func (c *Client) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts ...mqtt.PublishOption,
) error {
	var opt mqtt.PublishOptions
	opt.Apply(opts)

	props := &paho.PublishProperties{
		ContentType:     opt.ContentType,
		CorrelationData: opt.CorrelationData,
		PayloadFormat:   payloadFormatPtr(opt.PayloadFormat),
		ResponseTopic:   opt.ResponseTopic,
		User:            mapToUserProperties(opt.UserProperties),
	}
	if opt.MessageExpiry > 0 {
		props.MessageExpiry = &opt.MessageExpiry
	}

	_, err := c.paho.Publish(ctx, &paho.Publish{
		QoS:        byte(opt.QoS),
		Retain:     opt.Retain,
		Topic:      topic,
		Payload:    payload,
		Properties: props,
	})
	return err
}

func payloadFormatPtr(f mqtt.PayloadFormat) *byte {
	b := byte(f)
	return &b
}

// onPublishReceived is the single callback registered with Paho. It is
// invoked once per received PUBLISH, in wire order, on Paho's own read
// loop. It fans the publish out to every registration whose filter
// matches, and acks only after all matching handlers have acked.
//
// The actual PUBACK is not sent the moment this packet's handlers finish:
// it is queued on c.acks and released only once every earlier-received
// packet has already been acked, so acks reach the wire strictly in
// receipt order even though handlers for different packets finish on
// their own schedule (spec.md §5, the ordered-ack invariant).
func (c *Client) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	packet := pr.Packet
	if packet.QoS > 0 {
		c.acks.enqueue(packet)
	}

	c.mu.Lock()
	matched := make([]*registration, 0, 1)
	for _, reg := range c.entries {
		if isTopicFilterMatch(reg.filter, packet.Topic) {
			matched = append(matched, reg)
		}
	}
	c.mu.Unlock()

	if len(matched) == 0 {
		if packet.QoS > 0 {
			c.acks.release(packet, c.sendAck)
		}
		return false, nil
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, reg := range matched {
		wg.Add(1)
		ackOnce := sync.OnceFunc(wg.Done)
		go func(reg *registration) {
			msg := buildMessage(packet, func() error {
				ackOnce()
				return nil
			})
			if err := reg.handler(ctx, msg); err != nil {
				c.log.Err(ctx, err)
			}
		}(reg)
	}

	if packet.QoS > 0 {
		go func() {
			wg.Wait()
			c.acks.release(packet, c.sendAck)
		}()
	}

	return true, nil
}

func (c *Client) sendAck(packet *paho.Publish) {
	if err := c.paho.Ack(packet); err != nil {
		c.log.Err(context.Background(), err)
	}
}

func buildMessage(packet *paho.Publish, ack func() error) *mqtt.Message {
	msg := &mqtt.Message{
		Topic:   packet.Topic,
		Payload: packet.Payload,
		PublishOptions: mqtt.PublishOptions{
			QoS:    mqtt.QoS(packet.QoS),
			Retain: packet.Retain,
		},
		Ack: ack,
	}
	if packet.Properties != nil {
		msg.ContentType = packet.Properties.ContentType
		msg.CorrelationData = packet.Properties.CorrelationData
		msg.ResponseTopic = packet.Properties.ResponseTopic
		msg.UserProperties = userPropertiesToMap(packet.Properties.User)
		if packet.Properties.MessageExpiry != nil {
			msg.MessageExpiry = *packet.Properties.MessageExpiry
		}
		if packet.Properties.PayloadFormat != nil {
			msg.PayloadFormat = mqtt.PayloadFormat(*packet.Properties.PayloadFormat)
		}
	}
	return msg
}

func userPropertiesToMap(ups paho.UserProperties) map[string]string {
	m := make(map[string]string, len(ups))
	for _, prop := range ups {
		m[prop.Key] = prop.Value
	}
	return m
}

func mapToUserProperties(m map[string]string) paho.UserProperties {
	ups := make(paho.UserProperties, 0, len(m))
	for k, v := range m {
		ups = append(ups, paho.UserProperty{Key: k, Value: v})
	}
	return ups
}

// protocolVersionString is the RPC protocol major version list that the
// protocol engine supports. The engine's version package is internal to
// protocol/, so the value is repeated here as a literal rather than imported.
const protocolVersionString = "1"
