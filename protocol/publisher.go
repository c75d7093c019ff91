package protocol

import (
	"context"
	"time"

	"github.com/edgerpc/mqttrpc/internal/log"
	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/edgerpc/mqttrpc/protocol/internal"
	"github.com/edgerpc/mqttrpc/protocol/internal/constants"
	"github.com/edgerpc/mqttrpc/protocol/internal/errutil"
	"github.com/edgerpc/mqttrpc/protocol/mqtt"
	"github.com/google/uuid"
)

// publisher holds the implementation details shared by the invoker's request
// publisher and the executor's response publisher.
type publisher[T any] struct {
	app      *Application
	client   mqtt.Client
	encoding Encoding[T]
	topic    *internal.TopicPattern
	log      log.Logger
	version  string
}

// DefaultTimeout is applied to Invoke if no timeout option is given.
const DefaultTimeout = 10 * time.Second

func (p *publisher[T]) build(
	msg *Message[T],
	topicTokens map[string]string,
	timeout *internal.Timeout,
	fencingToken string,
) (*mqtt.Message, error) {
	pub := &mqtt.Message{}
	var err error

	if p.topic != nil {
		pub.Topic, err = p.topic.Topic(topicTokens)
		if err != nil {
			return nil, err
		}
	}

	pub.PublishOptions = mqtt.PublishOptions{
		QoS:           mqtt.QoS1,
		MessageExpiry: timeout.MessageExpiry(),
	}

	if msg != nil {
		payload, err := serialize(p.encoding, msg.Payload)
		if err != nil {
			return nil, err
		}

		pub.Payload = payload
		pub.ContentType = p.encoding.ContentType()
		pub.PayloadFormat = mqtt.PayloadFormat(p.encoding.PayloadFormat())

		if msg.CorrelationData != "" {
			correlationData, err := uuid.Parse(msg.CorrelationData)
			if err != nil {
				return nil, &errors.Error{
					Message:  "correlation data is not a valid UUID",
					Kind:     errors.InternalLogicError,
					IsRemote: true,
				}
			}
			pub.CorrelationData = correlationData[:]
		}

		pub.UserProperties = internal.MetadataToProp(msg.Metadata)
	} else {
		pub.UserProperties = map[string]string{}
	}

	ts, err := p.app.GetHLC()
	if err != nil {
		return nil, err
	}
	pub.UserProperties[constants.InvokerClientID] = p.client.ClientID()
	pub.UserProperties[constants.Timestamp] = ts.String()
	pub.UserProperties[constants.ProtocolVersion] = p.version
	if fencingToken != "" {
		pub.UserProperties[constants.FencingToken] = fencingToken
	}

	return pub, nil
}

func (p *publisher[T]) publish(ctx context.Context, msg *mqtt.Message) error {
	err := p.client.Publish(
		ctx,
		msg.Topic,
		msg.Payload,
		&msg.PublishOptions,
	)
	return errutil.Mqtt(ctx, "publish", err)
}
