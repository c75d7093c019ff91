package mqttclient

import (
	"context"

	"github.com/eclipse/paho.golang/paho"
	"github.com/edgerpc/mqttrpc/protocol/mqtt"
)

// subscription is the mqtt.Subscription returned by Client.Register. Update
// sends the actual SUBSCRIBE packet; Register alone only wires up local
// dispatch, matching how the protocol engine calls Register once at
// construction and Update only once Start is called.
type subscription struct {
	client *Client
	reg    *registration
}

func (s *subscription) Update(ctx context.Context, opts ...mqtt.SubscribeOption) error {
	var opt mqtt.SubscribeOptions
	opt.Apply(opts)

	sub := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:             s.reg.filter,
			QoS:               byte(opt.QoS),
			NoLocal:           opt.NoLocal,
			RetainAsPublished: opt.Retain,
			RetainHandling:    byte(opt.RetainHandling),
		}},
	}
	if len(opt.UserProperties) > 0 {
		sub.Properties = &paho.SubscribeProperties{
			User: mapToUserProperties(opt.UserProperties),
		}
	}

	_, err := s.client.paho.Subscribe(ctx, sub)
	return err
}

func (s *subscription) Unsubscribe(ctx context.Context, opts ...mqtt.UnsubscribeOption) error {
	var opt mqtt.UnsubscribeOptions
	opt.Apply(opts)

	unsub := &paho.Unsubscribe{Topics: []string{s.reg.filter}}
	if len(opt.UserProperties) > 0 {
		unsub.Properties = &paho.UnsubscribeProperties{
			User: mapToUserProperties(opt.UserProperties),
		}
	}

	_, err := s.client.paho.Unsubscribe(ctx, unsub)

	s.client.mu.Lock()
	for i, reg := range s.client.entries {
		if reg == s.reg {
			s.client.entries = append(s.client.entries[:i], s.client.entries[i+1:]...)
			break
		}
	}
	s.client.mu.Unlock()

	return err
}
