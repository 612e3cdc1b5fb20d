package messaging

import (
	"context"
)

type channelPublisher struct {
	broker  Broker
	channel string
}

// NewPublisher binds broker to channel
func NewPublisher(broker Broker, channel string) Publisher {
	return &channelPublisher{broker: broker, channel: channel}
}

func (p *channelPublisher) Publish(ctx context.Context, message interface{}) error {
	return p.broker.Publish(ctx, p.channel, message)
}

type nopPublisher struct{}

// NopPublisher drops every message. Used when no broker is configured.
func NopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, interface{}) error {
	return nil
}
