// Package pubsub implements a Google Cloud Pub/Sub publisher for crawl events.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// Attributed payloads contribute Pub/Sub message attributes.
type Attributed interface {
	Attributes() map[string]string
}

type sendFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher wraps a Pub/Sub publisher client.
type Publisher struct {
	send sendFunc
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	if publisher == nil {
		return &Publisher{}
	}
	return &Publisher{send: func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}}
}

// Publish marshals the payload to JSON and publishes it. The topic is bound
// to the underlying publisher and is recorded as the "topic" attribute.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.send == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"topic": topic}}
	if attributed, ok := payload.(Attributed); ok {
		for k, v := range attributed.Attributes() {
			msg.Attributes[k] = v
		}
	}

	id, err := p.send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
