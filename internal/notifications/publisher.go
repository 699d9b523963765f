package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsublib "cloud.google.com/go/pubsub/v2"
)

// PubSubPublisher delivers push events through a Pub/Sub topic.
type PubSubPublisher struct {
	publisher *pubsublib.Publisher
}

// NewPubSubPublisher wraps the topic publisher handle.
func NewPubSubPublisher(publisher *pubsublib.Publisher) (*PubSubPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher handle required")
	}
	return &PubSubPublisher{publisher: publisher}, nil
}

// Publish serializes the event and waits for the broker ack.
func (p *PubSubPublisher) Publish(ctx context.Context, event PushEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal push event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsublib.Message{
		Data: data,
		Attributes: map[string]string{
			"type": string(event.Type),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish push event: %w", err)
	}
	return nil
}
