package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/storelane/fulfillment/internal/services"
)

// PubSubFulfillmentPublisher publishes fulfillment events to a Pub/Sub topic.
type PubSubFulfillmentPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubFulfillmentPublisher constructs a Pub/Sub backed fulfillment event publisher.
func NewPubSubFulfillmentPublisher(topic *pubsub.Topic) (*PubSubFulfillmentPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub fulfillment publisher: topic is required")
	}
	return &PubSubFulfillmentPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishFulfillmentEvent enqueues one fulfillment event on the configured topic.
func (p *PubSubFulfillmentPublisher) PublishFulfillmentEvent(ctx context.Context, event services.FulfillmentEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub fulfillment publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal fulfillment event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish fulfillment event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
