package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
)

// PubSubSink publishes events to a Pub/Sub topic.
type PubSubSink struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubSink constructs a Pub/Sub backed event sink.
func NewPubSubSink(topic *pubsub.Topic) (*PubSubSink, error) {
	if topic == nil {
		return nil, errors.New("pubsub analytics sink: topic is required")
	}
	return &PubSubSink{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Record publishes the event and waits for the server ack.
func (p *PubSubSink) Record(ctx context.Context, event Event) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub analytics sink: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal analytics event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "action", event.Action)
	setAttr(attrs, "category", event.Category)
	setAttr(attrs, "label", event.Label)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish analytics event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
