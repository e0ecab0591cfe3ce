package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/returns/internal/services"
)

const (
	// HandoffPendingJobType identifies carrier handoff recovery jobs on the jobs topic.
	HandoffPendingJobType = "returns.carrier.handoff_pending"
)

// PubSubEventPublisher publishes return lifecycle events to a Pub/Sub topic.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.ReturnEventPublisher = (*PubSubEventPublisher)(nil)

// NewPubSubEventPublisher constructs a Pub/Sub backed lifecycle event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type eventEnvelope struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ReturnID   string         `json:"return_id"`
	OrderID    string         `json:"order_id"`
	Status     string         `json:"status"`
	ActorID    string         `json:"actor_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// PublishReturnEvent publishes the event and waits for the server acknowledgement.
func (p *PubSubEventPublisher) PublishReturnEvent(ctx context.Context, event services.ReturnLifecycleEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(eventEnvelope{
		ID:         event.ID,
		Type:       event.Type,
		ReturnID:   event.ReturnID,
		OrderID:    event.OrderID,
		Status:     event.Status,
		ActorID:    event.ActorID,
		OccurredAt: event.OccurredAt.UTC(),
		Data:       event.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal return event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "return_id", event.ReturnID)
	setAttr(attrs, "event_id", event.ID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish return event: %w", err)
	}
	return nil
}

// PubSubHandoffPublisher enqueues carrier handoff recovery jobs.
type PubSubHandoffPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.HandoffJobPublisher = (*PubSubHandoffPublisher)(nil)

// NewPubSubHandoffPublisher constructs a Pub/Sub backed handoff job publisher.
func NewPubSubHandoffPublisher(topic *pubsub.Topic) (*PubSubHandoffPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub handoff publisher: topic is required")
	}
	return &PubSubHandoffPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishHandoffPending enqueues a paid shipment whose lifecycle transition was not recorded.
func (p *PubSubHandoffPublisher) PublishHandoffPending(ctx context.Context, job services.HandoffJob) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub handoff publisher: not initialised")
	}

	data, err := p.marshal(job)
	if err != nil {
		return fmt.Errorf("marshal handoff job: %w", err)
	}

	attrs := map[string]string{"type": HandoffPendingJobType}
	setAttr(attrs, "return_id", job.ReturnID)
	setAttr(attrs, "order_no", job.OrderNo)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish handoff job: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
