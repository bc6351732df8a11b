package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brightsmile/dental-scheduling/internal/queue"
)

// Envelope is the wire form of an outbox entry on the notifications
// queue.
type Envelope struct {
	EventID string          `json:"event_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// QueuePublisher delivers outbox entries to a queue. It satisfies
// DeliveryHandler for the Deliverer.
type QueuePublisher struct {
	queue queue.Client
}

func NewQueuePublisher(q queue.Client) *QueuePublisher {
	if q == nil {
		panic("events: queue client required")
	}
	return &QueuePublisher{queue: q}
}

func (p *QueuePublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	body, err := json.Marshal(Envelope{
		EventID: entry.ID.String(),
		Type:    entry.Type,
		Payload: entry.Payload,
	})
	if err != nil {
		return fmt.Errorf("events: encode envelope: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("events: publish %s: %w", entry.Type, err)
	}
	return nil
}

var _ DeliveryHandler = (*QueuePublisher)(nil)
