package events

import (
	"context"
	"encoding/json"
	"time"

	"auction-engine/utils"

	"github.com/segmentio/kafka-go"
)

// Producer publishes lifecycle events to Kafka. Reliability settings:
// - Hash + Key: events for one entity land on one partition.
// - RequireAll: wait for ISR acknowledgement before reporting delivery.
// - Async: WriteMessages only enqueues, so a slow or down broker never
//   stalls the request path; delivery failures surface in Completion.
type Producer struct {
	w *kafka.Writer
}

// NewProducer creates a Kafka-backed event publisher.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					utils.Warn("events: async delivery failed", map[string]any{
						"count": len(messages),
						"error": err.Error(),
					})
				}
			},
		},
	}
}

// Close releases the writer.
func (p *Producer) Close() error { return p.w.Close() }

// Publish enqueues one event. The event stream is best-effort: enqueue and
// delivery failures are logged and swallowed, since the ledger already
// committed. The async writer returns as soon as the message is queued.
func (p *Producer) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		utils.Warn("events: dropping invalid event", map[string]any{
			"kind":  string(event.Kind),
			"error": err.Error(),
		})
		return
	}

	b, err := json.Marshal(event)
	if err != nil {
		utils.Warn("events: marshal failed", map[string]any{
			"kind":  string(event.Kind),
			"error": err.Error(),
		})
		return
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: b,
	}); err != nil {
		utils.Warn("events: publish failed", map[string]any{
			"kind":  string(event.Kind),
			"key":   event.Key(),
			"error": err.Error(),
		})
	}
}
