// Package events publishes dataset lifecycle transitions to Kafka for
// downstream consumers (dashboards, audit). Publishing is best-effort: a
// broker outage is logged and never fails the transition that produced the
// event.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/sitekit/search-assistant/internal/dataset/lifecycle"
	"github.com/sitekit/search-assistant/pkg/kafka"
	"github.com/sitekit/search-assistant/pkg/resilience"
)

// lifecycleEvent is the wire form of a lifecycle transition.
type lifecycleEvent struct {
	Action    string    `json:"action"`
	Docs      int       `json:"docs"`
	Bytes     int64     `json:"bytes"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher forwards lifecycle events to a Kafka topic.
type Publisher struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewPublisher creates a Publisher over an existing producer.
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "lifecycle-events"),
	}
}

// LifecycleChanged implements lifecycle.Publisher. Transient broker failures
// are retried with backoff before the event is given up on.
func (p *Publisher) LifecycleChanged(ctx context.Context, ev lifecycle.Event) {
	err := resilience.Retry(ctx, "publish-lifecycle-event", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}, func() error {
		return p.producer.Publish(ctx, kafka.Event{
			Key: ev.Action,
			Value: lifecycleEvent{
				Action:    ev.Action,
				Docs:      ev.Docs,
				Bytes:     ev.Bytes,
				ElapsedMs: ev.Elapsed.Milliseconds(),
				Timestamp: ev.Timestamp,
			},
		})
	})
	if err != nil {
		p.logger.Warn("lifecycle event not published", "action", ev.Action, "error", err)
	}
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
