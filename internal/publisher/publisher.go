// Package publisher announces local state changes on the event bus.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/eventbus"
	"github.com/example/ticketing/internal/events"
	"github.com/example/ticketing/internal/log"
	"github.com/example/ticketing/internal/metrics"
	"github.com/google/uuid"
)

// Publisher publishes one event type. Publish returns once the bus has
// accepted the event; it never touches local state, so callers persist
// first and publish second.
type Publisher[T events.Payload] interface {
	Publish(ctx context.Context, payload T) error
}

// BusPublisher is the Publisher backed by an eventbus.Conn.
type BusPublisher[T events.Payload] struct {
	conn eventbus.Conn
	now  func() time.Time
}

func New[T events.Payload](conn eventbus.Conn) *BusPublisher[T] {
	return &BusPublisher[T]{conn: conn, now: time.Now}
}

func (p *BusPublisher[T]) Publish(ctx context.Context, payload T) error {
	subject := string(payload.Subject())

	if err := payload.Validate(); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(subject, "invalid").Inc()
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(subject, "invalid").Inc()
		return apperr.Infrastructure("encoding "+subject, err)
	}

	eventID := uuid.NewString()
	metadata := map[string]string{
		eventbus.MetaEventID:       eventID,
		eventbus.MetaCorrelationID: log.CorrelationIDFromContext(ctx),
		eventbus.MetaPublishedAt:   p.now().UTC().Format(time.RFC3339Nano),
		eventbus.MetaPartitionKey:  payload.Key(),
	}

	logger := log.FromContext(ctx).
		WithField("subject", subject).
		WithField("event_id", eventID)

	if err := p.conn.Publish(ctx, subject, data, metadata); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(subject, "failed").Inc()
		logger.WithError(err).Error("[Publisher] event not published")
		return apperr.Infrastructure("publishing "+subject, err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(subject, "ok").Inc()
	logger.Info("[Publisher] event published")
	return nil
}
