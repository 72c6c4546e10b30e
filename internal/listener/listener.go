// Package listener consumes events from the bus and applies them to local
// state exactly once per entity version.
package listener

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/eventbus"
	"github.com/example/ticketing/internal/events"
)

// Listener handles one subject on behalf of one queue group.
type Listener interface {
	Subject() events.Subject
	QueueGroup() string
	// OnMessage decodes and applies msg. The returned error decides whether
	// the message is acknowledged, see Classify.
	OnMessage(ctx context.Context, msg *eventbus.Message) error
}

// ApplyFunc applies a decoded, validated payload. It returns
// events.ErrDuplicate when the event is already reflected locally.
type ApplyFunc[T events.Payload] func(ctx context.Context, payload T) error

type typed[T events.Payload] struct {
	queueGroup string
	apply      ApplyFunc[T]
}

// New builds the listener for payload type T.
func New[T events.Payload](queueGroup string, apply ApplyFunc[T]) Listener {
	return &typed[T]{queueGroup: queueGroup, apply: apply}
}

func (l *typed[T]) Subject() events.Subject {
	var zero T
	return zero.Subject()
}

func (l *typed[T]) QueueGroup() string { return l.queueGroup }

func (l *typed[T]) OnMessage(ctx context.Context, msg *eventbus.Message) error {
	var payload T
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return apperr.Malformed(err)
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	return l.apply(ctx, payload)
}

type Outcome string

const (
	Applied Outcome = "applied"
	// Skipped is a duplicate or stale replay.
	Skipped Outcome = "skipped"
	// Dropped is a message that can never be applied.
	Dropped Outcome = "dropped"
	Retry   Outcome = "retry"
)

// Classify maps an OnMessage error to its outcome. Applied, Skipped and
// Dropped messages are acknowledged; Retry messages are not.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Applied
	case errors.Is(err, events.ErrDuplicate):
		return Skipped
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindBusinessRule:
		return Dropped
	default:
		return Retry
	}
}

func (o Outcome) Ack() bool { return o != Retry }
