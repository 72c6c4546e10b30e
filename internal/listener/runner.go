package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/example/ticketing/internal/eventbus"
	"github.com/example/ticketing/internal/log"
	"github.com/example/ticketing/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Runner subscribes listeners and settles every delivery according to the
// listener's outcome.
type Runner struct {
	logger *logrus.Entry
}

func NewRunner(logger *logrus.Entry) *Runner {
	return &Runner{logger: logger}
}

// Start subscribes every listener on conn. Deliveries continue until ctx is
// cancelled or conn is closed.
func (r *Runner) Start(ctx context.Context, conn eventbus.Conn, listeners ...Listener) error {
	for _, l := range listeners {
		subject := string(l.Subject())
		if err := conn.Subscribe(ctx, subject, l.QueueGroup(), r.Handler(l)); err != nil {
			return fmt.Errorf("subscribing %s for %s: %w", subject, l.QueueGroup(), err)
		}
		r.logger.WithFields(logrus.Fields{
			"subject":     subject,
			"queue_group": l.QueueGroup(),
		}).Info("[Listener] listening")
	}
	return nil
}

// Handler adapts l to the bus handler signature.
func (r *Runner) Handler(l Listener) eventbus.Handler {
	subject := string(l.Subject())
	queueGroup := l.QueueGroup()

	return func(ctx context.Context, msg *eventbus.Message) {
		start := time.Now()

		correlationID := msg.Metadata[eventbus.MetaCorrelationID]
		if correlationID == "" {
			correlationID = log.CorrelationIDFromContext(ctx)
		}
		logger := r.logger.WithFields(logrus.Fields{
			"subject":        subject,
			"queue_group":    queueGroup,
			"sequence":       msg.Sequence,
			"attempt":        msg.Attempt,
			"correlation_id": correlationID,
		})
		ctx = log.ContextWithCorrelationID(ctx, correlationID)
		ctx = log.ToContext(ctx, logger)

		err := l.OnMessage(ctx, msg)
		outcome := Classify(err)

		switch outcome {
		case Applied:
			logger.Debug("[Listener] event applied")
		case Skipped:
			logger.Info("[Listener] duplicate event skipped")
		case Dropped:
			logger.WithError(err).WithField("payload", string(msg.Data)).
				Error("[Listener] event dropped")
		case Retry:
			logger.WithError(err).Warn("[Listener] event not applied, will be redelivered")
		}

		var settleErr error
		if outcome.Ack() {
			settleErr = msg.Ack()
		} else {
			settleErr = msg.Nack()
		}
		if settleErr != nil {
			logger.WithError(settleErr).Error("[Listener] failed to settle message")
		}

		metrics.ListenerMessagesTotal.WithLabelValues(subject, queueGroup, string(outcome)).Inc()
		metrics.ListenerMessageDuration.WithLabelValues(subject, queueGroup).Observe(time.Since(start).Seconds())
	}
}
