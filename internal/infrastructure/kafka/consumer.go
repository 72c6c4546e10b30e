package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/example/ticketing/internal/eventbus"
	"github.com/segmentio/kafka-go"
)

// Subscribe starts a consumer-group reader for subject. Deliveries within the
// subscription are sequential; a nacked message is redelivered with backoff
// before the reader moves on, so offsets are only committed past messages
// that were acknowledged.
func (c *Conn) Subscribe(ctx context.Context, subject, queueGroup string, h eventbus.Handler) error {
	if c.closed() {
		return eventbus.ErrClosed
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.brokers,
		Topic:          topicName(c.opts.ClusterID, subject),
		GroupID:        queueGroup,
		Dialer:         c.dialer,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})

	c.mu.Lock()
	c.readers = append(c.readers, reader)
	c.mu.Unlock()

	fetchCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(c.base, cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.consume(fetchCtx, subject, queueGroup, reader, h)
	}()

	c.logger.WithField("subject", subject).WithField("queue_group", queueGroup).Info("[Bus] subscribed")
	return nil
}

func (c *Conn) consume(ctx context.Context, subject, queueGroup string, reader *kafka.Reader, h eventbus.Handler) {
	logger := c.logger.WithField("subject", subject).WithField("queue_group", queueGroup)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.watchdog.Observe(err)
			logger.WithError(err).Error("[Bus] error fetching message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.RedeliveryDelay):
			}
			continue
		}
		c.watchdog.Observe(nil)

		c.deliver(ctx, subject, reader, m, h)
	}
}

func (c *Conn) deliver(ctx context.Context, subject string, reader *kafka.Reader, m kafka.Message, h eventbus.Handler) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RedeliveryDelay
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()

	sequence := fmt.Sprintf("%d/%d", m.Partition, m.Offset)

	for attempt := 1; ; attempt++ {
		msg := eventbus.NewMessage(subject, m.Value, fromHeaders(m.Headers), sequence, attempt,
			func() error { return c.commit(reader, m) },
			nil,
		)

		c.handle(ctx, h, msg)
		if msg.Acked() {
			return
		}

		// Not committed: if the process stops here the group redelivers it.
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.NextBackOff()):
		}
	}
}

func (c *Conn) handle(ctx context.Context, h eventbus.Handler, msg *eventbus.Message) {
	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.AckWait)
	defer cancel()

	h(handlerCtx, msg)
	msg.Resolve()
}

func (c *Conn) commit(reader *kafka.Reader, m kafka.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return reader.CommitMessages(ctx, m)
}
