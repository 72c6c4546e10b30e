// Package pubsub implements eventbus.Conn on top of Watermill publishers and
// subscribers: Redis streams for deployments, Go channels for tests and
// single-process runs.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v3"
	"github.com/example/ticketing/internal/eventbus"
	"github.com/sirupsen/logrus"
)

// SubscriberFactory returns the subscriber serving one queue group.
type SubscriberFactory func(queueGroup string) (message.Subscriber, error)

type Conn struct {
	pub           message.Publisher
	newSubscriber SubscriberFactory
	opts          eventbus.Options
	logger        *logrus.Entry
	onClose       func() error
	watchdog      *eventbus.Watchdog

	mu   sync.Mutex
	subs []message.Subscriber
	wg   sync.WaitGroup

	base      context.Context
	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps Watermill components. When ping is set the bus is pinged
// every HealthInterval, and MaxFailures consecutive failed pings or publishes
// close the connection.
func NewConn(
	pub message.Publisher,
	newSubscriber SubscriberFactory,
	opts eventbus.Options,
	logger *logrus.Entry,
	ping func(context.Context) error,
	onClose func() error,
) *Conn {
	opts = opts.WithDefaults()
	base, stop := context.WithCancel(context.Background())
	c := &Conn{
		pub:           pub,
		newSubscriber: newSubscriber,
		opts:          opts,
		logger:        logger,
		onClose:       onClose,
		watchdog:      eventbus.NewWatchdog(opts.MaxFailures),
		base:          base,
		stop:          stop,
		done:          make(chan struct{}),
	}

	if ping != nil {
		go c.watchdog.Watch(base, opts.HealthInterval, ping)
	}
	go c.closeWhenLost()
	return c
}

func (c *Conn) closeWhenLost() {
	select {
	case <-c.base.Done():
	case <-c.watchdog.Lost():
		c.logger.WithField("failures", c.opts.MaxFailures).Error("[Bus] connection lost")
		if err := c.Close(); err != nil {
			c.logger.WithError(err).Warn("[Bus] closing lost connection")
		}
	}
}

func (c *Conn) topic(subject string) string {
	if c.opts.ClusterID == "" {
		return subject
	}
	return c.opts.ClusterID + "." + subject
}

func (c *Conn) closed() bool {
	return c.base.Err() != nil
}

// Publish retries transient failures with exponential backoff, up to
// PublishRetries attempts.
func (c *Conn) Publish(ctx context.Context, subject string, data []byte, metadata map[string]string) error {
	if c.closed() {
		return eventbus.ErrClosed
	}

	id := metadata[eventbus.MetaEventID]
	if id == "" {
		id = watermill.NewUUID()
	}

	op := func() error {
		msg := message.NewMessage(id, data)
		for k, v := range metadata {
			msg.Metadata.Set(k, v)
		}
		msg.SetContext(ctx)
		return c.pub.Publish(c.topic(subject), msg)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.opts.PublishRetries)),
		ctx,
	)
	err := backoff.Retry(op, b)
	if ctx.Err() == nil {
		c.watchdog.Observe(err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", eventbus.ErrPublish, subject, err)
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, subject, queueGroup string, h eventbus.Handler) error {
	if c.closed() {
		return eventbus.ErrClosed
	}

	sub, err := c.newSubscriber(queueGroup)
	if err != nil {
		return fmt.Errorf("creating subscriber for %s: %w", queueGroup, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(c.base, cancel)

	messages, err := sub.Subscribe(subCtx, c.topic(subject))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		attempts := map[string]int{}
		for wm := range messages {
			attempts[wm.UUID]++
			c.handle(subCtx, subject, wm, attempts[wm.UUID], h)
			if wm.Metadata.Get(resolvedKey) == resolvedAck {
				delete(attempts, wm.UUID)
			}
		}
	}()

	c.logger.WithField("subject", subject).WithField("queue_group", queueGroup).Info("[Bus] subscribed")
	return nil
}

const (
	resolvedKey = "_bus_resolved"
	resolvedAck = "ack"
)

func (c *Conn) handle(ctx context.Context, subject string, wm *message.Message, attempt int, h eventbus.Handler) {
	metadata := make(map[string]string, len(wm.Metadata))
	for k, v := range wm.Metadata {
		metadata[k] = v
	}

	msg := eventbus.NewMessage(subject, wm.Payload, metadata, wm.UUID, attempt,
		func() error {
			wm.Metadata.Set(resolvedKey, resolvedAck)
			wm.Ack()
			return nil
		},
		func() error {
			// Watermill transports resend immediately; pace redeliveries here.
			select {
			case <-ctx.Done():
			case <-time.After(c.redeliveryDelay(attempt)):
			}
			wm.Nack()
			return nil
		},
	)

	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.AckWait)
	defer cancel()

	h(handlerCtx, msg)
	msg.Resolve()
}

func (c *Conn) redeliveryDelay(attempt int) time.Duration {
	const maxDelay = 30 * time.Second
	delay := c.opts.RedeliveryDelay
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	return min(delay, maxDelay)
}

// Close cancels subscriptions, waits up to AckWait for in-flight handlers and
// closes the underlying Watermill components.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stop()
		if !eventbus.Drain(&c.wg, c.opts.AckWait) {
			c.logger.Warn("[Bus] in-flight handlers did not finish before close")
		}

		c.mu.Lock()
		for _, s := range c.subs {
			err = errors.Join(err, s.Close())
		}
		c.mu.Unlock()

		err = errors.Join(err, c.pub.Close())
		if c.onClose != nil {
			err = errors.Join(err, c.onClose())
		}
		close(c.done)
		c.logger.Info("[Bus] connection closed")
	})
	return err
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}
