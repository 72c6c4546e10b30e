// Package kafka implements eventbus.Conn on Kafka: one topic per subject,
// one consumer group per queue group, commits as acknowledgements.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/ticketing/internal/eventbus"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Conn struct {
	opts    eventbus.Options
	brokers []string
	dialer  *kafka.Dialer
	writer  *kafka.Writer
	logger  *logrus.Entry

	watchdog *eventbus.Watchdog

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup

	base      context.Context
	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Connect verifies that a broker is reachable before returning. A failure
// here is fatal for the caller. Afterwards the brokers are pinged every
// HealthInterval, and MaxFailures consecutive failed pings, fetches or
// publishes close the connection.
func Connect(ctx context.Context, opts eventbus.Options, logger *logrus.Entry) (*Conn, error) {
	opts = opts.WithDefaults()

	brokers := splitBrokers(opts.URL)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: no brokers in %q", eventbus.ErrConnection, opts.URL)
	}

	dialer := &kafka.Dialer{
		ClientID:  opts.ClientID,
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	first, err := dialer.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", eventbus.ErrConnection, err)
	}
	_ = first.Close()

	base, stop := context.WithCancel(context.Background())
	c := &Conn{
		opts:     opts,
		brokers:  brokers,
		dialer:   dialer,
		writer:   newWriter(brokers, opts),
		logger:   logger.WithField("bus", "kafka"),
		watchdog: eventbus.NewWatchdog(opts.MaxFailures),
		base:     base,
		stop:     stop,
		done:     make(chan struct{}),
	}

	go c.watchdog.Watch(base, opts.HealthInterval, c.ping)
	go c.closeWhenLost()
	return c, nil
}

// ping succeeds when any broker accepts a connection.
func (c *Conn) ping(ctx context.Context) error {
	var errs []error
	for _, broker := range c.brokers {
		conn, err := c.dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
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

// Close stops fetching, gives in-flight handlers up to AckWait to finish and
// then closes readers and the writer.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stop()
		if !eventbus.Drain(&c.wg, c.opts.AckWait) {
			c.logger.Warn("[Bus] in-flight handlers did not finish before close")
		}

		c.mu.Lock()
		for _, r := range c.readers {
			err = errors.Join(err, r.Close())
		}
		c.mu.Unlock()

		err = errors.Join(err, c.writer.Close())
		close(c.done)
		c.logger.Info("[Bus] connection closed")
	})
	return err
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return c.base.Err() != nil
	}
}

// topicName maps a subject to a Kafka-legal topic, namespaced by cluster id.
func topicName(clusterID, subject string) string {
	topic := strings.ReplaceAll(subject, ":", "-")
	if clusterID == "" {
		return topic
	}
	return clusterID + "." + topic
}

func splitBrokers(url string) []string {
	var brokers []string
	for _, b := range strings.Split(url, ",") {
		b = strings.TrimSpace(b)
		b = strings.TrimPrefix(b, "kafka://")
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func toHeaders(metadata map[string]string) []kafka.Header {
	headers := make([]kafka.Header, 0, len(metadata))
	for k, v := range metadata {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

func fromHeaders(headers []kafka.Header) map[string]string {
	metadata := make(map[string]string, len(headers))
	for _, h := range headers {
		metadata[h.Key] = string(h.Value)
	}
	return metadata
}
