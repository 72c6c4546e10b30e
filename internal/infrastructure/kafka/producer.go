package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/example/ticketing/internal/eventbus"
	"github.com/segmentio/kafka-go"
)

func newWriter(brokers []string, opts eventbus.Options) *kafka.Writer {
	return &kafka.Writer{
		Addr: kafka.TCP(brokers...),
		// Hash keeps every message of one entity on one partition.
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            opts.PublishRetries,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			ClientID:    opts.ClientID,
			DialTimeout: 10 * time.Second,
		},
	}
}

// Publish writes synchronously and returns once all in-sync replicas have
// the message. The writer retries up to PublishRetries times.
func (c *Conn) Publish(ctx context.Context, subject string, data []byte, metadata map[string]string) error {
	if c.closed() {
		return eventbus.ErrClosed
	}

	err := c.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topicName(c.opts.ClusterID, subject),
		Key:     []byte(metadata[eventbus.MetaPartitionKey]),
		Value:   data,
		Headers: toHeaders(metadata),
		Time:    time.Now(),
	})
	if ctx.Err() == nil {
		c.watchdog.Observe(err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", eventbus.ErrPublish, subject, err)
	}
	return nil
}
