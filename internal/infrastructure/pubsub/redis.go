package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/example/ticketing/internal/eventbus"
	"github.com/example/ticketing/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ConnectRedis connects to Redis streams. Queue groups map to Redis consumer
// groups and the client id names this process inside each group.
func ConnectRedis(ctx context.Context, opts eventbus.Options, logger *logrus.Entry) (*Conn, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", eventbus.ErrConnection, err)
	}
	redisOpts.ClientName = opts.ClientID

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", eventbus.ErrConnection, err)
	}

	logger = logger.WithField("bus", "redis")
	watermillLogger := log.NewWatermill(logger)

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, watermillLogger)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", eventbus.ErrConnection, err)
	}

	newSubscriber := func(queueGroup string) (message.Subscriber, error) {
		return redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        client,
			ConsumerGroup: queueGroup,
			Consumer:      opts.ClientID,
		}, watermillLogger)
	}

	ping := func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	// The publisher closes the shared client itself.
	closeClient := func() error {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
		return nil
	}
	return NewConn(publisher, newSubscriber, opts, logger, ping, closeClient), nil
}
