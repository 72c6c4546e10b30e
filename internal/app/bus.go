package app

import (
	"context"

	"github.com/example/ticketing/internal/config"
	"github.com/example/ticketing/internal/eventbus"
	"github.com/example/ticketing/internal/infrastructure/kafka"
	"github.com/example/ticketing/internal/infrastructure/pubsub"
	"github.com/sirupsen/logrus"
)

// ConnectBus opens the transport selected by opts.Driver. Kafka is the
// default.
func ConnectBus(ctx context.Context, opts eventbus.Options, logger *logrus.Entry) (eventbus.Conn, error) {
	switch opts.Driver {
	case config.DriverRedis:
		conn, err := pubsub.ConnectRedis(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case config.DriverMemory:
		return pubsub.NewMemory(opts, logger), nil
	default:
		conn, err := kafka.Connect(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
