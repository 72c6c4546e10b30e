package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/example/ticketing/internal/eventbus"
	"github.com/example/ticketing/internal/log"
	"github.com/sirupsen/logrus"
)

// NewMemory returns an in-process bus. Every subscription receives every
// message, so each queue group must have a single member.
func NewMemory(opts eventbus.Options, logger *logrus.Entry) *Conn {
	logger = logger.WithField("bus", "memory")
	channel := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, log.NewWatermill(logger))

	return NewConn(channel, func(string) (message.Subscriber, error) {
		return channel, nil
	}, opts, logger, nil, nil)
}
