package order

import (
	"context"
	"time"

	"github.com/example/ticketing/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Sweeper periodically expires orders that were never paid.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *logrus.Entry
}

func NewSweeper(service *Service, interval time.Duration, logger *logrus.Entry) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.service.ExpireDue(ctx)
	metrics.OrdersExpiredTotal.Add(float64(n))
	if err != nil {
		s.logger.WithError(err).Error("[Orders] expiring orders")
	}
	if n > 0 {
		s.logger.WithField("count", n).Info("[Orders] expired orders cancelled")
	}
}
