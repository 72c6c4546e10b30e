package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ticketing/internal/app"
	"github.com/example/ticketing/internal/config"
	"github.com/example/ticketing/internal/log"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load(config.ServicePayments)
	if err != nil {
		logrus.WithError(err).Fatal("[Payments] invalid configuration")
	}
	log.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.WithField("service", cfg.Service)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("[Payments] failed to start")
	}

	logger.Info("[Payments] service started")
	if err := a.Run(ctx); err != nil {
		logger.WithError(err).Fatal("[Payments] service stopped")
	}
	logger.Info("[Payments] shut down")
}
