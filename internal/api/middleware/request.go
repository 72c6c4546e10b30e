package middleware

import (
	"strconv"
	"time"

	"github.com/example/ticketing/internal/log"
	"github.com/example/ticketing/internal/metrics"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// CorrelationID takes the correlation id from the request header, or
// generates one, and stores it with a request scoped logger in the context.
func CorrelationID(logger *logrus.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()

			correlationID := req.Header.Get(log.CorrelationIDHeader)
			if correlationID == "" {
				correlationID = log.CorrelationIDFromContext(ctx)
			}

			ctx = log.ContextWithCorrelationID(ctx, correlationID)
			ctx = log.ToContext(ctx, logger.WithField("correlation_id", correlationID))
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(log.CorrelationIDHeader, correlationID)

			return next(c)
		}
	}
}

// Logging logs every request and the error it ended with, if any.
func Logging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log.FromContext(c.Request().Context()).
				WithField("method", c.Request().Method).
				WithField("path", c.Request().URL.Path).
				Info("Handling a request")

			err := next(c)

			if err != nil {
				log.FromContext(c.Request().Context()).
					WithError(err).
					Error("Request handling error")
			}

			return err
		}
	}
}

// Metrics records request counts and latencies per route. It runs outside
// the error handler's reach, so the status of a failed request is taken
// from the error.
func Metrics(status func(error) int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			code := c.Response().Status
			if err != nil {
				code = status(err)
			}
			method := c.Request().Method
			metrics.HTTPRequestsTotal.WithLabelValues(method, c.Path(), strconv.Itoa(code)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(method, c.Path()).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
