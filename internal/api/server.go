package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/example/ticketing/internal/api/middleware"
	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewEcho returns an echo instance with the shared error body, request
// middlewares and the /health and /metrics endpoints.
func NewEcho(logger *logrus.Entry, isHealthy func() bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.CorrelationID(logger))
	e.Use(middleware.Logging())
	e.Use(middleware.Metrics(statusOf))

	e.GET("/health", func(c echo.Context) error {
		if isHealthy != nil && !isHealthy() {
			return c.String(http.StatusServiceUnavailable, "bus connection is closed")
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

type errorResponse struct {
	Errors []apperr.FieldError `json:"errors"`
}

// statusOf maps errors raised by handlers or by echo itself to a status code.
func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.HTTPStatus(err)
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusOf(err)
	body := errorResponse{Errors: apperr.Serialize(err)}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		body = errorResponse{Errors: []apperr.FieldError{{Message: http.StatusText(he.Code)}}}
		if msg, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			body.Errors[0].Message = msg
		}
	}

	if status >= http.StatusInternalServerError {
		log.FromContext(c.Request().Context()).WithError(err).Error("[API] request failed")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		log.FromContext(c.Request().Context()).WithError(err).Warn("[API] writing error response")
	}
}

type Server struct {
	e    *echo.Echo
	addr string
}

func NewServer(e *echo.Echo, addr string) *Server {
	return &Server{e: e, addr: addr}
}

func (s *Server) Start() error {
	err := s.e.Start(s.addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
