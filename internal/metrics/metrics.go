// Package metrics holds the Prometheus collectors shared by the bus
// frameworks and the HTTP servers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ListenerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listener_messages_total",
		Help: "Messages handled by listeners, by outcome",
	}, []string{"subject", "queue_group", "outcome"})

	ListenerMessageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listener_message_duration_seconds",
		Help:    "Duration of listener message handling in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"subject", "queue_group"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Events published to the bus, by result",
	}, []string{"subject", "result"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by route and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "http_request_duration_seconds",
		Help:       "Duration of HTTP requests in seconds",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"method", "route"})

	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_charges_total",
		Help: "Charge attempts against the payment processor, by result",
	}, []string{"result"})

	OrdersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_expired_total",
		Help: "Orders cancelled by the expiration sweeper",
	})
)
