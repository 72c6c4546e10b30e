package api

import (
	"github.com/example/ticketing/internal/api/middleware"
	"github.com/example/ticketing/internal/auth"
	"github.com/example/ticketing/internal/config"
	"github.com/labstack/echo/v4"
)

// Register mounts the routes of service.
func Register(e *echo.Echo, h *Handlers, jwtService *auth.JWTService, service string) {
	requireAuth := middleware.RequireAuth(jwtService)

	switch service {
	case config.ServiceTickets:
		e.GET("/api/tickets", h.GetTickets)
		e.GET("/api/tickets/:id", h.GetTicket)
		e.POST("/api/tickets", h.CreateTicket, requireAuth)
		e.PUT("/api/tickets/:id", h.UpdateTicket, requireAuth)

	case config.ServiceOrders:
		orders := e.Group("/api/orders", requireAuth)
		orders.GET("", h.GetOrders)
		orders.POST("", h.CreateOrder)
		orders.GET("/:id", h.GetOrder)
		orders.DELETE("/:id", h.CancelOrder)

	case config.ServicePayments:
		e.POST("/api/payments", h.CreateCharge, requireAuth)
	}
}
