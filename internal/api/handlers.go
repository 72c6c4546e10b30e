package api

import (
	"net/http"

	"github.com/example/ticketing/internal/api/middleware"
	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/command"
	"github.com/example/ticketing/internal/query"
	"github.com/example/ticketing/internal/readmodel"
	"github.com/labstack/echo/v4"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
	}
}

// bind decodes the request body into cmd. Undecodable bodies are
// validation errors.
func bind(c echo.Context, cmd any) error {
	if err := c.Bind(cmd); err != nil {
		return apperr.Malformed(err)
	}
	return nil
}

func userID(c echo.Context) string {
	return middleware.GetUserID(c.Request().Context())
}

// Ticket Handlers

func (h *Handlers) CreateTicket(c echo.Context) error {
	var cmd command.CreateTicket
	if err := bind(c, &cmd); err != nil {
		return err
	}
	cmd.UserID = userID(c)

	t, err := h.cmdHandler.CreateTicket(c.Request().Context(), cmd)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, readmodel.NewTicket(t))
}

func (h *Handlers) UpdateTicket(c echo.Context) error {
	var cmd command.UpdateTicket
	if err := bind(c, &cmd); err != nil {
		return err
	}
	cmd.UserID = userID(c)
	cmd.TicketID = c.Param("id")

	t, err := h.cmdHandler.UpdateTicket(c.Request().Context(), cmd)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, readmodel.NewTicket(t))
}

func (h *Handlers) GetTicket(c echo.Context) error {
	ticket, err := h.queryHandler.GetTicket(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ticket)
}

func (h *Handlers) GetTickets(c echo.Context) error {
	tickets, err := h.queryHandler.ListAvailableTickets(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tickets)
}

// Order Handlers

func (h *Handlers) CreateOrder(c echo.Context) error {
	var cmd command.CreateOrder
	if err := bind(c, &cmd); err != nil {
		return err
	}
	cmd.UserID = userID(c)

	o, err := h.cmdHandler.CreateOrder(c.Request().Context(), cmd)
	if err != nil {
		return err
	}

	// Read back so the response carries the ticket.
	order, err := h.queryHandler.GetOrder(c.Request().Context(), cmd.UserID, o.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, order)
}

func (h *Handlers) GetOrders(c echo.Context) error {
	orders, err := h.queryHandler.ListOrdersByUser(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *Handlers) GetOrder(c echo.Context) error {
	order, err := h.queryHandler.GetOrder(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handlers) CancelOrder(c echo.Context) error {
	cmd := command.CancelOrder{UserID: userID(c), OrderID: c.Param("id")}

	if _, err := h.cmdHandler.CancelOrder(c.Request().Context(), cmd); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Payment Handlers

func (h *Handlers) CreateCharge(c echo.Context) error {
	var cmd command.CreateCharge
	if err := bind(c, &cmd); err != nil {
		return err
	}
	cmd.UserID = userID(c)

	p, err := h.cmdHandler.CreateCharge(c.Request().Context(), cmd)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, readmodel.PaymentReadModel{ID: p.ID})
}
