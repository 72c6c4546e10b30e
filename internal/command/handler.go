package command

import (
	"context"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/domain/order"
	"github.com/example/ticketing/internal/domain/payment"
	"github.com/example/ticketing/internal/domain/ticket"
	"github.com/example/ticketing/internal/infrastructure/store"
)

// Services are the domain services a process exposes. A service that the
// process does not run is left nil.
type Services struct {
	Tickets  *ticket.Service
	Orders   *order.Service
	Payments *payment.Service
}

// Handler validates commands once at the boundary and dispatches them.
type Handler struct {
	svc Services
}

func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

func unavailable(name string) error {
	return apperr.Infrastructure(name+" service is not configured", nil)
}

func (h *Handler) CreateTicket(ctx context.Context, cmd CreateTicket) (store.Ticket, error) {
	if err := cmd.Validate(); err != nil {
		return store.Ticket{}, err
	}
	if h.svc.Tickets == nil {
		return store.Ticket{}, unavailable("tickets")
	}
	return h.svc.Tickets.Create(ctx, cmd.UserID, cmd.Title, cmd.Price)
}

func (h *Handler) UpdateTicket(ctx context.Context, cmd UpdateTicket) (store.Ticket, error) {
	if err := cmd.Validate(); err != nil {
		return store.Ticket{}, err
	}
	if h.svc.Tickets == nil {
		return store.Ticket{}, unavailable("tickets")
	}
	return h.svc.Tickets.Update(ctx, cmd.UserID, cmd.TicketID, cmd.Title, cmd.Price)
}

func (h *Handler) CreateOrder(ctx context.Context, cmd CreateOrder) (store.Order, error) {
	if err := cmd.Validate(); err != nil {
		return store.Order{}, err
	}
	if h.svc.Orders == nil {
		return store.Order{}, unavailable("orders")
	}
	return h.svc.Orders.Create(ctx, cmd.UserID, cmd.TicketID)
}

func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (store.Order, error) {
	if err := cmd.Validate(); err != nil {
		return store.Order{}, err
	}
	if h.svc.Orders == nil {
		return store.Order{}, unavailable("orders")
	}
	return h.svc.Orders.Cancel(ctx, cmd.UserID, cmd.OrderID)
}

func (h *Handler) CreateCharge(ctx context.Context, cmd CreateCharge) (store.Payment, error) {
	if err := cmd.Validate(); err != nil {
		return store.Payment{}, err
	}
	if h.svc.Payments == nil {
		return store.Payment{}, unavailable("payments")
	}
	return h.svc.Payments.Charge(ctx, cmd.UserID, cmd.OrderID, cmd.Token)
}
