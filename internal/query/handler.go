package query

import (
	"context"
	"errors"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/infrastructure/store"
	"github.com/example/ticketing/internal/log"
	"github.com/example/ticketing/internal/readmodel"
)

// Handler serves reads straight from the local stores. A store the process
// does not own is left nil.
type Handler struct {
	tickets store.TicketStore
	orders  store.OrderStore
}

func NewHandler(tickets store.TicketStore, orders store.OrderStore) *Handler {
	return &Handler{tickets: tickets, orders: orders}
}

// Tickets
func (h *Handler) GetTicket(ctx context.Context, id string) (readmodel.TicketReadModel, error) {
	t, err := h.tickets.GetTicket(ctx, id)
	if err != nil {
		return readmodel.TicketReadModel{}, err
	}
	return readmodel.NewTicket(t), nil
}

// ListAvailableTickets returns the tickets that can still be ordered.
func (h *Handler) ListAvailableTickets(ctx context.Context) ([]readmodel.TicketReadModel, error) {
	tickets, err := h.tickets.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]readmodel.TicketReadModel, 0, len(tickets))
	for _, t := range tickets {
		if !t.Reserved() {
			available = append(available, readmodel.NewTicket(t))
		}
	}
	return available, nil
}

// Orders
func (h *Handler) GetOrder(ctx context.Context, userID, id string) (readmodel.OrderReadModel, error) {
	o, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		return readmodel.OrderReadModel{}, err
	}
	if o.UserID != userID {
		return readmodel.OrderReadModel{}, apperr.NotAuthorized()
	}
	return readmodel.NewOrder(o, h.orderTicket(ctx, o.TicketID)), nil
}

func (h *Handler) ListOrdersByUser(ctx context.Context, userID string) ([]readmodel.OrderReadModel, error) {
	orders, err := h.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := make([]readmodel.OrderReadModel, 0, len(orders))
	for _, o := range orders {
		result = append(result, readmodel.NewOrder(o, h.orderTicket(ctx, o.TicketID)))
	}
	return result, nil
}

// orderTicket looks up the projected ticket. Orders are still listed when
// the lookup fails.
func (h *Handler) orderTicket(ctx context.Context, id string) store.OrderTicket {
	t, err := h.orders.GetOrderTicket(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		log.FromContext(ctx).WithError(err).WithField("ticket_id", id).Warn("[Query] loading order ticket")
	}
	return t
}
