package readmodel

import (
	"time"

	"github.com/example/ticketing/internal/infrastructure/store"
)

// TicketReadModel is the read model for tickets
type TicketReadModel struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	UserID  string  `json:"userId"`
	OrderID string  `json:"orderId,omitempty"`
	Version int     `json:"version"`
}

func NewTicket(t store.Ticket) TicketReadModel {
	return TicketReadModel{
		ID:      t.ID,
		Title:   t.Title,
		Price:   t.Price,
		UserID:  t.UserID,
		OrderID: t.OrderID,
		Version: t.Version,
	}
}

// OrderTicketReadModel is the ticket an order holds, as the orders service
// last saw it
type OrderTicketReadModel struct {
	ID    string  `json:"id"`
	Title string  `json:"title,omitempty"`
	Price float64 `json:"price,omitempty"`
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	ID        string               `json:"id"`
	UserID    string               `json:"userId"`
	Status    string               `json:"status"`
	ExpiresAt time.Time            `json:"expiresAt"`
	Ticket    OrderTicketReadModel `json:"ticket"`
	Version   int                  `json:"version"`
}

// NewOrder builds the read model of o. t may be the zero value when the
// ticket is unknown.
func NewOrder(o store.Order, t store.OrderTicket) OrderReadModel {
	return OrderReadModel{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		ExpiresAt: o.ExpiresAt.UTC(),
		Ticket: OrderTicketReadModel{
			ID:    o.TicketID,
			Title: t.Title,
			Price: t.Price,
		},
		Version: o.Version,
	}
}

// PaymentReadModel is returned when a charge succeeds
type PaymentReadModel struct {
	ID string `json:"id"`
}
