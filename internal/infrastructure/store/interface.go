package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ticketing/internal/apperr"
)

var (
	// ErrAlreadyExists is wrapped by inserts that hit an existing key.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrVersionConflict is wrapped by updates whose expected version no
	// longer matches the stored one.
	ErrVersionConflict = errors.New("version conflict")
	// ErrTicketReserved is wrapped by InsertOrder when another order
	// holding the same ticket exists.
	ErrTicketReserved = errors.New("ticket is held by another order")
)

func alreadyExists(entity, id string) error {
	return &apperr.Error{
		Kind:    apperr.KindConflict,
		Message: fmt.Sprintf("%s %s already exists", entity, id),
		Err:     ErrAlreadyExists,
	}
}

func versionConflict(entity, id string, expected int) error {
	return &apperr.Error{
		Kind:    apperr.KindConflict,
		Message: fmt.Sprintf("%s %s is no longer at version %d", entity, id, expected),
		Err:     ErrVersionConflict,
	}
}

func ticketReserved() error {
	return &apperr.Error{
		Kind:    apperr.KindBusinessRule,
		Message: "Ticket is already reserved",
		Err:     ErrTicketReserved,
	}
}

func notFound(entity string) error {
	return apperr.NotFound(entity + " not found")
}

// Update methods write the row only if its stored version equals
// expectedVersion. Callers pass the row carrying its new version.

type TicketStore interface {
	InsertTicket(ctx context.Context, t Ticket) error
	GetTicket(ctx context.Context, id string) (Ticket, error)
	ListTickets(ctx context.Context) ([]Ticket, error)
	UpdateTicket(ctx context.Context, t Ticket, expectedVersion int) error
	DeleteTicket(ctx context.Context, id string, expectedVersion int) error
}

type OrderStore interface {
	InsertOrderTicket(ctx context.Context, t OrderTicket) error
	GetOrderTicket(ctx context.Context, id string) (OrderTicket, error)
	UpdateOrderTicket(ctx context.Context, t OrderTicket, expectedVersion int) error

	// InsertOrder fails with ErrTicketReserved when o and a stored order
	// both hold the same ticket.
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]Order, error)
	ListOrdersByTicket(ctx context.Context, ticketID string) ([]Order, error)
	// ListExpiredOrders returns orders in one of statuses whose expiry is
	// before now.
	ListExpiredOrders(ctx context.Context, now time.Time, statuses ...string) ([]Order, error)
	UpdateOrder(ctx context.Context, o Order, expectedVersion int) error
}

type PaymentStore interface {
	InsertPaymentOrder(ctx context.Context, o PaymentOrder) error
	GetPaymentOrder(ctx context.Context, id string) (PaymentOrder, error)
	UpdatePaymentOrder(ctx context.Context, o PaymentOrder, expectedVersion int) error

	// InsertPayment fails with ErrAlreadyExists when the order is paid.
	InsertPayment(ctx context.Context, p Payment) error
	GetPaymentByOrder(ctx context.Context, orderID string) (Payment, error)
}
