package order

import (
	"fmt"
	"slices"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/events"
)

// QueueGroup is shared by every instance of the orders service.
const QueueGroup = "orders-service"

type Status string

const (
	StatusCreated         Status = events.OrderStatusCreated
	StatusAwaitingPayment Status = events.OrderStatusAwaitingPayment
	StatusCancelled       Status = events.OrderStatusCancelled
	StatusComplete        Status = events.OrderStatusComplete
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusCreated:         {StatusAwaitingPayment, StatusCancelled},
	StatusAwaitingPayment: {StatusComplete, StatusCancelled},
	StatusCancelled:       {}, // terminal state
	StatusComplete:        {}, // terminal state
}

// CanTransition checks if an order in from may move to to
func CanTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Active reports whether an order in s still holds its ticket
func (s Status) Active() bool {
	return s == StatusCreated || s == StatusAwaitingPayment || s == StatusComplete
}

// transitionError returns an appropriate error for an invalid transition
func transitionError(from, to Status) error {
	switch {
	case from == StatusCancelled:
		return apperr.BusinessRule("Order is already cancelled")
	case from == StatusComplete && to == StatusCancelled:
		return apperr.BusinessRule("Cannot cancel a completed order")
	default:
		return apperr.BusinessRule(fmt.Sprintf("Cannot move order from %s to %s", from, to))
	}
}
