package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/events"
	"github.com/example/ticketing/internal/infrastructure/store"
	"github.com/example/ticketing/internal/log"
	"github.com/example/ticketing/internal/publisher"
	"github.com/google/uuid"
)

// DefaultExpirationWindow is how long a new order holds its ticket.
const DefaultExpirationWindow = 15 * time.Minute

type Service struct {
	store     store.OrderStore
	created   publisher.Publisher[events.OrderCreated]
	cancelled publisher.Publisher[events.OrderCancelled]
	window    time.Duration
	now       func() time.Time
}

func NewService(
	s store.OrderStore,
	created publisher.Publisher[events.OrderCreated],
	cancelled publisher.Publisher[events.OrderCancelled],
	window time.Duration,
) *Service {
	if window <= 0 {
		window = DefaultExpirationWindow
	}
	return &Service{
		store:     s,
		created:   created,
		cancelled: cancelled,
		window:    window,
		now:       time.Now,
	}
}

// Create reserves ticketID for userID. The store rejects a second order
// holding the same ticket, so concurrent requests cannot both succeed.
func (s *Service) Create(ctx context.Context, userID, ticketID string) (store.Order, error) {
	ticket, err := s.store.GetOrderTicket(ctx, ticketID)
	if err != nil {
		return store.Order{}, err
	}

	existing, err := s.store.ListOrdersByTicket(ctx, ticketID)
	if err != nil {
		return store.Order{}, err
	}
	for _, o := range existing {
		if Status(o.Status).Active() {
			return store.Order{}, apperr.BusinessRule("Ticket is already reserved")
		}
	}

	o := store.Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    string(StatusCreated),
		ExpiresAt: s.now().Add(s.window).UTC(),
		TicketID:  ticket.ID,
		Version:   0,
	}
	if err := s.store.InsertOrder(ctx, o); err != nil {
		return store.Order{}, err
	}

	err = s.created.Publish(ctx, events.OrderCreated{
		ID:        o.ID,
		Version:   o.Version,
		Status:    o.Status,
		UserID:    o.UserID,
		ExpiresAt: o.ExpiresAt,
		Ticket:    events.TicketRef{ID: ticket.ID, Price: ticket.Price},
	})
	if err != nil {
		return store.Order{}, err
	}
	return o, nil
}

// Get returns an order owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (store.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return store.Order{}, err
	}
	if o.UserID != userID {
		return store.Order{}, apperr.NotAuthorized()
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]store.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}

// Cancel cancels an order owned by userID and announces it.
func (s *Service) Cancel(ctx context.Context, userID, id string) (store.Order, error) {
	o, err := s.Get(ctx, userID, id)
	if err != nil {
		return store.Order{}, err
	}
	return s.cancel(ctx, o)
}

func (s *Service) cancel(ctx context.Context, o store.Order) (store.Order, error) {
	next, err := s.transition(ctx, o, StatusCancelled)
	if err != nil {
		return store.Order{}, err
	}

	err = s.cancelled.Publish(ctx, events.OrderCancelled{
		ID:      next.ID,
		Version: next.Version,
		Ticket:  events.TicketID{ID: next.TicketID},
	})
	if err != nil {
		return store.Order{}, err
	}
	return next, nil
}

// transition persists o in status to with its version bumped by one.
func (s *Service) transition(ctx context.Context, o store.Order, to Status) (store.Order, error) {
	if !CanTransition(Status(o.Status), to) {
		return store.Order{}, transitionError(Status(o.Status), to)
	}

	next := o
	next.Status = string(to)
	next.Version = o.Version + 1
	if err := s.store.UpdateOrder(ctx, next, o.Version); err != nil {
		return store.Order{}, err
	}

	log.FromContext(ctx).
		WithField("order_id", o.ID).
		WithField("from", o.Status).
		WithField("to", next.Status).
		WithField("version", next.Version).
		Info("[Orders] order status changed")
	return next, nil
}

// ====================
// Event reactions
// ====================

// ApplyTicketCreated adds a ticket to the local projection.
func (s *Service) ApplyTicketCreated(ctx context.Context, e events.TicketCreated) error {
	err := s.store.InsertOrderTicket(ctx, store.OrderTicket{
		ID:      e.ID,
		Title:   e.Title,
		Price:   e.Price,
		Version: e.Version,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("ticket %s: %w", e.ID, events.ErrDuplicate)
	}
	return err
}

// ApplyTicketUpdated adopts ticket versions strictly in sequence. A ticket
// reserved for an order still in created confirms that reservation.
func (s *Service) ApplyTicketUpdated(ctx context.Context, e events.TicketUpdated) error {
	t, err := s.store.GetOrderTicket(ctx, e.ID)
	if err != nil {
		return err
	}

	switch events.Sequential.Decide(t.Version, e.Version) {
	case events.Skip:
		return fmt.Errorf("ticket %s v%d: %w", e.ID, e.Version, events.ErrDuplicate)
	case events.Defer:
		return fmt.Errorf("ticket %s v%d after v%d: %w", e.ID, e.Version, t.Version, events.ErrOutOfOrder)
	}

	// The order moves first: a failure after it is retried and finds the
	// order already awaiting payment.
	if e.OrderID != "" {
		if err := s.confirmReservation(ctx, e.OrderID); err != nil {
			return err
		}
	}

	next := t
	next.Title = e.Title
	next.Price = e.Price
	next.Version = e.Version
	return s.store.UpdateOrderTicket(ctx, next, t.Version)
}

func (s *Service) confirmReservation(ctx context.Context, orderID string) error {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if Status(o.Status) != StatusCreated {
		return nil
	}
	_, err = s.transition(ctx, o, StatusAwaitingPayment)
	return err
}

// ApplyPaymentCreated completes an order awaiting payment.
func (s *Service) ApplyPaymentCreated(ctx context.Context, e events.PaymentCreated) error {
	o, err := s.store.GetOrder(ctx, e.OrderID)
	if err != nil {
		return err
	}

	switch Status(o.Status) {
	case StatusAwaitingPayment:
		_, err := s.transition(ctx, o, StatusComplete)
		return err
	case StatusCreated:
		return fmt.Errorf("order %s paid before its reservation was confirmed: %w", o.ID, events.ErrOutOfOrder)
	default:
		if Status(o.Status) == StatusCancelled {
			log.FromContext(ctx).
				WithField("order_id", o.ID).
				WithField("payment_id", e.ID).
				Warn("[Orders] payment received for a cancelled order")
		}
		return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, events.ErrDuplicate)
	}
}

// ExpireDue cancels every order whose reservation window has passed and
// returns how many were cancelled.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	due, err := s.store.ListExpiredOrders(ctx, s.now(),
		string(StatusCreated), string(StatusAwaitingPayment))
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, o := range due {
		if _, err := s.cancel(ctx, o); err != nil {
			errs = append(errs, fmt.Errorf("expiring order %s: %w", o.ID, err))
			continue
		}
		expired++
	}
	return expired, errors.Join(errs...)
}
