package ticket

import (
	"context"
	"fmt"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/events"
	"github.com/example/ticketing/internal/infrastructure/store"
	"github.com/example/ticketing/internal/log"
	"github.com/example/ticketing/internal/publisher"
	"github.com/google/uuid"
)

// QueueGroup is shared by every instance of the tickets service.
const QueueGroup = "tickets-service"

var ErrReserved = apperr.BusinessRule("Cannot edit a reserved ticket")

type Service struct {
	store   store.TicketStore
	created publisher.Publisher[events.TicketCreated]
	updated publisher.Publisher[events.TicketUpdated]
}

func NewService(
	s store.TicketStore,
	created publisher.Publisher[events.TicketCreated],
	updated publisher.Publisher[events.TicketUpdated],
) *Service {
	return &Service{store: s, created: created, updated: updated}
}

// Create stores a ticket and announces it. A ticket whose ticket:created
// could not be published is withdrawn again, so the orders service never
// misses a ticket that stays listed here.
func (s *Service) Create(ctx context.Context, userID, title string, price float64) (store.Ticket, error) {
	t := store.Ticket{
		ID:            uuid.New().String(),
		Title:         title,
		Price:         price,
		UserID:        userID,
		Version:       0,
		OrderVersions: store.OrderVersions{},
	}

	if err := s.store.InsertTicket(ctx, t); err != nil {
		return store.Ticket{}, err
	}

	err := s.created.Publish(ctx, events.TicketCreated{
		ID:      t.ID,
		Version: t.Version,
		Title:   t.Title,
		Price:   t.Price,
		UserID:  t.UserID,
	})
	if err != nil {
		if delErr := s.store.DeleteTicket(context.WithoutCancel(ctx), t.ID, t.Version); delErr != nil {
			log.FromContext(ctx).
				WithError(delErr).
				WithField("ticket_id", t.ID).
				Error("[Tickets] withdrawing unannounced ticket")
		}
		return store.Ticket{}, err
	}
	return t, nil
}

// Update edits title and price. Only the owner may edit, and only while the
// ticket is not reserved.
func (s *Service) Update(ctx context.Context, userID, id, title string, price float64) (store.Ticket, error) {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return store.Ticket{}, err
	}
	if t.UserID != userID {
		return store.Ticket{}, apperr.NotAuthorized()
	}
	if t.Reserved() {
		return store.Ticket{}, ErrReserved
	}

	next := t
	next.Title = title
	next.Price = price
	next.Version = t.Version + 1

	if err := s.save(ctx, t, next); err != nil {
		return store.Ticket{}, err
	}
	return next, nil
}

// ReserveForOrder applies order:created.
func (s *Service) ReserveForOrder(ctx context.Context, e events.OrderCreated) error {
	t, err := s.store.GetTicket(ctx, e.Ticket.ID)
	if err != nil {
		return err
	}

	if seen, ok := t.OrderVersions.Seen(e.ID); ok && e.Version <= seen {
		return s.duplicate(ctx, t, e.ID, e.Version, seen)
	}
	if t.Reserved() && t.OrderID != e.ID {
		return apperr.Conflict(fmt.Sprintf("ticket %s is reserved by order %s", t.ID, t.OrderID))
	}

	next := t
	next.OrderID = e.ID
	next.OrderVersions = t.OrderVersions.With(e.ID, e.Version)
	next.Version = t.Version + 1

	return s.save(ctx, t, next)
}

// ReleaseForOrder applies order:cancelled. The reservation is cleared only
// when the cancelled order holds it; the order version is recorded either
// way so a late order:created for the same order is ignored.
func (s *Service) ReleaseForOrder(ctx context.Context, e events.OrderCancelled) error {
	t, err := s.store.GetTicket(ctx, e.Ticket.ID)
	if err != nil {
		return err
	}

	if seen, ok := t.OrderVersions.Seen(e.ID); ok && e.Version <= seen {
		return s.duplicate(ctx, t, e.ID, e.Version, seen)
	}

	next := t
	if t.OrderID == e.ID {
		next.OrderID = ""
	}
	next.OrderVersions = t.OrderVersions.With(e.ID, e.Version)
	next.Version = t.Version + 1

	return s.save(ctx, t, next)
}

// duplicate re-announces the ticket on an exact replay: the first delivery
// may have stored the change and then failed to publish it.
func (s *Service) duplicate(ctx context.Context, t store.Ticket, orderID string, version, seen int) error {
	log.FromContext(ctx).
		WithField("ticket_id", t.ID).
		WithField("order_id", orderID).
		WithField("order_version", version).
		Info("[Tickets] order event already applied")

	if version == seen {
		if err := s.announce(ctx, t); err != nil {
			return err
		}
	}
	return fmt.Errorf("ticket %s, order %s v%d: %w", t.ID, orderID, version, events.ErrDuplicate)
}

func (s *Service) save(ctx context.Context, current, next store.Ticket) error {
	if err := s.store.UpdateTicket(ctx, next, current.Version); err != nil {
		return err
	}
	return s.announce(ctx, next)
}

func (s *Service) announce(ctx context.Context, t store.Ticket) error {
	return s.updated.Publish(ctx, events.TicketUpdated{
		ID:      t.ID,
		Version: t.Version,
		Title:   t.Title,
		Price:   t.Price,
		UserID:  t.UserID,
		OrderID: t.OrderID,
	})
}
