package payment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/events"
	"github.com/example/ticketing/internal/infrastructure/store"
	"github.com/example/ticketing/internal/log"
	"github.com/example/ticketing/internal/metrics"
	"github.com/example/ticketing/internal/publisher"
	"github.com/google/uuid"
)

// QueueGroup is shared by every instance of the payments service.
const QueueGroup = "payments-service"

const Currency = "usd"

// ChargeRequest is one charge against the payment processor.
type ChargeRequest struct {
	Token       string
	AmountCents int64
	Currency    string
	// IdempotencyKey makes a repeated request return the original charge.
	IdempotencyKey string
}

// Charger calls the payment processor and returns its charge id.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}

// Locker guards a key across service instances. ok is false when another
// holder has the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(context.Context) error, ok bool, err error)
}

type Service struct {
	store   store.PaymentStore
	charger Charger
	locker  Locker
	created publisher.Publisher[events.PaymentCreated]
}

func NewService(
	s store.PaymentStore,
	charger Charger,
	locker Locker,
	created publisher.Publisher[events.PaymentCreated],
) *Service {
	return &Service{store: s, charger: charger, locker: locker, created: created}
}

// ChargeKey identifies the single charge allowed for an order.
func ChargeKey(orderID string) string {
	return "charge:" + orderID
}

// AmountCents converts a price to the processor's minor units.
func AmountCents(price float64) int64 {
	return int64(math.Round(price * 100))
}

// Charge pays for an order owned by userID, records the payment and
// announces it. Charging an order that is already paid charges nothing: the
// stored payment is announced again and returned, so a caller retrying after
// a failed publish recovers the lost payment:created.
func (s *Service) Charge(ctx context.Context, userID, orderID, token string) (store.Payment, error) {
	o, err := s.store.GetPaymentOrder(ctx, orderID)
	if err != nil {
		return store.Payment{}, err
	}
	if o.UserID != userID {
		return store.Payment{}, apperr.NotAuthorized()
	}
	if o.Status == events.OrderStatusCancelled {
		return store.Payment{}, apperr.BusinessRule("Cannot pay for an cancelled order")
	}
	if p, paid, err := s.findPayment(ctx, orderID); err != nil || paid {
		return s.reannounce(ctx, p, err)
	}

	key := ChargeKey(orderID)
	unlock, ok, err := s.locker.TryLock(ctx, key)
	if err != nil {
		return store.Payment{}, apperr.Infrastructure("locking "+key, err)
	}
	if !ok {
		return store.Payment{}, apperr.Conflict("A charge for this order is already in progress")
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.FromContext(ctx).WithError(err).WithField("key", key).Warn("[Payments] releasing charge lock")
		}
	}()

	// Another instance may have finished between the check and the lock.
	if p, paid, err := s.findPayment(ctx, orderID); err != nil || paid {
		return s.reannounce(ctx, p, err)
	}

	stripeID, err := s.charger.Charge(ctx, ChargeRequest{
		Token:          token,
		AmountCents:    AmountCents(o.Price),
		Currency:       Currency,
		IdempotencyKey: key,
	})
	if err != nil {
		metrics.ChargesTotal.WithLabelValues("failed").Inc()
		if apperr.KindOf(err) != apperr.KindUnknown {
			return store.Payment{}, err
		}
		return store.Payment{}, apperr.Infrastructure("charging order "+orderID, err)
	}
	metrics.ChargesTotal.WithLabelValues("ok").Inc()

	p := store.Payment{
		ID:       uuid.New().String(),
		OrderID:  orderID,
		StripeID: stripeID,
	}
	if err := s.store.InsertPayment(ctx, p); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// The lock expired under a slow charge; the idempotency key
			// made both charges the same one.
			stored, paid, findErr := s.findPayment(ctx, orderID)
			if findErr == nil && !paid {
				return store.Payment{}, err
			}
			return s.reannounce(ctx, stored, findErr)
		}
		return store.Payment{}, err
	}

	log.FromContext(ctx).
		WithField("order_id", orderID).
		WithField("payment_id", p.ID).
		Info("[Payments] order charged")

	if err := s.announce(ctx, p); err != nil {
		return store.Payment{}, err
	}
	return p, nil
}

func (s *Service) announce(ctx context.Context, p store.Payment) error {
	return s.created.Publish(ctx, events.PaymentCreated{
		ID:       p.ID,
		OrderID:  p.OrderID,
		StripeID: p.StripeID,
	})
}

// reannounce publishes payment:created again for a stored payment. The orders
// service skips the repeat once the order is complete.
func (s *Service) reannounce(ctx context.Context, p store.Payment, err error) (store.Payment, error) {
	if err != nil {
		return store.Payment{}, err
	}

	log.FromContext(ctx).
		WithField("order_id", p.OrderID).
		WithField("payment_id", p.ID).
		Info("[Payments] order already paid, announcing payment again")

	if err := s.announce(ctx, p); err != nil {
		return store.Payment{}, err
	}
	return p, nil
}

// findPayment reports the payment stored for orderID, if any.
func (s *Service) findPayment(ctx context.Context, orderID string) (store.Payment, bool, error) {
	p, err := s.store.GetPaymentByOrder(ctx, orderID)
	switch {
	case err == nil:
		return p, true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return store.Payment{}, false, nil
	default:
		return store.Payment{}, false, err
	}
}

// ====================
// Event reactions
// ====================

// ApplyOrderCreated adds an order to the local projection.
func (s *Service) ApplyOrderCreated(ctx context.Context, e events.OrderCreated) error {
	err := s.store.InsertPaymentOrder(ctx, store.PaymentOrder{
		ID:      e.ID,
		UserID:  e.UserID,
		Price:   e.Ticket.Price,
		Status:  e.Status,
		Version: e.Version,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("order %s: %w", e.ID, events.ErrDuplicate)
	}
	return err
}

// ApplyOrderCancelled marks the projected order cancelled. Order versions
// also advance on changes that are not announced here, so any newer version
// is adopted.
func (s *Service) ApplyOrderCancelled(ctx context.Context, e events.OrderCancelled) error {
	o, err := s.store.GetPaymentOrder(ctx, e.ID)
	if err != nil {
		return err
	}

	if events.LatestWins.Decide(o.Version, e.Version) == events.Skip {
		return fmt.Errorf("order %s v%d: %w", e.ID, e.Version, events.ErrDuplicate)
	}

	next := o
	next.Status = events.OrderStatusCancelled
	next.Version = e.Version
	return s.store.UpdatePaymentOrder(ctx, next, o.Version)
}
