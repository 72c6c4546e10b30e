package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// table is a mutex-guarded map that remembers insertion order.
type table[T any] struct {
	mu   sync.RWMutex
	rows map[string]T
	keys []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) insert(key string, row T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; ok {
		return false
	}
	t.rows[key] = row
	t.keys = append(t.keys, key)
	return true
}

// insertUnless inserts row under a new key unless clash matches a stored row.
func (t *table[T]) insertUnless(key string, row T, clash func(T) bool) (inserted, clashed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; ok {
		return false, false
	}
	for _, k := range t.keys {
		if clash(t.rows[k]) {
			return false, true
		}
	}
	t.rows[key] = row
	t.keys = append(t.keys, key)
	return true, false
}

func (t *table[T]) get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[key]
	return row, ok
}

func (t *table[T]) filter(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.keys))
	for _, k := range t.keys {
		if row := t.rows[k]; keep(row) {
			out = append(out, row)
		}
	}
	return out
}

// swap replaces the row under key if version(current) == expected.
func (t *table[T]) swap(key string, row T, expected int, version func(T) int) (found, swapped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.rows[key]
	if !ok {
		return false, false
	}
	if version(current) != expected {
		return true, false
	}
	t.rows[key] = row
	return true, true
}

// remove deletes the row under key if version(current) == expected.
func (t *table[T]) remove(key string, expected int, version func(T) int) (found, removed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.rows[key]
	if !ok {
		return false, false
	}
	if version(current) != expected {
		return true, false
	}
	delete(t.rows, key)
	t.keys = slices.DeleteFunc(t.keys, func(k string) bool { return k == key })
	return true, true
}

func all[T any](T) bool { return true }

// Memory keeps every table in process memory. It backs local runs with
// DATABASE_URL=memory:// and the tests.
type Memory struct {
	tickets       *table[Ticket]
	orderTickets  *table[OrderTicket]
	orders        *table[Order]
	paymentOrders *table[PaymentOrder]
	payments      *table[Payment] // keyed by order id
}

func NewMemory() *Memory {
	return &Memory{
		tickets:       newTable[Ticket](),
		orderTickets:  newTable[OrderTicket](),
		orders:        newTable[Order](),
		paymentOrders: newTable[PaymentOrder](),
		payments:      newTable[Payment](),
	}
}

func updateResult(found, swapped bool, entity, id string, expected int) error {
	switch {
	case !found:
		return notFound(entity)
	case !swapped:
		return versionConflict(entity, id, expected)
	default:
		return nil
	}
}

// ====================
// Tickets
// ====================

func (m *Memory) InsertTicket(_ context.Context, t Ticket) error {
	if !m.tickets.insert(t.ID, t) {
		return alreadyExists("ticket", t.ID)
	}
	return nil
}

func (m *Memory) GetTicket(_ context.Context, id string) (Ticket, error) {
	t, ok := m.tickets.get(id)
	if !ok {
		return Ticket{}, notFound("ticket")
	}
	return t, nil
}

func (m *Memory) ListTickets(_ context.Context) ([]Ticket, error) {
	return m.tickets.filter(all[Ticket]), nil
}

func (m *Memory) UpdateTicket(_ context.Context, t Ticket, expectedVersion int) error {
	found, swapped := m.tickets.swap(t.ID, t, expectedVersion, func(c Ticket) int { return c.Version })
	return updateResult(found, swapped, "ticket", t.ID, expectedVersion)
}

func (m *Memory) DeleteTicket(_ context.Context, id string, expectedVersion int) error {
	found, removed := m.tickets.remove(id, expectedVersion, func(c Ticket) int { return c.Version })
	return updateResult(found, removed, "ticket", id, expectedVersion)
}

// ====================
// Orders
// ====================

func (m *Memory) InsertOrderTicket(_ context.Context, t OrderTicket) error {
	if !m.orderTickets.insert(t.ID, t) {
		return alreadyExists("ticket", t.ID)
	}
	return nil
}

func (m *Memory) GetOrderTicket(_ context.Context, id string) (OrderTicket, error) {
	t, ok := m.orderTickets.get(id)
	if !ok {
		return OrderTicket{}, notFound("ticket")
	}
	return t, nil
}

func (m *Memory) UpdateOrderTicket(_ context.Context, t OrderTicket, expectedVersion int) error {
	found, swapped := m.orderTickets.swap(t.ID, t, expectedVersion, func(c OrderTicket) int { return c.Version })
	return updateResult(found, swapped, "ticket", t.ID, expectedVersion)
}

func (m *Memory) InsertOrder(_ context.Context, o Order) error {
	inserted, clashed := m.orders.insertUnless(o.ID, o, func(c Order) bool {
		return o.HoldsTicket() && c.HoldsTicket() && c.TicketID == o.TicketID
	})
	switch {
	case clashed:
		return ticketReserved()
	case !inserted:
		return alreadyExists("order", o.ID)
	}
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (Order, error) {
	o, ok := m.orders.get(id)
	if !ok {
		return Order{}, notFound("order")
	}
	return o, nil
}

func (m *Memory) ListOrdersByUser(_ context.Context, userID string) ([]Order, error) {
	return m.orders.filter(func(o Order) bool { return o.UserID == userID }), nil
}

func (m *Memory) ListOrdersByTicket(_ context.Context, ticketID string) ([]Order, error) {
	return m.orders.filter(func(o Order) bool { return o.TicketID == ticketID }), nil
}

func (m *Memory) ListExpiredOrders(_ context.Context, now time.Time, statuses ...string) ([]Order, error) {
	return m.orders.filter(func(o Order) bool {
		return o.ExpiresAt.Before(now) && slices.Contains(statuses, o.Status)
	}), nil
}

func (m *Memory) UpdateOrder(_ context.Context, o Order, expectedVersion int) error {
	found, swapped := m.orders.swap(o.ID, o, expectedVersion, func(c Order) int { return c.Version })
	return updateResult(found, swapped, "order", o.ID, expectedVersion)
}

// ====================
// Payments
// ====================

func (m *Memory) InsertPaymentOrder(_ context.Context, o PaymentOrder) error {
	if !m.paymentOrders.insert(o.ID, o) {
		return alreadyExists("order", o.ID)
	}
	return nil
}

func (m *Memory) GetPaymentOrder(_ context.Context, id string) (PaymentOrder, error) {
	o, ok := m.paymentOrders.get(id)
	if !ok {
		return PaymentOrder{}, notFound("order")
	}
	return o, nil
}

func (m *Memory) UpdatePaymentOrder(_ context.Context, o PaymentOrder, expectedVersion int) error {
	found, swapped := m.paymentOrders.swap(o.ID, o, expectedVersion, func(c PaymentOrder) int { return c.Version })
	return updateResult(found, swapped, "order", o.ID, expectedVersion)
}

func (m *Memory) InsertPayment(_ context.Context, p Payment) error {
	if !m.payments.insert(p.OrderID, p) {
		return alreadyExists("payment for order", p.OrderID)
	}
	return nil
}

func (m *Memory) GetPaymentByOrder(_ context.Context, orderID string) (Payment, error) {
	p, ok := m.payments.get(orderID)
	if !ok {
		return Payment{}, notFound("payment")
	}
	return p, nil
}
