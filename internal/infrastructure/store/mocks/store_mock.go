package mocks

import (
	"context"
	"sync"

	"github.com/example/ticketing/internal/infrastructure/store"
)

// UpdateCall records parameters passed to an Update method
type UpdateCall struct {
	ID              string
	Version         int
	ExpectedVersion int
	Row             any
}

// recorder tracks writes and lets tests inject failures
type recorder struct {
	mu sync.Mutex

	InsertCalls []any
	UpdateCalls []UpdateCall

	InsertErr error
	UpdateErr error
	// BeforeUpdate runs ahead of every update, while the row can still be
	// changed underneath the caller.
	BeforeUpdate func(ctx context.Context, id string)
}

func (r *recorder) recordInsert(row any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.InsertCalls = append(r.InsertCalls, row)
	return r.InsertErr
}

func (r *recorder) recordUpdate(ctx context.Context, id string, version, expected int, row any) error {
	r.mu.Lock()
	r.UpdateCalls = append(r.UpdateCalls, UpdateCall{
		ID:              id,
		Version:         version,
		ExpectedVersion: expected,
		Row:             row,
	})
	err, before := r.UpdateErr, r.BeforeUpdate
	r.mu.Unlock()

	if before != nil {
		before(ctx, id)
	}
	return err
}

// Writes returns the number of inserts and updates recorded so far
func (r *recorder) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.InsertCalls) + len(r.UpdateCalls)
}

// MockTicketStore is an in-memory TicketStore that records writes
type MockTicketStore struct {
	*store.Memory
	recorder
}

func NewMockTicketStore() *MockTicketStore {
	return &MockTicketStore{Memory: store.NewMemory()}
}

func (m *MockTicketStore) InsertTicket(ctx context.Context, t store.Ticket) error {
	if err := m.recordInsert(t); err != nil {
		return err
	}
	return m.Memory.InsertTicket(ctx, t)
}

func (m *MockTicketStore) UpdateTicket(ctx context.Context, t store.Ticket, expectedVersion int) error {
	if err := m.recordUpdate(ctx, t.ID, t.Version, expectedVersion, t); err != nil {
		return err
	}
	return m.Memory.UpdateTicket(ctx, t, expectedVersion)
}

// MockOrderStore is an in-memory OrderStore that records writes
type MockOrderStore struct {
	*store.Memory
	recorder
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{Memory: store.NewMemory()}
}

func (m *MockOrderStore) InsertOrderTicket(ctx context.Context, t store.OrderTicket) error {
	if err := m.recordInsert(t); err != nil {
		return err
	}
	return m.Memory.InsertOrderTicket(ctx, t)
}

func (m *MockOrderStore) UpdateOrderTicket(ctx context.Context, t store.OrderTicket, expectedVersion int) error {
	if err := m.recordUpdate(ctx, t.ID, t.Version, expectedVersion, t); err != nil {
		return err
	}
	return m.Memory.UpdateOrderTicket(ctx, t, expectedVersion)
}

func (m *MockOrderStore) InsertOrder(ctx context.Context, o store.Order) error {
	if err := m.recordInsert(o); err != nil {
		return err
	}
	return m.Memory.InsertOrder(ctx, o)
}

func (m *MockOrderStore) UpdateOrder(ctx context.Context, o store.Order, expectedVersion int) error {
	if err := m.recordUpdate(ctx, o.ID, o.Version, expectedVersion, o); err != nil {
		return err
	}
	return m.Memory.UpdateOrder(ctx, o, expectedVersion)
}

// MockPaymentStore is an in-memory PaymentStore that records writes
type MockPaymentStore struct {
	*store.Memory
	recorder
}

func NewMockPaymentStore() *MockPaymentStore {
	return &MockPaymentStore{Memory: store.NewMemory()}
}

func (m *MockPaymentStore) InsertPaymentOrder(ctx context.Context, o store.PaymentOrder) error {
	if err := m.recordInsert(o); err != nil {
		return err
	}
	return m.Memory.InsertPaymentOrder(ctx, o)
}

func (m *MockPaymentStore) UpdatePaymentOrder(ctx context.Context, o store.PaymentOrder, expectedVersion int) error {
	if err := m.recordUpdate(ctx, o.ID, o.Version, expectedVersion, o); err != nil {
		return err
	}
	return m.Memory.UpdatePaymentOrder(ctx, o, expectedVersion)
}

func (m *MockPaymentStore) InsertPayment(ctx context.Context, p store.Payment) error {
	if err := m.recordInsert(p); err != nil {
		return err
	}
	return m.Memory.InsertPayment(ctx, p)
}
