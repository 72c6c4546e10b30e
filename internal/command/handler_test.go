package command

import (
	"context"
	"testing"
	"time"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/domain/order"
	"github.com/example/ticketing/internal/domain/ticket"
	"github.com/example/ticketing/internal/events"
	"github.com/example/ticketing/internal/infrastructure/store"
	"github.com/example/ticketing/internal/infrastructure/store/mocks"
	pubmocks "github.com/example/ticketing/internal/publisher/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *mocks.MockTicketStore, *mocks.MockOrderStore) {
	ticketStore := mocks.NewMockTicketStore()
	orderStore := mocks.NewMockOrderStore()

	tickets := ticket.NewService(ticketStore,
		pubmocks.NewMockPublisher[events.TicketCreated](),
		pubmocks.NewMockPublisher[events.TicketUpdated]())
	orders := order.NewService(orderStore,
		pubmocks.NewMockPublisher[events.OrderCreated](),
		pubmocks.NewMockPublisher[events.OrderCancelled](),
		time.Minute)

	return NewHandler(Services{Tickets: tickets, Orders: orders}), ticketStore, orderStore
}

// ============================================
// Validation
// ============================================

func TestCreateCharge_Validate(t *testing.T) {
	err := CreateCharge{UserID: "u1"}.Validate()

	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, []apperr.FieldError{
		{Field: "token", Message: "Token must be provided"},
		{Field: "orderId", Message: "OrderId must be provided"},
	}, apperr.Serialize(err))

	assert.NoError(t, CreateCharge{Token: "tok", OrderID: "o1"}.Validate())
}

func TestCreateTicket_Validate(t *testing.T) {
	err := CreateTicket{Title: "  ", Price: -5}.Validate()

	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Len(t, apperr.Serialize(err), 2)
	assert.NoError(t, CreateTicket{Title: "concert", Price: 10}.Validate())
}

func TestCreateOrder_Validate(t *testing.T) {
	assert.ErrorIs(t, CreateOrder{}.Validate(), apperr.ErrValidation)
	assert.NoError(t, CreateOrder{TicketID: "t1"}.Validate())
}

// ============================================
// Dispatch
// ============================================

func TestHandler_CreateTicket_Success(t *testing.T) {
	handler, ticketStore, _ := newTestHandler()

	tk, err := handler.CreateTicket(context.Background(), CreateTicket{UserID: "u1", Title: "concert", Price: 10})

	require.NoError(t, err)
	assert.Equal(t, "u1", tk.UserID)
	assert.Len(t, ticketStore.InsertCalls, 1)
}

func TestHandler_CreateTicket_InvalidNeverReachesStore(t *testing.T) {
	handler, ticketStore, _ := newTestHandler()

	_, err := handler.CreateTicket(context.Background(), CreateTicket{UserID: "u1"})

	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, ticketStore.Writes())
}

func TestHandler_CreateOrder_Success(t *testing.T) {
	handler, _, orderStore := newTestHandler()
	require.NoError(t, orderStore.Memory.InsertOrderTicket(context.Background(),
		store.OrderTicket{ID: "t1", Title: "concert", Price: 10}))

	o, err := handler.CreateOrder(context.Background(), CreateOrder{UserID: "u1", TicketID: "t1"})

	require.NoError(t, err)
	assert.Equal(t, "created", o.Status)
}

func TestHandler_CancelOrder_Validate(t *testing.T) {
	handler, _, _ := newTestHandler()

	_, err := handler.CancelOrder(context.Background(), CancelOrder{UserID: "u1"})

	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHandler_CreateCharge_ServiceNotConfigured(t *testing.T) {
	handler, _, _ := newTestHandler()

	_, err := handler.CreateCharge(context.Background(), CreateCharge{UserID: "u1", Token: "tok", OrderID: "o1"})

	assert.ErrorIs(t, err, apperr.ErrInfrastructure)
}
