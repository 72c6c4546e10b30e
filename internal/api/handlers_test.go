package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/auth"
	"github.com/example/ticketing/internal/command"
	"github.com/example/ticketing/internal/config"
	"github.com/example/ticketing/internal/domain/order"
	"github.com/example/ticketing/internal/domain/payment"
	"github.com/example/ticketing/internal/domain/ticket"
	"github.com/example/ticketing/internal/events"
	"github.com/example/ticketing/internal/infrastructure/redislock"
	"github.com/example/ticketing/internal/infrastructure/store"
	"github.com/example/ticketing/internal/log"
	pubmocks "github.com/example/ticketing/internal/publisher/mocks"
	"github.com/example/ticketing/internal/query"
	"github.com/example/ticketing/internal/readmodel"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCharger struct {
	calls []payment.ChargeRequest
}

func (f *fakeCharger) Charge(_ context.Context, req payment.ChargeRequest) (string, error) {
	f.calls = append(f.calls, req)
	return "ch_1", nil
}

type testAPI struct {
	e   *echo.Echo
	jwt *auth.JWTService

	ticketStore  *store.Memory
	orderStore   *store.Memory
	paymentStore *store.Memory
	charger      *fakeCharger

	ticketCreated  *pubmocks.MockPublisher[events.TicketCreated]
	ticketUpdated  *pubmocks.MockPublisher[events.TicketUpdated]
	orderCreated   *pubmocks.MockPublisher[events.OrderCreated]
	orderCancelled *pubmocks.MockPublisher[events.OrderCancelled]
	paymentCreated *pubmocks.MockPublisher[events.PaymentCreated]
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := &testAPI{
		jwt:            auth.NewJWTService("test-secret-key", time.Hour),
		ticketStore:    store.NewMemory(),
		orderStore:     store.NewMemory(),
		paymentStore:   store.NewMemory(),
		charger:        &fakeCharger{},
		ticketCreated:  pubmocks.NewMockPublisher[events.TicketCreated](),
		ticketUpdated:  pubmocks.NewMockPublisher[events.TicketUpdated](),
		orderCreated:   pubmocks.NewMockPublisher[events.OrderCreated](),
		orderCancelled: pubmocks.NewMockPublisher[events.OrderCancelled](),
		paymentCreated: pubmocks.NewMockPublisher[events.PaymentCreated](),
	}

	services := command.Services{
		Tickets:  ticket.NewService(a.ticketStore, a.ticketCreated, a.ticketUpdated),
		Orders:   order.NewService(a.orderStore, a.orderCreated, a.orderCancelled, time.Minute),
		Payments: payment.NewService(a.paymentStore, a.charger, redislock.New(client, "", 0), a.paymentCreated),
	}

	handlers := NewHandlers(command.NewHandler(services), query.NewHandler(a.ticketStore, a.orderStore))

	logger, _ := test.NewNullLogger()
	a.e = NewEcho(logrus.NewEntry(logger), nil)
	for _, service := range []string{config.ServiceTickets, config.ServiceOrders, config.ServicePayments} {
		Register(a.e, handlers, a.jwt, service)
	}
	return a
}

func (a *testAPI) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		token, _, err := a.jwt.GenerateToken(userID, userID+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decodeErrors(t *testing.T, rec *httptest.ResponseRecorder) []apperr.FieldError {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Errors
}

func (a *testAPI) seedPaymentOrder(t *testing.T, id, userID, status string) {
	t.Helper()
	require.NoError(t, a.paymentStore.InsertPaymentOrder(context.Background(), store.PaymentOrder{
		ID: id, UserID: userID, Price: 20, Status: status, Version: 0,
	}))
}

// ============================================
// Payment Handler Tests
// ============================================

func TestCreateCharge_Success(t *testing.T) {
	a := newTestAPI(t)
	a.seedPaymentOrder(t, "o1", "buyer", events.OrderStatusCreated)

	rec := a.do(t, http.MethodPost, "/api/payments", "buyer", `{"token":"tok_visa","orderId":"o1"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp readmodel.PaymentReadModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)

	require.Len(t, a.charger.calls, 1)
	assert.Equal(t, int64(2000), a.charger.calls[0].AmountCents)
	require.Len(t, a.paymentCreated.Published(), 1)
	assert.Equal(t, resp.ID, a.paymentCreated.Published()[0].ID)

	p, err := a.paymentStore.GetPaymentByOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "ch_1", p.StripeID)
}

func TestCreateCharge_RepeatReturnsSamePayment(t *testing.T) {
	a := newTestAPI(t)
	a.seedPaymentOrder(t, "o1", "buyer", events.OrderStatusAwaitingPayment)

	first := a.do(t, http.MethodPost, "/api/payments", "buyer", `{"token":"tok_visa","orderId":"o1"}`)
	second := a.do(t, http.MethodPost, "/api/payments", "buyer", `{"token":"tok_visa","orderId":"o1"}`)

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, a.charger.calls, 1)
	assert.Len(t, a.paymentCreated.Published(), 2)
}

func TestCreateCharge_CancelledOrder(t *testing.T) {
	a := newTestAPI(t)
	a.seedPaymentOrder(t, "o1", "buyer", events.OrderStatusCancelled)

	rec := a.do(t, http.MethodPost, "/api/payments", "buyer", `{"token":"tok_visa","orderId":"o1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []apperr.FieldError{{Message: "Cannot pay for an cancelled order"}}, decodeErrors(t, rec))
	assert.Empty(t, a.charger.calls)
	assert.Empty(t, a.paymentCreated.Published())
}

func TestCreateCharge_UnknownOrder(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/payments", "buyer", `{"token":"tok_visa","orderId":"missing"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, a.charger.calls)
	assert.Empty(t, a.paymentCreated.Published())
}

func TestCreateCharge_OtherUsersOrder(t *testing.T) {
	a := newTestAPI(t)
	a.seedPaymentOrder(t, "o1", "buyer", events.OrderStatusCreated)

	rec := a.do(t, http.MethodPost, "/api/payments", "intruder", `{"token":"tok_visa","orderId":"o1"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []apperr.FieldError{{Message: "Not authorized"}}, decodeErrors(t, rec))
	assert.Empty(t, a.charger.calls)
	assert.Empty(t, a.paymentCreated.Published())
}

func TestCreateCharge_Unauthenticated(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/payments", "", `{"token":"tok_visa","orderId":"o1"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []apperr.FieldError{{Message: "Not authorized"}}, decodeErrors(t, rec))
}

func TestCreateCharge_Validation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/payments", "buyer", `{"token":"","orderId":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []apperr.FieldError{
		{Field: "token", Message: "Token must be provided"},
		{Field: "orderId", Message: "OrderId must be provided"},
	}, decodeErrors(t, rec))
}

func TestCreateCharge_MalformedBody(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/payments", "buyer", `{"token":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, a.charger.calls)
}

// ============================================
// Ticket Handler Tests
// ============================================

func TestCreateTicket_Success(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/tickets", "seller", `{"title":"concert","price":20}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp readmodel.TicketReadModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "concert", resp.Title)
	assert.Equal(t, "seller", resp.UserID)
	assert.Equal(t, 0, resp.Version)

	require.Len(t, a.ticketCreated.Published(), 1)
	assert.Equal(t, resp.ID, a.ticketCreated.Published()[0].ID)

	get := a.do(t, http.MethodGet, "/api/tickets/"+resp.ID, "", "")
	assert.Equal(t, http.StatusOK, get.Code)

	list := a.do(t, http.MethodGet, "/api/tickets", "", "")
	var tickets []readmodel.TicketReadModel
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &tickets))
	assert.Len(t, tickets, 1)
}

func TestCreateTicket_Validation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/tickets", "seller", `{"title":"","price":-5}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decodeErrors(t, rec), 2)
	assert.Empty(t, a.ticketCreated.Published())
}

func TestCreateTicket_RequiresAuth(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/tickets", "", `{"title":"concert","price":20}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateTicket_OwnerOnly(t *testing.T) {
	a := newTestAPI(t)
	require.NoError(t, a.ticketStore.InsertTicket(context.Background(), store.Ticket{
		ID: "t1", Title: "concert", Price: 20, UserID: "seller",
	}))

	denied := a.do(t, http.MethodPut, "/api/tickets/t1", "intruder", `{"title":"mine","price":1}`)
	updated := a.do(t, http.MethodPut, "/api/tickets/t1", "seller", `{"title":"concert 2","price":25}`)

	assert.Equal(t, http.StatusForbidden, denied.Code)
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())

	var resp readmodel.TicketReadModel
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Version)
	require.Len(t, a.ticketUpdated.Published(), 1)
	assert.Equal(t, "concert 2", a.ticketUpdated.Published()[0].Title)
}

func TestGetTicket_NotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/tickets/missing", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []apperr.FieldError{{Message: "ticket not found"}}, decodeErrors(t, rec))
}

// ============================================
// Order Handler Tests
// ============================================

func TestOrderLifecycle(t *testing.T) {
	a := newTestAPI(t)
	require.NoError(t, a.orderStore.InsertOrderTicket(context.Background(), store.OrderTicket{
		ID: "t1", Title: "concert", Price: 20,
	}))

	rec := a.do(t, http.MethodPost, "/api/orders", "buyer", `{"ticketId":"t1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created readmodel.OrderReadModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "created", created.Status)
	assert.Equal(t, 0, created.Version)
	assert.Equal(t, "concert", created.Ticket.Title)
	require.Len(t, a.orderCreated.Published(), 1)

	again := a.do(t, http.MethodPost, "/api/orders", "other", `{"ticketId":"t1"}`)
	assert.Equal(t, http.StatusBadRequest, again.Code)

	forbidden := a.do(t, http.MethodGet, "/api/orders/"+created.ID, "other", "")
	assert.Equal(t, http.StatusForbidden, forbidden.Code)

	cancel := a.do(t, http.MethodDelete, "/api/orders/"+created.ID, "buyer", "")
	assert.Equal(t, http.StatusNoContent, cancel.Code)
	require.Len(t, a.orderCancelled.Published(), 1)
	assert.Equal(t, 1, a.orderCancelled.Published()[0].Version)

	list := a.do(t, http.MethodGet, "/api/orders", "buyer", "")
	var orders []readmodel.OrderReadModel
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "cancelled", orders[0].Status)
}

func TestCreateOrder_UnknownTicket(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/orders", "buyer", `{"ticketId":"missing"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, a.orderCreated.Published())
}

// ============================================
// Server Tests
// ============================================

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", "", "").Code)

	metrics := a.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "http_requests_total")
}

func TestHealth_Unhealthy(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := NewEcho(logrus.NewEntry(logger), func() bool { return false })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/nothing", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, decodeErrors(t, rec), 1)
}

func TestCorrelationIDHeaderEchoed(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(log.CorrelationIDHeader, "corr-42")
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	assert.Equal(t, "corr-42", rec.Header().Get(log.CorrelationIDHeader))
}
