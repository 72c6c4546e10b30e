package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/example/ticketing/internal/events"
)

// Ticket is the tickets service's own ticket row.
type Ticket struct {
	ID      string  `db:"id"`
	Title   string  `db:"title"`
	Price   float64 `db:"price"`
	UserID  string  `db:"user_id"`
	OrderID string  `db:"order_id"` // empty when not reserved
	Version int     `db:"version"`

	// OrderVersions holds, per order, the last order version applied to
	// this ticket.
	OrderVersions OrderVersions `db:"order_versions"`
}

// Reserved reports whether an order currently holds the ticket.
func (t Ticket) Reserved() bool { return t.OrderID != "" }

// OrderVersions maps order ids to order versions. It is stored as JSON.
type OrderVersions map[string]int

// Seen returns the recorded version of orderID.
func (v OrderVersions) Seen(orderID string) (int, bool) {
	version, ok := v[orderID]
	return version, ok
}

// With returns a copy of v recording version for orderID.
func (v OrderVersions) With(orderID string, version int) OrderVersions {
	next := maps.Clone(v)
	if next == nil {
		next = OrderVersions{}
	}
	next[orderID] = version
	return next
}

func (v OrderVersions) Value() (driver.Value, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]int(v))
}

func (v *OrderVersions) Scan(src any) error {
	switch data := src.(type) {
	case nil:
		*v = OrderVersions{}
		return nil
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("cannot scan %T into OrderVersions", src)
	}
}

// OrderTicket is the orders service's copy of a ticket.
type OrderTicket struct {
	ID      string  `db:"id"`
	Title   string  `db:"title"`
	Price   float64 `db:"price"`
	Version int     `db:"version"`
}

// Order is owned by the orders service.
type Order struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Status    string    `db:"status"`
	ExpiresAt time.Time `db:"expires_at"`
	TicketID  string    `db:"ticket_id"`
	Version   int       `db:"version"`
}

// HoldingStatuses are the order statuses that keep the ticket reserved.
// Schema's orders_active_ticket_idx lists the same set.
var HoldingStatuses = []string{
	events.OrderStatusCreated,
	events.OrderStatusAwaitingPayment,
	events.OrderStatusComplete,
}

// HoldsTicket reports whether o keeps its ticket from other orders.
func (o Order) HoldsTicket() bool { return slices.Contains(HoldingStatuses, o.Status) }

// PaymentOrder is the payments service's copy of an order.
type PaymentOrder struct {
	ID      string  `db:"id"`
	UserID  string  `db:"user_id"`
	Price   float64 `db:"price"`
	Status  string  `db:"status"`
	Version int     `db:"version"`
}

type Payment struct {
	ID       string `db:"id"`
	OrderID  string `db:"order_id"`
	StripeID string `db:"stripe_id"`
}
