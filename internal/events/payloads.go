package events

import (
	"time"

	"github.com/example/ticketing/internal/apperr"
)

type TicketCreated struct {
	ID      string  `json:"id"`
	Version int     `json:"version"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	UserID  string  `json:"userId"`
}

func (TicketCreated) Subject() Subject { return SubjectTicketCreated }
func (e TicketCreated) Key() string    { return e.ID }

func (e TicketCreated) Validate() error {
	var v validator
	v.required("id", e.ID)
	v.version(e.Version)
	v.required("title", e.Title)
	v.price(e.Price)
	v.required("userId", e.UserID)
	return v.err()
}

// TicketUpdated carries OrderID when the ticket is reserved.
type TicketUpdated struct {
	ID      string  `json:"id"`
	Version int     `json:"version"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	UserID  string  `json:"userId"`
	OrderID string  `json:"orderId,omitempty"`
}

func (TicketUpdated) Subject() Subject { return SubjectTicketUpdated }
func (e TicketUpdated) Key() string    { return e.ID }

func (e TicketUpdated) Validate() error {
	var v validator
	v.required("id", e.ID)
	v.version(e.Version)
	v.required("title", e.Title)
	v.price(e.Price)
	v.required("userId", e.UserID)
	return v.err()
}

type TicketRef struct {
	ID    string  `json:"id"`
	Price float64 `json:"price"`
}

type OrderCreated struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	Status    string    `json:"status"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Ticket    TicketRef `json:"ticket"`
}

func (OrderCreated) Subject() Subject { return SubjectOrderCreated }
func (e OrderCreated) Key() string    { return e.ID }

func (e OrderCreated) Validate() error {
	var v validator
	v.required("id", e.ID)
	v.version(e.Version)
	v.required("status", e.Status)
	v.required("userId", e.UserID)
	if e.ExpiresAt.IsZero() {
		v.add("expiresAt", "is required")
	}
	v.required("ticket.id", e.Ticket.ID)
	v.price(e.Ticket.Price)
	return v.err()
}

type TicketID struct {
	ID string `json:"id"`
}

type OrderCancelled struct {
	ID      string   `json:"id"`
	Version int      `json:"version"`
	Ticket  TicketID `json:"ticket"`
}

func (OrderCancelled) Subject() Subject { return SubjectOrderCancelled }
func (e OrderCancelled) Key() string    { return e.ID }

func (e OrderCancelled) Validate() error {
	var v validator
	v.required("id", e.ID)
	v.version(e.Version)
	v.required("ticket.id", e.Ticket.ID)
	return v.err()
}

type PaymentCreated struct {
	ID       string `json:"id"`
	OrderID  string `json:"orderId"`
	StripeID string `json:"stripeId"`
}

func (PaymentCreated) Subject() Subject { return SubjectPaymentCreated }

// Key is the order id: payment events race with other mutations of the order.
func (e PaymentCreated) Key() string { return e.OrderID }

func (e PaymentCreated) Validate() error {
	var v validator
	v.required("id", e.ID)
	v.required("orderId", e.OrderID)
	v.required("stripeId", e.StripeID)
	return v.err()
}

type validator struct {
	fields []apperr.FieldError
}

func (v *validator) add(field, msg string) {
	v.fields = append(v.fields, apperr.FieldError{Field: field, Message: msg})
}

func (v *validator) required(field, value string) {
	if value == "" {
		v.add(field, "is required")
	}
}

func (v *validator) version(n int) {
	if n < 0 {
		v.add("version", "must not be negative")
	}
}

func (v *validator) price(p float64) {
	if p <= 0 {
		v.add("price", "must be greater than 0")
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return apperr.Validation(v.fields...)
}
