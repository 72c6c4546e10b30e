package command

import (
	"strings"

	"github.com/example/ticketing/internal/apperr"
)

// Commands are decoded from request bodies; UserID always comes from the
// authenticated session.

// Ticket Commands
type CreateTicket struct {
	UserID string  `json:"-"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
}

func (c CreateTicket) Validate() error {
	var v validator
	v.required("title", c.Title, "Title is required")
	v.positive("price", c.Price, "Price must be greater than 0")
	return v.err()
}

type UpdateTicket struct {
	UserID   string  `json:"-"`
	TicketID string  `json:"-"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
}

func (c UpdateTicket) Validate() error {
	var v validator
	v.required("id", c.TicketID, "TicketId must be provided")
	v.required("title", c.Title, "Title is required")
	v.positive("price", c.Price, "Price must be greater than 0")
	return v.err()
}

// Order Commands
type CreateOrder struct {
	UserID   string `json:"-"`
	TicketID string `json:"ticketId"`
}

func (c CreateOrder) Validate() error {
	var v validator
	v.required("ticketId", c.TicketID, "TicketId must be provided")
	return v.err()
}

type CancelOrder struct {
	UserID  string `json:"-"`
	OrderID string `json:"-"`
}

func (c CancelOrder) Validate() error {
	var v validator
	v.required("orderId", c.OrderID, "OrderId must be provided")
	return v.err()
}

// Payment Commands
type CreateCharge struct {
	UserID  string `json:"-"`
	Token   string `json:"token"`
	OrderID string `json:"orderId"`
}

func (c CreateCharge) Validate() error {
	var v validator
	v.required("token", c.Token, "Token must be provided")
	v.required("orderId", c.OrderID, "OrderId must be provided")
	return v.err()
}

type validator struct {
	fields []apperr.FieldError
}

func (v *validator) required(field, value, msg string) {
	if strings.TrimSpace(value) == "" {
		v.fields = append(v.fields, apperr.FieldError{Field: field, Message: msg})
	}
}

func (v *validator) positive(field string, value float64, msg string) {
	if value <= 0 {
		v.fields = append(v.fields, apperr.FieldError{Field: field, Message: msg})
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return apperr.Validation(v.fields...)
}
