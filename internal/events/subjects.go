// Package events is the wire contract shared by every service: subject names,
// payload shapes and the version rules consumers apply to them.
package events

// Subject names a stream of events on the bus.
type Subject string

const (
	SubjectTicketCreated  Subject = "ticket:created"
	SubjectTicketUpdated  Subject = "ticket:updated"
	SubjectOrderCreated   Subject = "order:created"
	SubjectOrderCancelled Subject = "order:cancelled"
	SubjectPaymentCreated Subject = "payment:created"
)

// Order status values as they appear on the wire.
const (
	OrderStatusCreated         = "created"
	OrderStatusAwaitingPayment = "awaiting:payment"
	OrderStatusCancelled       = "cancelled"
	OrderStatusComplete        = "complete"
)

// Payload is implemented by every event body. The set is closed: one type
// per subject, all declared in this package.
type Payload interface {
	Subject() Subject
	// Key identifies the entity the event is about; it orders deliveries
	// per entity on partitioned transports.
	Key() string
	Validate() error
}
