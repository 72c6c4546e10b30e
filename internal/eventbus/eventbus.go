// Package eventbus is the transport-neutral contract of the event bus: one
// connection per process, publish with confirmation, queue-group
// subscriptions with explicit acknowledgement.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrConnection is returned by transports that cannot reach the bus.
	ErrConnection = errors.New("event bus connection failed")
	// ErrPublish is returned once the publish retry budget is exhausted.
	ErrPublish = errors.New("event bus publish failed")
	ErrClosed  = errors.New("event bus connection closed")
)

// Metadata keys carried next to every payload.
const (
	MetaEventID       = "event_id"
	MetaPublishedAt   = "published_at"
	MetaPartitionKey  = "partition_key"
	MetaCorrelationID = "correlation_id"
)

// Handler is invoked once per delivery. It must call Ack or Nack; a message
// left unresolved when Handler returns is nacked.
type Handler func(ctx context.Context, msg *Message)

// Conn is a process-wide bus connection. It is constructed once at startup
// and passed to publishers and listeners.
type Conn interface {
	// Publish returns once the bus has durably accepted the message.
	Publish(ctx context.Context, subject string, data []byte, metadata map[string]string) error
	// Subscribe registers h for subject. Every queue group receives its own
	// copy of each message; within a group one member handles it.
	Subscribe(ctx context.Context, subject, queueGroup string, h Handler) error
	// Close stops deliveries, waits for in-flight handlers and disconnects.
	Close() error
	// Done is closed once the connection is gone, whether by Close or
	// because the bus stopped answering.
	Done() <-chan struct{}
}

// Options are shared by all transports.
type Options struct {
	Driver    string
	ClusterID string
	ClientID  string
	URL       string

	// AckWait bounds how long Close waits for in-flight handlers.
	AckWait time.Duration
	// PublishRetries is the transport retry budget for a single publish.
	PublishRetries int
	// RedeliveryDelay is the initial pause before a nacked message is
	// delivered again.
	RedeliveryDelay time.Duration
	// HealthInterval is how often the transport pings the bus.
	HealthInterval time.Duration
	// MaxFailures consecutive failed pings, fetches or publishes close the
	// connection.
	MaxFailures int
}

func (o Options) WithDefaults() Options {
	if o.AckWait <= 0 {
		o.AckWait = 30 * time.Second
	}
	if o.PublishRetries <= 0 {
		o.PublishRetries = 5
	}
	if o.RedeliveryDelay <= 0 {
		o.RedeliveryDelay = 500 * time.Millisecond
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 5 * time.Second
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 3
	}
	return o
}

type ackState int

const (
	pending ackState = iota
	acked
	nacked
)

// Message is one delivery of an event.
type Message struct {
	Subject  string
	Data     []byte
	Metadata map[string]string
	// Sequence is the transport's position marker for this message.
	Sequence string
	// Attempt counts deliveries of this message, starting at 1.
	Attempt int

	mu    sync.Mutex
	state ackState
	ack   func() error
	nack  func() error
}

// NewMessage is used by transports to wrap a delivery. ack and nack may be
// nil.
func NewMessage(subject string, data []byte, metadata map[string]string, sequence string, attempt int, ack, nack func() error) *Message {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Message{
		Subject:  subject,
		Data:     data,
		Metadata: metadata,
		Sequence: sequence,
		Attempt:  attempt,
		ack:      ack,
		nack:     nack,
	}
}

// Ack confirms the message; the bus will not redeliver it. Only the first
// Ack or Nack has an effect.
func (m *Message) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != pending {
		return nil
	}
	m.state = acked
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

// Nack asks for redelivery.
func (m *Message) Nack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != pending {
		return nil
	}
	m.state = nacked
	if m.nack == nil {
		return nil
	}
	return m.nack()
}

func (m *Message) Acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == acked
}

func (m *Message) Nacked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == nacked
}

// Resolve nacks a message its handler left pending.
func (m *Message) Resolve() {
	m.mu.Lock()
	left := m.state == pending
	m.mu.Unlock()
	if left {
		_ = m.Nack()
	}
}

// Drain waits for wg up to timeout and reports whether it finished.
func Drain(wg *sync.WaitGroup, timeout time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-time.After(timeout):
		return false
	}
}
