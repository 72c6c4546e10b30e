//go:build integration

package kafka

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/example/ticketing/internal/eventbus"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testCluster = "ticketing"
	waitFor     = 30 * time.Second
	tick        = 50 * time.Millisecond
)

func startKafka(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("ticketing-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, subject string) {
	t.Helper()

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafka.TopicConfig{
		Topic:             topicName(testCluster, subject),
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func connectTestKafka(t *testing.T, broker string, ackWait time.Duration) *Conn {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	conn, err := Connect(context.Background(), eventbus.Options{
		ClusterID:       testCluster,
		ClientID:        "test",
		URL:             broker,
		AckWait:         ackWait,
		PublishRetries:  5,
		RedeliveryDelay: 100 * time.Millisecond,
	}, logrus.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type deliveries struct {
	mu   sync.Mutex
	msgs []*eventbus.Message
	at   []time.Time
}

func (d *deliveries) add(m *eventbus.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, m)
	d.at = append(d.at, time.Now())
}

func (d *deliveries) payloads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.msgs))
	for _, m := range d.msgs {
		out = append(out, string(m.Data))
	}
	return out
}

func (d *deliveries) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

func TestKafka_AckCommitsOffset(t *testing.T) {
	broker := startKafka(t)
	createTopic(t, broker, "ticket:created")
	ctx := context.Background()

	first := connectTestKafka(t, broker, time.Second)
	var before deliveries
	require.NoError(t, first.Subscribe(ctx, "ticket:created", "orders-service", func(_ context.Context, m *eventbus.Message) {
		before.add(m)
		assert.NoError(t, m.Ack())
	}))
	require.NoError(t, first.Publish(ctx, "ticket:created", []byte(`{"id":"t1"}`), map[string]string{
		eventbus.MetaPartitionKey: "t1",
	}))
	require.Eventually(t, func() bool { return before.len() == 1 }, waitFor, tick)
	require.NoError(t, first.Close())

	second := connectTestKafka(t, broker, time.Second)
	var after deliveries
	require.NoError(t, second.Subscribe(ctx, "ticket:created", "orders-service", func(_ context.Context, m *eventbus.Message) {
		after.add(m)
		assert.NoError(t, m.Ack())
	}))
	require.NoError(t, second.Publish(ctx, "ticket:created", []byte(`{"id":"t2"}`), nil))

	require.Eventually(t, func() bool { return after.len() >= 1 }, waitFor, tick)
	time.Sleep(time.Second)
	assert.Equal(t, []string{`{"id":"t2"}`}, after.payloads(), "acked message must not come back")
}

func TestKafka_NackRedeliversWithBackoff(t *testing.T) {
	broker := startKafka(t)
	createTopic(t, broker, "order:created")
	ctx := context.Background()

	conn := connectTestKafka(t, broker, time.Second)
	var got deliveries
	require.NoError(t, conn.Subscribe(ctx, "order:created", "payments-service", func(_ context.Context, m *eventbus.Message) {
		got.add(m)
		if m.Attempt < 3 {
			assert.NoError(t, m.Nack())
			return
		}
		assert.NoError(t, m.Ack())
	}))
	require.NoError(t, conn.Publish(ctx, "order:created", []byte(`{"id":"o1"}`), nil))

	require.Eventually(t, func() bool { return got.len() == 3 }, waitFor, tick)

	got.mu.Lock()
	defer got.mu.Unlock()
	for i, m := range got.msgs {
		assert.Equal(t, i+1, m.Attempt)
		assert.Equal(t, got.msgs[0].Sequence, m.Sequence)
	}
	// RedeliveryDelay of 100ms with the default jitter of one half.
	assert.GreaterOrEqual(t, got.at[1].Sub(got.at[0]), 50*time.Millisecond)
	assert.GreaterOrEqual(t, got.at[2].Sub(got.at[1]), 50*time.Millisecond)
}

func TestKafka_NackedMessageIsNotCommitted(t *testing.T) {
	broker := startKafka(t)
	createTopic(t, broker, "order:cancelled")
	ctx := context.Background()

	first := connectTestKafka(t, broker, time.Second)
	var refused deliveries
	require.NoError(t, first.Subscribe(ctx, "order:cancelled", "tickets-service", func(_ context.Context, m *eventbus.Message) {
		refused.add(m)
		assert.NoError(t, m.Nack())
	}))
	require.NoError(t, first.Publish(ctx, "order:cancelled", []byte(`{"id":"o1","version":1}`), nil))
	require.Eventually(t, func() bool { return refused.len() >= 1 }, waitFor, tick)
	require.NoError(t, first.Close())

	second := connectTestKafka(t, broker, time.Second)
	var redelivered deliveries
	require.NoError(t, second.Subscribe(ctx, "order:cancelled", "tickets-service", func(_ context.Context, m *eventbus.Message) {
		redelivered.add(m)
		assert.NoError(t, m.Ack())
	}))

	require.Eventually(t, func() bool { return redelivered.len() >= 1 }, waitFor, tick)
	assert.Equal(t, `{"id":"o1","version":1}`, redelivered.payloads()[0])
}

func TestKafka_CloseDrainsInFlightHandler(t *testing.T) {
	broker := startKafka(t)
	createTopic(t, broker, "ticket:updated")
	ctx := context.Background()

	conn := connectTestKafka(t, broker, 5*time.Second)
	started := make(chan struct{})
	var mu sync.Mutex
	var finished bool
	require.NoError(t, conn.Subscribe(ctx, "ticket:updated", "orders-service", func(hctx context.Context, m *eventbus.Message) {
		close(started)
		time.Sleep(300 * time.Millisecond)
		assert.NoError(t, hctx.Err())
		assert.NoError(t, m.Ack())
		mu.Lock()
		finished = true
		mu.Unlock()
	}))
	require.NoError(t, conn.Publish(ctx, "ticket:updated", []byte(`{"id":"t1","version":1}`), nil))

	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("message not delivered")
	}
	require.NoError(t, conn.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished)
	select {
	case <-conn.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}
