package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked), len(a.nacked)
}

type fakeConsumer struct {
	deliveries chan amqp.Delivery
	err        error
}

func (c *fakeConsumer) Consume(string) (<-chan amqp.Delivery, error) {
	return c.deliveries, c.err
}

func TestSource_DispatchesAndAcks(t *testing.T) {
	ack := &fakeAcknowledger{}
	consumer := &fakeConsumer{deliveries: make(chan amqp.Delivery, 3)}
	hub := NewHub(4)
	defer hub.Close()

	sub := hub.Subscribe(nil)
	source := NewSource(consumer, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	consumer.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Type: EventAnalysisProgress, Body: []byte(`{"event":"analysis:job","job":{"id":"A1"},"result":{"ok":true}}`)}
	consumer.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, RoutingKey: EventNotification, Body: []byte(`{"title":"Leave approved"}`)}
	consumer.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Type: EventAnalysisProgress, Body: []byte(`not json`)}
	close(consumer.deliveries)

	err := source.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery channel closed")

	acked, nacked := ack.counts()
	assert.Equal(t, 2, acked)
	assert.Equal(t, 1, nacked)

	first := <-sub.C()
	assert.Equal(t, EventAnalysisProgress, first.Name)
	assert.Equal(t, "A1", first.JobID())

	second := <-sub.C()
	assert.Equal(t, EventNotification, second.Name)
}

func TestSource_StopsOnContextCancel(t *testing.T) {
	consumer := &fakeConsumer{deliveries: make(chan amqp.Delivery)}
	source := NewSource(consumer, NewHub(1), slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("source did not stop")
	}
}

func TestSource_ConsumeFailure(t *testing.T) {
	consumer := &fakeConsumer{err: errors.New("channel closed")}
	source := NewSource(consumer, NewHub(1), slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := source.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start realtime consumer")
}
