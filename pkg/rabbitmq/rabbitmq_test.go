package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"catalog/internal/models"

	amqp "github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	keys       []string
	deliveries chan amqp.Delivery
	publishErr error
	declareErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, f.declareErr
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeAcknowledger records how each delivery was settled.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestNewClientDeclaresQueue(t *testing.T) {
	ch := newFakeChannel()
	c, err := newClient(ch, "product_events", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"product_events"}, ch.declared)

	require.NoError(t, c.Close())
	assert.True(t, ch.closed)
}

func TestNewClientDeclareFailureClosesChannel(t *testing.T) {
	ch := newFakeChannel()
	ch.declareErr = errors.New("access refused")

	_, err := newClient(ch, "product_events", zap.NewNop())
	assert.ErrorContains(t, err, "access refused")
	assert.True(t, ch.closed)
}

func TestPublishProductEvent(t *testing.T) {
	ch := newFakeChannel()
	c, err := newClient(ch, "product_events", zap.NewNop())
	require.NoError(t, err)

	event := models.ProductEvent{
		Type:       models.ProductCreated,
		ProductID:  42,
		Name:       "Keyboard",
		Version:    1,
		OccurredAt: time.Date(2025, 6, 9, 7, 37, 18, 0, time.UTC),
	}
	require.NoError(t, c.PublishProductEvent(context.Background(), event))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "product_events", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, models.ProductCreated, msg.Type)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)

	var decoded models.ProductEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, event, decoded)
}

func TestPublishProductEventErrors(t *testing.T) {
	ch := newFakeChannel()
	c, err := newClient(ch, "product_events", zap.NewNop())
	require.NoError(t, err)

	ch.publishErr = amqp.ErrClosed
	err = c.PublishProductEvent(context.Background(), models.ProductEvent{Type: models.ProductDeleted})
	assert.ErrorIs(t, err, amqp.ErrClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.PublishProductEvent(ctx, models.ProductEvent{}), context.Canceled)
}

func TestConsumeProductEvents(t *testing.T) {
	ch := newFakeChannel()
	c, err := newClient(ch, "product_events", zap.NewNop())
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	good, _ := json.Marshal(models.ProductEvent{Type: models.ProductUpdated, ProductID: 1})
	failing, _ := json.Marshal(models.ProductEvent{Type: models.ProductUpdated, ProductID: 2})

	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: good}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{garbage")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: failing}
	close(ch.deliveries)

	var handled []uint
	err = c.ConsumeProductEvents(context.Background(), func(_ context.Context, e models.ProductEvent) error {
		handled = append(handled, e.ProductID)
		if e.ProductID == 2 {
			return errors.New("audit sink unavailable")
		}
		return nil
	})
	assert.EqualError(t, err, "delivery channel closed")

	assert.Equal(t, []uint{1, 2}, handled)
	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, []uint64{2, 3}, ack.nacked)
	assert.Equal(t, []bool{false, true}, ack.requeue)
}

func TestConsumeProductEventsStopsOnCancel(t *testing.T) {
	ch := newFakeChannel()
	c, err := newClient(ch, "product_events", zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeProductEvents(ctx, func(context.Context, models.ProductEvent) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
}
