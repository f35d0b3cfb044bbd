package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestProducerPublishUsesKey(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Topic: "orders", writer: w}

	require.NoError(t, p.Publish(context.Background(), "order-1", []byte(`{"a":1}`)))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "order-1", string(w.messages[0].Key))
	assert.JSONEq(t, `{"a":1}`, string(w.messages[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerPublishWrapsError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{Topic: "orders", writer: &fakeWriter{err: boom}}

	err := p.Publish(context.Background(), "k", []byte("v"))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "orders")
}

func TestNewProducerConfiguresWriter(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "ticketbuster.order.notifications")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "ticketbuster.order.notifications", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

func TestEnsureTopicsRequiresBrokers(t *testing.T) {
	assert.Error(t, EnsureTopicsExist(context.Background(), nil, "t"))
}
