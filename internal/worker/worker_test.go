package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-order-worker/internal/logger"
	"ms-order-worker/internal/order"
	"ms-order-worker/internal/registry"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkerRunShutsDownInReverseOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ack := &fakeAcknowledger{}
	stream := make(chan amqp.Delivery, 1)
	broker := &fakeBroker{streams: []chan amqp.Delivery{stream}}
	proc := new(MockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(order.ResultCompleted, nil)

	log := logger.NewNop()
	w := New("order-worker-1", "orders_queue", NewDispatcher(broker, proc, "order-worker-1", log), log)
	w.Registry = registry.NewRegistry(client, time.Minute, log)
	w.HeartbeatInterval = 10 * time.Millisecond

	var closed []string
	w.OnShutdown("database", func() error { closed = append(closed, "database"); return nil })
	w.OnShutdown("broker", func() error { closed = append(closed, "broker"); return errors.New("already closed") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	stream <- delivery(ack, 1, validBody)
	require.Eventually(t, func() bool { return len(ack.all()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return mr.Exists("worker:order-worker-1") }, time.Second, 5*time.Millisecond)

	cancel()
	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker: already closed")
	assert.Equal(t, []string{"broker", "database"}, closed)
	assert.False(t, mr.Exists("worker:order-worker-1"))
}

func TestWorkerInfoCarriesStats(t *testing.T) {
	proc := new(MockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(order.ResultTransient, errors.New("x"))

	d := NewDispatcher(nil, proc, "w", logger.NewNop())
	d.Handle(context.Background(), delivery(&fakeAcknowledger{}, 1, validBody))

	w := New("w", "orders_queue", d, logger.NewNop())
	info := w.Info()
	assert.Equal(t, "w", info.Name)
	assert.Equal(t, "orders_queue", info.Queue)
	assert.Equal(t, int64(1), info.Requeued)
	assert.NotZero(t, info.PID)
}
