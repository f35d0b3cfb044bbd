package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ms-order-worker/internal/logger"
	"ms-order-worker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Publish(ctx context.Context, queue string, body []byte) error {
	args := m.Called(ctx, queue, body)
	return args.Error(0)
}

type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) Publish(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.FixedZone("X", 3600))
}

func TestPublishWritesEnvelope(t *testing.T) {
	queue := new(mockQueue)
	var body []byte
	queue.On("Publish", mock.Anything, "notifications_queue", mock.Anything).
		Run(func(args mock.Arguments) { body = args.Get(2).([]byte) }).
		Return(nil)

	p := NewPublisher(queue, "notifications_queue", "order-worker-1", logger.NewNop())
	p.now = fixedNow

	data := models.OrderCompletedData{OrderUUID: "o-1", TotalAmount: 49.99, QRCodeHash: "h"}
	require.NoError(t, p.Publish(context.Background(), models.NotificationOrderCompleted, data))

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, "order.completed", envelope["type"])
	assert.Equal(t, "order-worker-1", envelope["worker"])
	assert.Equal(t, "2024-03-01T11:30:45.123Z", envelope["timestamp"])

	payload := envelope["data"].(map[string]any)
	assert.Equal(t, "o-1", payload["order_uuid"])
	assert.Equal(t, 49.99, payload["total_amount"])
	queue.AssertExpectations(t)
}

func TestPublishReturnsQueueError(t *testing.T) {
	queue := new(mockQueue)
	queue.On("Publish", mock.Anything, "n", mock.Anything).Return(errors.New("channel closed"))
	mirror := new(mockMirror)

	p := NewPublisher(queue, "n", "w", logger.NewNop()).WithMirror(mirror)
	err := p.Publish(context.Background(), models.NotificationOrderFailed, models.OrderFailedData{OrderUUID: "o"})

	assert.EqualError(t, err, "channel closed")
	mirror.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishMirrorsByOrderKey(t *testing.T) {
	queue := new(mockQueue)
	queue.On("Publish", mock.Anything, "n", mock.Anything).Return(nil)
	mirror := new(mockMirror)
	mirror.On("Publish", mock.Anything, "o-2", mock.Anything).Return(errors.New("kafka down"))

	p := NewPublisher(queue, "n", "w", logger.NewNop()).WithMirror(mirror)
	err := p.Publish(context.Background(), models.NotificationOrderFailed, models.OrderFailedData{OrderUUID: "o-2", Error: "Seat already sold"})

	assert.NoError(t, err, "mirror failures are not reported to the caller")
	mirror.AssertExpectations(t)
}
