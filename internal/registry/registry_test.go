package registry

import (
	"context"
	"testing"
	"time"

	"ms-order-worker/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-memory Redis and a client connected to it.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestHeartbeatSetsKeyWithTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := NewRegistry(client, 30*time.Second, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Heartbeat(ctx, WorkerInfo{Name: "order-worker-1", Queue: "orders_queue", Processed: 3}))

	assert.True(t, mr.Exists("worker:order-worker-1"))
	assert.Equal(t, 30*time.Second, mr.TTL("worker:order-worker-1"))

	info, ok, err := r.Get(ctx, "order-worker-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "orders_queue", info.Queue)
	assert.Equal(t, int64(3), info.Processed)
	assert.False(t, info.LastSeen.IsZero())
}

func TestHeartbeatExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := NewRegistry(client, 10*time.Second, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Heartbeat(ctx, WorkerInfo{Name: "w1"}))
	mr.FastForward(11 * time.Second)

	_, ok, err := r.Get(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListSortsAndSkipsGarbage(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := NewRegistry(client, time.Minute, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Heartbeat(ctx, WorkerInfo{Name: "w2"}))
	require.NoError(t, r.Heartbeat(ctx, WorkerInfo{Name: "w1"}))
	require.NoError(t, mr.Set("worker:broken", "not-json"))
	require.NoError(t, mr.Set("other:key", "{}"))

	workers, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "w1", workers[0].Name)
	assert.Equal(t, "w2", workers[1].Name)
}

func TestRunRegistersAndDeregisters(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := NewRegistry(client, time.Minute, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond, func() WorkerInfo { return WorkerInfo{Name: "w1"} })
		close(done)
	}()

	require.Eventually(t, func() bool { return mr.Exists("worker:w1") }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, mr.Exists("worker:w1"))
}

func TestRemoveMissingKey(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := NewRegistry(client, time.Minute, logger.NewNop())
	assert.NoError(t, r.Remove(context.Background(), "ghost"))
	assert.NoError(t, r.Ping(context.Background()))
}
