package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"ms-order-worker/internal/logger"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "worker:"

// WorkerInfo is the heartbeat payload one worker keeps alive in Redis.
type WorkerInfo struct {
	Name         string    `json:"name"`
	Hostname     string    `json:"hostname"`
	PID          int       `json:"pid"`
	Queue        string    `json:"queue"`
	StartedAt    time.Time `json:"started_at"`
	LastSeen     time.Time `json:"last_seen"`
	Processed    int64     `json:"processed"`
	Requeued     int64     `json:"requeued"`
	DeadLettered int64     `json:"dead_lettered"`
}

// Registry tracks live workers as expiring Redis keys.
type Registry struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRegistry(client *redis.Client, ttl time.Duration, log *logger.Logger) *Registry {
	return &Registry{Client: client, TTL: ttl, Logger: log}
}

func key(name string) string {
	return keyPrefix + name
}

// Heartbeat stores info under worker:<name> and renews its TTL.
func (r *Registry) Heartbeat(ctx context.Context, info WorkerInfo) error {
	info.LastSeen = time.Now().UTC()
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := r.Client.Set(ctx, key(info.Name), payload, r.TTL).Err(); err != nil {
		return fmt.Errorf("heartbeat %s: %w", info.Name, err)
	}
	return nil
}

// Remove deletes the worker's key. A missing key is not an error.
func (r *Registry) Remove(ctx context.Context, name string) error {
	return r.Client.Del(ctx, key(name)).Err()
}

// Get returns one worker's last heartbeat, or ok=false when it has expired.
func (r *Registry) Get(ctx context.Context, name string) (WorkerInfo, bool, error) {
	val, err := r.Client.Get(ctx, key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return WorkerInfo{}, false, nil
	}
	if err != nil {
		return WorkerInfo{}, false, err
	}

	var info WorkerInfo
	if err := json.Unmarshal(val, &info); err != nil {
		return WorkerInfo{}, false, fmt.Errorf("decode worker %s: %w", name, err)
	}
	return info, true, nil
}

// List returns every worker whose heartbeat has not expired, sorted by name.
func (r *Registry) List(ctx context.Context) ([]WorkerInfo, error) {
	var workers []WorkerInfo
	iter := r.Client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		val, err := r.Client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var info WorkerInfo
		if err := json.Unmarshal(val, &info); err != nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("Skipping unreadable worker entry %s: %v", iter.Val(), err))
			continue
		}
		workers = append(workers, info)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	sort.Slice(workers, func(i, j int) bool { return workers[i].Name < workers[j].Name })
	return workers, nil
}

func (r *Registry) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Run sends a heartbeat immediately and then every interval until ctx is
// done, when the worker's key is removed. Heartbeat failures are logged.
func (r *Registry) Run(ctx context.Context, interval time.Duration, snapshot func() WorkerInfo) {
	beat := func() {
		info := snapshot()
		if err := r.Heartbeat(ctx, info); err != nil && ctx.Err() == nil {
			r.Logger.Warn("REDIS", err.Error())
		}
	}

	beat()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			beat()
		case <-ctx.Done():
			name := snapshot().Name
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := r.Remove(cleanupCtx, name); err != nil {
				r.Logger.Warn("REDIS", fmt.Sprintf("Failed to deregister worker %s: %v", name, err))
			} else {
				r.Logger.Info("REDIS", fmt.Sprintf("Worker %s deregistered", name))
			}
			return
		}
	}
}
