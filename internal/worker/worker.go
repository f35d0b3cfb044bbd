package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"ms-order-worker/internal/logger"
	"ms-order-worker/internal/registry"

	"github.com/hashicorp/go-multierror"
)

const shutdownTimeout = 10 * time.Second

type closer struct {
	name string
	fn   func() error
}

// Worker owns every long-lived handle of one worker process: the dispatcher,
// the optional heartbeat registry and status server, and the resources that
// must be released on shutdown. Cancelling the context passed to Run is the
// only stop signal.
type Worker struct {
	Name              string
	Queue             string
	Dispatcher        *Dispatcher
	Registry          *registry.Registry
	HeartbeatInterval time.Duration
	Server            *http.Server
	Logger            *logger.Logger

	startedAt time.Time
	closers   []closer
}

func New(name, queue string, dispatcher *Dispatcher, log *logger.Logger) *Worker {
	return &Worker{
		Name:              name,
		Queue:             queue,
		Dispatcher:        dispatcher,
		HeartbeatInterval: 10 * time.Second,
		Logger:            log,
		startedAt:         time.Now().UTC(),
	}
}

// OnShutdown registers fn to run after the dispatcher stops. Closers run in
// reverse registration order.
func (w *Worker) OnShutdown(name string, fn func() error) {
	w.closers = append(w.closers, closer{name: name, fn: fn})
}

// Info is the worker's current heartbeat payload.
func (w *Worker) Info() registry.WorkerInfo {
	host, _ := os.Hostname()
	stats := w.Dispatcher.Stats()
	return registry.WorkerInfo{
		Name:         w.Name,
		Hostname:     host,
		PID:          os.Getpid(),
		Queue:        w.Queue,
		StartedAt:    w.startedAt,
		Processed:    stats.Processed,
		Requeued:     stats.Requeued,
		DeadLettered: stats.DeadLettered,
	}
}

// Run blocks until ctx is cancelled or the dispatcher fails, then shuts
// everything down. The in-flight message, if any, is finished first.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	var result *multierror.Error

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if w.Registry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Registry.Run(runCtx, w.HeartbeatInterval, w.Info)
		}()
	}

	serverErr := make(chan error, 1)
	if w.Server != nil {
		go func() {
			w.Logger.Info("API", fmt.Sprintf("Status server listening on %s", w.Server.Addr))
			if err := w.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	go func() {
		select {
		case err := <-serverErr:
			w.Logger.Error("API", fmt.Sprintf("Status server failed: %v", err))
			stop()
		case <-runCtx.Done():
		}
	}()

	w.Logger.LogProcess("WORKER", fmt.Sprintf("%s consuming from %s", w.Name, w.Queue))
	if err := w.Dispatcher.Run(runCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("dispatcher: %w", err))
	}
	stop()

	if err := w.shutdown(); err != nil {
		result = multierror.Append(result, err)
	}
	wg.Wait()

	w.Logger.LogProcess("WORKER", fmt.Sprintf("%s stopped", w.Name))
	return result.ErrorOrNil()
}

func (w *Worker) shutdown() error {
	var result *multierror.Error

	if w.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := w.Server.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("status server: %w", err))
		}
		cancel()
	}

	for i := len(w.closers) - 1; i >= 0; i-- {
		c := w.closers[i]
		if err := c.fn(); err != nil {
			w.Logger.Warn("SHUTDOWN", fmt.Sprintf("Failed to close %s: %v", c.name, err))
			result = multierror.Append(result, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return result.ErrorOrNil()
}
