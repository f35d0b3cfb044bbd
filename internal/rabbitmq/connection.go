package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-order-worker/internal/config"
	"ms-order-worker/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultInitialBackoff = 5 * time.Second
	DefaultMaxBackoff     = 60 * time.Second

	dialTimeout    = 10 * time.Second
	publishTimeout = 5 * time.Second
)

var ErrNotConnected = errors.New("rabbitmq: not connected")

type Options struct {
	URL                string
	OrdersQueue        string
	DeadLetterQueue    string
	NotificationsQueue string
	Prefetch           int
	Heartbeat          time.Duration
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
}

func OptionsFromConfig(cfg config.RabbitMQConfig) Options {
	return Options{
		URL:                cfg.URL(),
		OrdersQueue:        cfg.OrdersQueue,
		DeadLetterQueue:    cfg.DeadLetterQueue(),
		NotificationsQueue: cfg.NotificationsQueue,
		Prefetch:           cfg.PrefetchCount,
		Heartbeat:          cfg.Heartbeat,
		InitialBackoff:     DefaultInitialBackoff,
		MaxBackoff:         DefaultMaxBackoff,
	}
}

// ConnectionManager owns the broker connection and the single channel used
// for consuming, acknowledging and publishing.
type ConnectionManager struct {
	opts   Options
	logger *logger.Logger

	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConnectionManager(opts Options, log *logger.Logger) *ConnectionManager {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.DeadLetterQueue == "" {
		opts.DeadLetterQueue = opts.OrdersQueue + "_dlq"
	}
	return &ConnectionManager{opts: opts, logger: log}
}

// Connect dials the broker, applies QoS and declares the topology.
// Existing handles are released first.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = m.Disconnect()

	conn, err := amqp.DialConfig(m.opts.URL, amqp.Config{
		Heartbeat: m.opts.Heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := m.openChannel(conn)
	if err != nil {
		conn.Close()
		return err
	}

	ch, err = m.declareTopology(conn, ch)
	if err != nil {
		conn.Close()
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.ch = ch
	m.mu.Unlock()

	go m.watch(conn)

	m.logger.LogQueue("CONNECTED", m.opts.OrdersQueue,
		fmt.Sprintf("prefetch=%d dlq=%s notifications=%s", m.opts.Prefetch, m.opts.DeadLetterQueue, m.opts.NotificationsQueue))
	return nil
}

func (m *ConnectionManager) openChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(m.opts.Prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return ch, nil
}

// declareTopology declares the orders queue with its dead-letter routing, the
// dead-letter queue and the notifications queue. The returned channel
// replaces ch when the broker closed it on a mismatched declaration.
func (m *ConnectionManager) declareTopology(conn *amqp.Connection, ch *amqp.Channel) (*amqp.Channel, error) {
	_, err := ch.QueueDeclare(m.opts.OrdersQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": m.opts.DeadLetterQueue,
	})
	if err != nil {
		var amqpErr *amqp.Error
		if !errors.As(err, &amqpErr) || amqpErr.Code != amqp.PreconditionFailed {
			return nil, fmt.Errorf("declare %s: %w", m.opts.OrdersQueue, err)
		}

		m.logger.Warn("RABBITMQ", fmt.Sprintf("Queue %s exists with different arguments, using it as is", m.opts.OrdersQueue))
		ch, err = m.openChannel(conn)
		if err != nil {
			return nil, err
		}
		if _, err := ch.QueueDeclarePassive(m.opts.OrdersQueue, true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("passive declare %s: %w", m.opts.OrdersQueue, err)
		}
	}

	for _, queue := range []string{m.opts.DeadLetterQueue, m.opts.NotificationsQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("declare %s: %w", queue, err)
		}
	}
	return ch, nil
}

func (m *ConnectionManager) watch(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	if amqpErr, ok := <-closed; ok && amqpErr != nil {
		m.logger.Warn("RABBITMQ", fmt.Sprintf("Connection lost: %v", amqpErr))
	}
}

// Disconnect closes the channel and the connection. Handles the broker
// already closed are ignored.
func (m *ConnectionManager) Disconnect() error {
	m.mu.Lock()
	ch, conn := m.ch, m.conn
	m.ch, m.conn = nil, nil
	m.mu.Unlock()

	var result *multierror.Error
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("close channel: %w", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("close connection: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func (m *ConnectionManager) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.InitialBackoff
	b.Multiplier = 2
	b.MaxInterval = m.opts.MaxBackoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ReconnectWithBackoff calls Connect until it succeeds. The delay starts at
// InitialBackoff, doubles per failure and is capped at MaxBackoff. It only
// gives up when ctx is cancelled.
func (m *ConnectionManager) ReconnectWithBackoff(ctx context.Context) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := m.Connect(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		m.logger.Error("RABBITMQ", fmt.Sprintf("Connect attempt %d failed: %v (retrying in %s)", attempt, err, next))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(m.newBackOff(), ctx), notify); err != nil {
		return fmt.Errorf("reconnect rabbitmq: %w", err)
	}
	if attempt > 1 {
		m.logger.Info("RABBITMQ", fmt.Sprintf("Reconnected after %d attempts", attempt))
	}
	return nil
}

func (m *ConnectionManager) channel() (*amqp.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil || m.conn.IsClosed() || m.ch == nil || m.ch.IsClosed() {
		return nil, ErrNotConnected
	}
	return m.ch, nil
}

// Consume subscribes to the orders queue with manual acknowledgement.
func (m *ConnectionManager) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := m.channel()
	if err != nil {
		return nil, err
	}
	deliveries, err := ch.Consume(m.opts.OrdersQueue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", m.opts.OrdersQueue, err)
	}
	m.logger.LogQueue("CONSUMING", m.opts.OrdersQueue, "consumer "+consumerTag)
	return deliveries, nil
}

// Cancel stops the consumer. Deliveries already received stay acknowledgeable.
func (m *ConnectionManager) Cancel(consumerTag string) error {
	ch, err := m.channel()
	if err != nil {
		return err
	}
	return ch.Cancel(consumerTag, false)
}

// Publish sends a persistent JSON message to queue through the default exchange.
func (m *ConnectionManager) Publish(ctx context.Context, queue string, body []byte) error {
	ch, err := m.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Healthy reports whether both the connection and the channel are open.
func (m *ConnectionManager) Healthy() bool {
	_, err := m.channel()
	return err == nil
}

func (m *ConnectionManager) Options() Options {
	return m.opts
}
