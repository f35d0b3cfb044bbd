package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"ms-order-worker/internal/logger"
	"ms-order-worker/internal/models"
	"ms-order-worker/internal/order"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MaxRetries is the producer-side retry_count at which a transient failure
// is dead-lettered instead of requeued.
const MaxRetries = 3

type Broker interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
	ReconnectWithBackoff(ctx context.Context) error
}

type OrderProcessor interface {
	Process(ctx context.Context, msg models.OrderMessage) (order.Result, error)
}

// Decision is what the dispatcher tells the broker about a delivery.
type Decision int

const (
	DecisionAck Decision = iota
	DecisionRequeue
	DecisionDeadLetter
)

func (d Decision) String() string {
	switch d {
	case DecisionAck:
		return "ack"
	case DecisionRequeue:
		return "requeue"
	case DecisionDeadLetter:
		return "dead-letter"
	default:
		return "unknown"
	}
}

// Decide maps a processing result to a broker decision.
func Decide(result order.Result, retryCount int) Decision {
	if result.Handled() {
		return DecisionAck
	}
	if retryCount >= MaxRetries {
		return DecisionDeadLetter
	}
	return DecisionRequeue
}

type Stats struct {
	Processed    int64
	Requeued     int64
	DeadLettered int64
}

// Dispatcher receives order deliveries one at a time and settles each one
// with the broker according to the processing outcome.
type Dispatcher struct {
	broker      Broker
	processor   OrderProcessor
	logger      *logger.Logger
	consumerTag string

	processed    atomic.Int64
	requeued     atomic.Int64
	deadLettered atomic.Int64
}

func NewDispatcher(broker Broker, processor OrderProcessor, consumerTag string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		broker:      broker,
		processor:   processor,
		logger:      log,
		consumerTag: consumerTag,
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Processed:    d.processed.Load(),
		Requeued:     d.requeued.Load(),
		DeadLettered: d.deadLettered.Load(),
	}
}

// Run consumes until ctx is cancelled. A lost delivery stream triggers a
// reconnect and a new subscription. Run returns nil on shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		deliveries, err := d.broker.Consume(d.consumerTag)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("DISPATCHER", fmt.Sprintf("Failed to subscribe: %v", err))
			if err := d.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		if d.consume(ctx, deliveries) {
			if err := d.broker.Cancel(d.consumerTag); err != nil {
				d.logger.Warn("DISPATCHER", fmt.Sprintf("Failed to cancel consumer %s: %v", d.consumerTag, err))
			}
			d.logger.Info("DISPATCHER", "Stopped consuming")
			return nil
		}

		d.logger.Warn("DISPATCHER", "Delivery stream closed, reconnecting")
		if err := d.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) reconnect(ctx context.Context) error {
	err := d.broker.ReconnectWithBackoff(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// consume handles deliveries until ctx is done (true) or the stream closes (false).
func (d *Dispatcher) consume(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case delivery, ok := <-deliveries:
			if !ok {
				return false
			}
			if ctx.Err() != nil {
				// left unacknowledged; the broker redelivers it
				return true
			}
			d.Handle(context.WithoutCancel(ctx), delivery)
		}
	}
}

// Handle processes one delivery and settles it. It never panics.
func (d *Dispatcher) Handle(ctx context.Context, delivery amqp.Delivery) Decision {
	msg, err := models.ParseOrderMessage(delivery.Body)
	if err != nil {
		d.logger.LogQueue("MALFORMED", delivery.RoutingKey, err.Error())
		return d.settle(delivery, DecisionDeadLetter, "")
	}

	result, err := d.process(ctx, msg)
	if err != nil {
		var panicErr *panicError
		if errors.As(err, &panicErr) {
			d.logger.Error("DISPATCHER", fmt.Sprintf("Panic while processing order %s: %v\n%s", msg.OrderUUID, panicErr.value, panicErr.stack))
			return d.settle(delivery, DecisionRequeue, msg.OrderUUID)
		}
	}

	decision := Decide(result, msg.RetryCount)
	if decision == DecisionDeadLetter {
		d.logger.LogOrder("DEAD_LETTER", msg.OrderUUID, fmt.Sprintf("retry_count=%d: %v", msg.RetryCount, err))
	}
	return d.settle(delivery, decision, msg.OrderUUID)
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func (d *Dispatcher) process(ctx context.Context, msg models.OrderMessage) (result order.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = order.ResultTransient
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return d.processor.Process(ctx, msg)
}

func (d *Dispatcher) settle(delivery amqp.Delivery, decision Decision, orderUUID string) Decision {
	var err error
	switch decision {
	case DecisionAck:
		err = delivery.Ack(false)
		d.processed.Add(1)
	case DecisionRequeue:
		err = delivery.Nack(false, true)
		d.requeued.Add(1)
	case DecisionDeadLetter:
		err = delivery.Reject(false)
		d.deadLettered.Add(1)
	}

	if err != nil {
		d.logger.Error("DISPATCHER", fmt.Sprintf("Failed to %s delivery %d (order %s): %v", decision, delivery.DeliveryTag, orderUUID, err))
		return decision
	}

	line := fmt.Sprintf("%s delivery %d (order %s)", decision, delivery.DeliveryTag, orderUUID)
	switch decision {
	case DecisionAck:
		d.logger.Info("DISPATCHER", line)
	case DecisionRequeue:
		d.logger.Warn("DISPATCHER", line)
	default:
		d.logger.Error("DISPATCHER", line)
	}
	return decision
}
