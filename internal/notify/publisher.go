package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-order-worker/internal/logger"
	"ms-order-worker/internal/models"
)

// QueuePublisher delivers a message body to a named queue.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Mirror receives a copy of every envelope, keyed by order uuid.
type Mirror interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Publisher wraps notification payloads in the {type, data, timestamp, worker}
// envelope and sends them to the notifications queue.
type Publisher struct {
	queue     QueuePublisher
	queueName string
	worker    string
	mirror    Mirror
	logger    *logger.Logger
	now       func() time.Time
}

func NewPublisher(queue QueuePublisher, queueName, worker string, log *logger.Logger) *Publisher {
	return &Publisher{
		queue:     queue,
		queueName: queueName,
		worker:    worker,
		logger:    log,
		now:       time.Now,
	}
}

// WithMirror sets an additional best-effort sink for every published envelope.
func (p *Publisher) WithMirror(m Mirror) *Publisher {
	p.mirror = m
	return p
}

func (p *Publisher) Publish(ctx context.Context, notificationType models.NotificationType, data any) error {
	envelope := models.NewNotification(notificationType, data, p.worker, p.now())

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", notificationType, err)
	}

	if err := p.queue.Publish(ctx, p.queueName, body); err != nil {
		p.logger.LogQueue("PUBLISH_FAILED", p.queueName, fmt.Sprintf("%s: %v", notificationType, err))
		return err
	}
	p.logger.LogQueue("PUBLISHED", p.queueName, string(notificationType))

	if p.mirror != nil {
		if err := p.mirror.Publish(ctx, envelope.OrderKey(), body); err != nil {
			p.logger.LogKafka("MIRROR_FAILED", string(notificationType), err.Error())
		}
	}
	return nil
}
