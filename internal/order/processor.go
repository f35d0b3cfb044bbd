package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-order-worker/internal/catalog"
	"ms-order-worker/internal/logger"
	"ms-order-worker/internal/models"
	"ms-order-worker/internal/order/db"
	"ms-order-worker/internal/tickets/qr"

	"github.com/google/uuid"
)

type OrderStore interface {
	FindOrder(ctx context.Context, orderUUID uuid.UUID) (*models.Order, error)
	UpsertOrder(ctx context.Context, order *models.Order) error
}

type SeatCommitter interface {
	CommitSeat(ctx context.Context, seatID int64, userID, orderUUID string, amount float64) (catalog.CommitResult, error)
}

type Notifier interface {
	Publish(ctx context.Context, notificationType models.NotificationType, data any) error
}

type Workload interface {
	Generate(ticket qr.Ticket, complexity int) (qr.Result, error)
}

// Processor drives one order message through
// PROCESSING -> workload -> seat commit -> COMPLETED | FAILED.
type Processor struct {
	Store    OrderStore
	Catalog  SeatCommitter
	Notifier Notifier
	Workload Workload
	Logger   *logger.Logger

	now func() time.Time
}

func NewProcessor(store OrderStore, committer SeatCommitter, notifier Notifier, workload Workload, log *logger.Logger) *Processor {
	return &Processor{
		Store:    store,
		Catalog:  committer,
		Notifier: notifier,
		Workload: workload,
		Logger:   log,
		now:      time.Now,
	}
}

func (p *Processor) clock() time.Time {
	return p.now().UTC()
}

// Process handles one message. The returned error describes why the result
// is ResultInvalid or ResultTransient; it is nil otherwise.
func (p *Processor) Process(ctx context.Context, msg models.OrderMessage) (Result, error) {
	start := p.now()

	id, err := msg.Validate()
	if err != nil {
		p.Logger.LogOrder("INVALID", msg.OrderUUID, err.Error())
		return ResultInvalid, err
	}

	order, err := p.markProcessing(ctx, msg, id)
	if err != nil {
		return p.transient(ctx, msg, id, nil, err)
	}
	p.Logger.LogOrder("PROCESSING", msg.OrderUUID, fmt.Sprintf("seat %d, complexity %d", msg.SeatID, msg.ProcessingComplexity))

	ticket := qr.Ticket{
		OrderUUID: id.OrderUUID.String(),
		UserID:    id.UserID.String(),
		EventID:   msg.EventID,
		SeatID:    msg.SeatID,
	}
	workload, err := p.Workload.Generate(ticket, msg.ProcessingComplexity)
	if err != nil {
		return p.transient(ctx, msg, id, order, fmt.Errorf("generate ticket: %w", err))
	}
	p.Logger.LogProcess("QR", fmt.Sprintf("order %s: %d iterations in %s", msg.OrderUUID, workload.Iterations, workload.Elapsed))

	commit, err := p.Catalog.CommitSeat(ctx, msg.SeatID, ticket.UserID, ticket.OrderUUID, msg.TotalAmount)
	if err != nil {
		return p.transient(ctx, msg, id, order, err)
	}

	if !commit.Success {
		return p.reject(ctx, msg, order, commit.Message)
	}
	return p.complete(ctx, msg, order, workload.Hash, start)
}

// markProcessing loads or creates the order row and sets it to PROCESSING.
// An existing row is overwritten whatever its previous status.
func (p *Processor) markProcessing(ctx context.Context, msg models.OrderMessage, id models.OrderIdentity) (*models.Order, error) {
	now := p.clock()

	order, err := p.Store.FindOrder(ctx, id.OrderUUID)
	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		order = &models.Order{
			OrderUUID:            id.OrderUUID,
			UserID:               id.UserID,
			EventID:              msg.EventID,
			SeatID:               msg.SeatID,
			TotalAmount:          models.NewAmount(msg.TotalAmount),
			ProcessingComplexity: msg.ProcessingComplexity,
			PaymentReference:     msg.PaymentRef(),
			CreatedAt:            now,
		}
	case err != nil:
		return nil, err
	}

	order.Status = models.OrderStatusProcessing
	order.UpdatedAt = now
	if err := p.Store.UpsertOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (p *Processor) reject(ctx context.Context, msg models.OrderMessage, order *models.Order, reason string) (Result, error) {
	now := p.clock()
	order.Status = models.OrderStatusFailed
	order.ErrorMessage = reason
	order.QRCodeHash = ""
	order.CompletedAt = nil
	order.UpdatedAt = now
	if err := p.Store.UpsertOrder(ctx, order); err != nil {
		return p.transient(ctx, msg, identityOf(order), order, err)
	}

	p.publish(ctx, models.NotificationOrderFailed, models.OrderFailedData{
		OrderUUID: order.OrderUUID.String(),
		UserID:    order.UserID.String(),
		EventID:   msg.EventID,
		SeatID:    msg.SeatID,
		Error:     reason,
		Timestamp: now.Format(time.RFC3339Nano),
	})

	p.Logger.LogOrder("FAILED", msg.OrderUUID, reason)
	return ResultRejected, nil
}

func (p *Processor) complete(ctx context.Context, msg models.OrderMessage, order *models.Order, hash string, start time.Time) (Result, error) {
	elapsed := p.now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	now := p.clock()
	order.Status = models.OrderStatusCompleted
	order.QRCodeHash = hash
	order.ErrorMessage = ""
	order.CompletedAt = &now
	order.UpdatedAt = now
	if err := p.Store.UpsertOrder(ctx, order); err != nil {
		return p.transient(ctx, msg, identityOf(order), order, err)
	}

	p.publish(ctx, models.NotificationOrderCompleted, models.OrderCompletedData{
		OrderUUID:        order.OrderUUID.String(),
		UserID:           order.UserID.String(),
		EventID:          msg.EventID,
		SeatID:           msg.SeatID,
		QRCodeHash:       hash,
		TotalAmount:      msg.TotalAmount,
		ProcessingTimeMS: elapsed.Milliseconds(),
		CompletedAt:      now.Format(time.RFC3339Nano),
	})

	p.Logger.LogOrder("COMPLETED", msg.OrderUUID, fmt.Sprintf("in %dms", elapsed.Milliseconds()))
	return ResultCompleted, nil
}

// transient records cause on the order row when one exists. The write is
// best effort; cause is what gets returned.
func (p *Processor) transient(ctx context.Context, msg models.OrderMessage, id models.OrderIdentity, order *models.Order, cause error) (Result, error) {
	p.Logger.LogOrder("ERROR", msg.OrderUUID, cause.Error())

	if order == nil {
		found, err := p.Store.FindOrder(ctx, id.OrderUUID)
		if err != nil {
			if !errors.Is(err, db.ErrOrderNotFound) {
				p.Logger.Error("DATABASE", fmt.Sprintf("Failed to mark order %s as FAILED: %v", msg.OrderUUID, err))
			}
			return ResultTransient, cause
		}
		order = found
	}

	order.Status = models.OrderStatusFailed
	order.ErrorMessage = cause.Error()
	order.QRCodeHash = ""
	order.CompletedAt = nil
	order.UpdatedAt = p.clock()
	if err := p.Store.UpsertOrder(ctx, order); err != nil {
		p.Logger.Error("DATABASE", fmt.Sprintf("Failed to mark order %s as FAILED: %v", msg.OrderUUID, err))
	}
	return ResultTransient, cause
}

func identityOf(order *models.Order) models.OrderIdentity {
	return models.OrderIdentity{OrderUUID: order.OrderUUID, UserID: order.UserID}
}

func (p *Processor) publish(ctx context.Context, notificationType models.NotificationType, data any) {
	if err := p.Notifier.Publish(ctx, notificationType, data); err != nil {
		p.Logger.Error("NOTIFY", fmt.Sprintf("Failed to publish %s: %v", notificationType, err))
	}
}
